package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/robby/roster/internal/store"
)

// GroupsModel collects the groups to download, one per line, and the export folder.
type GroupsModel struct {
	groups   textarea.Model
	dir      textinput.Model
	dirFocus bool
	err      string
}

// NewGroupsModel creates the group entry screen with dir pre-filled.
func NewGroupsModel(dir string) GroupsModel {
	ta := textarea.New()
	ta.Placeholder = "examplegroup\nt.me/anothergroup"
	ta.ShowLineNumbers = false
	ta.SetHeight(8)
	ta.SetWidth(60)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.Focus()

	ti := textinput.New()
	ti.Prompt = "Folder: "
	ti.Placeholder = "."
	ti.Width = 50
	ti.SetValue(dir)

	return GroupsModel{groups: ta, dir: ti}
}

// Init initializes the model.
func (m GroupsModel) Init() tea.Cmd {
	return textarea.Blink
}

// Update handles messages.
func (m GroupsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "tab", "shift+tab":
			m.dirFocus = !m.dirFocus
			if m.dirFocus {
				m.groups.Blur()
				return m, m.dir.Focus()
			}
			m.dir.Blur()
			return m, m.groups.Focus()
		case "ctrl+s":
			return m.submit()
		case "enter":
			if m.dirFocus {
				return m.submit()
			}
		}

	case tea.WindowSizeMsg:
		width := msg.Width - 4
		if width > 80 {
			width = 80
		}
		if width > 20 {
			m.groups.SetWidth(width)
			m.dir.Width = width - len(m.dir.Prompt)
		}
		return m, nil
	}

	var cmd tea.Cmd
	if m.dirFocus {
		m.dir, cmd = m.dir.Update(msg)
	} else {
		m.groups, cmd = m.groups.Update(msg)
	}
	return m, cmd
}

func (m GroupsModel) submit() (tea.Model, tea.Cmd) {
	names := store.ParseGroups(m.groups.Value())
	if len(names) == 0 {
		m.err = "Enter at least one group"
		return m, nil
	}
	m.err = ""
	dir := strings.TrimSpace(m.dir.Value())
	return m, func() tea.Msg {
		return GroupsSubmittedMsg{Groups: names, Dir: dir}
	}
}

// View renders the model.
func (m GroupsModel) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Groups"))
	b.WriteString("\n")
	b.WriteString(PromptStyle.Render("One group per line (name, @name or link):"))
	b.WriteString("\n")
	b.WriteString(m.groups.View())
	b.WriteString("\n\n")
	b.WriteString(m.dir.View())
	if m.err != "" {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(m.err))
	}
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("tab: switch field • ctrl+s: download • ctrl+c: quit"))
	return b.String()
}
