package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/robby/roster/internal/store"
)

const groupNameWidth = 28

// groupItem represents a group in the results list.
type groupItem struct {
	group store.Group
	// loaded and total are live fetch progress; total is -1 when unknown.
	loaded int
	total  int
	busy   bool
}

func (i groupItem) FilterValue() string { return i.group.Name }

// groupItemDelegate handles rendering of group items.
type groupItemDelegate struct{}

func (d groupItemDelegate) Height() int                             { return 1 }
func (d groupItemDelegate) Spacing() int                            { return 0 }
func (d groupItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }
func (d groupItemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(groupItem)
	if !ok {
		return
	}

	name := truncate.StringWithTail(i.group.Name, groupNameWidth, "…")
	str := fmt.Sprintf("%-*s %s", groupNameWidth, name, describeGroup(i))

	fn := NormalItemStyle.Render
	if index == m.Index() {
		fn = func(s ...string) string {
			return SelectedItemStyle.Render("> " + s[0])
		}
	}

	fmt.Fprint(w, fn(str))
}

// describeGroup renders the status column of a row.
func describeGroup(i groupItem) string {
	g := i.group
	status := statusStyle(g.Status.String()).Render(fmt.Sprintf("%-9s", g.Status))

	switch {
	case i.busy && g.Status == store.StatusPending:
		return status + " " + progressLabel(i.loaded, i.total)
	case g.Status == store.StatusFailed:
		detail := ""
		if g.Err != nil {
			detail = truncate.StringWithTail(g.Err.Error(), 60, "…")
		}
		return status + " " + detail
	}

	count := fmt.Sprintf("%d members", len(g.Members))
	if g.Partial {
		count = WarningStyle.Render(fmt.Sprintf("%d of %d members (partial)", len(g.Members), g.Total))
	}
	if g.Path != "" {
		return status + " " + count + " " + DimStyle.Render(g.Path)
	}
	return status + " " + count
}

// progressLabel renders download progress as [i/total].
func progressLabel(loaded, total int) string {
	if total < 0 {
		if loaded == 0 {
			return "resolving…"
		}
		return fmt.Sprintf("[%d/?]", loaded)
	}
	return fmt.Sprintf("[%d/%d]", loaded, total)
}

// ResultsModel lists the requested groups and their status.
type ResultsModel struct {
	list   list.Model
	keymap KeyMap
	help   HelpModel
	width  int
}

// NewResultsModel creates an empty results list.
func NewResultsModel() ResultsModel {
	// Start with a reasonable default - will be resized by WindowSizeMsg
	l := list.New(nil, groupItemDelegate{}, 80, 20)
	l.Title = "Groups"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = TitleStyle
	l.Styles.PaginationStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	km := DefaultKeyMap()
	return ResultsModel{
		list:   l,
		keymap: km,
		help:   NewHelpModel(km),
		width:  80,
	}
}

// SetItems replaces the rows, keeping the selection.
func (m *ResultsModel) SetItems(items []groupItem) tea.Cmd {
	listItems := make([]list.Item, len(items))
	for i, it := range items {
		listItems[i] = it
	}
	return m.list.SetItems(listItems)
}

// SetTitle replaces the list header.
func (m *ResultsModel) SetTitle(title string) {
	m.list.Title = title
}

// Selected returns the highlighted group.
func (m ResultsModel) Selected() (store.Group, bool) {
	item, ok := m.list.SelectedItem().(groupItem)
	if !ok {
		return store.Group{}, false
	}
	return item.group, true
}

// Init initializes the model.
func (m ResultsModel) Init() tea.Cmd {
	// Request window size on init to properly size the list
	return tea.WindowSize()
}

// Update handles messages.
func (m ResultsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.list.SettingFilter() {
			break
		}
		switch {
		case key.Matches(msg, m.keymap.View):
			if g, ok := m.Selected(); ok {
				return m, func() tea.Msg { return ViewMembersMsg{Group: g.Name} }
			}
			return m, nil
		case key.Matches(msg, m.keymap.Export):
			if g, ok := m.Selected(); ok {
				return m, func() tea.Msg { return ExportGroupMsg{Group: g.Name} }
			}
			return m, nil
		case key.Matches(msg, m.keymap.Open):
			if g, ok := m.Selected(); ok && g.Path != "" {
				return m, func() tea.Msg { return OpenExportMsg{Path: g.Path} }
			}
			return m, nil
		case key.Matches(msg, m.keymap.New):
			return m, func() tea.Msg { return NewGroupsMsg{} }
		case key.Matches(msg, m.keymap.Help):
			m.help.Toggle()
			return m, nil
		case key.Matches(msg, m.keymap.Quit):
			return m, func() tea.Msg { return QuitMsg{} }
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.list.SetWidth(msg.Width - 2)
		m.list.SetHeight(msg.Height - 4)
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the model.
func (m ResultsModel) View() string {
	var b strings.Builder
	b.WriteString(m.list.View())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.width))
	return b.String()
}
