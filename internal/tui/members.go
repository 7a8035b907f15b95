package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/robby/roster/internal/domain"
	"github.com/robby/roster/internal/store"
)

// Column widths for the member table.
const (
	usernameWidth = 20
	nameWidth     = 28
	roleWidth     = 10
	phoneWidth    = 16
)

var (
	memberHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("62")).
				Underline(true)

	panelBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))

	scrollIndicatorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("205"))
)

// MembersModel shows the fetched members of one group as a scrollable table.
type MembersModel struct {
	group    store.Group
	viewport viewport.Model

	// View dimensions
	width  int
	height int
}

// NewMembersModel creates a member table for g.
func NewMembersModel(g store.Group) MembersModel {
	vp := viewport.New(80, 20) // Will be resized in WindowSizeMsg
	vp.MouseWheelEnabled = true
	vp.MouseWheelDelta = 3

	m := MembersModel{group: g, viewport: vp, width: 82, height: 26}
	m.viewport.SetContent(renderMembers(g.Members))
	return m
}

// Init initializes the model.
func (m MembersModel) Init() tea.Cmd {
	return tea.WindowSize()
}

// Update handles messages.
func (m MembersModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = max(msg.Width-4, 20)
		m.viewport.Height = max(msg.Height-8, 3)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "q":
			return m, func() tea.Msg { return closeMembersMsg{} }
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the model.
func (m MembersModel) View() string {
	var b strings.Builder
	title := fmt.Sprintf("%s · %d members", m.group.Name, len(m.group.Members))
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n")
	if m.group.Partial {
		b.WriteString(WarningStyle.Render(fmt.Sprintf(
			"Download stopped early: %d of %d members retrieved", len(m.group.Members), m.group.Total)))
		b.WriteString("\n")
	}

	b.WriteString(memberHeaderStyle.Render(formatRow("username", "name", "role", "phone", "flags")))
	b.WriteString("\n")
	b.WriteString(panelBorderStyle.Render(m.viewport.View()))
	b.WriteString("\n")

	scroll := scrollIndicatorStyle.Render(fmt.Sprintf("%3.f%%", m.viewport.ScrollPercent()*100))
	b.WriteString(HelpStyle.Render("↑/↓ scroll • esc: back ") + scroll)
	return b.String()
}

func renderMembers(members []domain.Member) string {
	if len(members) == 0 {
		return DimStyle.Render("No members.")
	}
	lines := make([]string, len(members))
	for i, mb := range members {
		username := mb.Username
		if username != "" {
			username = "@" + username
		}
		lines[i] = formatRow(username, mb.DisplayName(), string(mb.Role), mb.Phone, memberFlags(mb))
	}
	return strings.Join(lines, "\n")
}

func formatRow(username, name, role, phone, flags string) string {
	return fmt.Sprintf("%-*s %-*s %-*s %-*s %s",
		usernameWidth, truncate.StringWithTail(username, usernameWidth, "…"),
		nameWidth, truncate.StringWithTail(name, nameWidth, "…"),
		roleWidth, truncate.StringWithTail(role, roleWidth, "…"),
		phoneWidth, truncate.StringWithTail(phone, phoneWidth, "…"),
		flags)
}

func memberFlags(m domain.Member) string {
	var flags []string
	if m.Bot {
		flags = append(flags, "bot")
	}
	if m.Verified {
		flags = append(flags, "verified")
	}
	if m.Support {
		flags = append(flags, "support")
	}
	if m.Scam {
		flags = append(flags, "scam")
	}
	return strings.Join(flags, ",")
}
