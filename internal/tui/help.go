package tui

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/lipgloss"
)

// HelpOverlayStyle frames the expanded key help.
var HelpOverlayStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("62")).
	Padding(0, 2).
	MarginTop(1)

// HelpModel wraps the bubbles help component. It renders a one-line hint
// until toggled, then the full key table.
type HelpModel struct {
	help   help.Model
	keymap KeyMap
}

// NewHelpModel creates a help model for the given bindings.
func NewHelpModel(keymap KeyMap) HelpModel {
	return HelpModel{
		help:   help.New(),
		keymap: keymap,
	}
}

// Toggle switches between the short and full views.
func (m *HelpModel) Toggle() {
	m.help.ShowAll = !m.help.ShowAll
}

// View renders the help for the given width.
func (m HelpModel) View(width int) string {
	if !m.help.ShowAll {
		m.help.Width = width
		return HelpStyle.Render(m.help.View(m.keymap))
	}
	m.help.Width = width - 6 // padding and border
	return HelpOverlayStyle.Render(m.help.View(m.keymap))
}
