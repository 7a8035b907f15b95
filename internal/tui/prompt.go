package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// PromptKind selects which sign-in value a PromptModel asks for.
type PromptKind int

const (
	PromptPhone PromptKind = iota
	PromptCode
)

// PromptModel asks for a single line during sign-in.
type PromptModel struct {
	kind  PromptKind
	phone string // shown on the code prompt
	input textinput.Model
	err   string
}

// NewPromptModel creates a prompt. phone is only used by PromptCode.
func NewPromptModel(kind PromptKind, phone string) PromptModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 32
	ti.Width = 32
	switch kind {
	case PromptPhone:
		ti.Placeholder = "+15550100"
	case PromptCode:
		ti.Placeholder = "12345"
	}
	ti.Focus()

	return PromptModel{kind: kind, phone: phone, input: ti}
}

// Init initializes the model.
func (m PromptModel) Init() tea.Cmd {
	return textinput.Blink
}

// Value returns the current input.
func (m PromptModel) Value() string {
	return strings.TrimSpace(m.input.Value())
}

// Update handles messages.
func (m PromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "enter":
			value := m.Value()
			if value == "" {
				m.err = "A value is required"
				return m, nil
			}
			m.err = ""
			if m.kind == PromptCode {
				return m, func() tea.Msg { return CodeEnteredMsg{Code: value} }
			}
			return m, func() tea.Msg { return PhoneEnteredMsg{Phone: value} }
		case "esc":
			if m.kind == PromptCode {
				return m, func() tea.Msg { return BackMsg{} }
			}
			return m, func() tea.Msg { return QuitMsg{} }
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the model.
func (m PromptModel) View() string {
	var b strings.Builder
	switch m.kind {
	case PromptPhone:
		b.WriteString(TitleStyle.Render("Sign in"))
		b.WriteString("\n")
		b.WriteString(PromptStyle.Render("Enter your phone number in international format:"))
	case PromptCode:
		b.WriteString(TitleStyle.Render("Enter code"))
		b.WriteString("\n")
		b.WriteString(PromptStyle.Render(fmt.Sprintf("A login code was sent to %s:", m.phone)))
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	if m.err != "" {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(m.err))
	}

	hint := "enter: submit • esc: quit"
	if m.kind == PromptCode {
		hint = "enter: submit • esc: change phone number"
	}
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render(hint))
	return b.String()
}
