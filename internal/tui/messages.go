// Package tui provides Bubble Tea models for the interactive TUI.
package tui

import "time"

// PhoneEnteredMsg is emitted when the user submits a phone number.
type PhoneEnteredMsg struct {
	Phone string
}

// CodeEnteredMsg is emitted when the user submits the login code.
type CodeEnteredMsg struct {
	Code string
}

// BackMsg is emitted when the user leaves the code prompt to re-enter the phone number.
type BackMsg struct{}

// GroupsSubmittedMsg is emitted when the user submits groups to fetch.
type GroupsSubmittedMsg struct {
	Groups []string
	Dir    string
}

// ViewMembersMsg is emitted when the user opens a group's member list.
type ViewMembersMsg struct {
	Group string
}

// ExportGroupMsg is emitted when the user asks to export a group again.
type ExportGroupMsg struct {
	Group string
}

// OpenExportMsg is emitted when the user wants to open an exported file.
type OpenExportMsg struct {
	Path string
}

// NewGroupsMsg is emitted when the user wants to enter more groups.
type NewGroupsMsg struct{}

// ErrorMsg is emitted when an error occurs.
type ErrorMsg struct {
	Err error
}

// QuitMsg is emitted when the user requests to quit.
type QuitMsg struct{}

type (
	closeMembersMsg struct{}

	// pollMsg fires on every tick of the outcome polling loop.
	pollMsg time.Time
)
