// Package domain defines the normalized domain types for group member exports.
// These types represent the core concepts independent of the remote service's API structure.
package domain

// Role is the participant's role label inside a group.
type Role string

// Role constants reported by the remote service.
const (
	RoleCreator    Role = "Creator"
	RoleAdmin      Role = "Admin"
	RoleMember     Role = "Member"
	RoleRestricted Role = "Restricted"
	RoleBanned     Role = "Banned"
	RoleLeft       Role = "Left"
)

// Member represents one participant of a group in a flat, export-ready form.
// Optional fields are empty when the service did not return them.
type Member struct {
	Username  string // Public username without the leading @ (optional)
	FirstName string // First name as shown in the client
	LastName  string // Last name (optional)
	Phone     string // Phone number, only visible to contacts (optional)
	Scam      bool   // Account flagged as scam by the service
	Verified  bool   // Verified account
	Bot       bool   // Account is a bot
	Support   bool   // Official support account
	Role      Role   // Role label in the group
}

// DisplayName returns the best human-readable name for the member.
func (m Member) DisplayName() string {
	name := m.FirstName
	if m.LastName != "" {
		if name != "" {
			name += " "
		}
		name += m.LastName
	}
	if name == "" && m.Username != "" {
		return "@" + m.Username
	}
	return name
}

// Chat identifies a resolved group on the remote service.
type Chat struct {
	ID    string // Service node ID
	Title string // Group title
	Name  string // Public identifier the chat was resolved from
}
