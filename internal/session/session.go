// Package session persists the remote client's credential state so the user
// does not have to sign in again on every run.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound indicates no session has been saved yet.
var ErrNotFound = errors.New("session not found")

// Session is the credential state owned by the remote client.
// Its content is opaque to everything except the remote package.
type Session struct {
	Token   string    `json:"token,omitempty"`
	UserID  string    `json:"user_id,omitempty"`
	DC      int       `json:"dc,omitempty"`
	Updated time.Time `json:"updated"`
}

// Empty reports whether the session carries no credentials.
func (s Session) Empty() bool {
	return s.Token == ""
}

// Store loads and saves a single session.
type Store interface {
	// Load returns ErrNotFound when nothing has been saved.
	Load(ctx context.Context) (Session, error)
	// Save replaces the stored session.
	Save(ctx context.Context, s Session) error
}

// Config selects and configures a session backend.
type Config struct {
	Backend string `yaml:"backend" env:"ROSTER_SESSION_BACKEND"` // "file" or "keyring"
	Path    string `yaml:"path" env:"ROSTER_SESSION_FILE"`       // file backend
	User    string `yaml:"user" env:"ROSTER_SESSION_USER"`       // keyring backend account name
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		Backend: "file",
		Path:    "downloader.session",
		User:    "default",
	}
}

// NewStore creates a Store implementation based on the provided configuration.
// Supported backends: "file", "keyring"
func NewStore(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "file", "":
		return NewFileStore(cfg.Path)
	case "keyring":
		return NewKeyringStore(cfg.User), nil
	default:
		return nil, fmt.Errorf("unsupported session backend: %s (supported: file, keyring)", cfg.Backend)
	}
}

// LoadOrCreate loads the stored session, returning an empty one if none exists.
func LoadOrCreate(ctx context.Context, store Store) (Session, error) {
	s, err := store.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to load session: %w", err)
	}
	return s, nil
}
