package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zalando/go-keyring"
)

const keyringService = "roster"

// KeyringStore keeps the session in the OS keyring (Keychain, Secret Service, Credential Manager).
type KeyringStore struct {
	user string
}

// NewKeyringStore creates a keyring-backed store for the given account name.
func NewKeyringStore(user string) *KeyringStore {
	if user == "" {
		user = "default"
	}
	return &KeyringStore{user: user}
}

// Load fetches the session from the keyring.
func (s *KeyringStore) Load(ctx context.Context) (Session, error) {
	encoded, err := keyring.Get(keyringService, s.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to read session from keyring: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(encoded), &sess); err != nil {
		return Session{}, fmt.Errorf("failed to decode keyring session: %w", err)
	}
	return sess, nil
}

// Save stores the session in the keyring, replacing any previous value.
func (s *KeyringStore) Save(ctx context.Context, sess Session) error {
	if sess.Updated.IsZero() {
		sess.Updated = time.Now().UTC()
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := keyring.Set(keyringService, s.user, string(data)); err != nil {
		return fmt.Errorf("failed to write session to keyring: %w", err)
	}
	return nil
}
