// Package auth tracks the interactive sign-in flow.
//
// The machine is driven purely by bridge outcomes: the UI submits a job, and
// when its outcome arrives it calls Apply. The machine never talks to the
// network itself.
package auth

import (
	"errors"
	"fmt"

	"github.com/robby/roster/internal/bridge"
	"github.com/robby/roster/internal/remote"
)

// State is a step of the sign-in flow.
type State int

const (
	AwaitingPhoneNumber State = iota
	AwaitingCode
	Authenticated
)

func (s State) String() string {
	switch s {
	case AwaitingPhoneNumber:
		return "awaiting phone number"
	case AwaitingCode:
		return "awaiting code"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrUnexpectedOutcome is returned when an outcome does not belong to the current step.
var ErrUnexpectedOutcome = errors.New("auth: outcome does not match the current step")

// Machine holds the current state and the pending login token.
// It is not safe for concurrent use; the UI owns it.
type Machine struct {
	state State
	token *remote.LoginToken
}

// NewMachine returns a machine waiting for a phone number.
func NewMachine() *Machine {
	return &Machine{state: AwaitingPhoneNumber}
}

// Restore returns a machine for a session that is already signed in.
func Restore(authorized bool) *Machine {
	m := NewMachine()
	if authorized {
		m.state = Authenticated
	}
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Token returns the pending login token, or nil outside AwaitingCode.
func (m *Machine) Token() *remote.LoginToken {
	return m.token
}

// Reset goes back to the phone number step and forgets the token.
func (m *Machine) Reset() {
	m.state = AwaitingPhoneNumber
	m.token = nil
}

// Apply advances the machine with a job outcome. A failed outcome leaves the
// state alone and returns its error for display.
func (m *Machine) Apply(out bridge.Outcome) (State, error) {
	switch out.Kind {
	case bridge.KindRequestCode:
		if m.state != AwaitingPhoneNumber {
			return m.state, ErrUnexpectedOutcome
		}
		if !out.OK() {
			return m.state, out.Err
		}
		if out.Authorized {
			m.state, m.token = Authenticated, nil
			return m.state, nil
		}
		if out.Token == nil {
			return m.state, errors.New("auth: no login token in response")
		}
		m.state, m.token = AwaitingCode, out.Token
		return m.state, nil

	case bridge.KindSubmitCode:
		if m.state != AwaitingCode {
			return m.state, ErrUnexpectedOutcome
		}
		if !out.OK() {
			return m.state, out.Err
		}
		m.state, m.token = Authenticated, nil
		return m.state, nil

	default:
		return m.state, ErrUnexpectedOutcome
	}
}

// Describe renders an Apply error for the user.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, remote.ErrPasswordRequired):
		return "This account has two-step verification enabled; password sign-in is not supported."
	case errors.Is(err, remote.ErrInvalidCode):
		return "The code is invalid or has expired. Try again."
	case errors.Is(err, ErrUnexpectedOutcome):
		return "Unexpected response; please start over."
	default:
		return err.Error()
	}
}
