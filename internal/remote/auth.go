package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/machinebox/graphql"

	"github.com/robby/roster/internal/session"
)

// LoginToken is returned by RequestLoginCode and must be passed to SignIn.
// It is immutable; share it by pointer.
type LoginToken struct {
	phone     string
	codeHash  string
	expiresAt time.Time
}

// NewLoginToken builds a token. Fakes in other packages use it.
func NewLoginToken(phone, codeHash string, expiresAt time.Time) *LoginToken {
	return &LoginToken{phone: phone, codeHash: codeHash, expiresAt: expiresAt}
}

// Phone returns the phone number the code was sent to.
func (t *LoginToken) Phone() string { return t.phone }

// CodeHash returns the service's opaque continuation value.
func (t *LoginToken) CodeHash() string { return t.codeHash }

// ExpiresAt returns when the code stops being accepted, zero if unknown.
func (t *LoginToken) ExpiresAt() time.Time { return t.expiresAt }

// RequestLoginCode asks the service to send a one-time code to phone.
func (c *Client) RequestLoginCode(ctx context.Context, phone string) (*LoginToken, error) {
	req := graphql.NewRequest(`
		mutation($phone: String!) {
			sendCode(phone: $phone) {
				phoneCodeHash
				timeout
			}
		}
	`)
	req.Var("phone", phone)

	var resp struct {
		SendCode struct {
			PhoneCodeHash string `json:"phoneCodeHash"`
			Timeout       int    `json:"timeout"`
		} `json:"sendCode"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to request login code: %w", err)
	}

	var expires time.Time
	if resp.SendCode.Timeout > 0 {
		expires = time.Now().Add(time.Duration(resp.SendCode.Timeout) * time.Second)
	}
	return NewLoginToken(phone, resp.SendCode.PhoneCodeHash, expires), nil
}

// SignIn completes the login with the code the user received.
// Returns ErrPasswordRequired for password-protected accounts and ErrInvalidCode for a rejected code.
func (c *Client) SignIn(ctx context.Context, token *LoginToken, code string) error {
	if token == nil {
		return fmt.Errorf("sign in: missing login token")
	}

	req := graphql.NewRequest(`
		mutation($phone: String!, $phoneCodeHash: String!, $code: String!) {
			signIn(phone: $phone, phoneCodeHash: $phoneCodeHash, code: $code) {
				sessionToken
				dc
				user {
					id
				}
			}
		}
	`)
	req.Var("phone", token.phone)
	req.Var("phoneCodeHash", token.codeHash)
	req.Var("code", code)

	var resp struct {
		SignIn struct {
			SessionToken string `json:"sessionToken"`
			DC           int    `json:"dc"`
			User         struct {
				ID string `json:"id"`
			} `json:"user"`
		} `json:"signIn"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		switch {
		case hasErrorCode(err, "SESSION_PASSWORD_NEEDED"):
			return ErrPasswordRequired
		case hasErrorCode(err, "PHONE_CODE_INVALID"), hasErrorCode(err, "PHONE_CODE_EXPIRED"):
			return fmt.Errorf("%w: %v", ErrInvalidCode, err)
		}
		return fmt.Errorf("failed to sign in: %w", err)
	}

	c.setSession(session.Session{
		Token:   resp.SignIn.SessionToken,
		UserID:  resp.SignIn.User.ID,
		DC:      resp.SignIn.DC,
		Updated: time.Now().UTC(),
	})
	return nil
}
