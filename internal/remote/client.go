// Package remote provides a GraphQL client for the chat service gateway.
// It hides the request shapes behind a small set of methods: sign-in, chat resolution
// and paged member listing.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/machinebox/graphql"

	"github.com/robby/roster/internal/session"
)

var (
	// ErrPasswordRequired indicates the account has a second-factor password.
	// roster does not implement that step.
	ErrPasswordRequired = errors.New("account is protected by a password")
	// ErrChatNotFound indicates the identifier did not resolve to a chat.
	ErrChatNotFound = errors.New("chat not found")
	// ErrInvalidCode indicates the one-time code was rejected.
	ErrInvalidCode = errors.New("invalid login code")
	// ErrMissingCredentials indicates the api id or hash was not configured.
	ErrMissingCredentials = errors.New("api id and api hash are required")
)

// Config holds the application credentials and gateway location.
type Config struct {
	Endpoint string `yaml:"endpoint" env:"ROSTER_ENDPOINT"`
	APIID    int    `yaml:"api_id" env:"ROSTER_API_ID"`
	APIHash  string `yaml:"api_hash" env:"ROSTER_API_HASH"`
	PageSize int    `yaml:"page_size" env:"ROSTER_PAGE_SIZE"`
}

// DefaultConfig returns the default gateway configuration. Credentials must be supplied.
func DefaultConfig() Config {
	return Config{
		Endpoint: "https://gateway.roster.dev/graphql",
		PageSize: 200,
	}
}

// Client is a GraphQL client for the chat service.
// Only the session is guarded here; callers serialize remote calls.
type Client struct {
	gql      *graphql.Client
	cfg      Config
	mu       sync.RWMutex
	sess     session.Session
	pageSize int
}

// Connect creates a client for the gateway using the given session.
// An empty session yields an unauthorized client that can request a login code.
func Connect(ctx context.Context, cfg Config, sess session.Session) (*Client, error) {
	if cfg.APIID == 0 || cfg.APIHash == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("gateway endpoint is required")
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultConfig().PageSize
	}

	return &Client{
		gql:      graphql.NewClient(cfg.Endpoint),
		cfg:      cfg,
		sess:     sess,
		pageSize: pageSize,
	}, nil
}

// Session returns the client's current credential state.
func (c *Client) Session() session.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess
}

func (c *Client) setSession(s session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess = s
}

// makeRequest executes a GraphQL request with application and session headers.
func (c *Client) makeRequest(ctx context.Context, req *graphql.Request, resp interface{}) error {
	req.Header.Set("X-Api-Id", strconv.Itoa(c.cfg.APIID))
	req.Header.Set("X-Api-Hash", c.cfg.APIHash)
	if token := c.Session().Token; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.gql.Run(ctx, req, resp)
}

// hasErrorCode reports whether a GraphQL error carries the given service error code.
// machinebox/graphql flattens errors into "graphql: <message>".
func hasErrorCode(err error, code string) bool {
	return err != nil && strings.Contains(err.Error(), code)
}

// IsAuthorized reports whether the current session is signed in.
func (c *Client) IsAuthorized(ctx context.Context) (bool, error) {
	if c.Session().Empty() {
		return false, nil
	}

	req := graphql.NewRequest(`
		query {
			me {
				id
			}
		}
	`)

	var resp struct {
		Me *struct {
			ID string `json:"id"`
		} `json:"me"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		if hasErrorCode(err, "AUTH_KEY_UNREGISTERED") || hasErrorCode(err, "UNAUTHORIZED") {
			return false, nil
		}
		return false, fmt.Errorf("failed to check authorization: %w", err)
	}
	return resp.Me != nil, nil
}
