package bridge

import (
	"context"
	"sync"

	"github.com/robby/roster/internal/domain"
	"github.com/robby/roster/internal/members"
	"github.com/robby/roster/internal/remote"
	"github.com/robby/roster/internal/session"
)

// Client is the remote capability set the bridge needs.
type Client interface {
	IsAuthorized(ctx context.Context) (bool, error)
	RequestLoginCode(ctx context.Context, phone string) (*remote.LoginToken, error)
	SignIn(ctx context.Context, token *remote.LoginToken, code string) error
	ResolveChat(ctx context.Context, name string) (domain.Chat, error)
	ListMembers(chat domain.Chat) members.PageSource
	Session() session.Session
}

// Handle gives exclusive access to the single client. Each acquisition covers
// exactly one remote call; jobs never hold it across calls.
type Handle struct {
	mu     sync.Mutex
	client Client
}

// NewHandle wraps client.
func NewHandle(client Client) *Handle {
	return &Handle{client: client}
}

// Do runs fn with exclusive access to the client.
func (h *Handle) Do(fn func(Client) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fn(h.client)
}

// call runs one remote call under the handle and returns its result.
func call[T any](h *Handle, fn func(Client) (T, error)) (T, error) {
	var (
		out T
		err error
	)
	_ = h.Do(func(c Client) error {
		out, err = fn(c)
		return err
	})
	return out, err
}

// lockedSource acquires the handle around every page source call, so each page
// fetch is one critical section and other jobs can interleave between pages.
type lockedSource struct {
	h   *Handle
	src members.PageSource
}

func (s lockedSource) Total(ctx context.Context) (int, error) {
	return call(s.h, func(Client) (int, error) {
		return s.src.Total(ctx)
	})
}

func (s lockedSource) Next(ctx context.Context) (domain.Member, bool, error) {
	var (
		m  domain.Member
		ok bool
	)
	err := s.h.Do(func(Client) error {
		var err error
		m, ok, err = s.src.Next(ctx)
		return err
	})
	return m, ok, err
}

// remoteClient adapts *remote.Client to Client.
type remoteClient struct {
	*remote.Client
}

func (c remoteClient) ListMembers(chat domain.Chat) members.PageSource {
	return c.Client.ListMembers(chat)
}

// ConnectRemote returns a ConnectFunc that dials the GraphQL gateway.
func ConnectRemote(cfg remote.Config) ConnectFunc {
	return func(ctx context.Context, sess session.Session) (Client, error) {
		c, err := remote.Connect(ctx, cfg, sess)
		if err != nil {
			return nil, err
		}
		return remoteClient{c}, nil
	}
}
