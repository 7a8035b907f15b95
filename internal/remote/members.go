package remote

import (
	"context"
	"fmt"
	"strings"

	"github.com/machinebox/graphql"

	"github.com/robby/roster/internal/domain"
)

// ResolveChat resolves a public group identifier (with or without a leading @ or
// t.me/ prefix) into a chat. Returns ErrChatNotFound if nothing matches.
func (c *Client) ResolveChat(ctx context.Context, name string) (domain.Chat, error) {
	username := domain.NormalizeGroup(name)
	if username == "" {
		return domain.Chat{}, fmt.Errorf("%w: empty identifier", ErrChatNotFound)
	}

	req := graphql.NewRequest(`
		query($username: String!) {
			resolveUsername(username: $username) {
				chat {
					id
					title
				}
			}
		}
	`)
	req.Var("username", username)

	var resp struct {
		ResolveUsername *struct {
			Chat *struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"chat"`
		} `json:"resolveUsername"`
	}

	if err := c.makeRequest(ctx, req, &resp); err != nil {
		if hasErrorCode(err, "USERNAME_NOT_OCCUPIED") || hasErrorCode(err, "USERNAME_INVALID") {
			return domain.Chat{}, fmt.Errorf("%w: %s", ErrChatNotFound, username)
		}
		return domain.Chat{}, fmt.Errorf("failed to resolve chat: %w", err)
	}

	if resp.ResolveUsername == nil || resp.ResolveUsername.Chat == nil {
		return domain.Chat{}, fmt.Errorf("%w: %s", ErrChatNotFound, username)
	}

	return domain.Chat{
		ID:    resp.ResolveUsername.Chat.ID,
		Title: resp.ResolveUsername.Chat.Title,
		Name:  username,
	}, nil
}

// ListMembers returns a single-pass page source over the chat's members.
// No request is made until Total or Next is called.
func (c *Client) ListMembers(chat domain.Chat) *MemberPages {
	return &MemberPages{
		client: c,
		chat:   chat,
		limit:  c.pageSize,
		total:  -1,
	}
}

// MemberPages iterates a chat's members page by page using cursor pagination.
// It is not safe for concurrent use.
type MemberPages struct {
	client *Client
	chat   domain.Chat
	limit  int

	buf     []domain.Member
	cursor  string
	hasNext bool
	started bool
	total   int
}

// Total returns the member count reported by the service. The count may be stale,
// so it is only suitable for progress reporting.
func (p *MemberPages) Total(ctx context.Context) (int, error) {
	if p.total >= 0 {
		return p.total, nil
	}
	if err := p.fetch(ctx); err != nil {
		return 0, err
	}
	return p.total, nil
}

// Next returns the next member. ok is false at end of sequence.
func (p *MemberPages) Next(ctx context.Context) (member domain.Member, ok bool, err error) {
	for len(p.buf) == 0 {
		if p.started && !p.hasNext {
			return domain.Member{}, false, nil
		}
		if err := p.fetch(ctx); err != nil {
			return domain.Member{}, false, err
		}
	}

	member, p.buf = p.buf[0], p.buf[1:]
	return member, true, nil
}

// fetch loads the next page into the buffer.
func (p *MemberPages) fetch(ctx context.Context) error {
	req := graphql.NewRequest(`
		query($chatId: ID!, $first: Int!, $after: String) {
			chat(id: $chatId) {
				members(first: $first, after: $after) {
					totalCount
					pageInfo {
						hasNextPage
						endCursor
					}
					nodes {
						role
						user {
							username
							firstName
							lastName
							phone
							scam
							verified
							bot
							support
						}
					}
				}
			}
		}
	`)
	req.Var("chatId", p.chat.ID)
	req.Var("first", p.limit)
	if p.cursor != "" {
		req.Var("after", p.cursor)
	} else {
		req.Var("after", nil)
	}

	var resp struct {
		Chat *struct {
			Members struct {
				TotalCount int `json:"totalCount"`
				PageInfo   struct {
					HasNextPage bool   `json:"hasNextPage"`
					EndCursor   string `json:"endCursor"`
				} `json:"pageInfo"`
				Nodes []struct {
					Role string `json:"role"`
					User struct {
						Username  *string `json:"username"`
						FirstName string  `json:"firstName"`
						LastName  *string `json:"lastName"`
						Phone     *string `json:"phone"`
						Scam      bool    `json:"scam"`
						Verified  bool    `json:"verified"`
						Bot       bool    `json:"bot"`
						Support   bool    `json:"support"`
					} `json:"user"`
				} `json:"nodes"`
			} `json:"members"`
		} `json:"chat"`
	}

	if err := p.client.makeRequest(ctx, req, &resp); err != nil {
		return fmt.Errorf("failed to get members of %s: %w", p.chat.Name, err)
	}
	if resp.Chat == nil {
		return fmt.Errorf("%w: %s", ErrChatNotFound, p.chat.Name)
	}

	page := resp.Chat.Members
	p.started = true
	p.total = page.TotalCount
	p.cursor = page.PageInfo.EndCursor
	p.hasNext = page.PageInfo.HasNextPage

	for _, node := range page.Nodes {
		p.buf = append(p.buf, domain.Member{
			Username:  deref(node.User.Username),
			FirstName: node.User.FirstName,
			LastName:  deref(node.User.LastName),
			Phone:     deref(node.User.Phone),
			Scam:      node.User.Scam,
			Verified:  node.User.Verified,
			Bot:       node.User.Bot,
			Support:   node.User.Support,
			Role:      parseRole(node.Role),
		})
	}

	// Guard against a server that claims more pages but sends none.
	if len(page.Nodes) == 0 {
		p.hasNext = false
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// parseRole maps the service's role enum onto domain roles.
func parseRole(raw string) domain.Role {
	switch strings.ToUpper(raw) {
	case "CREATOR", "OWNER":
		return domain.RoleCreator
	case "ADMIN", "ADMINISTRATOR":
		return domain.RoleAdmin
	case "RESTRICTED":
		return domain.RoleRestricted
	case "BANNED", "KICKED":
		return domain.RoleBanned
	case "LEFT":
		return domain.RoleLeft
	case "", "MEMBER", "USER":
		return domain.RoleMember
	default:
		return domain.Role(raw)
	}
}
