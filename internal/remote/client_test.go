package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robby/roster/internal/domain"
	"github.com/robby/roster/internal/session"
)

// gateway is a fake GraphQL gateway that routes on the operation name found in the query.
type gateway struct {
	t        *testing.T
	mu       sync.Mutex
	handlers map[string]func(vars map[string]interface{}, h http.Header) string
	headers  []http.Header
}

func newGateway(t *testing.T) (*gateway, *httptest.Server) {
	g := &gateway{t: t, handlers: make(map[string]func(map[string]interface{}, http.Header) string)}
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)
	return g, srv
}

func (g *gateway) on(op string, fn func(vars map[string]interface{}, h http.Header) string) {
	g.handlers[op] = fn
}

func (g *gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query     string                 `json:"query"`
		Variables map[string]interface{} `json:"variables"`
	}
	if !assert.NoError(g.t, json.NewDecoder(r.Body).Decode(&body)) {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	g.headers = append(g.headers, r.Header.Clone())
	g.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	for op, fn := range g.handlers {
		if strings.Contains(body.Query, op) {
			fmt.Fprint(w, fn(body.Variables, r.Header))
			return
		}
	}
	fmt.Fprint(w, `{"errors":[{"message":"unknown operation"}]}`)
}

func testConfig(endpoint string) Config {
	return Config{Endpoint: endpoint, APIID: 42, APIHash: "hash", PageSize: 2}
}

func TestConnect_RequiresCredentials(t *testing.T) {
	_, err := Connect(context.Background(), Config{Endpoint: "http://x"}, session.Session{})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestIsAuthorized(t *testing.T) {
	g, srv := newGateway(t)
	g.on("me", func(_ map[string]interface{}, h http.Header) string {
		if h.Get("Authorization") != "Bearer good" {
			return `{"errors":[{"message":"AUTH_KEY_UNREGISTERED"}]}`
		}
		return `{"data":{"me":{"id":"u1"}}}`
	})
	ctx := context.Background()

	// Empty session never hits the network
	c, err := Connect(ctx, testConfig(srv.URL), session.Session{})
	require.NoError(t, err)
	ok, err := c.IsAuthorized(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, g.headers)

	c, err = Connect(ctx, testConfig(srv.URL), session.Session{Token: "stale"})
	require.NoError(t, err)
	ok, err = c.IsAuthorized(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	c, err = Connect(ctx, testConfig(srv.URL), session.Session{Token: "good"})
	require.NoError(t, err)
	ok, err = c.IsAuthorized(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	last := g.headers[len(g.headers)-1]
	assert.Equal(t, "42", last.Get("X-Api-Id"))
	assert.Equal(t, "hash", last.Get("X-Api-Hash"))
}

func TestRequestCodeAndSignIn(t *testing.T) {
	g, srv := newGateway(t)
	g.on("sendCode", func(vars map[string]interface{}, _ http.Header) string {
		assert.Equal(t, "+15550100", vars["phone"])
		return `{"data":{"sendCode":{"phoneCodeHash":"h-1","timeout":60}}}`
	})
	g.on("signIn", func(vars map[string]interface{}, _ http.Header) string {
		assert.Equal(t, "h-1", vars["phoneCodeHash"])
		if vars["code"] != "12345" {
			return `{"errors":[{"message":"PHONE_CODE_INVALID"}]}`
		}
		return `{"data":{"signIn":{"sessionToken":"sess-1","dc":4,"user":{"id":"u1"}}}}`
	})
	ctx := context.Background()

	c, err := Connect(ctx, testConfig(srv.URL), session.Session{})
	require.NoError(t, err)

	token, err := c.RequestLoginCode(ctx, "+15550100")
	require.NoError(t, err)
	assert.Equal(t, "+15550100", token.Phone())
	assert.Equal(t, "h-1", token.CodeHash())
	assert.False(t, token.ExpiresAt().IsZero())

	err = c.SignIn(ctx, token, "00000")
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.True(t, c.Session().Empty())

	require.NoError(t, c.SignIn(ctx, token, "12345"))
	assert.Equal(t, "sess-1", c.Session().Token)
	assert.Equal(t, "u1", c.Session().UserID)
	assert.Equal(t, 4, c.Session().DC)
}

func TestSignIn_PasswordRequired(t *testing.T) {
	g, srv := newGateway(t)
	g.on("signIn", func(map[string]interface{}, http.Header) string {
		return `{"errors":[{"message":"SESSION_PASSWORD_NEEDED"}]}`
	})
	c, err := Connect(context.Background(), testConfig(srv.URL), session.Session{})
	require.NoError(t, err)

	err = c.SignIn(context.Background(), NewLoginToken("+1", "h", time.Time{}), "1")
	assert.ErrorIs(t, err, ErrPasswordRequired)
}

func TestResolveChat(t *testing.T) {
	g, srv := newGateway(t)
	g.on("resolveUsername", func(vars map[string]interface{}, _ http.Header) string {
		if vars["username"] == "gophers" {
			return `{"data":{"resolveUsername":{"chat":{"id":"c1","title":"Gophers"}}}}`
		}
		return `{"data":{"resolveUsername":null}}`
	})
	c, err := Connect(context.Background(), testConfig(srv.URL), session.Session{Token: "t"})
	require.NoError(t, err)

	chat, err := c.ResolveChat(context.Background(), " https://t.me/gophers ")
	require.NoError(t, err)
	assert.Equal(t, domain.Chat{ID: "c1", Title: "Gophers", Name: "gophers"}, chat)

	_, err = c.ResolveChat(context.Background(), "@nobody")
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestMemberPages_FollowsCursor(t *testing.T) {
	pages := map[string]string{
		"": `{"data":{"chat":{"members":{"totalCount":5,"pageInfo":{"hasNextPage":true,"endCursor":"p2"},
			"nodes":[{"role":"CREATOR","user":{"username":"ann","firstName":"Ann","lastName":null,"phone":"123","scam":false,"verified":true,"bot":false,"support":false}},
			         {"role":"MEMBER","user":{"username":null,"firstName":"Bob","lastName":"B","phone":null,"scam":false,"verified":false,"bot":true,"support":false}}]}}}}`,
		"p2": `{"data":{"chat":{"members":{"totalCount":5,"pageInfo":{"hasNextPage":false,"endCursor":"p3"},
			"nodes":[{"role":"ADMIN","user":{"username":"cy","firstName":"Cy","lastName":null,"phone":null,"scam":true,"verified":false,"bot":false,"support":true}}]}}}}`,
	}
	g, srv := newGateway(t)
	g.on("members", func(vars map[string]interface{}, _ http.Header) string {
		assert.EqualValues(t, 2, vars["first"])
		after, _ := vars["after"].(string)
		return pages[after]
	})
	c, err := Connect(context.Background(), testConfig(srv.URL), session.Session{Token: "t"})
	require.NoError(t, err)
	ctx := context.Background()

	src := c.ListMembers(domain.Chat{ID: "c1", Name: "gophers"})
	total, err := src.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, total, "reported total is passed through even when stale")

	var got []domain.Member
	for {
		m, ok, err := src.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, m)
	}

	require.Len(t, got, 3)
	assert.Equal(t, domain.Member{Username: "ann", FirstName: "Ann", Phone: "123", Verified: true, Role: domain.RoleCreator}, got[0])
	assert.Equal(t, domain.Member{FirstName: "Bob", LastName: "B", Bot: true, Role: domain.RoleMember}, got[1])
	assert.Equal(t, domain.Member{Username: "cy", FirstName: "Cy", Scam: true, Support: true, Role: domain.RoleAdmin}, got[2])
	assert.Len(t, g.headers, 2, "Total must reuse the first page")
}

func TestMemberPages_Error(t *testing.T) {
	g, srv := newGateway(t)
	g.on("members", func(map[string]interface{}, http.Header) string {
		return `{"errors":[{"message":"FLOOD_WAIT_30"}]}`
	})
	c, err := Connect(context.Background(), testConfig(srv.URL), session.Session{Token: "t"})
	require.NoError(t, err)

	_, ok, err := c.ListMembers(domain.Chat{ID: "c1", Name: "g"}).Next(context.Background())
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FLOOD_WAIT_30")
}
