package bridge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robby/roster/internal/domain"
	"github.com/robby/roster/internal/members"
	"github.com/robby/roster/internal/remote"
	"github.com/robby/roster/internal/session"
)

// fakeClient is an instrumented client. Every call records whether another call
// was already in progress, which would mean the handle failed to serialize access.
type fakeClient struct {
	active     atomic.Int32
	violations atomic.Int32
	calls      atomic.Int32
	delay      time.Duration

	mu         sync.Mutex
	authorized bool
	validCode  string
	signInErr  error
	chats      map[string][]domain.Member
	failAt     map[string]int // group -> 1-based Next call that fails
	block      chan struct{}  // when set, Next waits on it or ctx
	sess       session.Session
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		validCode: "12345",
		chats:     map[string][]domain.Member{},
		failAt:    map[string]int{},
	}
}

func (f *fakeClient) enter() func() {
	f.calls.Add(1)
	if f.active.Add(1) > 1 {
		f.violations.Add(1)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return func() { f.active.Add(-1) }
}

func (f *fakeClient) IsAuthorized(ctx context.Context) (bool, error) {
	defer f.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authorized, nil
}

func (f *fakeClient) RequestLoginCode(ctx context.Context, phone string) (*remote.LoginToken, error) {
	defer f.enter()()
	return remote.NewLoginToken(phone, "hash-"+phone, time.Time{}), nil
}

func (f *fakeClient) SignIn(ctx context.Context, token *remote.LoginToken, code string) error {
	defer f.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signInErr != nil {
		return f.signInErr
	}
	if token == nil || code != f.validCode {
		return remote.ErrInvalidCode
	}
	f.authorized = true
	f.sess = session.Session{Token: "signed-in"}
	return nil
}

func (f *fakeClient) ResolveChat(ctx context.Context, name string) (domain.Chat, error) {
	defer f.enter()()
	if _, ok := f.chats[name]; !ok {
		return domain.Chat{}, remote.ErrChatNotFound
	}
	return domain.Chat{ID: "id-" + name, Name: name}, nil
}

func (f *fakeClient) ListMembers(chat domain.Chat) members.PageSource {
	return &fakePages{f: f, list: f.chats[chat.Name], failAt: f.failAt[chat.Name]}
}

func (f *fakeClient) Session() session.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess
}

type fakePages struct {
	f      *fakeClient
	list   []domain.Member
	failAt int
	n      int
}

func (p *fakePages) Total(ctx context.Context) (int, error) {
	defer p.f.enter()()
	return len(p.list) + 10, nil // deliberately stale
}

func (p *fakePages) Next(ctx context.Context) (domain.Member, bool, error) {
	defer p.f.enter()()
	if p.f.block != nil {
		select {
		case <-p.f.block:
		case <-ctx.Done():
			return domain.Member{}, false, ctx.Err()
		}
	}
	p.n++
	if p.failAt > 0 && p.n == p.failAt {
		return domain.Member{}, false, errors.New("FLOOD_WAIT")
	}
	if p.n > len(p.list) {
		return domain.Member{}, false, nil
	}
	return p.list[p.n-1], true, nil
}

// memStore is an in-memory session.Store.
type memStore struct {
	mu      sync.Mutex
	sess    *session.Session
	saveErr error
	saves   int
}

func (s *memStore) Load(ctx context.Context) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return session.Session{}, session.ErrNotFound
	}
	return *s.sess, nil
}

func (s *memStore) Save(ctx context.Context, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.sess = &sess
	return nil
}

func newTestBridge(t *testing.T, client *fakeClient, store *memStore) *Bridge {
	t.Helper()
	b, err := New(context.Background(), Options{
		Connect: func(ctx context.Context, sess session.Session) (Client, error) {
			return client, nil
		},
		Sessions:  store,
		OutputDir: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		b.Close()
		b.Wait()
	})
	return b
}

func waitOutcome(t *testing.T, r *Reply) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := r.Wait(ctx)
	require.NoError(t, err, "timed out waiting for %s", r.Kind())
	return out
}

func threeMembers() []domain.Member {
	return []domain.Member{
		{Username: "ann", FirstName: "Ann", Role: domain.RoleCreator},
		{FirstName: "Bob", Role: domain.RoleMember},
		{Username: "cy", FirstName: "Cy", Bot: true, Role: domain.RoleAdmin},
	}
}

func TestNew_ConnectFailureIsFatal(t *testing.T) {
	_, err := New(context.Background(), Options{
		Connect: func(context.Context, session.Session) (Client, error) {
			return nil, errors.New("dial failed")
		},
		Sessions: &memStore{},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial failed")
}

func TestNew_RejectsSmallQueue(t *testing.T) {
	connected := false
	_, err := New(context.Background(), Options{
		Connect: func(context.Context, session.Session) (Client, error) {
			connected = true
			return newFakeClient(), nil
		},
		Sessions:  &memStore{},
		QueueSize: MinQueueSize - 1,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue size")
	assert.False(t, connected, "no client is started for a rejected queue size")
}

func TestNew_PassesLoadedSession(t *testing.T) {
	store := &memStore{sess: &session.Session{Token: "saved"}}
	var got session.Session
	b, err := New(context.Background(), Options{
		Connect: func(_ context.Context, sess session.Session) (Client, error) {
			got = sess
			c := newFakeClient()
			c.authorized = true
			return c, nil
		},
		Sessions: store,
	})
	require.NoError(t, err)
	defer func() { b.Close(); b.Wait() }()

	assert.Equal(t, "saved", got.Token)
	assert.True(t, b.Authorized())
	assert.Equal(t, ".", b.OutputDir())
}

func TestEndToEnd_LoginThenFetch(t *testing.T) {
	client := newFakeClient()
	client.chats["examplegroup"] = threeMembers()
	store := &memStore{}
	b := newTestBridge(t, client, store)

	out := waitOutcome(t, b.Spawn(RequestCode{Phone: "+15550100"}))
	require.True(t, out.OK())
	assert.Equal(t, KindRequestCode, out.Kind)
	require.NotNil(t, out.Token)
	assert.False(t, out.Authorized)

	out = waitOutcome(t, b.Spawn(SubmitCode{Token: out.Token, Code: "12345"}))
	require.True(t, out.OK())
	assert.True(t, out.Authorized)
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, "signed-in", store.sess.Token)

	out = waitOutcome(t, b.Spawn(FetchMembers{Group: "examplegroup"}))
	require.True(t, out.OK())
	assert.False(t, out.Partial())
	assert.Equal(t, "examplegroup", out.Group)
	assert.Equal(t, threeMembers(), out.Members)
}

func TestRequestCode_AlreadyAuthorized(t *testing.T) {
	client := newFakeClient()
	client.authorized = true
	b := newTestBridge(t, client, &memStore{})

	out := waitOutcome(t, b.Spawn(RequestCode{Phone: "+15550100"}))
	require.True(t, out.OK(), "already authorized is not an error")
	assert.Nil(t, out.Token)
	assert.True(t, out.Authorized)
}

func TestSubmitCode_Failures(t *testing.T) {
	client := newFakeClient()
	b := newTestBridge(t, client, &memStore{})
	token := remote.NewLoginToken("+1", "h", time.Time{})

	out := waitOutcome(t, b.Spawn(SubmitCode{Token: token, Code: "wrong"}))
	assert.False(t, out.OK())
	assert.ErrorIs(t, out.Err, remote.ErrInvalidCode)

	client.signInErr = remote.ErrPasswordRequired
	out = waitOutcome(t, b.Spawn(SubmitCode{Token: token, Code: "12345"}))
	assert.ErrorIs(t, out.Err, remote.ErrPasswordRequired, "password accounts get a typed error, not a crash")
}

func TestSubmitCode_SessionSaveFailureIsSwallowed(t *testing.T) {
	client := newFakeClient()
	store := &memStore{saveErr: errors.New("read-only filesystem")}
	b := newTestBridge(t, client, store)

	out := waitOutcome(t, b.Spawn(SubmitCode{Token: remote.NewLoginToken("+1", "h", time.Time{}), Code: "12345"}))
	require.True(t, out.OK())
	assert.True(t, out.Authorized)
	assert.Equal(t, 1, store.saves)
}

func TestFetchMembers_NotFound(t *testing.T) {
	b := newTestBridge(t, newFakeClient(), &memStore{})

	out := waitOutcome(t, b.Spawn(FetchMembers{Group: "missing"}))
	assert.ErrorIs(t, out.Err, remote.ErrChatNotFound)
	assert.Empty(t, out.Members)
}

func TestFetchMembers_PartialOnPageError(t *testing.T) {
	client := newFakeClient()
	client.chats["big"] = threeMembers()
	client.failAt["big"] = 3
	b := newTestBridge(t, client, &memStore{})

	r := b.Spawn(FetchMembers{Group: "big"})
	out := waitOutcome(t, r)
	require.True(t, out.OK(), "a page error keeps what was retrieved")
	assert.True(t, out.Partial())
	assert.Len(t, out.Members, 2)

	loaded, total := r.Progress()
	assert.Equal(t, 2, loaded)
	assert.Equal(t, 13, total)
}

func TestFetchMembers_TotalKeptWhenNothingRetrieved(t *testing.T) {
	client := newFakeClient()
	client.chats["quiet"] = nil
	client.chats["flaky"] = threeMembers()
	client.failAt["flaky"] = 1
	b := newTestBridge(t, client, &memStore{})

	out := waitOutcome(t, b.Spawn(FetchMembers{Group: "quiet"}))
	require.True(t, out.OK())
	assert.Empty(t, out.Members)
	assert.Equal(t, 10, out.Total)

	out = waitOutcome(t, b.Spawn(FetchMembers{Group: "flaky"}))
	require.True(t, out.OK())
	assert.True(t, out.Partial())
	assert.Empty(t, out.Members)
	assert.Equal(t, 13, out.Total)
}

func TestExportMembers(t *testing.T) {
	b := newTestBridge(t, newFakeClient(), &memStore{})
	dir := filepath.Join(t.TempDir(), "out")

	out := waitOutcome(t, b.Spawn(ExportMembers{Group: "@gophers", Dir: dir, Rows: slices.Values(threeMembers())}))
	require.True(t, out.OK())
	assert.Equal(t, filepath.Join(dir, "gophers.csv"), out.Path)

	data, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ann,Ann,,false,,false,false,false,Creator")

	out = waitOutcome(t, b.Spawn(ExportMembers{Group: "x"}))
	assert.Error(t, out.Err)
}

func TestEveryJobGetsExactlyOneOutcome(t *testing.T) {
	client := newFakeClient()
	client.delay = time.Millisecond
	client.chats["g"] = threeMembers()
	b := newTestBridge(t, client, &memStore{})

	const n = 64 // more than the queue capacity
	replies := make([]*Reply, 0, n)
	for i := 0; i < n; i++ {
		var req Request = FetchMembers{Group: "g"}
		if i%2 == 0 {
			req = RequestCode{Phone: "+1"}
		}
		replies = append(replies, b.Spawn(req))
	}

	ids := map[string]bool{}
	for _, r := range replies {
		out := waitOutcome(t, r)
		assert.Equal(t, r.ID(), out.JobID)
		assert.False(t, ids[out.JobID], "duplicate outcome")
		ids[out.JobID] = true

		// The channel held exactly one value.
		select {
		case extra := <-r.ch:
			t.Fatalf("second outcome delivered: %+v", extra)
		default:
		}
	}
	assert.Len(t, ids, n)
}

func TestHandleSerializesRemoteCalls(t *testing.T) {
	client := newFakeClient()
	client.delay = 200 * time.Microsecond
	for _, g := range []string{"a", "b", "c", "d"} {
		client.chats[g] = threeMembers()
	}
	b := newTestBridge(t, client, &memStore{})

	var replies []*Reply
	for i := 0; i < 8; i++ {
		for _, g := range []string{"a", "b", "c", "d"} {
			replies = append(replies, b.Spawn(FetchMembers{Group: g}))
		}
		replies = append(replies, b.Spawn(RequestCode{Phone: "+1"}))
	}
	for _, r := range replies {
		require.True(t, waitOutcome(t, r).OK())
	}

	assert.Zero(t, client.violations.Load(), "two remote calls overlapped")
	assert.Greater(t, client.calls.Load(), int32(len(replies)))
}

func TestAbandonedReplyDoesNotBlockWorker(t *testing.T) {
	client := newFakeClient()
	b := newTestBridge(t, client, &memStore{})

	for i := 0; i < 32; i++ {
		b.Spawn(RequestCode{Phone: "+1"}) // nobody reads these
	}

	b.Close()
	done := make(chan struct{})
	go func() {
		b.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker blocked on an abandoned reply")
	}
}

func TestCloseRejectsNewJobs(t *testing.T) {
	b := newTestBridge(t, newFakeClient(), &memStore{})
	b.Close()
	b.Close() // idempotent

	_, err := b.Submit(RequestCode{Phone: "+1"})
	assert.ErrorIs(t, err, ErrClosed)
	assert.PanicsWithError(t, ErrClosed.Error(), func() {
		b.Spawn(RequestCode{Phone: "+1"})
	})
}

func TestCloseLetsQueuedJobsFinish(t *testing.T) {
	client := newFakeClient()
	client.delay = time.Millisecond
	b := newTestBridge(t, client, &memStore{})

	var replies []*Reply
	for i := 0; i < 10; i++ {
		replies = append(replies, b.Spawn(RequestCode{Phone: "+1"}))
	}
	b.Close()
	b.Wait()

	for _, r := range replies {
		out, ok := r.Poll()
		require.True(t, ok, "outcome must be ready after Wait")
		assert.True(t, out.OK())
	}
}

func TestReplyCancel(t *testing.T) {
	client := newFakeClient()
	client.chats["slow"] = threeMembers()
	client.block = make(chan struct{})
	defer close(client.block)
	b := newTestBridge(t, client, &memStore{})

	r := b.Spawn(FetchMembers{Group: "slow"})
	_, ok := r.Poll()
	assert.False(t, ok)

	r.Cancel()
	out := waitOutcome(t, r)
	assert.ErrorIs(t, out.Err, context.Canceled)
}

func TestPollIsStable(t *testing.T) {
	b := newTestBridge(t, newFakeClient(), &memStore{})
	r := b.Spawn(RequestCode{Phone: "+1"})

	first := waitOutcome(t, r)
	again, ok := r.Poll()
	require.True(t, ok)
	assert.Equal(t, first.JobID, again.JobID)
}
