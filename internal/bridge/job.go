package bridge

import (
	"context"
	"iter"
	"sync/atomic"

	"github.com/robby/roster/internal/domain"
	"github.com/robby/roster/internal/remote"
)

// Kind identifies a job variant.
type Kind int

const (
	KindRequestCode Kind = iota + 1
	KindSubmitCode
	KindFetchMembers
	KindExportMembers
)

// String returns the kind's name for logs.
func (k Kind) String() string {
	switch k {
	case KindRequestCode:
		return "request_code"
	case KindSubmitCode:
		return "submit_code"
	case KindFetchMembers:
		return "fetch_members"
	case KindExportMembers:
		return "export_members"
	default:
		return "unknown"
	}
}

// Request is the payload of a job. The set of implementations is closed;
// each one has a handler registered in handlers.go.
type Request interface {
	kind() Kind
}

// RequestCode asks for a login code to be sent to Phone.
type RequestCode struct {
	Phone string
}

// SubmitCode signs in with the code received for Token.
type SubmitCode struct {
	Token *remote.LoginToken
	Code  string
}

// FetchMembers downloads the member list of Group.
type FetchMembers struct {
	Group string
}

// ExportMembers writes Rows to <Dir>/<group>.csv. Dir defaults to the bridge's output directory.
type ExportMembers struct {
	Group string
	Dir   string
	Rows  iter.Seq[domain.Member]
}

func (RequestCode) kind() Kind   { return KindRequestCode }
func (SubmitCode) kind() Kind    { return KindSubmitCode }
func (FetchMembers) kind() Kind  { return KindFetchMembers }
func (ExportMembers) kind() Kind { return KindExportMembers }

// Job is one unit of dispatched work. It is consumed by the worker that runs it.
type Job struct {
	ID      string
	Kind    Kind
	Request Request

	ctx    context.Context
	cancel context.CancelFunc
	reply  *Reply
}

// Outcome is the single result delivered for a Job. Which payload fields are set
// depends on Kind. A non-nil Err means the job produced no result.
type Outcome struct {
	JobID string
	Kind  Kind

	// RequestCode: Token is nil when Authorized is true.
	// SubmitCode: Authorized is true on success.
	Token      *remote.LoginToken
	Authorized bool

	// FetchMembers
	Group   string
	Members []domain.Member
	Total   int
	// Truncated is set when pagination stopped early; Members holds what was retrieved.
	Truncated error

	// ExportMembers
	Path string

	Err error
}

// OK reports whether the job succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Partial reports whether a member fetch stopped before the end of the list.
func (o Outcome) Partial() bool {
	return o.Truncated != nil
}

// Reply is the caller's end of a job's private result channel.
// Poll and Wait are meant to be called from a single goroutine.
type Reply struct {
	id     string
	kind   Kind
	ch     chan Outcome
	cancel context.CancelFunc

	done    bool
	outcome Outcome

	loaded atomic.Int64
	total  atomic.Int64
}

func newReply(id string, kind Kind, cancel context.CancelFunc) *Reply {
	r := &Reply{
		id:     id,
		kind:   kind,
		ch:     make(chan Outcome, 1),
		cancel: cancel,
	}
	r.total.Store(-1)
	return r
}

// ID returns the job's ID.
func (r *Reply) ID() string { return r.id }

// Kind returns the job's kind.
func (r *Reply) Kind() Kind { return r.kind }

// Poll returns the outcome if it has arrived, without blocking.
func (r *Reply) Poll() (Outcome, bool) {
	if r.done {
		return r.outcome, true
	}
	select {
	case o := <-r.ch:
		r.done, r.outcome = true, o
		return o, true
	default:
		return Outcome{}, false
	}
}

// Wait blocks until the outcome arrives or ctx is done.
func (r *Reply) Wait(ctx context.Context) (Outcome, error) {
	if r.done {
		return r.outcome, nil
	}
	select {
	case o := <-r.ch:
		r.done, r.outcome = true, o
		return o, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Cancel asks the job to stop. A job that has not finished delivers an
// outcome with context.Canceled.
func (r *Reply) Cancel() {
	r.cancel()
}

// Progress returns the items loaded so far and the reported total (-1 if unknown).
func (r *Reply) Progress() (loaded, total int) {
	return int(r.loaded.Load()), int(r.total.Load())
}

func (r *Reply) setProgress(loaded, total int) {
	r.loaded.Store(int64(loaded))
	r.total.Store(int64(total))
}

// deliver sends the outcome. The channel has room for exactly one value and
// is written exactly once, so this never blocks, even if the caller walked away.
func (r *Reply) deliver(o Outcome) {
	select {
	case r.ch <- o:
	default:
	}
}
