// Package bridge runs network jobs for a synchronous caller.
//
// A Bridge owns the single remote client. The caller submits typed requests,
// the bridge runs each one on its own goroutine against the shared client,
// and the result comes back on a per-job Reply that the caller polls.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/robby/roster/internal/logging"
	"github.com/robby/roster/internal/session"
)

// MinQueueSize is the smallest job queue capacity New accepts.
const MinQueueSize = 16

// ErrClosed indicates the bridge no longer accepts jobs.
var ErrClosed = errors.New("bridge: background worker has shut down")

// ConnectFunc builds the remote client from a loaded session.
type ConnectFunc func(ctx context.Context, sess session.Session) (Client, error)

// Options configures a Bridge.
type Options struct {
	Connect   ConnectFunc
	Sessions  session.Store
	OutputDir string
	// QueueSize defaults to MinQueueSize when zero.
	QueueSize int
	Logger    *slog.Logger
}

// Bridge dispatches jobs to a background worker.
type Bridge struct {
	handle    *Handle
	sessions  session.Store
	outputDir string
	log       *slog.Logger

	authorized bool

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	queue  chan *Job

	dispatcher sync.WaitGroup
	inflight   sync.WaitGroup
}

// New loads or creates the session, connects the client and starts the
// background worker. It blocks until the client is ready; if that fails, no
// worker is started.
func New(ctx context.Context, opts Options) (*Bridge, error) {
	if opts.Connect == nil {
		return nil, errors.New("bridge: Connect is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("bridge: Sessions is required")
	}
	log := opts.Logger
	if log == nil {
		log = logging.Component("bridge")
	}
	size := opts.QueueSize
	switch {
	case size == 0:
		size = MinQueueSize
	case size < MinQueueSize:
		return nil, fmt.Errorf("bridge: queue size %d is below the minimum of %d", size, MinQueueSize)
	}
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = "."
	}

	sess, err := session.LoadOrCreate(ctx, opts.Sessions)
	if err != nil {
		return nil, err
	}

	log.Info("Connecting to remote service", "resumed", !sess.Empty())
	client, err := opts.Connect(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	authorized, err := client.IsAuthorized(ctx)
	if err != nil {
		// Not fatal: RequestCode repeats the check.
		log.Warn("Authorization check failed", "error", err)
	}
	log.Info("Connected", "authorized", authorized)

	b := &Bridge{
		handle:     NewHandle(client),
		sessions:   opts.Sessions,
		outputDir:  outputDir,
		log:        log,
		authorized: authorized,
		queue:      make(chan *Job, size),
	}
	// Jobs outlive the setup context; only Reply.Cancel stops them.
	b.ctx, b.cancel = context.WithCancel(context.WithoutCancel(ctx))

	b.dispatcher.Add(1)
	go b.run()
	return b, nil
}

// Authorized reports whether the session was already signed in at startup.
func (b *Bridge) Authorized() bool {
	return b.authorized
}

// OutputDir returns the default export directory.
func (b *Bridge) OutputDir() string {
	return b.outputDir
}

// Submit enqueues req and returns the Reply its outcome will arrive on.
// It blocks only while the queue is full and returns ErrClosed after Close.
func (b *Bridge) Submit(req Request) (*Reply, error) {
	if req == nil {
		return nil, errors.New("bridge: nil request")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithCancel(b.ctx)
	job := &Job{
		ID:      uuid.NewString(),
		Kind:    req.kind(),
		Request: req,
		ctx:     ctx,
		cancel:  cancel,
	}
	job.reply = newReply(job.ID, job.Kind, cancel)

	b.queue <- job
	return job.reply, nil
}

// Spawn is Submit for callers that treat a dead worker as fatal. It panics
// with ErrClosed when the bridge has shut down.
func (b *Bridge) Spawn(req Request) *Reply {
	r, err := b.Submit(req)
	if err != nil {
		panic(err)
	}
	return r
}

// Close stops accepting jobs. Jobs already queued or running still complete.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.queue)
}

// Wait blocks until the worker has exited and every in-flight job has delivered
// its outcome. Call Close first.
func (b *Bridge) Wait() {
	b.dispatcher.Wait()
	b.inflight.Wait()
	b.cancel()
}

// run pulls jobs until the queue is closed and drained.
func (b *Bridge) run() {
	defer b.dispatcher.Done()
	for job := range b.queue {
		b.inflight.Add(1)
		go b.execute(job)
	}
	b.log.Debug("Job queue closed, worker exiting")
}

// execute runs one job and delivers its outcome exactly once.
func (b *Bridge) execute(job *Job) {
	defer b.inflight.Done()
	defer job.cancel()

	log := b.log.With("job", job.ID, "kind", job.Kind.String())
	start := time.Now()

	out := b.dispatch(job, log)
	out.JobID, out.Kind = job.ID, job.Kind

	if out.Err != nil {
		log.Warn("Job failed", "duration", time.Since(start), "error", out.Err)
	} else {
		log.Debug("Job completed", "duration", time.Since(start))
	}
	job.reply.deliver(out)
}

// dispatch looks up the handler and turns a panic into a failed outcome, so one
// bad job cannot take the worker down.
func (b *Bridge) dispatch(job *Job, log *slog.Logger) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked", "panic", r)
			out = Outcome{Err: fmt.Errorf("job %s panicked: %v", job.Kind, r)}
		}
	}()

	h, ok := handlers[job.Kind]
	if !ok {
		return Outcome{Err: fmt.Errorf("no handler for job kind %s", job.Kind)}
	}
	return h(job.ctx, b, job, log)
}
