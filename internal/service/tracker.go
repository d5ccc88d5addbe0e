package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Sentinel-Gate/sessiontrack/internal/domain/session"
)

// ErrTrackerStopped is returned by queries submitted after Stop.
var ErrTrackerStopped = errors.New("session tracker stopped")

type commandKind int

const (
	cmdInit commandKind = iota
	cmdStart
	cmdEnd
	cmdFlush
	cmdStatus
)

func (k commandKind) String() string {
	switch k {
	case cmdInit:
		return "init"
	case cmdStart:
		return "start"
	case cmdEnd:
		return "end"
	case cmdFlush:
		return "flush"
	case cmdStatus:
		return "status"
	default:
		return "unknown"
	}
}

type command struct {
	kind   commandKind
	done   chan struct{}
	status chan session.Status
}

// Tracker owns the current/previous session state machine. StartSession and
// EndSession may be called from any goroutine; they only enqueue a command.
// A single worker goroutine drains the queue in submission order, so the
// state machine itself needs no lock.
type Tracker struct {
	registry *session.Registry
	sweeper  *Sweeper
	logger   *slog.Logger
	observer Observer
	tracer   trace.Tracer
	grace    time.Duration
	now      func() time.Time

	mu      sync.Mutex // guards queue and stopped
	queue   []command
	stopped bool
	wake    chan struct{}

	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	// Owned by the worker goroutine.
	current  string
	previous string
}

// TrackerOption configures Tracker.
type TrackerOption func(*Tracker)

// WithGracePeriod sets the grace period given to newly created sessions.
func WithGracePeriod(grace time.Duration) TrackerOption {
	return func(t *Tracker) {
		if grace > 0 {
			t.grace = grace
		}
	}
}

// WithClock overrides the time source used for session timestamps.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithTracer records one span per processed command.
func WithTracer(tracer trace.Tracer) TrackerOption {
	return func(t *Tracker) {
		t.tracer = tracer
	}
}

// WithObserver sets the observer notified of lifecycle transitions.
func WithObserver(o Observer) TrackerOption {
	return func(t *Tracker) {
		t.observer = o
	}
}

// NewTracker creates a tracker and queues its init command, which loads the
// registry from its store. Nothing is processed until Start is called, but
// StartSession/EndSession may already be called and keep their order.
func NewTracker(registry *session.Registry, sweeper *Sweeper, logger *slog.Logger, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		registry: registry,
		sweeper:  sweeper,
		logger:   logger,
		observer: nopObserver{},
		tracer:   noop.NewTracerProvider().Tracer(""),
		grace:    session.DefaultGracePeriod,
		now:      time.Now,
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.enqueue(command{kind: cmdInit})
	return t
}

// Start launches the worker goroutine. The context bounds the sweeper's
// lifetime; the worker itself runs until Stop or ctx cancellation, draining
// whatever was queued before it exits. Calling Start again has no effect.
func (t *Tracker) Start(ctx context.Context) {
	t.startOnce.Do(func() {
		t.wg.Add(1)
		go t.worker(ctx)
	})
}

// Stop processes every command already queued, stops the worker, then stops
// and joins the sweeper. Commands submitted afterwards are ignored.
// Safe to call multiple times.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.stopped = true
		t.mu.Unlock()
		t.signal()
	})
	t.wg.Wait()
	t.sweeper.Stop()
}

// StartSession requests that a session be started or resumed.
func (t *Tracker) StartSession() {
	t.enqueue(command{kind: cmdStart})
}

// EndSession requests that the current session be ended.
func (t *Tracker) EndSession() {
	t.enqueue(command{kind: cmdEnd})
}

// Flush blocks until every command submitted before it has been processed.
func (t *Tracker) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !t.enqueue(command{kind: cmdFlush, done: done}) {
		return ErrTrackerStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the tracker state as seen by the worker after every command
// submitted before it has been processed.
func (t *Tracker) Status(ctx context.Context) (session.Status, error) {
	reply := make(chan session.Status, 1)
	if !t.enqueue(command{kind: cmdStatus, status: reply}) {
		return session.Status{}, ErrTrackerStopped
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return session.Status{}, ctx.Err()
	}
}

// QueueDepth returns the number of commands waiting to be processed.
func (t *Tracker) QueueDepth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// enqueue appends cmd to the queue without blocking. It reports false if the
// tracker has been stopped.
func (t *Tracker) enqueue(cmd command) bool {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		t.logger.Debug("dropping command submitted after stop", "command", cmd.kind.String())
		return false
	}
	t.queue = append(t.queue, cmd)
	depth := len(t.queue)
	t.mu.Unlock()

	t.observer.QueueDepth(depth)
	t.signal()
	return true
}

func (t *Tracker) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// next pops the oldest command, waiting for one if the queue is empty.
// It returns false once the tracker is stopped and the queue is drained.
func (t *Tracker) next(ctx context.Context) (command, bool) {
	for {
		t.mu.Lock()
		if len(t.queue) > 0 {
			cmd := t.queue[0]
			t.queue[0] = command{}
			t.queue = t.queue[1:]
			depth := len(t.queue)
			t.mu.Unlock()
			t.observer.QueueDepth(depth)
			return cmd, true
		}
		if t.stopped {
			t.mu.Unlock()
			return command{}, false
		}
		t.mu.Unlock()

		select {
		case <-t.wake:
		case <-ctx.Done():
			t.mu.Lock()
			t.stopped = true
			t.mu.Unlock()
		}
	}
}

// worker is the single goroutine that runs every state transition.
func (t *Tracker) worker(ctx context.Context) {
	defer t.wg.Done()

	// Store writes for commands drained during shutdown must not fail just
	// because the caller's context is already cancelled.
	storeCtx := context.WithoutCancel(ctx)

	for {
		cmd, ok := t.next(ctx)
		if !ok {
			t.logger.Debug("session tracker worker stopped")
			return
		}
		t.handle(ctx, storeCtx, cmd)
	}
}

func (t *Tracker) handle(runCtx, storeCtx context.Context, cmd command) {
	_, span := t.tracer.Start(runCtx, "tracker."+cmd.kind.String())
	defer func() {
		span.SetAttributes(
			attribute.String("session.current", t.current),
			attribute.String("session.previous", t.previous),
		)
		span.End()
	}()

	switch cmd.kind {
	case cmdInit:
		t.handleInit(runCtx, storeCtx)
	case cmdStart:
		t.handleStart(runCtx, storeCtx)
	case cmdEnd:
		t.handleEnd(storeCtx)
	case cmdFlush:
		close(cmd.done)
	case cmdStatus:
		cmd.status <- t.snapshot()
	}
}

func (t *Tracker) handleInit(runCtx, storeCtx context.Context) {
	n, err := t.registry.Load(storeCtx, t.now())
	switch {
	case errors.Is(err, session.ErrDecode):
		t.logger.Warn("discarding unreadable session snapshot", "key", t.registry.Key(), "error", err)
	case err != nil:
		t.logger.Error("failed to load session snapshot", "key", t.registry.Key(), "error", err)
		t.observer.PersistFailed("load")
	}

	if n > 0 {
		t.logger.Info("recovered pending sessions", "count", n)
	}
	t.observer.PendingSessions(t.registry.Len())
	if t.registry.Len() > 0 {
		t.sweeper.EnsureRunning(runCtx)
	}
}

func (t *Tracker) handleStart(runCtx, storeCtx context.Context) {
	if t.current != "" {
		t.logger.Debug("session already active", "session_id", t.current)
		return
	}

	now := t.now()
	if t.previous != "" {
		resumed, err := t.registry.Resume(storeCtx, t.previous, now)
		if err != nil {
			t.persistFailed("resume", err)
		}
		if resumed {
			t.logger.Debug("resuming session", "session_id", t.previous)
			t.current, t.previous = t.previous, ""
			t.observer.SessionStarted(true)
			return
		}
	}

	s := session.New(t.grace, now)
	t.logger.Debug("creating new session", "session_id", s.ID)
	t.current, t.previous = s.ID, ""
	if err := t.registry.Add(storeCtx, s); err != nil {
		t.persistFailed("add", err)
	}
	t.observer.SessionStarted(false)
	t.observer.PendingSessions(t.registry.Len())
	t.sweeper.EnsureRunning(runCtx)
}

func (t *Tracker) handleEnd(storeCtx context.Context) {
	if t.current == "" {
		t.logger.Debug("no active session to end")
		return
	}

	if err := t.registry.End(storeCtx, t.current, t.now()); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			t.logger.Warn("active session missing from registry", "session_id", t.current)
		} else {
			t.persistFailed("end", err)
		}
	}
	t.logger.Debug("ended session", "session_id", t.current)
	t.previous, t.current = t.current, ""
	t.observer.SessionEnded()
}

func (t *Tracker) persistFailed(op string, err error) {
	t.logger.Error("failed to persist sessions", "op", op, "error", err)
	t.observer.PersistFailed(op)
}

func (t *Tracker) snapshot() session.Status {
	st := session.Status{Pending: t.registry.Len()}
	if t.current != "" {
		if s, ok := t.registry.Get(t.current); ok {
			st.Current = &s
		}
	}
	if t.previous != "" {
		if s, ok := t.registry.Get(t.previous); ok && !s.IsExpired(t.now()) {
			st.Previous = &s
		}
	}
	return st
}
