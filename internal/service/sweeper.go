package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Sentinel-Gate/sessiontrack/internal/domain/session"
)

// DefaultSweepInterval is how often the sweeper looks for expired sessions.
const DefaultSweepInterval = time.Second

// Sweeper completes expired sessions in the background. It is the only
// component that removes sessions from the registry and the only caller of
// the CompletionHandler.
type Sweeper struct {
	registry *session.Registry
	handler  session.CompletionHandler
	logger   *slog.Logger
	observer Observer
	tracer   trace.Tracer
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	running  bool
	stopped  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// SweeperOption configures Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval sets the pause between sweeps.
func WithSweepInterval(interval time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithSweeperClock overrides the time source used for expiry checks.
func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.now = now
	}
}

// WithSweeperTracer records a span for every sweep that completes sessions.
func WithSweeperTracer(tracer trace.Tracer) SweeperOption {
	return func(s *Sweeper) {
		s.tracer = tracer
	}
}

// WithSweeperObserver sets the observer notified of completions and failures.
func WithSweeperObserver(o Observer) SweeperOption {
	return func(s *Sweeper) {
		s.observer = o
	}
}

// NewSweeper creates a stopped sweeper. Call EnsureRunning to start it.
func NewSweeper(registry *session.Registry, handler session.CompletionHandler, logger *slog.Logger, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		registry: registry,
		handler:  handler,
		logger:   logger,
		observer: nopObserver{},
		tracer:   noop.NewTracerProvider().Tracer(""),
		interval: DefaultSweepInterval,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureRunning starts the sweep loop if it is not running yet.
// It reports whether this call started it. Once Stop has been called the
// sweeper never starts again.
func (s *Sweeper) EnsureRunning(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.stopped {
		return false
	}
	s.running = true
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Debug("session sweeper started", "interval", s.interval)
	return true
}

// Running reports whether the sweep loop has been started and not stopped.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && !s.stopped
}

// Stop signals the sweep loop to exit and waits for it.
// Safe to call multiple times.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.once.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.SweepOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce removes every expired session and notifies the handler for each,
// in registry order, after the registry lock has been released. It returns
// the number of sessions completed.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	expired, err := s.registry.SweepExpired(ctx, s.now())
	s.observer.PendingSessions(s.registry.Len())
	if err == nil && len(expired) == 0 {
		return 0
	}

	ctx, span := s.tracer.Start(ctx, "sweeper.complete",
		trace.WithAttributes(attribute.Int("sessions.expired", len(expired))))
	defer span.End()

	if err != nil {
		s.logger.Error("failed to persist sessions after sweep", "error", err)
		s.observer.PersistFailed("sweep")
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
	}

	for _, sess := range expired {
		s.logger.Debug("completing session", "session_id", sess.ID)
		s.observer.SessionCompleted(sess)
		if err := s.notify(ctx, sess); err != nil {
			s.logger.Error("session completion handler failed",
				"session_id", sess.ID,
				"error", err,
			)
			s.observer.CompletionFailed()
			span.RecordError(err, trace.WithAttributes(attribute.String("session.id", sess.ID)))
		}
	}
	return len(expired)
}

// notify calls the handler, converting a panic into an error so one bad
// notification cannot take down the loop.
func (s *Sweeper) notify(ctx context.Context, sess session.Session) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("completion handler panicked: %v", r)
		}
	}()
	if s.handler == nil {
		return nil
	}
	return s.handler.OnSessionComplete(ctx, sess)
}
