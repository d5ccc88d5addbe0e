package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Sentinel-Gate/sessiontrack/internal/domain/session"
)

// SessionFilter decides whether a completed session is reported.
type SessionFilter interface {
	Match(s session.Session) (bool, error)
}

type namedHandler struct {
	name    string
	handler session.CompletionHandler
}

// CompletionFanout is a CompletionHandler that forwards each completed
// session to several sinks. A failing or panicking sink does not prevent the
// others from being called; their errors are joined.
type CompletionFanout struct {
	sinks  []namedHandler
	filter SessionFilter
	logger *slog.Logger
}

// NewCompletionFanout creates a fanout. A nil filter reports every session.
func NewCompletionFanout(logger *slog.Logger, filter SessionFilter) *CompletionFanout {
	return &CompletionFanout{
		filter: filter,
		logger: logger,
	}
}

// AddSink registers a sink. Not safe to call once sessions are completing.
func (f *CompletionFanout) AddSink(name string, h session.CompletionHandler) {
	f.sinks = append(f.sinks, namedHandler{name: name, handler: h})
}

// Sinks returns the registered sink names in call order.
func (f *CompletionFanout) Sinks() []string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.name
	}
	return names
}

// OnSessionComplete implements session.CompletionHandler.
func (f *CompletionFanout) OnSessionComplete(ctx context.Context, s session.Session) error {
	if f.filter != nil {
		ok, err := f.filter.Match(s)
		if err != nil {
			// Report rather than silently lose the session.
			f.logger.Warn("completion filter failed, reporting session", "session_id", s.ID, "error", err)
		} else if !ok {
			f.logger.Debug("completed session filtered out", "session_id", s.ID)
			return nil
		}
	}

	var errs []error
	for _, sink := range f.sinks {
		if err := callSink(ctx, sink, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func callSink(ctx context.Context, sink namedHandler, s session.Session) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", sink.name, r)
		}
	}()
	if err := sink.handler.OnSessionComplete(ctx, s); err != nil {
		return fmt.Errorf("%s: %w", sink.name, err)
	}
	return nil
}

// LogCompletionHandler returns a sink that logs every completed session.
func LogCompletionHandler(logger *slog.Logger) session.CompletionHandler {
	return session.CompletionHandlerFunc(func(ctx context.Context, s session.Session) error {
		logger.Info("session complete",
			"session_id", s.ID,
			"start_time", s.StartTime.UTC().Format(time.RFC3339),
			"end_time", s.EndTime.UTC().Format(time.RFC3339),
			"length", s.Length(s.EndTime).Round(time.Second).String(),
		)
		return nil
	})
}

// Compile-time interface verification.
var _ session.CompletionHandler = (*CompletionFanout)(nil)
