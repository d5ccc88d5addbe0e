// Package outbound defines the outbound port interfaces used by the
// session tracker beyond session.BlobStore and session.CompletionHandler.
package outbound

import (
	"context"
	"time"

	"github.com/Sentinel-Gate/sessiontrack/internal/domain/session"
)

// CompletedSession is the reported form of a completed session.
type CompletedSession struct {
	SessionID     string    `json:"session_id" yaml:"session_id"`
	StartTime     time.Time `json:"start_time" yaml:"start_time"`
	EndTime       time.Time `json:"end_time" yaml:"end_time"`
	LengthMS      int64     `json:"length_ms" yaml:"length_ms"`
	GracePeriodMS int64     `json:"grace_period_ms" yaml:"grace_period_ms"`
	CompletedAt   time.Time `json:"completed_at" yaml:"completed_at"`
}

// NewCompletedSession converts a completed session into its reported form.
func NewCompletedSession(s session.Session, completedAt time.Time) CompletedSession {
	return CompletedSession{
		SessionID:     s.ID,
		StartTime:     s.StartTime.UTC(),
		EndTime:       s.EndTime.UTC(),
		LengthMS:      s.Length(s.EndTime).Milliseconds(),
		GracePeriodMS: s.GracePeriod.Milliseconds(),
		CompletedAt:   completedAt.UTC(),
	}
}

// CompletionHistory is implemented by completion sinks that can be queried.
type CompletionHistory interface {
	// Recent returns up to limit completed sessions, newest first.
	// A non-positive limit returns everything the sink holds.
	Recent(ctx context.Context, limit int) ([]CompletedSession, error)
}
