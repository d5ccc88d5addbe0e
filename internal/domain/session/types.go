// Package session tracks application usage sessions across start and end
// events, coalescing quick stop/resume pairs into one logical session.
package session

import (
	"time"

	"github.com/google/uuid"
)

// DefaultGracePeriod is how long an ended session stays resumable.
const DefaultGracePeriod = 15 * time.Second

// State describes where a session is in its lifecycle at a given instant.
type State string

const (
	StateActive  State = "active"
	StateEnded   State = "ended"
	StateExpired State = "expired"
)

// Session is one logical usage session.
// ID, StartTime and GracePeriod never change after creation.
type Session struct {
	// ID is a random UUID assigned at creation.
	ID string
	// StartTime is when the session was created, at millisecond precision.
	StartTime time.Time
	// EndTime is when the session was last ended. Zero while active.
	EndTime time.Time
	// GracePeriod is how long after EndTime the session may still be resumed.
	GracePeriod time.Duration
}

// New creates an active session starting at now.
// A non-positive grace falls back to DefaultGracePeriod.
func New(grace time.Duration, now time.Time) *Session {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Session{
		ID:          uuid.NewString(),
		StartTime:   toMillis(now),
		GracePeriod: grace,
	}
}

// End stamps the end time. Calling it again overwrites the previous value.
func (s *Session) End(now time.Time) {
	s.EndTime = toMillis(now)
}

// Resume clears the end time. Callers must check IsExpired first.
func (s *Session) Resume() {
	s.EndTime = time.Time{}
}

// Ended reports whether the session currently has an end time.
func (s *Session) Ended() bool {
	return !s.EndTime.IsZero()
}

// IsExpired reports whether the session ended more than GracePeriod before now.
func (s *Session) IsExpired(now time.Time) bool {
	return s.Ended() && now.After(s.EndTime.Add(s.GracePeriod))
}

// Length returns the session duration, measured up to now while still active.
func (s *Session) Length(now time.Time) time.Duration {
	if s.Ended() {
		return s.EndTime.Sub(s.StartTime)
	}
	return now.Sub(s.StartTime)
}

// State returns the lifecycle state of the session at now.
func (s *Session) State(now time.Time) State {
	switch {
	case !s.Ended():
		return StateActive
	case s.IsExpired(now):
		return StateExpired
	default:
		return StateEnded
	}
}

// Status is a point-in-time view of the tracker.
type Status struct {
	// Current is the active session, if any.
	Current *Session
	// Previous is the most recently ended session that may still be resumed.
	Previous *Session
	// Pending is the number of sessions not yet completed.
	Pending int
}

// toMillis drops sub-millisecond precision and the monotonic reading so that
// timestamps survive a round trip through the persisted epoch-millis form.
func toMillis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli())
}
