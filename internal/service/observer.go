package service

import "github.com/Sentinel-Gate/sessiontrack/internal/domain/session"

// Observer receives lifecycle signals from the tracker and sweeper.
// Implementations must be safe for concurrent use.
type Observer interface {
	SessionStarted(resumed bool)
	SessionEnded()
	SessionCompleted(s session.Session)
	CompletionFailed()
	PersistFailed(op string)
	PendingSessions(n int)
	QueueDepth(n int)
}

type nopObserver struct{}

func (nopObserver) SessionStarted(bool) {}
func (nopObserver) SessionEnded() {}
func (nopObserver) SessionCompleted(session.Session) {}
func (nopObserver) CompletionFailed() {}
func (nopObserver) PersistFailed(string) {}
func (nopObserver) PendingSessions(int) {}
func (nopObserver) QueueDepth(int) {}
