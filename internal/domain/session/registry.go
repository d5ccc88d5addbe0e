package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultKey is the blob key the registry persists under.
const DefaultKey = "user_sessions"

// Registry holds the sessions that have not been completed yet, in insertion
// order. Every method holds the registry mutex for its full duration, and
// every mutation is written through to the BlobStore before the lock is
// released.
//
// Store failures never undo an in-memory mutation: the error is returned as a
// *StoreError and the next mutation rewrites the whole snapshot.
type Registry struct {
	mu       sync.Mutex
	sessions []*Session
	store    BlobStore
	key      string
	logger   *slog.Logger
}

// NewRegistry creates an empty registry persisting to store under key.
// An empty key uses DefaultKey.
func NewRegistry(store BlobStore, key string, logger *slog.Logger) *Registry {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:  store,
		key:    key,
		logger: logger,
	}
}

// Load reads the persisted snapshot and appends its sessions.
// Sessions without an end time were interrupted by a crash and are ended at
// now. It returns the number of sessions loaded.
//
// A missing snapshot is not an error. A malformed snapshot returns a
// *DecodeError and a read failure a *StoreError; in both cases nothing is
// loaded and the registry keeps working with what it has.
func (r *Registry) Load(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := r.store.Load(ctx, r.key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.logger.Debug("no session snapshot found", "key", r.key)
			return 0, nil
		}
		return 0, &StoreError{Op: "load", Key: r.key, Err: err}
	}

	loaded, err := UnmarshalSessions(data)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for i := range loaded {
		s := loaded[i]
		if !s.Ended() {
			// No end time means the process died mid-session. Load time is
			// the best estimate we have.
			s.End(now)
			repaired++
			r.logger.Debug("ended interrupted session", "session_id", s.ID)
		}
		r.sessions = append(r.sessions, &s)
	}

	if repaired > 0 {
		if err := r.persistLocked(ctx); err != nil {
			return len(loaded), err
		}
	}
	return len(loaded), nil
}

// Add appends s and persists the registry.
func (r *Registry) Add(ctx context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *s
	r.sessions = append(r.sessions, &cp)
	return r.persistLocked(ctx)
}

// End stamps the end time of a registered session and persists the registry.
// Returns ErrNotFound if id is not registered.
func (r *Registry) End(ctx context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.findLocked(id)
	if s == nil {
		return ErrNotFound
	}
	s.End(now)
	return r.persistLocked(ctx)
}

// Resume clears the end time of a registered session that has not expired at
// now. It reports false when the session is gone or expired, in which case
// nothing changes. The expiry check and the mutation happen under one lock
// acquisition, so a concurrent sweep cannot complete a session that is being
// resumed.
func (r *Registry) Resume(ctx context.Context, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.findLocked(id)
	if s == nil || s.IsExpired(now) {
		return false, nil
	}
	s.Resume()
	return true, r.persistLocked(ctx)
}

// SweepExpired removes every session that is expired at now, keeping the
// survivors in order, and persists if anything was removed. The removed
// sessions are returned in their original order so the caller can notify
// after the lock is released.
func (r *Registry) SweepExpired(ctx context.Context, now time.Time) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []Session
	kept := r.sessions[:0]
	for _, s := range r.sessions {
		if s.IsExpired(now) {
			r.logger.Debug("expiring session", "session_id", s.ID)
			expired = append(expired, *s)
			continue
		}
		kept = append(kept, s)
	}
	for i := len(kept); i < len(r.sessions); i++ {
		r.sessions[i] = nil
	}
	r.sessions = kept

	if len(expired) == 0 {
		return nil, nil
	}
	return expired, r.persistLocked(ctx)
}

// Get returns a copy of the session registered under id.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s := r.findLocked(id); s != nil {
		return *s, true
	}
	return Session{}, false
}

// Snapshot returns copies of all registered sessions in insertion order.
func (r *Registry) Snapshot() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Key returns the blob key the registry persists under.
func (r *Registry) Key() string {
	return r.key
}

func (r *Registry) findLocked(id string) *Session {
	for _, s := range r.sessions {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (r *Registry) snapshotLocked() []Session {
	out := make([]Session, len(r.sessions))
	for i, s := range r.sessions {
		out[i] = *s
	}
	return out
}

// persistLocked writes the full ordered collection. Caller holds r.mu.
func (r *Registry) persistLocked(ctx context.Context) error {
	data, err := MarshalSessions(r.snapshotLocked())
	if err != nil {
		return &StoreError{Op: "encode", Key: r.key, Err: err}
	}
	if err := r.store.Save(ctx, r.key, data); err != nil {
		return &StoreError{Op: "save", Key: r.key, Err: err}
	}
	return nil
}
