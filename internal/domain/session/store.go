package session

import (
	"context"
	"errors"
	"fmt"
)

// BlobStore persists opaque blobs under fixed keys.
// This interface is defined in the domain to avoid circular imports.
// Implementations: file (default), SQLite, in-memory (test).
type BlobStore interface {
	// Load returns the blob stored under key.
	// Returns ErrNotFound if nothing has been saved yet.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save replaces the blob stored under key. A concurrent Load must see
	// either the old or the new blob, never a partial write.
	Save(ctx context.Context, key string, data []byte) error
}

// CompletionHandler is notified once for every session that has expired.
// It is called from the sweeper goroutine without any registry lock held,
// so implementations are responsible for their own synchronization.
type CompletionHandler interface {
	OnSessionComplete(ctx context.Context, s Session) error
}

// CompletionHandlerFunc adapts a function to CompletionHandler.
type CompletionHandlerFunc func(ctx context.Context, s Session) error

// OnSessionComplete calls f.
func (f CompletionHandlerFunc) OnSessionComplete(ctx context.Context, s Session) error {
	return f(ctx, s)
}

var (
	// ErrNotFound is returned when a blob or session does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDecode matches every *DecodeError.
	ErrDecode = errors.New("malformed session data")

	// ErrStoreUnavailable matches every *StoreError.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// DecodeError reports a malformed persisted snapshot or record.
type DecodeError struct {
	// Index is the offending record position, or -1 for the whole blob.
	Index int
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("decode sessions: %v", e.Err)
	}
	return fmt.Sprintf("decode session record %d: %v", e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDecode) succeed.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// StoreError reports a read or write failure against the BlobStore.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStoreUnavailable) succeed.
func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }
