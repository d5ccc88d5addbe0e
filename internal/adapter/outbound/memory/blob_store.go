// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"sync"

	"github.com/Sentinel-Gate/sessiontrack/internal/domain/session"
)

// MemoryBlobStore implements session.BlobStore with an in-memory map.
// Thread-safe for concurrent access. Nothing survives a restart, so this is
// for development and testing only.
type MemoryBlobStore struct {
	blobs map[string][]byte
	mu    sync.RWMutex
	saves int
}

// NewBlobStore creates an empty in-memory blob store.
func NewBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{
		blobs: make(map[string][]byte),
	}
}

// Load returns a copy of the blob stored under key.
// Returns session.ErrNotFound if nothing has been saved.
func (s *MemoryBlobStore) Load(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[key]
	if !ok {
		return nil, session.ErrNotFound
	}
	return copyBytes(data), nil
}

// Save stores a copy of data under key.
func (s *MemoryBlobStore) Save(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blobs[key] = copyBytes(data)
	s.saves++
	return nil
}

// Delete removes the blob stored under key.
func (s *MemoryBlobStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blobs, key)
	return nil
}

// Saves returns how many times Save has been called.
// Useful for asserting write-through behavior in tests.
func (s *MemoryBlobStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Size returns the number of keys currently stored.
func (s *MemoryBlobStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Compile-time interface verification.
var _ session.BlobStore = (*MemoryBlobStore)(nil)
