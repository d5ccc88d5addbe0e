// Package state provides file-based persistence for session snapshots.
//
// Each key maps to one JSON file inside a directory. Writes are atomic
// (write-tmp-then-rename), keep a .bak copy of the previous snapshot and
// hold a cross-process file lock for their whole duration.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/Sentinel-Gate/sessiontrack/internal/domain/session"
)

// ErrInvalidKey is returned for keys that cannot be used as a file name.
var ErrInvalidKey = errors.New("invalid store key")

// FileBlobStore implements session.BlobStore on top of a directory.
// Unchanged snapshots are detected by digest and not rewritten.
type FileBlobStore struct {
	dir    string
	mu     sync.Mutex
	logger *slog.Logger
	// digests holds the xxhash of the last blob written or read per key.
	digests map[string]uint64
}

// NewFileBlobStore creates a FileBlobStore rooted at dir.
// The directory is created on first Save.
func NewFileBlobStore(dir string, logger *slog.Logger) *FileBlobStore {
	return &FileBlobStore{
		dir:     dir,
		logger:  logger,
		digests: make(map[string]uint64),
	}
}

// Path returns the file backing key.
func (s *FileBlobStore) Path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Dir returns the configured directory.
func (s *FileBlobStore) Dir() string {
	return s.dir
}

func validateKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Load reads the blob for key.
// Returns session.ErrNotFound if the file does not exist.
// Warns if the existing file has permissions more open than 0600.
func (s *FileBlobStore) Load(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	path := s.Path(key)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug("snapshot file not found", "path", path)
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}

	// Skip on Windows where Unix file permission bits are not supported.
	if runtime.GOOS != "windows" {
		if info, statErr := os.Stat(path); statErr == nil {
			mode := info.Mode().Perm()
			if mode&0077 != 0 {
				s.logger.Warn("snapshot file has too-open permissions, should be 0600",
					"path", path, "current_mode", fmt.Sprintf("%04o", mode))
			}
		}
	}

	s.mu.Lock()
	s.digests[key] = xxhash.Sum64(data)
	s.mu.Unlock()

	return data, nil
}

// Save writes data for key to disk atomically.
//
// The write sequence is:
//  1. Acquire in-process mutex
//  2. Skip if data matches the last known digest
//  3. Acquire flock on path+".lock"
//  4. Copy current file to path+".bak" (ignored if no current file)
//  5. Write to path+".tmp" with 0600 permissions, fsync, rename
//  6. Release flock and mutex
func (s *FileBlobStore) Save(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	digest := xxhash.Sum64(data)
	if last, ok := s.digests[key]; ok && last == digest {
		s.logger.Debug("snapshot unchanged, skipping write", "key", key)
		return nil
	}

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	path := s.Path(key)
	lockFile, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = lockFile.Close() }()

	unlock, err := lockExclusive(lockFile)
	if err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer unlock()

	if current, readErr := os.ReadFile(path); readErr == nil {
		if writeErr := os.WriteFile(path+".bak", current, 0600); writeErr != nil {
			s.logger.Warn("failed to create backup", "error", writeErr)
		}
	}

	if err := writeAtomic(path, data); err != nil {
		return err
	}

	if err := os.Chmod(path, 0600); err != nil {
		s.logger.Warn("failed to set permissions on snapshot file", "error", err)
	}

	s.digests[key] = digest
	s.logger.Debug("snapshot saved", "path", path, "bytes", len(data))
	return nil
}

// Delete removes the snapshot for key along with its backup and lock files.
func (s *FileBlobStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.digests, key)
	path := s.Path(key)
	for _, p := range []string{path, path + ".bak", path + ".lock"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

// writeAtomic writes data to a temp file, fsyncs it, and renames it
// over path. On any error the temp file is cleaned up.
func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp to snapshot: %w", err)
	}
	return nil
}

// Compile-time interface verification.
var _ session.BlobStore = (*FileBlobStore)(nil)
