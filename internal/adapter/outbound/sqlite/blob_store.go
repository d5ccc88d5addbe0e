package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Sentinel-Gate/sessiontrack/internal/domain/session"
)

// BlobStore implements session.BlobStore on the snapshots table.
type BlobStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewBlobStore wraps an open database. See Open.
func NewBlobStore(db *sql.DB) *BlobStore {
	return &BlobStore{db: db, now: time.Now}
}

// Load returns the blob stored under key, or session.ErrNotFound.
func (s *BlobStore) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM snapshots WHERE key = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	return data, nil
}

// Save replaces the blob stored under key.
func (s *BlobStore) Save(ctx context.Context, key string, data []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if data == nil {
		data = []byte{}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, key, data, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Delete removes the blob stored under key.
func (s *BlobStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// Compile-time interface verification.
var _ session.BlobStore = (*BlobStore)(nil)
