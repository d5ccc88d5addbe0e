package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Sentinel-Gate/sessiontrack/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/sessiontrack/internal/adapter/outbound/sqlite"
	"github.com/Sentinel-Gate/sessiontrack/internal/adapter/outbound/state"
	"github.com/Sentinel-Gate/sessiontrack/internal/config"
	"github.com/Sentinel-Gate/sessiontrack/internal/domain/session"
)

// storeDeleter is implemented by the backends whose snapshot can be removed.
type storeDeleter interface {
	Delete(ctx context.Context, key string) error
}

// backend bundles the session store with the database it may share with the
// completion ledger. db is nil unless cfg.NeedsDatabase().
type backend struct {
	store session.BlobStore
	db    *sql.DB
}

// Close releases the database, if one was opened.
func (b *backend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// ledger returns the completion ledger, or nil when it is not configured.
func (b *backend) ledger(cfg *config.Config) *sqlite.Ledger {
	if !cfg.Completion.Ledger || b.db == nil {
		return nil
	}
	return sqlite.NewLedger(b.db)
}

// openBackend creates the configured session store.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	b := &backend{}

	if cfg.NeedsDatabase() {
		db, err := sqlite.Open(ctx, cfg.DatabasePath())
		if err != nil {
			return nil, fmt.Errorf("failed to open database %s: %w", cfg.DatabasePath(), err)
		}
		b.db = db
	}

	switch cfg.Store.Backend {
	case config.BackendFile:
		b.store = state.NewFileBlobStore(cfg.Store.Dir, logger)
	case config.BackendSQLite:
		b.store = sqlite.NewBlobStore(b.db)
	case config.BackendMemory:
		b.store = memory.NewBlobStore()
	default:
		_ = b.Close()
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	return b, nil
}

// loadSnapshot reads the raw pending sessions for key without repairing them.
// A missing snapshot yields no sessions.
func loadSnapshot(ctx context.Context, store session.BlobStore, key string) ([]session.Session, error) {
	data, err := store.Load(ctx, key)
	if errors.Is(err, session.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session.UnmarshalSessions(data)
}
