package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Sentinel-Gate/sessiontrack/internal/domain/session"
	"github.com/Sentinel-Gate/sessiontrack/internal/port/outbound"
)

// Ledger records completed sessions. It implements session.CompletionHandler.
// Recording the same session twice keeps the first row.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// NewLedger wraps an open database. See Open.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// OnSessionComplete inserts s into the ledger.
func (l *Ledger) OnSessionComplete(ctx context.Context, s session.Session) error {
	c := outbound.NewCompletedSession(s, l.now())
	_, err := l.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO completed_sessions
			(session_id, start_time, end_time, length_ms, grace_period_ms, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		c.SessionID,
		c.StartTime.UnixMilli(),
		c.EndTime.UnixMilli(),
		c.LengthMS,
		c.GracePeriodMS,
		c.CompletedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert completed session: %w", err)
	}
	return nil
}

// Recent returns up to limit completed sessions, most recently completed first.
// A non-positive limit returns every row.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]outbound.CompletedSession, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT session_id, start_time, end_time, length_ms, grace_period_ms, completed_at
		FROM completed_sessions
		ORDER BY completed_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query completed sessions: %w", err)
	}
	defer rows.Close()

	var out []outbound.CompletedSession
	for rows.Next() {
		var (
			c                   outbound.CompletedSession
			start, end, written int64
		)
		if err := rows.Scan(&c.SessionID, &start, &end, &c.LengthMS, &c.GracePeriodMS, &written); err != nil {
			return nil, fmt.Errorf("scan completed session: %w", err)
		}
		c.StartTime = time.UnixMilli(start).UTC()
		c.EndTime = time.UnixMilli(end).UTC()
		c.CompletedAt = time.UnixMilli(written).UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completed sessions: %w", err)
	}
	return out, nil
}

// Count returns the number of recorded sessions.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM completed_sessions").Scan(&n); err != nil {
		return 0, fmt.Errorf("count completed sessions: %w", err)
	}
	return n, nil
}

// Reset deletes every recorded session.
func (l *Ledger) Reset(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, "DELETE FROM completed_sessions"); err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}
	return nil
}

// Compile-time interface verification.
var (
	_ session.CompletionHandler  = (*Ledger)(nil)
	_ outbound.CompletionHistory = (*Ledger)(nil)
)
