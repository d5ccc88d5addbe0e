package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sentinel-Gate/sessiontrack/internal/domain/session"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "sessions.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	for i := 0; i < 2; i++ {
		db, err := Open(context.Background(), path)
		if err != nil {
			t.Fatalf("Open() #%d error: %v", i, err)
		}
		_ = db.Close()
	}
}

func TestBlobStore_LoadMissing(t *testing.T) {
	store := NewBlobStore(openTestDB(t))

	_, err := store.Load(context.Background(), "user_sessions")
	if !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestBlobStore_SaveOverwrite(t *testing.T) {
	ctx := context.Background()
	store := NewBlobStore(openTestDB(t))

	if err := store.Save(ctx, "k", []byte("first")); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := store.Save(ctx, "k", []byte("second")); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := store.Load(ctx, "k")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("Load() = %q, want %q", got, "second")
	}
}

func TestBlobStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewBlobStore(openTestDB(t))

	_ = store.Save(ctx, "k", []byte("v"))
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := store.Load(ctx, "k"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Load() after Delete error = %v, want ErrNotFound", err)
	}
}

func TestBlobStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	db, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if err := NewBlobStore(db).Save(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	db, err = Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	got, err := NewBlobStore(db).Load(ctx, "k")
	if err != nil {
		t.Fatalf("Load() after reopen error: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Load() = %q, want %q", got, "v")
	}
}

func completed(id string, startMS, endMS int64) session.Session {
	return session.Session{
		ID:          id,
		StartTime:   time.UnixMilli(startMS),
		EndTime:     time.UnixMilli(endMS),
		GracePeriod: 15 * time.Second,
	}
}

func TestLedger_RecordAndRecent(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(openTestDB(t))

	clock := time.UnixMilli(1_700_000_000_000)
	ledger.now = func() time.Time { return clock }

	if err := ledger.OnSessionComplete(ctx, completed("a", 0, 12000)); err != nil {
		t.Fatalf("OnSessionComplete() error: %v", err)
	}
	clock = clock.Add(time.Second)
	if err := ledger.OnSessionComplete(ctx, completed("b", 20000, 21000)); err != nil {
		t.Fatalf("OnSessionComplete() error: %v", err)
	}

	got, err := ledger.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent() len = %d, want 2", len(got))
	}
	if got[0].SessionID != "b" || got[1].SessionID != "a" {
		t.Errorf("Recent() order = [%s %s], want [b a]", got[0].SessionID, got[1].SessionID)
	}
	if got[1].LengthMS != 12000 {
		t.Errorf("LengthMS = %d, want 12000", got[1].LengthMS)
	}
	if got[1].GracePeriodMS != 15000 {
		t.Errorf("GracePeriodMS = %d, want 15000", got[1].GracePeriodMS)
	}
	if !got[1].EndTime.Equal(time.UnixMilli(12000)) {
		t.Errorf("EndTime = %v, want %v", got[1].EndTime, time.UnixMilli(12000))
	}

	limited, err := ledger.Recent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 || limited[0].SessionID != "b" {
		t.Errorf("Recent(1) = %+v, want [b]", limited)
	}
}

func TestLedger_DuplicateIgnored(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(openTestDB(t))

	s := completed("a", 0, 1000)
	if err := ledger.OnSessionComplete(ctx, s); err != nil {
		t.Fatal(err)
	}
	if err := ledger.OnSessionComplete(ctx, s); err != nil {
		t.Fatalf("duplicate OnSessionComplete() error: %v", err)
	}

	n, err := ledger.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestLedger_Reset(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger(openTestDB(t))

	_ = ledger.OnSessionComplete(ctx, completed("a", 0, 1000))
	if err := ledger.Reset(ctx); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}
	if n, _ := ledger.Count(ctx); n != 0 {
		t.Errorf("Count() after Reset = %d, want 0", n)
	}
}
