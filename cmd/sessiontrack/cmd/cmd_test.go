package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sentinel-Gate/sessiontrack/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/sessiontrack/internal/adapter/outbound/sqlite"
	"github.com/Sentinel-Gate/sessiontrack/internal/adapter/outbound/state"
	"github.com/Sentinel-Gate/sessiontrack/internal/config"
	"github.com/Sentinel-Gate/sessiontrack/internal/domain/session"
	"github.com/Sentinel-Gate/sessiontrack/internal/port/outbound"
)

var t0 = time.UnixMilli(1_700_000_000_000).UTC()

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	cfg := &config.Config{Store: config.StoreConfig{Backend: backend, Dir: t.TempDir()}}
	cfg.SetDefaults()
	return cfg
}

func ended(id string, startMS, endMS int64) session.Session {
	return session.Session{
		ID:          id,
		StartTime:   t0.Add(time.Duration(startMS) * time.Millisecond),
		EndTime:     t0.Add(time.Duration(endMS) * time.Millisecond),
		GracePeriod: 15 * time.Second,
	}
}

func TestCommands_Registered(t *testing.T) {
	want := map[string]bool{"start": false, "stop": false, "inspect": false, "history": false, "reset": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("%s command not registered with rootCmd", name)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseFileURI(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"file:///var/log/sessions.jsonl", "/var/log/sessions.jsonl"},
		{"file:///C:/logs/sessions.jsonl", "C:/logs/sessions.jsonl"},
		{"stdout", ""},
		{"/var/log/sessions.jsonl", ""},
	}
	for _, tt := range tests {
		if got := parseFileURI(tt.in); got != tt.want {
			t.Errorf("parseFileURI(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sessiontrack.pid")

	if got := readPIDFile(path); got != 0 {
		t.Errorf("readPIDFile(missing) = %d, want 0", got)
	}
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile() error: %v", err)
	}
	if got := readPIDFile(path); got != os.Getpid() {
		t.Errorf("readPIDFile() = %d, want %d", got, os.Getpid())
	}

	if err := os.WriteFile(path, []byte("garbage\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if got := readPIDFile(path); got != 0 {
		t.Errorf("readPIDFile(garbage) = %d, want 0", got)
	}
}

func TestProcessIsAlive_Self(t *testing.T) {
	proc, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatal(err)
	}
	if !processIsAlive(proc) {
		t.Error("current process should be alive")
	}
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		backend string
		ledger  bool
		check   func(t *testing.T, b *backend)
	}{
		{config.BackendFile, false, func(t *testing.T, b *backend) {
			if _, ok := b.store.(*state.FileBlobStore); !ok {
				t.Errorf("store = %T, want *state.FileBlobStore", b.store)
			}
			if b.db != nil {
				t.Error("file backend without ledger should not open the database")
			}
		}},
		{config.BackendSQLite, false, func(t *testing.T, b *backend) {
			if _, ok := b.store.(*sqlite.BlobStore); !ok {
				t.Errorf("store = %T, want *sqlite.BlobStore", b.store)
			}
		}},
		{config.BackendMemory, false, func(t *testing.T, b *backend) {
			if _, ok := b.store.(*memory.MemoryBlobStore); !ok {
				t.Errorf("store = %T, want *memory.MemoryBlobStore", b.store)
			}
		}},
		{config.BackendFile, true, func(t *testing.T, b *backend) {
			if b.db == nil {
				t.Error("ledger should open the database")
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := testConfig(t, tt.backend)
			cfg.Completion.Ledger = tt.ledger

			b, err := openBackend(ctx, cfg, discardLogger())
			if err != nil {
				t.Fatalf("openBackend() error: %v", err)
			}
			defer b.Close()
			tt.check(t, b)

			if _, ok := b.store.(storeDeleter); !ok {
				t.Errorf("%T does not support Delete", b.store)
			}
		})
	}
}

func TestOpenBackend_Unknown(t *testing.T) {
	cfg := testConfig(t, "redis")
	if _, err := openBackend(context.Background(), cfg, discardLogger()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoadSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memory.NewBlobStore()

	got, err := loadSnapshot(ctx, store, "user_sessions")
	if err != nil || got != nil {
		t.Fatalf("loadSnapshot(missing) = %v, %v; want nil, nil", got, err)
	}

	data, err := session.MarshalSessions([]session.Session{ended("a", 0, 1000)})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, "user_sessions", data); err != nil {
		t.Fatal(err)
	}
	got, err = loadSnapshot(ctx, store, "user_sessions")
	if err != nil {
		t.Fatalf("loadSnapshot() error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("loadSnapshot() = %+v", got)
	}

	if err := store.Save(ctx, "user_sessions", []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if _, err := loadSnapshot(ctx, store, "user_sessions"); err == nil {
		t.Error("expected decode error")
	}
}

func TestNewPendingSession(t *testing.T) {
	active := session.Session{ID: "a", StartTime: t0, GracePeriod: 15 * time.Second}
	p := newPendingSession(active, t0.Add(3*time.Second))
	if p.State != session.StateActive || p.EndTime != nil || p.ExpiresAt != nil {
		t.Errorf("active row = %+v", p)
	}
	if p.LengthMS != 3000 {
		t.Errorf("active LengthMS = %d, want 3000", p.LengthMS)
	}

	e := ended("b", 0, 2000)
	p = newPendingSession(e, t0.Add(5*time.Second))
	if p.State != session.StateEnded {
		t.Errorf("State = %s, want ended", p.State)
	}
	if p.LengthMS != 2000 {
		t.Errorf("ended LengthMS = %d, want 2000", p.LengthMS)
	}
	if p.ExpiresAt == nil || !p.ExpiresAt.Equal(t0.Add(17*time.Second)) {
		t.Errorf("ExpiresAt = %v, want %v", p.ExpiresAt, t0.Add(17*time.Second))
	}

	p = newPendingSession(e, t0.Add(17*time.Second+time.Millisecond))
	if p.State != session.StateExpired {
		t.Errorf("State = %s, want expired", p.State)
	}
}

func TestWritePending(t *testing.T) {
	rows := []pendingSession{newPendingSession(ended("abc", 0, 1000), t0.Add(2*time.Second))}

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writePending(&buf, formatText, rows); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		if !strings.Contains(out, "SESSION ID") || !strings.Contains(out, "abc") || !strings.Contains(out, "ended") {
			t.Errorf("unexpected text output:\n%s", out)
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writePending(&buf, formatJSON, rows); err != nil {
			t.Fatal(err)
		}
		var got []map[string]any
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(got) != 1 || got[0]["session_id"] != "abc" || got[0]["state"] != "ended" {
			t.Errorf("got %v", got)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writePending(&buf, formatYAML, rows); err != nil {
			t.Fatal(err)
		}
		var got []map[string]any
		if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid YAML: %v", err)
		}
		if len(got) != 1 || got[0]["session_id"] != "abc" || got[0]["grace_period_ms"] != 15000 {
			t.Errorf("got %v", got)
		}
	})

	t.Run("empty text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writePending(&buf, formatText, nil); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "No pending sessions") {
			t.Errorf("got %q", buf.String())
		}
	})
}

func TestWriteHistory(t *testing.T) {
	records := []outbound.CompletedSession{
		outbound.NewCompletedSession(ended("new", 5000, 9000), t0.Add(30*time.Second)),
		outbound.NewCompletedSession(ended("old", 0, 1000), t0.Add(20*time.Second)),
	}

	var buf bytes.Buffer
	if err := writeHistory(&buf, formatText, records); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Index(out, "new") > strings.Index(out, "old") {
		t.Errorf("records out of order:\n%s", out)
	}

	buf.Reset()
	if err := writeHistory(&buf, formatJSON, nil); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty JSON history = %q, want []", buf.String())
	}
}

func TestValidateFormat(t *testing.T) {
	for _, f := range []string{"text", "json", "yaml"} {
		if err := validateFormat(f); err != nil {
			t.Errorf("validateFormat(%q) error: %v", f, err)
		}
	}
	if err := validateFormat("xml"); err == nil {
		t.Error("validateFormat(xml) should fail")
	}
}

func TestOpenCompletionOutput_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "completed.jsonl")
	cfg := testConfig(t, config.BackendMemory)
	cfg.Completion.Output = "file://" + path

	out, err := openCompletionOutput(cfg, io.Discard)
	if err != nil {
		t.Fatalf("openCompletionOutput() error: %v", err)
	}
	if err := out.OnSessionComplete(context.Background(), ended("a", 0, 1000)); err != nil {
		t.Fatal(err)
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"session_id":"a"`) {
		t.Errorf("file content = %q", data)
	}
}

func TestOpenCompletionOutput_Stdout(t *testing.T) {
	cfg := testConfig(t, config.BackendMemory)
	cfg.Completion.Output = "stdout"

	var buf bytes.Buffer
	out, err := openCompletionOutput(cfg, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if err := out.OnSessionComplete(context.Background(), ended("a", 0, 1000)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"length_ms":1000`) {
		t.Errorf("stdout = %q", buf.String())
	}
}

func TestBuildCompletionSinks(t *testing.T) {
	ctx := context.Background()

	t.Run("memory history", func(t *testing.T) {
		cfg := testConfig(t, config.BackendMemory)
		b, err := openBackend(ctx, cfg, discardLogger())
		if err != nil {
			t.Fatal(err)
		}
		defer b.Close()

		fanout, history, closeFn, err := buildCompletionSinks(cfg, b, discardLogger(), io.Discard)
		if err != nil {
			t.Fatal(err)
		}
		defer closeFn()

		if got := strings.Join(fanout.Sinks(), ","); got != "log,output" {
			t.Errorf("Sinks() = %q, want log,output", got)
		}
		if _, ok := history.(*memory.CompletionLog); !ok {
			t.Errorf("history = %T, want *memory.CompletionLog", history)
		}
	})

	t.Run("ledger preferred", func(t *testing.T) {
		cfg := testConfig(t, config.BackendFile)
		cfg.Completion.Ledger = true
		cfg.Completion.Filter = "length_ms >= 2000"
		b, err := openBackend(ctx, cfg, discardLogger())
		if err != nil {
			t.Fatal(err)
		}
		defer b.Close()

		fanout, history, closeFn, err := buildCompletionSinks(cfg, b, discardLogger(), io.Discard)
		if err != nil {
			t.Fatal(err)
		}
		defer closeFn()

		if got := strings.Join(fanout.Sinks(), ","); got != "log,output,ledger" {
			t.Errorf("Sinks() = %q, want log,output,ledger", got)
		}
		if _, ok := history.(*sqlite.Ledger); !ok {
			t.Fatalf("history = %T, want *sqlite.Ledger", history)
		}

		// Filtered out, then reported.
		if err := fanout.OnSessionComplete(ctx, ended("short", 0, 1000)); err != nil {
			t.Fatal(err)
		}
		if err := fanout.OnSessionComplete(ctx, ended("long", 0, 5000)); err != nil {
			t.Fatal(err)
		}
		got, err := history.Recent(ctx, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].SessionID != "long" {
			t.Errorf("Recent() = %+v, want only long", got)
		}
	})

	t.Run("log disabled", func(t *testing.T) {
		cfg := testConfig(t, config.BackendMemory)
		cfg.Completion.Log = false
		b, err := openBackend(ctx, cfg, discardLogger())
		if err != nil {
			t.Fatal(err)
		}
		defer b.Close()

		fanout, _, closeFn, err := buildCompletionSinks(cfg, b, discardLogger(), io.Discard)
		if err != nil {
			t.Fatal(err)
		}
		defer closeFn()
		if got := strings.Join(fanout.Sinks(), ","); got != "output" {
			t.Errorf("Sinks() = %q, want output", got)
		}
	})
}
