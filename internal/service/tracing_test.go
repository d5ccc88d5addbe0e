package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	"github.com/Sentinel-Gate/sessiontrack/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/sessiontrack/internal/domain/session"
)

func newRecorder(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return rec, tp
}

func spanNames(spans []sdktrace.ReadOnlySpan) []string {
	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.Name()
	}
	return names
}

func attrValue(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracker_RecordsCommandSpans(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec, tp := newRecorder(t)
	logger := discardLogger()
	clock := newFakeClock()
	registry := session.NewRegistry(memory.NewBlobStore(), session.DefaultKey, logger)
	sweeper := NewSweeper(registry, nil, logger, WithSweepInterval(time.Hour), WithSweeperClock(clock.Now))
	tracker := NewTracker(registry, sweeper, logger,
		WithClock(clock.Now),
		WithTracer(tp.Tracer("test")),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tracker.Start(ctx)
	defer tracker.Stop()

	tracker.StartSession()
	tracker.EndSession()
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer flushCancel()
	if err := tracker.Flush(flushCtx); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	// The flush span itself may still be open; the three before it are ended.
	ended := rec.Ended()
	if len(ended) < 3 {
		t.Fatalf("ended spans = %v, want at least init, start, end", spanNames(ended))
	}
	want := []string{"tracker.init", "tracker.start", "tracker.end"}
	for i, name := range want {
		if ended[i].Name() != name {
			t.Errorf("span %d = %q, want %q", i, ended[i].Name(), name)
		}
	}

	st := tracker.registry.Snapshot()
	if len(st) != 1 {
		t.Fatalf("registry has %d sessions, want 1", len(st))
	}
	v, ok := attrValue(ended[1], "session.current")
	if !ok || v.AsString() != st[0].ID {
		t.Errorf("start span session.current = %v, want %s", v.AsString(), st[0].ID)
	}
	v, ok = attrValue(ended[2], "session.previous")
	if !ok || v.AsString() != st[0].ID {
		t.Errorf("end span session.previous = %v, want %s", v.AsString(), st[0].ID)
	}
}

func TestSweeper_RecordsSpanOnlyWhenCompleting(t *testing.T) {
	rec, tp := newRecorder(t)
	clock := newFakeClock()
	registry := session.NewRegistry(memory.NewBlobStore(), session.DefaultKey, discardLogger())
	seedRegistry(t, registry, 0, 1000)

	failing := session.CompletionHandlerFunc(func(ctx context.Context, s session.Session) error {
		return errors.New("sink down")
	})
	sweeper := NewSweeper(registry, failing, discardLogger(),
		WithSweeperClock(clock.Now),
		WithSweeperTracer(tp.Tracer("test")),
	)

	clock.Set(1000)
	if n := sweeper.SweepOnce(context.Background()); n != 0 {
		t.Fatalf("SweepOnce() = %d, want 0", n)
	}
	if got := len(rec.Ended()); got != 0 {
		t.Fatalf("idle sweep recorded %d spans, want 0", got)
	}

	clock.Set(16001)
	if n := sweeper.SweepOnce(context.Background()); n != 2 {
		t.Fatalf("SweepOnce() = %d, want 2", n)
	}
	ended := rec.Ended()
	if len(ended) != 1 || ended[0].Name() != "sweeper.complete" {
		t.Fatalf("spans = %v, want [sweeper.complete]", spanNames(ended))
	}
	if v, _ := attrValue(ended[0], "sessions.expired"); v.AsInt64() != 2 {
		t.Errorf("sessions.expired = %d, want 2", v.AsInt64())
	}
	if got := len(ended[0].Events()); got != 2 {
		t.Errorf("recorded %d error events, want 2", got)
	}
	if ended[0].Status().Code == codes.Error {
		t.Error("handler failures alone should not mark the sweep span as failed")
	}
}
