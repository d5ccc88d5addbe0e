package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubQueue int

func (q stubQueue) QueueDepth() int { return int(q) }

type stubSweeper bool

func (s stubSweeper) Running() bool { return bool(s) }

func TestHealthChecker_Healthy(t *testing.T) {
	hc := NewHealthChecker(stubQueue(3), stubSweeper(true), "file", "test-version")
	health := hc.Check()

	if health.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", health.Status)
	}
	if health.Version != "test-version" {
		t.Errorf("Version = %q, want test-version", health.Version)
	}
	if health.Checks["tracker"] != "ok: 3 queued" {
		t.Errorf("tracker check = %q", health.Checks["tracker"])
	}
	if health.Checks["sweeper"] != "running" {
		t.Errorf("sweeper check = %q, want running", health.Checks["sweeper"])
	}
	if health.Checks["store"] != "file" {
		t.Errorf("store check = %q, want file", health.Checks["store"])
	}
	if _, ok := health.Checks["goroutines"]; !ok {
		t.Error("missing goroutines check")
	}
}

func TestHealthChecker_NilComponents(t *testing.T) {
	hc := NewHealthChecker(nil, nil, "", "")
	health := hc.Check()

	if health.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", health.Status)
	}
	if health.Checks["tracker"] != "not configured" {
		t.Errorf("tracker = %q, want 'not configured'", health.Checks["tracker"])
	}
	if health.Checks["sweeper"] != "not configured" {
		t.Errorf("sweeper = %q, want 'not configured'", health.Checks["sweeper"])
	}
}

func TestHealthChecker_IdleSweeper(t *testing.T) {
	hc := NewHealthChecker(stubQueue(0), stubSweeper(false), "", "")
	if got := hc.Check().Checks["sweeper"]; got != "idle" {
		t.Errorf("sweeper = %q, want idle", got)
	}
}

func TestHealthChecker_Backlog(t *testing.T) {
	hc := NewHealthChecker(stubQueue(maxHealthyQueueDepth+1), stubSweeper(true), "", "")

	rec := httptest.NewRecorder()
	hc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("Status = %q, want unhealthy", resp.Status)
	}
}
