package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
)

// maxHealthyQueueDepth is the backlog above which the tracker is reported degraded.
const maxHealthyQueueDepth = 10_000

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// QueueReporter exposes the tracker backlog.
type QueueReporter interface {
	QueueDepth() int
}

// SweeperReporter exposes whether the sweeper is running.
type SweeperReporter interface {
	Running() bool
}

// HealthChecker verifies component health.
type HealthChecker struct {
	tracker QueueReporter
	sweeper SweeperReporter
	store   string
	version string
}

// NewHealthChecker creates a HealthChecker with optional components.
// Pass nil for components that aren't available.
func NewHealthChecker(tracker QueueReporter, sweeper SweeperReporter, store, version string) *HealthChecker {
	return &HealthChecker{
		tracker: tracker,
		sweeper: sweeper,
		store:   store,
		version: version,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.tracker != nil {
		depth := h.tracker.QueueDepth()
		if depth > maxHealthyQueueDepth {
			checks["tracker"] = fmt.Sprintf("degraded: %d queued", depth)
			healthy = false
		} else {
			checks["tracker"] = fmt.Sprintf("ok: %d queued", depth)
		}
	} else {
		checks["tracker"] = "not configured"
	}

	switch {
	case h.sweeper == nil:
		checks["sweeper"] = "not configured"
	case h.sweeper.Running():
		checks["sweeper"] = "running"
	default:
		// Idle until the first session exists.
		checks["sweeper"] = "idle"
	}

	if h.store != "" {
		checks["store"] = h.store
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}

// healthHandler is the fallback used when no HealthChecker is configured.
func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy"}` + "\n"))
	})
}
