package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Sentinel-Gate/sessiontrack/internal/domain/session"
	"github.com/Sentinel-Gate/sessiontrack/internal/port/inbound"
	"github.com/Sentinel-Gate/sessiontrack/internal/port/outbound"
	"github.com/Sentinel-Gate/sessiontrack/internal/service"
)

// statusTimeout bounds how long GET /v1/session waits for the worker.
const statusTimeout = 5 * time.Second

// defaultHistoryLimit is used when ?limit is absent.
const defaultHistoryLimit = 50

// maxHistoryLimit caps ?limit.
const maxHistoryLimit = 1000

// SessionView is the API representation of a session.
type SessionView struct {
	ID            string     `json:"id"`
	State         string     `json:"state"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	LengthMS      int64      `json:"length_ms"`
	GracePeriodMS int64      `json:"grace_period_ms"`
}

// StatusResponse is the body of GET /v1/session.
type StatusResponse struct {
	Current  *SessionView `json:"current"`
	Previous *SessionView `json:"previous"`
	Pending  int          `json:"pending"`
}

// NewSessionView renders s as seen at now.
func NewSessionView(s *session.Session, now time.Time) *SessionView {
	if s == nil {
		return nil
	}
	v := &SessionView{
		ID:            s.ID,
		State:         string(s.State(now)),
		StartTime:     s.StartTime.UTC(),
		LengthMS:      s.Length(now).Milliseconds(),
		GracePeriodMS: s.GracePeriod.Milliseconds(),
	}
	if s.Ended() {
		end := s.EndTime.UTC()
		v.EndTime = &end
	}
	return v
}

type apiHandler struct {
	lifecycle inbound.SessionLifecycle
	history   outbound.CompletionHistory
	now       func() time.Time
}

// sessionEventHandler accepts a lifecycle event. The event is only queued.
func (h *apiHandler) sessionEventHandler(event string, submit func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		submit()
		LoggerFromContext(r.Context()).Debug("session event accepted", "event", event)
		writeJSON(w, http.StatusAccepted, map[string]string{"accepted": event})
	})
}

func (h *apiHandler) statusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
		defer cancel()

		st, err := h.lifecycle.Status(ctx)
		if err != nil {
			LoggerFromContext(r.Context()).Warn("status unavailable", "error", err)
			if errors.Is(err, service.ErrTrackerStopped) {
				writeError(w, http.StatusServiceUnavailable, "tracker stopped")
				return
			}
			writeError(w, http.StatusGatewayTimeout, "status unavailable")
			return
		}

		now := h.now()
		writeJSON(w, http.StatusOK, StatusResponse{
			Current:  NewSessionView(st.Current, now),
			Previous: NewSessionView(st.Previous, now),
			Pending:  st.Pending,
		})
	})
}

func (h *apiHandler) historyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if h.history == nil {
			writeError(w, http.StatusNotFound, "completion history not configured")
			return
		}

		limit := defaultHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, maxHistoryLimit)
		}

		completed, err := h.history.Recent(r.Context(), limit)
		if err != nil {
			LoggerFromContext(r.Context()).Error("failed to read completion history", "error", err)
			writeError(w, http.StatusInternalServerError, "completion history unavailable")
			return
		}
		if completed == nil {
			completed = []outbound.CompletedSession{}
		}
		writeJSON(w, http.StatusOK, completed)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
