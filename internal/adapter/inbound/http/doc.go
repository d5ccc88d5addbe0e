// Package http provides the HTTP transport for session lifecycle events.
//
// Local clients that cannot link the tracker directly (shell hooks, editor
// plugins, screen-lock scripts) report activity by POSTing to the transport.
//
// # Usage
//
//	transport := http.NewHTTPTransport(tracker,
//	    http.WithAddr("127.0.0.1:8090"),
//	    http.WithLogger(logger),
//	    http.WithMetrics(reg, metrics),
//	)
//	err := transport.Start(ctx)
//
// # Endpoints
//
//	POST /v1/session/start        - Start or resume a session (202 Accepted)
//	POST /v1/session/end          - End the active session (202 Accepted)
//	GET  /v1/session              - Current, previous and pending session counts
//	GET  /v1/sessions/completed   - Recently completed sessions (?limit=N)
//	GET  /health                  - Component health
//	GET  /metrics                 - Prometheus metrics
//
// Start and end only enqueue the event; the 202 response does not wait for
// it to be processed. A subsequent GET /v1/session observes every event
// accepted before it.
//
// # Middleware Chain
//
// API requests pass through, outermost first:
//
//  1. MetricsMiddleware - Records duration and status
//  2. RequestIDMiddleware - Extracts or generates X-Request-ID and enriches the logger
//  3. DNSRebindingProtection - Validates the Origin header
//
// The transport listens on localhost by default. Browser pages are refused
// unless their origin is allowlisted, so a visited web page cannot forge
// session events.
package http
