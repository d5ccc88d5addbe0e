package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Sentinel-Gate/sessiontrack/internal/port/inbound"
	"github.com/Sentinel-Gate/sessiontrack/internal/port/outbound"
)

// DefaultAddr is the default listen address (localhost only).
const DefaultAddr = "127.0.0.1:8090"

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second

// HTTPTransport is the inbound adapter that feeds lifecycle events received
// over HTTP into the tracker.
type HTTPTransport struct {
	lifecycle      inbound.SessionLifecycle
	history        outbound.CompletionHistory
	server         *http.Server
	addr           string
	allowedOrigins []string
	logger         *slog.Logger
	registry       *prometheus.Registry
	metrics        *Metrics
	healthChecker  *HealthChecker
	now            func() time.Time

	mu       sync.Mutex
	listener net.Listener
}

// Option is a functional option for configuring HTTPTransport.
type Option func(*HTTPTransport)

// WithAddr sets the listen address for the HTTP server.
// Default is DefaultAddr.
func WithAddr(addr string) Option {
	return func(t *HTTPTransport) {
		t.addr = addr
	}
}

// WithAllowedOrigins sets the allowed origins for DNS rebinding protection.
// If empty, all requests with an Origin header are blocked (local-only mode).
func WithAllowedOrigins(origins []string) Option {
	return func(t *HTTPTransport) {
		t.allowedOrigins = origins
	}
}

// WithLogger sets the logger for the HTTP transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) {
		t.logger = logger
	}
}

// WithMetrics serves reg on /metrics and records request metrics into m.
// Without it the transport creates its own registry.
func WithMetrics(reg *prometheus.Registry, m *Metrics) Option {
	return func(t *HTTPTransport) {
		t.registry = reg
		t.metrics = m
	}
}

// WithHealthChecker sets the health checker for the /health endpoint.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(t *HTTPTransport) {
		t.healthChecker = hc
	}
}

// WithHistory enables GET /v1/sessions/completed.
func WithHistory(h outbound.CompletionHistory) Option {
	return func(t *HTTPTransport) {
		t.history = h
	}
}

// NewHTTPTransport creates an HTTP transport feeding lifecycle.
func NewHTTPTransport(lifecycle inbound.SessionLifecycle, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		lifecycle:      lifecycle,
		addr:           DefaultAddr,
		allowedOrigins: []string{},
		logger:         slog.Default(),
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.registry == nil {
		t.registry = NewRegistry()
		t.metrics = NewMetrics(t.registry)
	}

	return t
}

// Handler builds the routed handler with its middleware chain.
func (t *HTTPTransport) Handler() http.Handler {
	api := &apiHandler{
		lifecycle: t.lifecycle,
		history:   t.history,
		now:       t.now,
	}

	apiMux := http.NewServeMux()
	apiMux.Handle("/v1/session/start", api.sessionEventHandler("start", t.lifecycle.StartSession))
	apiMux.Handle("/v1/session/end", api.sessionEventHandler("end", t.lifecycle.EndSession))
	apiMux.Handle("/v1/session", api.statusHandler())
	apiMux.Handle("/v1/sessions/completed", api.historyHandler())

	// Middleware order (outermost first): Metrics -> RequestID -> DNSRebinding -> API
	var routed http.Handler = apiMux
	routed = DNSRebindingProtection(t.allowedOrigins)(routed)
	routed = RequestIDMiddleware(t.logger)(routed)
	if t.metrics != nil {
		routed = MetricsMiddleware(t.metrics)(routed)
	}

	mux := http.NewServeMux()
	if t.healthChecker != nil {
		mux.Handle("/health", t.healthChecker.Handler())
	} else {
		mux.Handle("/health", healthHandler())
	}
	mux.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{
		Registry: t.registry,
	}))
	mux.Handle("/v1/", routed)
	return mux
}

// Start begins accepting HTTP connections.
// It blocks until the context is cancelled or an error occurs.
func (t *HTTPTransport) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.listener = ln
	t.server = &http.Server{
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := t.server
	t.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		t.logger.Info("starting HTTP server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// Addr returns the bound address once Start is listening, or the configured one.
func (t *HTTPTransport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.addr
}

func (t *HTTPTransport) shutdown() error {
	t.mu.Lock()
	server := t.server
	t.mu.Unlock()
	if server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}

	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *HTTPTransport) Close() error {
	return t.shutdown()
}

// Compile-time check that HTTPTransport implements Transport interface.
var _ inbound.Transport = (*HTTPTransport)(nil)
