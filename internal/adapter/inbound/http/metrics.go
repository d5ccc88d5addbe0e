// Package http provides the HTTP transport for session lifecycle events.
package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Sentinel-Gate/sessiontrack/internal/domain/session"
	"github.com/Sentinel-Gate/sessiontrack/internal/service"
)

const namespace = "sessiontrack"

// Metrics holds all Prometheus metrics for the tracker and its HTTP transport.
// It implements service.Observer so the tracker and sweeper can report into it.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	SessionsStarted    *prometheus.CounterVec
	SessionsEnded      prometheus.Counter
	SessionsCompleted  prometheus.Counter
	SessionLength      prometheus.Histogram
	CompletionFailures prometheus.Counter
	PersistFailures    *prometheus.CounterVec
	Pending            prometheus.Gauge
	Queue              prometheus.Gauge
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of API requests processed",
			},
			[]string{"method", "status"}, // status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		SessionsStarted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_started_total",
				Help:      "Sessions started, by whether an ended session was resumed",
			},
			[]string{"kind"}, // kind=new/resumed
		),
		SessionsEnded: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_ended_total",
				Help:      "Total end events applied to an active session",
			},
		),
		SessionsCompleted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_completed_total",
				Help:      "Total sessions completed after their grace period",
			},
		),
		SessionLength: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_length_seconds",
				Help:      "Length of completed sessions in seconds",
				Buckets:   prometheus.ExponentialBuckets(60, 2, 10), // 1m to ~8.5h
			},
		),
		CompletionFailures: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "completion_failures_total",
				Help:      "Total completion notifications that returned an error or panicked",
			},
		),
		PersistFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "persist_failures_total",
				Help:      "Total failed snapshot loads and saves",
			},
			[]string{"op"},
		),
		Pending: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_sessions",
				Help:      "Sessions registered and not yet completed",
			},
		),
		Queue: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Lifecycle events waiting to be processed",
			},
		),
	}
}

func (m *Metrics) SessionStarted(resumed bool) {
	kind := "new"
	if resumed {
		kind = "resumed"
	}
	m.SessionsStarted.WithLabelValues(kind).Inc()
}

func (m *Metrics) SessionEnded() { m.SessionsEnded.Inc() }

func (m *Metrics) SessionCompleted(s session.Session) {
	m.SessionsCompleted.Inc()
	m.SessionLength.Observe(s.Length(s.EndTime).Seconds())
}

func (m *Metrics) CompletionFailed() { m.CompletionFailures.Inc() }

func (m *Metrics) PersistFailed(op string) { m.PersistFailures.WithLabelValues(op).Inc() }

func (m *Metrics) PendingSessions(n int) { m.Pending.Set(float64(n)) }

func (m *Metrics) QueueDepth(n int) { m.Queue.Set(float64(n)) }

// Compile-time check that Metrics implements service.Observer.
var _ service.Observer = (*Metrics)(nil)
