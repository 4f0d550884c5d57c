package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Query outcomes used as metric labels.
const (
	OutcomeSolutions = "solutions"
	OutcomeTrue      = "true"
	OutcomeFalse     = "false"
	OutcomeError     = "error"
)

// Metrics provides Prometheus metrics for geolog. A Metrics value built with
// metrics disabled, or a nil *Metrics, records nothing.
type Metrics struct {
	config MetricsConfig

	// Query metrics
	queries       *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec

	// Program loading
	consults *prometheus.CounterVec

	// Predicate metrics
	predicateCalls    *prometheus.CounterVec
	predicateDuration *prometheus.HistogramVec

	// Reference table
	handles prometheus.Gauge

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Total number of queries by outcome",
			},
			[]string{"outcome"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Duration of queries in seconds",
				Buckets:   buckets,
			},
			[]string{"outcome"},
		),
		consults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "consults_total",
				Help:      "Total number of program files consulted",
			},
			[]string{"status"},
		),
		predicateCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "predicate_calls_total",
				Help:      "Total number of foreign predicate calls",
			},
			[]string{"module", "name", "result"},
		),
		predicateDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "predicate_call_duration_seconds",
				Help:      "Duration of foreign predicate calls in seconds",
				Buckets:   buckets,
			},
			[]string{"module", "name"},
		),
		handles: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "live_handles",
				Help:      "Current number of handles in the reference table",
			},
		),
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),
	}

	registry.MustRegister(
		m.queries,
		m.queryDuration,
		m.consults,
		m.predicateCalls,
		m.predicateDuration,
		m.handles,
		m.errorsByClass,
		m.errorsByCode,
	)

	return m, nil
}

// RecordQuery records a finished query with its outcome and duration.
func (m *Metrics) RecordQuery(outcome string, duration time.Duration) {
	if m == nil || m.queries == nil {
		return
	}
	m.queries.WithLabelValues(outcome).Inc()
	m.queryDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordConsult records a consulted program file.
func (m *Metrics) RecordConsult(status string) {
	if m == nil || m.consults == nil {
		return
	}
	m.consults.WithLabelValues(status).Inc()
}

// RecordPredicateCall records one foreign predicate call.
func (m *Metrics) RecordPredicateCall(module, name, result string, duration time.Duration) {
	if m == nil || m.predicateCalls == nil {
		return
	}
	m.predicateCalls.WithLabelValues(module, name, result).Inc()
	m.predicateDuration.WithLabelValues(module, name).Observe(duration.Seconds())
}

// SetHandles sets the number of live handles.
func (m *Metrics) SetHandles(count int) {
	if m == nil || m.handles == nil {
		return
	}
	m.handles.Set(float64(count))
}

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m == nil || m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Registry returns the Prometheus registry, nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics. The returned
// server is nil when metrics are disabled.
func (m *Metrics) StartMetricsServer() (*http.Server, error) {
	if m == nil || !m.config.Enabled {
		return nil, nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("addr", m.config.ListenAddress).Msg("metrics server error")
		}
	}()

	return server, nil
}
