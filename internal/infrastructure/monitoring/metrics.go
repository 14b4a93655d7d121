package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons
const (
	DropMaxSpans            = "max_spans"
	DropExitSpanMinDuration = "exit_span_min_duration"
	DropUnsampled           = "unsampled"
)

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Tracer metrics
	TransactionsStarted *prometheus.CounterVec
	SpansStarted        prometheus.Counter
	SpansDropped        *prometheus.CounterVec
	SpansCompressed     *prometheus.CounterVec

	// Pipeline metrics
	EventsInFlight prometheus.Gauge
	EventsSent     *prometheus.CounterVec
	FlushDuration  prometheus.Histogram
	FlushTimeouts  prometheus.Counter

	// Reporter metrics
	ReporterRequests *prometheus.CounterVec
	ReporterDuration *prometheus.HistogramVec
	ReporterBytes    *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TransactionsStarted int64   `json:"transactions_started"`
	SpansStarted        int64   `json:"spans_started"`
	SpansDropped        int64   `json:"spans_dropped"`
	SpansCompressed     int64   `json:"spans_compressed"`
	EventsSent          int64   `json:"events_sent"`
	EventsFailed        int64   `json:"events_failed"`
	FlushTimeouts       int64   `json:"flush_timeouts"`
	UptimeSeconds       float64 `json:"uptime_seconds"`
}

// NewMetrics registers collectors against reg. A nil reg uses a private
// registry, which keeps repeated construction in tests from colliding.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apm_http_requests_total",
				Help: "Total number of HTTP requests served",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apm_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		// Tracer metrics
		TransactionsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apm_transactions_started_total",
				Help: "Total number of transactions started",
			},
			[]string{"sampled"},
		),
		SpansStarted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "apm_spans_started_total",
				Help: "Total number of recorded spans started",
			},
		),
		SpansDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apm_spans_dropped_total",
				Help: "Total number of spans not sent",
			},
			[]string{"reason"},
		),
		SpansCompressed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apm_spans_compressed_total",
				Help: "Total number of spans merged into a composite",
			},
			[]string{"strategy"},
		),

		// Pipeline metrics
		EventsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "apm_pipeline_events_in_flight",
				Help: "Number of events awaiting encode and send",
			},
		),
		EventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apm_pipeline_events_total",
				Help: "Total number of events handed to the reporter",
			},
			[]string{"kind", "status"},
		),
		FlushDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "apm_pipeline_flush_duration_seconds",
				Help:    "Flush duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		FlushTimeouts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "apm_pipeline_flush_timeouts_total",
				Help: "Total number of flushes that gave up waiting",
			},
		),

		// Reporter metrics
		ReporterRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apm_reporter_requests_total",
				Help: "Total number of reporter requests",
			},
			[]string{"reporter", "status"},
		),
		ReporterDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apm_reporter_request_duration_seconds",
				Help:    "Reporter request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"reporter"},
		),
		ReporterBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apm_reporter_bytes_total",
				Help: "Total number of payload bytes written by reporters",
			},
			[]string{"reporter"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "apm_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncTransactionsStarted records a started transaction
func (m *Metrics) IncTransactionsStarted(sampled bool) {
	if m == nil {
		return
	}
	label := "false"
	if sampled {
		label = "true"
	}
	m.TransactionsStarted.WithLabelValues(label).Inc()

	m.mu.Lock()
	m.snapshot.TransactionsStarted++
	m.mu.Unlock()
}

// IncSpansStarted records a recorded span
func (m *Metrics) IncSpansStarted() {
	if m == nil {
		return
	}
	m.SpansStarted.Inc()

	m.mu.Lock()
	m.snapshot.SpansStarted++
	m.mu.Unlock()
}

// IncSpansDropped records a span that will not be sent
func (m *Metrics) IncSpansDropped(reason string) {
	if m == nil {
		return
	}
	m.SpansDropped.WithLabelValues(reason).Inc()

	m.mu.Lock()
	m.snapshot.SpansDropped++
	m.mu.Unlock()
}

// IncSpansCompressed records a span merged into a composite
func (m *Metrics) IncSpansCompressed(strategy string) {
	if m == nil {
		return
	}
	m.SpansCompressed.WithLabelValues(strategy).Inc()

	m.mu.Lock()
	m.snapshot.SpansCompressed++
	m.mu.Unlock()
}

// IncInFlight increments the in-flight gauge
func (m *Metrics) IncInFlight() {
	if m == nil {
		return
	}
	m.EventsInFlight.Inc()
}

// DecInFlight decrements the in-flight gauge
func (m *Metrics) DecInFlight() {
	if m == nil {
		return
	}
	m.EventsInFlight.Dec()
}

// RecordEvent records the result of one encode+send
func (m *Metrics) RecordEvent(kind, status string) {
	if m == nil {
		return
	}
	m.EventsSent.WithLabelValues(kind, status).Inc()

	m.mu.Lock()
	if status == "success" {
		m.snapshot.EventsSent++
	} else {
		m.snapshot.EventsFailed++
	}
	m.mu.Unlock()
}

// RecordFlush records a completed flush
func (m *Metrics) RecordFlush(duration time.Duration, timedOut bool) {
	if m == nil {
		return
	}
	m.FlushDuration.Observe(duration.Seconds())
	if !timedOut {
		return
	}
	m.FlushTimeouts.Inc()

	m.mu.Lock()
	m.snapshot.FlushTimeouts++
	m.mu.Unlock()
}

// RecordReporterRequest records one reporter request
func (m *Metrics) RecordReporterRequest(reporter, status string, duration time.Duration, bytes int) {
	if m == nil {
		return
	}
	m.ReporterRequests.WithLabelValues(reporter, status).Inc()
	m.ReporterDuration.WithLabelValues(reporter).Observe(duration.Seconds())
	if bytes > 0 {
		m.ReporterBytes.WithLabelValues(reporter).Add(float64(bytes))
	}
}

// Snapshot returns the current values for the JSON API
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := m.snapshot
	snap.UptimeSeconds = time.Since(m.startTime).Seconds()
	return snap
}
