package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Event metrics
	EventsTotal *prometheus.CounterVec

	// Decision metrics
	DecisionsTotal    *prometheus.CounterVec
	DecisionDuration  *prometheus.HistogramVec
	MovesTotal        *prometheus.CounterVec
	RedirectsTotal    *prometheus.CounterVec
	SettleRetries     prometheus.Counter
	SettleGiveUps     prometheus.Counter
	BurstSuppressions prometheus.Counter

	// Failure metrics
	PatternFailures *prometheus.CounterVec
	LookupFailures  *prometheus.CounterVec

	// Session metrics
	TrackedWindows prometheus.Gauge
	TrackedTabs    prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	Events          int64 `json:"events"`
	Decisions       int64 `json:"decisions"`
	Aggregated      int64 `json:"aggregated"`
	Moves           int64 `json:"moves"`
	Redirects       int64 `json:"redirects"`
	SettleRetries   int64 `json:"settle_retries"`
	SettleGiveUps   int64 `json:"settle_give_ups"`
	Suppressed      int64 `json:"burst_suppressions"`
	PatternFailures int64 `json:"pattern_failures"`
	LookupFailures  int64 `json:"lookup_failures"`
}

// NewMetrics creates a metrics collector registered on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aggregate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),

		// Event metrics
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregate_events_total",
				Help: "Browser lifecycle events processed",
			},
			[]string{"type"},
		),

		// Decision metrics
		DecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregate_decisions_total",
				Help: "Aggregation decisions by outcome and reason",
			},
			[]string{"outcome", "reason"},
		),
		DecisionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aggregate_decision_duration_seconds",
				Help:    "Time spent deciding and acting on a settled tab",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"flow"},
		),
		MovesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregate_tab_moves_total",
				Help: "Tabs moved into the main window",
			},
			[]string{"status"},
		),
		RedirectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregate_redirects_total",
				Help: "Navigations reopened in the main window",
			},
			[]string{"status"},
		),
		SettleRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "aggregate_settle_retries_total",
				Help: "Settle timers rescheduled because the tab was still blank",
			},
		),
		SettleGiveUps: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "aggregate_settle_give_ups_total",
				Help: "Tabs that exhausted their settle retries",
			},
		),
		BurstSuppressions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "aggregate_burst_suppressions_total",
				Help: "Tabs left alone because they were part of a restore burst",
			},
		),

		// Failure metrics
		PatternFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregate_pattern_compile_failures_total",
				Help: "Configured URL patterns that failed to compile",
			},
			[]string{"key"},
		),
		LookupFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregate_lookup_failures_total",
				Help: "External lookups that failed and were treated as negative",
			},
			[]string{"kind"},
		),

		// Session metrics
		TrackedWindows: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "aggregate_tracked_windows",
				Help: "Windows tracked by the session",
			},
		),
		TrackedTabs: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "aggregate_tracked_tabs",
				Help: "Tabs tracked by the session",
			},
		),

		// System metrics
		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "aggregate_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}

	return m
}

// RunUptime updates the uptime metric until ctx is cancelled
func (m *Metrics) RunUptime(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Uptime.Set(time.Since(m.startTime).Seconds())
		}
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordEvent counts a processed lifecycle event
func (m *Metrics) RecordEvent(eventType string) {
	m.EventsTotal.WithLabelValues(eventType).Inc()
	m.update(func(s *MetricsSnapshot) { s.Events++ })
}

// RecordDecision counts a finished decision
func (m *Metrics) RecordDecision(aggregate bool, reason string) {
	outcome := "keep"
	if aggregate {
		outcome = "aggregate"
	}
	m.DecisionsTotal.WithLabelValues(outcome, reason).Inc()
	m.update(func(s *MetricsSnapshot) {
		s.Decisions++
		if aggregate {
			s.Aggregated++
		}
	})
}

// RecordMove counts a tab move attempt
func (m *Metrics) RecordMove(status string) {
	m.MovesTotal.WithLabelValues(status).Inc()
	if status == "success" {
		m.update(func(s *MetricsSnapshot) { s.Moves++ })
	}
}

// RecordRedirect counts a navigation reopened elsewhere
func (m *Metrics) RecordRedirect(status string) {
	m.RedirectsTotal.WithLabelValues(status).Inc()
	if status == "success" {
		m.update(func(s *MetricsSnapshot) { s.Redirects++ })
	}
}

// IncSettleRetries increments the settle retry counter
func (m *Metrics) IncSettleRetries() {
	m.SettleRetries.Inc()
	m.update(func(s *MetricsSnapshot) { s.SettleRetries++ })
}

// IncSettleGiveUps increments the settle give-up counter
func (m *Metrics) IncSettleGiveUps() {
	m.SettleGiveUps.Inc()
	m.update(func(s *MetricsSnapshot) { s.SettleGiveUps++ })
}

// IncBurstSuppressions increments the burst suppression counter
func (m *Metrics) IncBurstSuppressions() {
	m.BurstSuppressions.Inc()
	m.update(func(s *MetricsSnapshot) { s.Suppressed++ })
}

// IncPatternFailures counts a pattern that did not compile
func (m *Metrics) IncPatternFailures(key string) {
	m.PatternFailures.WithLabelValues(key).Inc()
	m.update(func(s *MetricsSnapshot) { s.PatternFailures++ })
}

// IncLookupFailures counts a failed bookmark or identity lookup
func (m *Metrics) IncLookupFailures(kind string) {
	m.LookupFailures.WithLabelValues(kind).Inc()
	m.update(func(s *MetricsSnapshot) { s.LookupFailures++ })
}

// SetTracked sets the session size gauges
func (m *Metrics) SetTracked(windows, tabs int) {
	m.TrackedWindows.Set(float64(windows))
	m.TrackedTabs.Set(float64(tabs))
}

// Snapshot returns the current counter values
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

func (m *Metrics) update(fn func(*MetricsSnapshot)) {
	m.mu.Lock()
	fn(&m.snapshot)
	m.mu.Unlock()
}
