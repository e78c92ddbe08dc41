// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// BackendCallDuration tracks calls to the analysis backend.
	BackendCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_call_duration_seconds",
			Help:    "Analysis backend call duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"endpoint", "outcome"},
	)

	// CollectorCallsTotal tracks collector invocations by outcome.
	CollectorCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_collector_calls_total",
			Help: "Collector calls issued by the scan coordinator",
		},
		[]string{"outcome"},
	)

	// DuplicateScansTotal counts navigations whose origin was already scanned.
	DuplicateScansTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scan_duplicate_skipped_total",
			Help: "Navigations skipped because the origin was already scanned",
		},
	)

	// SummaryFetchesTotal counts summary fetches by caller and outcome.
	SummaryFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summary_fetches_total",
			Help: "Summary fetches by caller and outcome",
		},
		[]string{"caller", "outcome"},
	)

	// CacheWritesTotal counts cached summary writes by result.
	CacheWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summary_cache_writes_total",
			Help: "Cached summary writes (accepted, stale, error)",
		},
		[]string{"result"},
	)

	// PendingTimers tracks quiet-period timers waiting to fire.
	PendingTimers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scan_pending_timers",
			Help: "Quiet-period summary timers currently pending",
		},
	)

	// ChatMessagesTotal tracks transcript appends by role and provenance.
	ChatMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Messages appended to transcripts",
		},
		[]string{"role", "provenance"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordBackendCall records the duration and outcome of a backend call.
func RecordBackendCall(endpoint, outcome string, duration float64) {
	BackendCallDuration.WithLabelValues(endpoint, outcome).Observe(duration)
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
