package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for routing, linking and the relay.
//
// All methods are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	// ThreadLookups counts GetOrCreateThread outcomes.
	// Labels: result (fast_path|double_check|created|error)
	ThreadLookups *prometheus.CounterVec

	// StaleThreads counts mappings removed because the thread no longer resolved.
	StaleThreads prometheus.Counter

	// OverrideWrites counts manual override writes.
	OverrideWrites prometheus.Counter

	// ThreadCreateDuration measures time spent holding the creation lock.
	ThreadCreateDuration prometheus.Histogram

	// LinkOperations counts handshake calls.
	// Labels: operation (register|confirm|claim), result (ok or an error tag)
	LinkOperations *prometheus.CounterVec

	// LinkRecords is the number of link records per status.
	// Labels: status
	LinkRecords *prometheus.GaugeVec

	// RelayMessages counts appended relay messages.
	// Labels: source
	RelayMessages *prometheus.CounterVec

	// PlatformErrors counts chat platform failures.
	// Labels: operation, code
	PlatformErrors *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP request latency.
	// Labels: method, route, status_code
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg registers with the Prometheus default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ThreadLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devicelink_thread_lookups_total",
				Help: "Thread router lookups by result",
			},
			[]string{"result"},
		),
		StaleThreads: factory.NewCounter(prometheus.CounterOpts{
			Name: "devicelink_stale_threads_total",
			Help: "Thread mappings removed because the thread no longer exists",
		}),
		OverrideWrites: factory.NewCounter(prometheus.CounterOpts{
			Name: "devicelink_thread_overrides_total",
			Help: "Manual thread override writes",
		}),
		ThreadCreateDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "devicelink_thread_create_duration_seconds",
			Help:    "Time spent creating a thread under the creation lock",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		LinkOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devicelink_link_operations_total",
				Help: "Link handshake operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		LinkRecords: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "devicelink_link_records",
				Help: "Link records held in memory by status",
			},
			[]string{"status"},
		),
		RelayMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devicelink_relay_messages_total",
				Help: "Relay messages appended by source",
			},
			[]string{"source"},
		),
		PlatformErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devicelink_platform_errors_total",
				Help: "Chat platform failures by operation and error code",
			},
			[]string{"operation", "code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "devicelink_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "route", "status_code"},
		),
	}
}

// ThreadLookup records a router outcome.
func (m *Metrics) ThreadLookup(result string) {
	if m == nil {
		return
	}
	m.ThreadLookups.WithLabelValues(result).Inc()
}

// StaleThreadRemoved records a self-healing removal.
func (m *Metrics) StaleThreadRemoved() {
	if m == nil {
		return
	}
	m.StaleThreads.Inc()
}

// OverrideWritten records a manual override.
func (m *Metrics) OverrideWritten() {
	if m == nil {
		return
	}
	m.OverrideWrites.Inc()
}

// ObserveThreadCreate records time spent in the creation path.
func (m *Metrics) ObserveThreadCreate(d time.Duration) {
	if m == nil {
		return
	}
	m.ThreadCreateDuration.Observe(d.Seconds())
}

// LinkOperation records a handshake call result.
func (m *Metrics) LinkOperation(operation, result string) {
	if m == nil {
		return
	}
	m.LinkOperations.WithLabelValues(operation, result).Inc()
}

// SetLinkRecords replaces the per-status record gauge values.
func (m *Metrics) SetLinkRecords(counts map[string]int) {
	if m == nil {
		return
	}
	for status, n := range counts {
		m.LinkRecords.WithLabelValues(status).Set(float64(n))
	}
}

// RelayMessage records an appended relay message.
func (m *Metrics) RelayMessage(source string) {
	if m == nil {
		return
	}
	m.RelayMessages.WithLabelValues(source).Inc()
}

// PlatformError records a chat platform failure.
func (m *Metrics) PlatformError(operation, code string) {
	if m == nil {
		return
	}
	m.PlatformErrors.WithLabelValues(operation, code).Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, statusCode string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, route, statusCode).Observe(d.Seconds())
}
