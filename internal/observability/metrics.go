package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds service-level Prometheus metrics for Msimamizi.
// Uses a custom registry — no global state. Engine metrics live in the
// supervisor package and register on the same registry.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Agent backend metrics.
	BackendRequestsTotal   *prometheus.CounterVec
	BackendRequestDuration *prometheus.HistogramVec

	// HTTP gateway metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// WebSocket event stream metrics.
	WSConnections prometheus.Gauge

	// System metrics.
	ActiveRequests prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		BackendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "msimamizi",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Total agent backend requests.",
		}, []string{"agent_id", "status"}),

		BackendRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "msimamizi",
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Agent backend request duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"agent_id"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "msimamizi",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "msimamizi",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "msimamizi",
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Number of connected WebSocket event subscribers.",
		}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "msimamizi",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),
	}

	// Register all collectors.
	reg.MustRegister(
		m.BackendRequestsTotal,
		m.BackendRequestDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.WSConnections,
		m.ActiveRequests,
	)

	return m
}
