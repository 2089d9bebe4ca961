package scheduler

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the scheduler.
type Metrics struct {
	JobsFired     prometheus.Counter
	JobsSucceeded prometheus.Counter
	JobsFailed    prometheus.Counter
	FireDuration  prometheus.Histogram
}

// NewMetrics creates and registers scheduler metrics.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		JobsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "msimamizi",
			Subsystem: "scheduler",
			Name:      "jobs_fired_total",
			Help:      "Total schedule firings (run submission attempted).",
		}),
		JobsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "msimamizi",
			Subsystem: "scheduler",
			Name:      "jobs_succeeded_total",
			Help:      "Total scheduled run submissions that succeeded.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "msimamizi",
			Subsystem: "scheduler",
			Name:      "jobs_failed_total",
			Help:      "Total scheduled run submissions that failed.",
		}),
		FireDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "msimamizi",
			Subsystem: "scheduler",
			Name:      "fire_duration_seconds",
			Help:      "Duration of each schedule firing (submission only).",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}

	reg.MustRegister(
		m.JobsFired,
		m.JobsSucceeded,
		m.JobsFailed,
		m.FireDuration,
	)

	return m
}
