package supervisor

import "github.com/prometheus/client_golang/prometheus"

// SupervisorMetrics holds Prometheus metrics for the supervision engine.
// All metrics use the msimamizi_supervisor_ namespace.
type SupervisorMetrics struct {
	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	TasksTotal       *prometheus.CounterVec
	TaskDuration     *prometheus.HistogramVec
	PhaseTransitions *prometheus.CounterVec
	RetriesTotal     prometheus.Counter
	ConflictsTotal   prometheus.Counter
	HandoffsTotal    *prometheus.CounterVec
	AgreementScore   prometheus.Histogram
	ActiveRuns       prometheus.Gauge
}

// NewSupervisorMetrics creates and registers supervisor metrics on the given
// registry. Returns nil if reg is nil; all call sites are nil-safe.
func NewSupervisorMetrics(reg *prometheus.Registry) *SupervisorMetrics {
	if reg == nil {
		return nil
	}

	m := &SupervisorMetrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "msimamizi",
			Subsystem: "supervisor",
			Name:      "runs_total",
			Help:      "Total supervised runs by review outcome.",
		}, []string{"outcome"}),

		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "msimamizi",
			Subsystem: "supervisor",
			Name:      "run_duration_seconds",
			Help:      "Run duration in seconds by review outcome.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"outcome"}),

		TasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "msimamizi",
			Subsystem: "supervisor",
			Name:      "tasks_total",
			Help:      "Total tasks by agent and final status.",
		}, []string{"agent_id", "status"}),

		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "msimamizi",
			Subsystem: "supervisor",
			Name:      "task_duration_seconds",
			Help:      "Task duration in seconds by agent.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"agent_id"}),

		PhaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "msimamizi",
			Subsystem: "supervisor",
			Name:      "phase_transitions_total",
			Help:      "Total phase transitions by target phase.",
		}, []string{"phase"}),

		RetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "msimamizi",
			Subsystem: "supervisor",
			Name:      "retries_total",
			Help:      "Total task retries across all runs.",
		}),

		ConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "msimamizi",
			Subsystem: "supervisor",
			Name:      "conflicts_total",
			Help:      "Total conflicts detected during synchronization.",
		}),

		HandoffsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "msimamizi",
			Subsystem: "supervisor",
			Name:      "handoffs_total",
			Help:      "Total handoffs initiated at task dispatch, by outcome.",
		}, []string{"outcome"}),

		AgreementScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "msimamizi",
			Subsystem: "supervisor",
			Name:      "agreement_score",
			Help:      "Consensus agreement scores (0-100).",
			Buckets:   []float64{10, 25, 50, 60, 70, 80, 90, 95, 100},
		}),

		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "msimamizi",
			Subsystem: "supervisor",
			Name:      "active_runs",
			Help:      "Number of currently running supervisions.",
		}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.TasksTotal,
		m.TaskDuration,
		m.PhaseTransitions,
		m.RetriesTotal,
		m.ConflictsTotal,
		m.HandoffsTotal,
		m.AgreementScore,
		m.ActiveRuns,
	)

	return m
}
