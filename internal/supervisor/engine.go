package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/msimamizi/internal/events"
)

// Config configures the supervision engine behavior.
type Config struct {
	MaxParallelAgents  int           // Parallelism limit. Default: 3.
	AgentTimeout       time.Duration // Per-agent-call deadline. Default: 30s.
	MaxRetries         int           // Global retry budget per run. Default: 3.
	ConsensusRequired  bool          // Default: false.
	ConsensusThreshold float64       // In (0,1]. Default: 0.7.
	MaxCheckpoints     int           // Safety cap on routing rounds. Default: 100.
}

func (c Config) maxParallel() int {
	if c.MaxParallelAgents > 0 {
		return c.MaxParallelAgents
	}
	return 3
}

func (c Config) agentTimeout() time.Duration {
	if c.AgentTimeout > 0 {
		return c.AgentTimeout
	}
	return 30 * time.Second
}

func (c Config) maxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return 3
}

func (c Config) consensusThreshold() float64 {
	if c.ConsensusThreshold > 0 {
		return c.ConsensusThreshold
	}
	return 0.7
}

func (c Config) maxCheckpoints() int {
	if c.MaxCheckpoints > 0 {
		return c.MaxCheckpoints
	}
	return 100
}

// Engine drives the phase state machine for supervised runs. A single logical
// thread of control owns the state and sequences every component; only the
// batch executor fans out concurrently, and it settles fully before control
// returns here.
type Engine struct {
	backend   Backend
	planner   Planner
	detect    ConflictFunc
	relevance RelevanceFunc
	sink      events.Sink
	metrics   *SupervisorMetrics
	tracer    trace.Tracer
	logger    *slog.Logger
	config    Config
}

// NewEngine creates an engine with the given backend and configuration.
func NewEngine(backend Backend, config Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		backend:   backend,
		planner:   KeywordPlanner{},
		detect:    LexiconConflict,
		relevance: KeywordOverlap,
		sink:      events.Discard,
		logger:    logger,
		config:    config,
	}
}

// WithPlanner replaces the default keyword planner.
func (e *Engine) WithPlanner(p Planner) *Engine {
	if p != nil {
		e.planner = p
	}
	return e
}

// WithMetrics attaches Prometheus metrics. Nil-safe.
func (e *Engine) WithMetrics(m *SupervisorMetrics) *Engine {
	e.metrics = m
	return e
}

// WithEvents attaches the fire-and-forget event sink.
func (e *Engine) WithEvents(sink events.Sink) *Engine {
	if sink != nil {
		e.sink = sink
	}
	return e
}

// WithTracer attaches an OTel tracer for per-run spans.
func (e *Engine) WithTracer(t trace.Tracer) *Engine {
	e.tracer = t
	return e
}

// WithConflictDetector replaces the default antonym-lexicon detector.
func (e *Engine) WithConflictDetector(f ConflictFunc) *Engine {
	if f != nil {
		e.detect = f
	}
	return e
}

// WithRelevanceChecker replaces the default keyword-overlap relevance check.
func (e *Engine) WithRelevanceChecker(f RelevanceFunc) *Engine {
	if f != nil {
		e.relevance = f
	}
	return e
}

// Run supervises one objective to completion and returns the final state.
// Business-logic failures (terminal task errors, unmet consensus, too many
// errors) never return an error: they surface through the state's Review
// outcome and error log. An error return means the run could not be set up
// or was aborted at a phase boundary by context cancellation.
func (e *Engine) Run(ctx context.Context, objective string, agents []*Agent) (*SupervisorState, error) {
	state := NewState(objective, agents, e.config)

	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "supervisor.run",
			trace.WithAttributes(attribute.String("session_id", state.SessionID)))
		defer span.End()
	}
	if e.metrics != nil {
		e.metrics.ActiveRuns.Inc()
		defer e.metrics.ActiveRuns.Dec()
	}

	e.logger.InfoContext(ctx, "run started",
		slog.String("session_id", state.SessionID),
		slog.String("objective", objective),
		slog.Int("agents", len(agents)),
		slog.Int("max_parallel", state.MaxParallelAgents),
	)

	tasks, err := e.planner.Plan(objective, state.Agents)
	if err != nil {
		return state, fmt.Errorf("planning: %w", err)
	}
	for _, t := range tasks {
		if state.Agent(t.AgentID) == nil {
			return state, fmt.Errorf("task %s: %w: %s", t.TaskID, ErrAgentNotFound, t.AgentID)
		}
		if t.Status == "" {
			t.Status = TaskPending
		}
	}
	ApplyUpdate(state, StateUpdate{Tasks: tasks})

	router := &Router{}
	executor := &batchExecutor{backend: e.backend, metrics: e.metrics, logger: e.logger}

	for {
		// A caller wishing to abort does so here, at the boundary between
		// phases; in-flight batches always settle first.
		if err := ctx.Err(); err != nil {
			e.finish(ctx, state, ReviewOutcome{Approved: false, Feedback: "cancelled: " + err.Error()})
			return state, fmt.Errorf("run cancelled: %w", err)
		}
		if state.Checkpoint >= e.config.maxCheckpoints() {
			e.logger.WarnContext(ctx, "checkpoint cap reached, forcing review",
				slog.String("session_id", state.SessionID),
				slog.Int("checkpoint", state.Checkpoint))
			e.finish(ctx, state, Review(state))
			return state, nil
		}

		phase := router.Route(state)
		e.transition(ctx, state, phase)

		switch phase {
		case PhaseErrorHandler:
			decision := HandleError(state)
			e.publish(state, events.TypeRetry, decision)
			e.logger.InfoContext(ctx, "error handled",
				slog.String("session_id", state.SessionID),
				slog.Bool("retry", decision.Retry),
				slog.String("message", decision.Message),
			)
			if decision.Retry {
				if e.metrics != nil {
					e.metrics.RetriesTotal.Inc()
				}
				continue
			}
			// No retry: the run proceeds to completion without that task
			// succeeding, unless undispatched work remains.
			if len(SelectParallel(state.TasksByStatus(TaskPending), state.MaxParallelAgents)) > 0 {
				continue
			}
			e.finish(ctx, state, Review(state))
			return state, nil

		case PhaseConsensus:
			report := BuildConsensus(state, state.Results)
			recordConsensus(state, state.BatchID, report)
			if e.metrics != nil {
				e.metrics.AgreementScore.Observe(report.AgreementScore)
			}
			e.publish(state, events.TypeConsensus, map[string]any{
				"batch_id":        state.BatchID,
				"agreement_score": report.AgreementScore,
				"counted":         report.Counted,
			})

		case PhaseExecution, PhaseParallelExecution:
			e.runBatch(ctx, state, executor, phase == PhaseParallelExecution)

		case PhaseReview:
			outcome := Review(state)
			if !outcome.Approved &&
				len(SelectParallel(state.TasksByStatus(TaskPending), state.MaxParallelAgents)) > 0 {
				// Unresolved pending work remains: hand the decision back to
				// the router instead of terminating.
				e.logger.InfoContext(ctx, "review rejected with pending work, rerouting",
					slog.String("session_id", state.SessionID),
					slog.String("feedback", outcome.Feedback))
				continue
			}
			e.finish(ctx, state, outcome)
			return state, nil
		}
	}
}

// runBatch executes the current batch, records failures in the error log,
// and runs synchronization strictly after every slot has settled.
func (e *Engine) runBatch(ctx context.Context, state *SupervisorState, executor *batchExecutor, parallel bool) {
	batch := make([]*AgentTask, 0, len(state.CurrentBatch))
	for _, id := range state.CurrentBatch {
		if t := state.Task(id); t != nil {
			batch = append(batch, t)
		}
	}
	if len(batch) == 0 {
		return
	}

	// Each dispatch is a handoff: control and context transfer from the last
	// agent in the task's dependency chain (or the supervisor) to the
	// assignee. A refused handoff is published with its validation errors but
	// does not block the slot; the executor surfaces failures on its own terms.
	handoffs := make(map[string]*Handoff, len(batch))
	for _, t := range batch {
		h, err := InitiateHandoff(state, handoffSource(state, t), t.AgentID, "dispatch "+t.TaskID)
		e.publish(state, events.TypeHandoff, h)
		if e.metrics != nil {
			outcome := "initiated"
			if err != nil {
				outcome = "refused"
			}
			e.metrics.HandoffsTotal.WithLabelValues(outcome).Inc()
		}
		if err != nil {
			e.logger.WarnContext(ctx, "handoff refused",
				slog.String("session_id", state.SessionID),
				slog.String("task_id", t.TaskID),
				slog.String("to_agent", t.AgentID),
				slog.String("error", err.Error()),
			)
			continue
		}
		handoffs[t.TaskID] = h
	}

	results := executor.executeBatch(ctx, state, batch, parallel)

	// Advisory completion checks run on every settled slot that entered via a
	// handoff, before the result is appended to the immutable log.
	for _, r := range results {
		h, ok := handoffs[r.TaskID]
		if !ok {
			continue
		}
		r.Meta.HandoffID = h.ID
		var taskContext string
		if t := state.Task(r.TaskID); t != nil {
			taskContext = t.Context
		}
		r.Meta.Validation = ValidateHandoffCompletion(h.ID, r.AgentID, r, taskContext, e.relevance)
	}

	ApplyUpdate(state, StateUpdate{Results: results})
	for _, r := range results {
		e.publish(state, events.TypeTaskSettled, r)
		if r.IsError() {
			recordError(state, r.AgentID, r.Error)
		}
	}

	// Synchronization never interleaves with execution: the batch above has
	// fully settled before conflicts are examined.
	e.transition(ctx, state, PhaseSynchronization)
	report := Synchronize(state.BatchResults(state.BatchID), e.detect)
	if state.Metadata == nil {
		state.Metadata = make(map[string]any)
	}
	state.Metadata["lastSync"] = report
	if len(report.Conflicts) > 0 {
		if e.metrics != nil {
			e.metrics.ConflictsTotal.Add(float64(len(report.Conflicts)))
		}
		for i := range report.Resolutions {
			e.publish(state, events.TypeConflict, report.Resolutions[i])
		}
		e.logger.WarnContext(ctx, "conflicts resolved",
			slog.String("session_id", state.SessionID),
			slog.String("batch_id", state.BatchID),
			slog.Int("conflicts", len(report.Conflicts)),
		)
	}
}

// handoffSource resolves the agent handing control to a task's assignee: the
// agent behind the task's most recently completed dependency. Tasks with no
// settled upstream work come from the supervisor (empty source).
func handoffSource(state *SupervisorState, task *AgentTask) string {
	var src string
	var latest time.Time
	for _, depID := range task.DependsOn {
		dep := state.Task(depID)
		if dep == nil || dep.CompletedAt == nil || dep.AgentID == task.AgentID {
			continue
		}
		if dep.CompletedAt.After(latest) {
			src = dep.AgentID
			latest = *dep.CompletedAt
		}
	}
	return src
}

// transition records a phase change on the state, counters, log, and sink.
// The error-handler phase is a routing target only and is not persisted as
// the current phase.
func (e *Engine) transition(ctx context.Context, state *SupervisorState, phase Phase) {
	if phase != PhaseErrorHandler {
		state.CurrentPhase = phase
	}
	if e.metrics != nil {
		e.metrics.PhaseTransitions.WithLabelValues(string(phase)).Inc()
	}
	e.publish(state, events.TypePhaseTransition, map[string]string{
		"phase":    string(phase),
		"decision": state.RoutingDecision,
	})
	e.logger.DebugContext(ctx, "phase transition",
		slog.String("session_id", state.SessionID),
		slog.String("phase", string(phase)),
		slog.String("decision", state.RoutingDecision),
	)
}

// finish stamps the terminal review outcome onto the state.
func (e *Engine) finish(ctx context.Context, state *SupervisorState, outcome ReviewOutcome) {
	now := time.Now().UTC()
	state.Review = &outcome
	state.CurrentPhase = PhaseComplete
	state.EndTime = &now

	label := "rejected"
	if outcome.Approved {
		label = "approved"
	}
	if e.metrics != nil {
		e.metrics.RunsTotal.WithLabelValues(label).Inc()
		e.metrics.RunDuration.WithLabelValues(label).Observe(now.Sub(state.StartTime).Seconds())
	}
	e.publish(state, events.TypeRunCompleted, outcome)
	e.logger.InfoContext(ctx, "run finished",
		slog.String("session_id", state.SessionID),
		slog.Bool("approved", outcome.Approved),
		slog.String("feedback", outcome.Feedback),
		slog.Int("tasks", len(state.Tasks)),
		slog.Int("results", len(state.Results)),
		slog.Int("errors", len(state.Errors)),
	)
}

// publish sends an event to the sink, fire-and-forget.
func (e *Engine) publish(state *SupervisorState, t events.Type, payload any) {
	e.sink.Publish(events.New(t, state.SessionID, payload))
}
