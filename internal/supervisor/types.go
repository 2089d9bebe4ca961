// Package supervisor implements the multi-agent supervision engine for Msimamizi.
// It decomposes an objective into tasks, routes execution through an explicit
// phase state machine, runs independent tasks concurrently with bounded
// parallelism, reconciles conflicting outputs, builds consensus across agents,
// and recovers from partial failures through bounded retries.
//
// The engine owns a single SupervisorState value for the lifetime of a run.
// State is mutated only between phases, by one component at a time; partial
// updates produced by concurrent task completions are folded in through the
// per-field merge rule in state.go.
package supervisor

import "time"

// Phase is one of the mutually exclusive stages of a run.
type Phase string

const (
	PhasePlanning          Phase = "planning"
	PhaseExecution         Phase = "execution"
	PhaseParallelExecution Phase = "parallel_execution"
	PhaseSynchronization   Phase = "synchronization"
	PhaseConsensus         Phase = "consensus"
	PhaseReview            Phase = "review"
	PhaseComplete          Phase = "complete"

	// PhaseErrorHandler is a routing target only; it never persists as the
	// current phase of a stored state.
	PhaseErrorHandler Phase = "error_handler"
)

// AgentRole identifies the specialty of an agent within a run.
type AgentRole string

const (
	RoleResearcher AgentRole = "researcher"
	RoleAnalyzer   AgentRole = "analyzer"
	RoleWriter     AgentRole = "writer"
	RoleReviewer   AgentRole = "reviewer"
	RoleExecutor   AgentRole = "executor"
)

// AgentStatus represents the availability of an agent.
type AgentStatus string

const (
	AgentIdle  AgentStatus = "idle"
	AgentBusy  AgentStatus = "busy"
	AgentError AgentStatus = "error"
)

// TaskStatus represents the lifecycle state of a task.
// Valid transitions: pending → in_progress → {completed | failed};
// failed → pending is permitted once per retry cycle, driven by the
// error handler.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// TaskPriority orders tasks for scheduling. High sorts first.
type TaskPriority string

const (
	PriorityHigh   TaskPriority = "high"
	PriorityMedium TaskPriority = "medium"
	PriorityLow    TaskPriority = "low"
)

// rank returns the sort weight for a priority. Unknown values sort last.
func (p TaskPriority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// Agent is a named capability provider. Agents are created once at run start
// from a static roster; only their Status field is mutated by the engine as
// tasks are assigned, completed, or failed.
type Agent struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Role          AgentRole    `json:"role,omitempty"`
	Type          string       `json:"type,omitempty"` // Free-form kind, used for consensus grouping when Role is empty.
	Status        AgentStatus  `json:"status"`
	Priority      int          `json:"priority,omitempty"` // Ordering hint, lower first.
	Capabilities  []string     `json:"capabilities,omitempty"`
	Tools         []string     `json:"tools,omitempty"`
	MaxIterations int          `json:"max_iterations,omitempty"`
	Temperature   float64      `json:"temperature,omitempty"`
}

// AgentTask is a unit of work assigned to a single agent.
type AgentTask struct {
	TaskID      string       `json:"task_id"`
	AgentID     string       `json:"agent_id"`
	Description string       `json:"description"`
	Context     string       `json:"context,omitempty"`
	Priority    TaskPriority `json:"priority"`
	Status      TaskStatus   `json:"status"`
	DependsOn   []string     `json:"depends_on,omitempty"` // Task IDs that must be completed first.
	Result      string       `json:"result,omitempty"`
	Error       string       `json:"error,omitempty"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// OutputKind tags the payload variant of an AgentResult.
type OutputKind string

const (
	OutputText   OutputKind = "text"
	OutputData   OutputKind = "data"
	OutputBinary OutputKind = "binary"
	OutputError  OutputKind = "error"
)

// ResultMeta carries execution metadata for a result.
type ResultMeta struct {
	ExecutionMS int64     `json:"execution_ms,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	HandoffID   string    `json:"handoff_id,omitempty"`
	Parallel    bool      `json:"parallel,omitempty"` // Produced as part of a parallel batch.
	BatchID     string    `json:"batch_id,omitempty"`

	// Validation holds the advisory post-handoff completion checks. Never
	// blocks anything; consumers decide what to do with the signals.
	Validation *HandoffValidation `json:"validation,omitempty"`
}

// AgentResult is the immutable output of one task execution. Results are
// appended to the state's result log and never edited afterwards.
type AgentResult struct {
	AgentID    string         `json:"agent_id"`
	TaskID     string         `json:"task_id"`
	Kind       OutputKind     `json:"kind"`
	Output     string         `json:"output,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Binary     []byte         `json:"binary,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"` // nil = no confidence reported.
	Reasoning  string         `json:"reasoning,omitempty"`
	Error      string         `json:"error,omitempty"`
	Meta       ResultMeta     `json:"meta"`
}

// IsError reports whether the result represents a failed execution.
func (r *AgentResult) IsError() bool {
	return r.Kind == OutputError || r.Error != ""
}

// ConfidenceOrZero returns the confidence value, treating absent as 0.
func (r *AgentResult) ConfidenceOrZero() float64 {
	if r.Confidence == nil {
		return 0
	}
	return *r.Confidence
}

// ErrorEntry is one append-only record in the state's error log.
type ErrorEntry struct {
	AgentID   string    `json:"agent_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Message is a conversation entry carried in state. The handoff protocol
// forwards the most recent entries to the receiving agent.
type Message struct {
	From      string    `json:"from"`
	To        string    `json:"to,omitempty"` // Empty = broadcast.
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ConsensusReport is the output of one consensus computation over a batch.
type ConsensusReport struct {
	Results        []*AgentResult            `json:"results"`
	ByRole         map[string][]*AgentResult `json:"by_role"`
	AgreementScore float64                   `json:"agreement_score"` // Mean confidence × 100 across results carrying one.
	Counted        int                       `json:"counted"`         // Results that carried a confidence.
	ComputedAt     time.Time                 `json:"computed_at"`
}

// Conflict records a contradictory pair of outputs from the same batch.
type Conflict struct {
	TaskA   string    `json:"task_a"`
	TaskB   string    `json:"task_b"`
	AgentA  string    `json:"agent_a"`
	AgentB  string    `json:"agent_b"`
	Terms   [2]string `json:"terms"` // The antonym pair that triggered detection.
}

// Resolution records the deterministic winner of a conflict.
type Resolution struct {
	Conflict Conflict `json:"conflict"`
	Winner   string   `json:"winner"` // Task ID of the preferred result.
	Reason   string   `json:"reason"`
}

// SyncReport is the output of post-batch synchronization. Conflicts and
// resolutions are advisory; they do not by themselves fail the run.
type SyncReport struct {
	Count       int          `json:"count"` // Results examined.
	Conflicts   []Conflict   `json:"conflicts"`
	Resolutions []Resolution `json:"resolutions"`
}

// ReviewOutcome is the decision of the terminal review gate.
type ReviewOutcome struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

// RetryDecision is the error handler's verdict on the most recent error.
type RetryDecision struct {
	Retry   bool   `json:"retry"`
	Message string `json:"message"`
}
