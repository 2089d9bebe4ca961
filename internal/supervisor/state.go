package supervisor

import (
	"time"

	"github.com/google/uuid"
)

// SupervisorState is the single source of truth for a run. It is owned by the
// engine goroutine and passed by reference through the phase loop; no two
// components mutate it simultaneously.
type SupervisorState struct {
	Objective string `json:"objective"`
	Context   string `json:"context,omitempty"`

	Agents       []*Agent        `json:"agents"`
	ActiveAgents map[string]bool `json:"active_agents,omitempty"`

	Tasks    []*AgentTask   `json:"tasks"`
	Results  []*AgentResult `json:"results"`
	Messages []Message      `json:"messages,omitempty"`
	Errors   []ErrorEntry   `json:"errors,omitempty"`

	CurrentPhase    Phase  `json:"current_phase"`
	NextAgent       string `json:"next_agent,omitempty"`
	RoutingDecision string `json:"routing_decision,omitempty"`

	ConsensusRequired  bool                        `json:"consensus_required"`
	ConsensusThreshold float64                     `json:"consensus_threshold"`
	Consensus          map[string]*ConsensusReport `json:"consensus,omitempty"` // Keyed by batch ID.

	RetryCount        int           `json:"retry_count"`
	MaxRetries        int           `json:"max_retries"`
	MaxParallelAgents int           `json:"max_parallel_agents"`
	AgentTimeout      time.Duration `json:"agent_timeout"`

	// CurrentBatch holds the task IDs selected by the most recent routing
	// decision; BatchID keys the consensus computation for that batch.
	CurrentBatch []string `json:"current_batch,omitempty"`
	BatchID      string   `json:"batch_id,omitempty"`

	// Review is the terminal gate's decision, set when the run finishes.
	Review *ReviewOutcome `json:"review,omitempty"`

	StartTime  time.Time      `json:"start_time"`
	EndTime    *time.Time     `json:"end_time,omitempty"`
	Checkpoint int            `json:"checkpoint"`
	SessionID  string         `json:"session_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewState creates the initial state for a run with the given roster.
// Agents are copied so callers keep ownership of their roster slice.
func NewState(objective string, agents []*Agent, cfg Config) *SupervisorState {
	roster := make([]*Agent, len(agents))
	active := make(map[string]bool, len(agents))
	for i, a := range agents {
		cp := *a
		if cp.Status == "" {
			cp.Status = AgentIdle
		}
		roster[i] = &cp
		active[cp.ID] = true
	}
	return &SupervisorState{
		Objective:          objective,
		Agents:             roster,
		ActiveAgents:       active,
		CurrentPhase:       PhasePlanning,
		ConsensusRequired:  cfg.ConsensusRequired,
		ConsensusThreshold: cfg.consensusThreshold(),
		MaxRetries:         cfg.maxRetries(),
		MaxParallelAgents:  cfg.maxParallel(),
		AgentTimeout:       cfg.agentTimeout(),
		StartTime:          time.Now().UTC(),
		SessionID:          uuid.NewString(),
		Consensus:          make(map[string]*ConsensusReport),
	}
}

// Agent returns the agent with the given ID, or nil.
func (s *SupervisorState) Agent(id string) *Agent {
	for _, a := range s.Agents {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// Task returns the task with the given ID, or nil.
func (s *SupervisorState) Task(id string) *AgentTask {
	for _, t := range s.Tasks {
		if t.TaskID == id {
			return t
		}
	}
	return nil
}

// TasksByStatus returns tasks currently in the given status, in list order.
func (s *SupervisorState) TasksByStatus(status TaskStatus) []*AgentTask {
	var out []*AgentTask
	for _, t := range s.Tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

// BatchResults returns results produced for the given batch ID.
func (s *SupervisorState) BatchResults(batchID string) []*AgentResult {
	var out []*AgentResult
	for _, r := range s.Results {
		if r.Meta.BatchID == batchID {
			out = append(out, r)
		}
	}
	return out
}

// newBatchID mints an identifier for an execution batch.
func newBatchID() string {
	return uuid.NewString()
}

// StateUpdate is a partial update to a SupervisorState. List-valued fields
// concatenate in arrival order; scalar fields override with fallback to the
// previous value when omitted; RetryIncrement is the only additive counter.
type StateUpdate struct {
	Tasks    []*AgentTask
	Results  []*AgentResult
	Messages []Message
	Errors   []ErrorEntry

	Phase           Phase   // "" = keep current.
	NextAgent       *string // nil = keep current.
	RoutingDecision *string // nil = keep current.

	Checkpoint *int // Override-with-fallback, not addition.

	RetryIncrement int // Explicit increment, applied additively.
}

// ApplyUpdate folds a partial update into the state using the per-field merge
// rule. Each field is merged through a pure helper so the semantics are
// testable in isolation. Applying a zero-valued update is a no-op.
func ApplyUpdate(s *SupervisorState, u StateUpdate) {
	s.Tasks = mergeList(s.Tasks, u.Tasks)
	s.Results = mergeList(s.Results, u.Results)
	s.Messages = mergeList(s.Messages, u.Messages)
	s.Errors = mergeList(s.Errors, u.Errors)

	s.CurrentPhase = mergePhase(s.CurrentPhase, u.Phase)
	s.NextAgent = mergeScalar(s.NextAgent, u.NextAgent)
	s.RoutingDecision = mergeScalar(s.RoutingDecision, u.RoutingDecision)
	s.Checkpoint = mergeCounter(s.Checkpoint, u.Checkpoint)

	s.RetryCount += u.RetryIncrement
}

// mergeList concatenates the update onto the previous value in arrival order.
func mergeList[T any](prev, update []T) []T {
	if len(update) == 0 {
		return prev
	}
	return append(prev, update...)
}

// mergeScalar takes the most recently produced value, falling back to the
// previous value when the update omits the field.
func mergeScalar[T any](prev T, update *T) T {
	if update == nil {
		return prev
	}
	return *update
}

// mergePhase is mergeScalar for Phase, where the empty string means omitted.
func mergePhase(prev, update Phase) Phase {
	if update == "" {
		return prev
	}
	return update
}

// mergeCounter overrides with fallback; it never adds.
func mergeCounter(prev int, update *int) int {
	if update == nil {
		return prev
	}
	return *update
}
