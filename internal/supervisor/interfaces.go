package supervisor

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Backend is the external agent execution capability. The engine treats it as
// opaque; it does not prescribe how answers are produced. Implementations may
// fail with transport or provider errors, which the engine converts into
// error-tagged results rather than aborting sibling calls.
type Backend interface {
	Execute(ctx context.Context, agentID string, task *AgentTask, conversation []Message, sessionID string) (*AgentResult, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, agentID string, task *AgentTask, conversation []Message, sessionID string) (*AgentResult, error)

func (f BackendFunc) Execute(ctx context.Context, agentID string, task *AgentTask, conversation []Message, sessionID string) (*AgentResult, error) {
	return f(ctx, agentID, task, conversation, sessionID)
}

// RunStatus is the lifecycle state of a supervised run as seen by callers.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunApproved  RunStatus = "approved"
	RunRejected  RunStatus = "rejected"
	RunCancelled RunStatus = "cancelled"
)

// RunRecord is the persisted snapshot of a finished (or in-flight) run.
// The full SupervisorState travels with it so callers can render the task,
// result, and error logs.
type RunRecord struct {
	ID          uuid.UUID        `json:"id"`
	Objective   string           `json:"objective"`
	Status      RunStatus        `json:"status"`
	Feedback    string           `json:"feedback,omitempty"`
	State       *SupervisorState `json:"state,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// RunStore persists run snapshots. The engine itself never reads it back
// mid-run; persistence is a collaborator consumed by gateways and the CLI.
// Implementations: in-memory (default), SQLite, PostgreSQL.
type RunStore interface {
	SaveRun(ctx context.Context, rec *RunRecord) error
	GetRun(ctx context.Context, id uuid.UUID) (*RunRecord, error)
	ListRuns(ctx context.Context) ([]*RunRecord, error)
}
