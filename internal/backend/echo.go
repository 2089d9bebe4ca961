package backend

import (
	"context"
	"fmt"

	"github.com/jkaninda/msimamizi/internal/supervisor"
)

// Echo is a local backend that answers every task with a canned summary of
// its description. It exists for smoke tests and configuration dry runs; no
// network, no credentials.
type Echo struct {
	// Confidence attached to every result. Zero means no confidence field.
	Confidence float64
}

// Execute implements supervisor.Backend.
func (e Echo) Execute(_ context.Context, agentID string, task *supervisor.AgentTask, _ []supervisor.Message, _ string) (*supervisor.AgentResult, error) {
	res := &supervisor.AgentResult{
		AgentID: agentID,
		TaskID:  task.TaskID,
		Kind:    supervisor.OutputText,
		Output:  fmt.Sprintf("echo: %s", task.Description),
	}
	if e.Confidence > 0 {
		c := e.Confidence
		res.Confidence = &c
	}
	return res, nil
}

// compile-time interface check
var _ supervisor.Backend = Echo{}
