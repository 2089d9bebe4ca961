package supervisor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Structural errors abort the current execution attempt for a task; they are
// recorded in the error log and handled by the standard retry path.
var (
	ErrAgentNotFound = errors.New("agent not found")
	ErrTaskNotFound  = errors.New("task not found")
)

// HandoffValidationError reports a refused handoff: target missing or
// errored, or source busy.
type HandoffValidationError struct {
	From   string
	To     string
	Issues []string
}

func (e *HandoffValidationError) Error() string {
	return fmt.Sprintf("handoff validation failed (%s -> %s): %s", e.From, e.To, strings.Join(e.Issues, "; "))
}

// recoverableMarkers is the fixed keyword set that classifies an execution
// failure as recoverable. Matching is by case-insensitive substring over the
// error message; this is brittle on purpose — legitimate error text
// containing a marker is classified recoverable, matching the observable
// behavior the surrounding protocol depends on.
var recoverableMarkers = []string{"timeout", "rate_limit", "temporary_failure"}

// Recoverable reports whether an error message qualifies for bounded retry.
func Recoverable(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range recoverableMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// HandleError examines the most recent entry in the error log and decides
// whether to retry. A retry resets the first failed task of the erroring
// agent back to pending (timestamps cleared) and increments the global retry
// counter by exactly one. The counter is global across the whole run, never
// per-task; once it reaches MaxRetries no further retries happen.
//
// Only the first matching failed task is reset per invocation, mirroring the
// one-error-one-retry cadence of the phase loop.
func HandleError(s *SupervisorState) RetryDecision {
	if len(s.Errors) == 0 {
		return RetryDecision{Retry: false, Message: "no errors to handle"}
	}
	last := s.Errors[len(s.Errors)-1]

	if !Recoverable(last.Message) {
		return RetryDecision{Retry: false,
			Message: fmt.Sprintf("terminal error from agent %s: %s", last.AgentID, last.Message)}
	}
	if s.RetryCount >= s.MaxRetries {
		return RetryDecision{Retry: false,
			Message: fmt.Sprintf("retry budget exhausted (%d/%d)", s.RetryCount, s.MaxRetries)}
	}

	task := firstFailedTask(s, last.AgentID)
	if task == nil {
		return RetryDecision{Retry: false,
			Message: fmt.Sprintf("no failed task found for agent %s", last.AgentID)}
	}

	task.Status = TaskPending
	task.StartedAt = nil
	task.CompletedAt = nil
	task.Error = ""
	task.Result = ""
	if a := s.Agent(task.AgentID); a != nil && a.Status == AgentError {
		a.Status = AgentIdle
	}
	ApplyUpdate(s, StateUpdate{RetryIncrement: 1})

	return RetryDecision{Retry: true,
		Message: fmt.Sprintf("requeued task %s for agent %s (retry %d/%d)", task.TaskID, task.AgentID, s.RetryCount, s.MaxRetries)}
}

// firstFailedTask finds the first failed task assigned to the given agent.
func firstFailedTask(s *SupervisorState, agentID string) *AgentTask {
	for _, t := range s.Tasks {
		if t.AgentID == agentID && t.Status == TaskFailed {
			return t
		}
	}
	return nil
}

// recordError appends to the append-only error log.
func recordError(s *SupervisorState, agentID, message string) {
	ApplyUpdate(s, StateUpdate{Errors: []ErrorEntry{{
		AgentID:   agentID,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}}})
}
