package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// batchExecutor fans a batch of tasks out to the backend and fans the
// outcomes back in. All outcomes are collected: a failed or timed-out call
// becomes an error-tagged AgentResult for its own slot and never aborts
// sibling calls.
type batchExecutor struct {
	backend Backend
	metrics *SupervisorMetrics
	logger  *slog.Logger
}

// callOutcome is one settled slot of a batch.
type callOutcome struct {
	result *AgentResult
	err    error
}

// executeBatch runs the given tasks concurrently, one backend call per task,
// each with an independent deadline of state.AgentTimeout. It returns exactly
// one result per input task, in input order. Agent status is set to busy at
// dispatch; task and agent statuses are updated after all slots settle, on
// the caller's goroutine (single-writer discipline).
func (e *batchExecutor) executeBatch(ctx context.Context, s *SupervisorState, tasks []*AgentTask, parallel bool) []*AgentResult {
	batchID := s.BatchID
	conversation := lastMessages(s.Messages, conversationWindow)

	// Dispatch. Busy flags are set before the goroutines start so no other
	// component observes a half-dispatched batch.
	for _, t := range tasks {
		if a := s.Agent(t.AgentID); a != nil {
			a.Status = AgentBusy
		}
	}

	slots := make([]chan callOutcome, len(tasks))
	for i := range tasks {
		slots[i] = make(chan callOutcome, 1)
	}

	for i, t := range tasks {
		i, t := i, t
		go func() {
			callCtx, cancel := context.WithTimeout(ctx, s.AgentTimeout)
			defer cancel()

			done := make(chan callOutcome, 1)
			started := time.Now()
			go func() {
				res, err := e.backend.Execute(callCtx, t.AgentID, t, conversation, s.SessionID)
				done <- callOutcome{result: res, err: err}
			}()

			select {
			case out := <-done:
				out.result = e.settle(t, out, started, batchID, parallel)
				slots[i] <- callOutcome{result: out.result}
			case <-callCtx.Done():
				// A call that does not return before its deadline fails this
				// task only; sibling calls keep their own deadlines.
				res := errorResult(t, fmt.Sprintf("agent execution timeout after %s", s.AgentTimeout), started, batchID, parallel)
				slots[i] <- callOutcome{result: res}
			}
		}()
	}

	// Collect every slot. Completion order within the batch is undefined;
	// results are returned in input order regardless.
	results := make([]*AgentResult, len(tasks))
	for i := range slots {
		out := <-slots[i]
		results[i] = out.result
	}

	// Settle task and agent state between phases, after the whole batch
	// drained.
	now := time.Now().UTC()
	for i, t := range tasks {
		res := results[i]
		completed := now
		t.CompletedAt = &completed
		agent := s.Agent(t.AgentID)
		if res.IsError() {
			t.Status = TaskFailed
			t.Error = res.Error
			if agent != nil {
				agent.Status = AgentError
			}
			if e.metrics != nil {
				e.metrics.TasksTotal.WithLabelValues(t.AgentID, string(TaskFailed)).Inc()
			}
		} else {
			t.Status = TaskCompleted
			t.Result = res.Output
			if agent != nil {
				agent.Status = AgentIdle
			}
			if e.metrics != nil {
				e.metrics.TasksTotal.WithLabelValues(t.AgentID, string(TaskCompleted)).Inc()
			}
		}
		if e.metrics != nil && t.StartedAt != nil {
			e.metrics.TaskDuration.WithLabelValues(t.AgentID).Observe(completed.Sub(*t.StartedAt).Seconds())
		}
	}

	return results
}

// settle normalizes a returned call into a complete AgentResult.
func (e *batchExecutor) settle(t *AgentTask, out callOutcome, started time.Time, batchID string, parallel bool) *AgentResult {
	if out.err != nil {
		return errorResult(t, out.err.Error(), started, batchID, parallel)
	}
	res := out.result
	if res == nil {
		return errorResult(t, "backend returned no result", started, batchID, parallel)
	}
	if res.AgentID == "" {
		res.AgentID = t.AgentID
	}
	if res.TaskID == "" {
		res.TaskID = t.TaskID
	}
	if res.Kind == "" {
		res.Kind = OutputText
	}
	if res.Meta.CreatedAt.IsZero() {
		res.Meta.CreatedAt = time.Now().UTC()
	}
	res.Meta.ExecutionMS = time.Since(started).Milliseconds()
	res.Meta.Parallel = parallel
	res.Meta.BatchID = batchID
	if e.logger != nil {
		e.logger.Debug("agent call settled",
			slog.String("task_id", t.TaskID),
			slog.String("agent_id", t.AgentID),
			slog.Int64("execution_ms", res.Meta.ExecutionMS),
		)
	}
	return res
}

// errorResult builds the error-tagged result for a failed slot.
func errorResult(t *AgentTask, msg string, started time.Time, batchID string, parallel bool) *AgentResult {
	return &AgentResult{
		AgentID: t.AgentID,
		TaskID:  t.TaskID,
		Kind:    OutputError,
		Error:   msg,
		Meta: ResultMeta{
			ExecutionMS: time.Since(started).Milliseconds(),
			CreatedAt:   time.Now().UTC(),
			Parallel:    parallel,
			BatchID:     batchID,
		},
	}
}

// lastMessages returns the trailing window of the conversation log.
func lastMessages(messages []Message, n int) []Message {
	if len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}
