package supervisor

import (
	"fmt"
	"sort"
	"time"
)

// Router decides the next phase for a run. It never runs concurrently with
// itself: phase transitions are driven by a single logical thread of control.
//
// The decision order is deliberate policy: correctness (errors) takes
// precedence over progress (parallelism), and completion detection takes
// precedence over starting new work, so the last finished task never triggers
// an extra execution round.
type Router struct {
	// handledErrors is the error-log length the router has already dispatched
	// to the error handler. Errors are append-only, so anything beyond this
	// watermark is new.
	handledErrors int
}

// Route inspects state and returns the next phase. As a side effect, the
// chosen execution batch (if any) is marked in-progress and recorded on the
// state as the current batch, and the routing decision string is updated.
func (r *Router) Route(s *SupervisorState) Phase {
	// 1. New errors within the retry budget go to the error handler.
	if len(s.Errors) > r.handledErrors && s.RetryCount < s.MaxRetries {
		r.handledErrors = len(s.Errors)
		s.RoutingDecision = fmt.Sprintf("error in log (%d total), retry budget remaining (%d/%d)",
			len(s.Errors), s.RetryCount, s.MaxRetries)
		return PhaseErrorHandler
	}

	// 2. Consensus before anything else once enough results exist and the
	// current batch has not been scored yet.
	if s.ConsensusRequired && len(s.Results) >= 2 && s.BatchID != "" && s.Consensus[s.BatchID] == nil {
		s.RoutingDecision = fmt.Sprintf("consensus required for batch %s over %d results", s.BatchID, len(s.Results))
		return PhaseConsensus
	}

	// 3. All tasks settled: review.
	if allSettled(s.Tasks) {
		s.RoutingDecision = "all tasks settled, reviewing"
		return PhaseReview
	}

	// 4. Start new work.
	pending := s.TasksByStatus(TaskPending)
	batch := SelectParallel(pending, s.MaxParallelAgents)
	switch {
	case len(batch) > 1:
		r.markBatch(s, batch)
		s.RoutingDecision = fmt.Sprintf("dispatching parallel batch of %d tasks", len(batch))
		return PhaseParallelExecution
	case len(batch) == 1:
		r.markBatch(s, batch)
		s.NextAgent = batch[0].AgentID
		s.RoutingDecision = fmt.Sprintf("dispatching single task %s to agent %s", batch[0].TaskID, batch[0].AgentID)
		return PhaseExecution
	}

	// 5. Nothing eligible (pending tasks blocked on failed dependencies,
	// shared agents, or similar): fall through to review.
	s.RoutingDecision = "no eligible tasks, reviewing"
	return PhaseReview
}

// markBatch transitions the chosen tasks to in-progress and records the batch
// on the state for synchronization and consensus bookkeeping.
func (r *Router) markBatch(s *SupervisorState, batch []*AgentTask) {
	now := time.Now().UTC()
	ids := make([]string, len(batch))
	for i, t := range batch {
		t.Status = TaskInProgress
		started := now
		t.StartedAt = &started
		ids[i] = t.TaskID
	}
	s.CurrentBatch = ids
	s.BatchID = newBatchID()
	s.Checkpoint++
}

// allSettled reports whether every task is completed or failed. Vacuously
// true for an empty task list.
func allSettled(tasks []*AgentTask) bool {
	for _, t := range tasks {
		if t.Status != TaskCompleted && t.Status != TaskFailed {
			return false
		}
	}
	return true
}

// SelectParallel computes the parallelizable subset of pending tasks.
//
// A task is excluded when it depends on another task that has not settled,
// or when a higher-priority pending task already claimed the same agent (an
// agent executes at most one task at a time). Remaining candidates are sorted
// by priority (stable on ties) and truncated to maxParallel.
func SelectParallel(pending []*AgentTask, maxParallel int) []*AgentTask {
	if len(pending) == 0 || maxParallel <= 0 {
		return nil
	}

	unsettled := make(map[string]bool, len(pending))
	for _, t := range pending {
		unsettled[t.TaskID] = true
	}

	// Stable sort by priority so ties keep list order.
	sorted := make([]*AgentTask, len(pending))
	copy(sorted, pending)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority.rank() < sorted[j].Priority.rank()
	})

	claimed := make(map[string]bool, len(sorted))
	var batch []*AgentTask
	for _, t := range sorted {
		if len(batch) >= maxParallel {
			break
		}
		if dependsOnUnsettled(t, unsettled) {
			continue
		}
		if claimed[t.AgentID] {
			continue
		}
		claimed[t.AgentID] = true
		batch = append(batch, t)
	}
	return batch
}

// dependsOnUnsettled reports whether the task declares a dependency on a task
// that is still pending in the same scheduling round.
func dependsOnUnsettled(t *AgentTask, unsettled map[string]bool) bool {
	for _, dep := range t.DependsOn {
		if unsettled[dep] && dep != t.TaskID {
			return true
		}
	}
	return false
}
