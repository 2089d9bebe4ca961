package httpapi

import (
	"fmt"

	"github.com/jkaninda/okapi"
)

// SSEEvent represents a server-sent event for streaming run results.
type SSEEvent struct {
	Type    string `json:"type"`               // "task_result", "review", "done", "error"
	AgentID string `json:"agent_id,omitempty"` // Producing agent for task events.
	TaskID  string `json:"task_id,omitempty"`
	Content string `json:"content,omitempty"` // Result output or feedback text.
}

// handleRunStream handles POST /v1/runs/stream with SSE responses.
// Runs the objective to completion and streams the settled results as
// server-sent events, ending with the review verdict.
func (g *Gateway) handleRunStream(c *okapi.Context) error {
	callerID := c.GetString("callerID")

	if g.limiter != nil {
		if err := g.limiter.Allow(callerID); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	var req RunSubmitRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("objective is required")
	}
	if req.Objective == "" {
		return c.AbortBadRequest("objective is required")
	}

	rec, err := g.manager.Execute(c.Context(), req.Objective)
	if err != nil && rec == nil {
		c.SSEvent("error", SSEEvent{Content: "run execution failed"})
		return nil
	}

	// Stream settled task results, then the review verdict.
	if rec.State != nil {
		for _, r := range rec.State.Results {
			c.SSEvent("task_result", SSEEvent{
				AgentID: r.AgentID,
				TaskID:  r.TaskID,
				Content: r.Output,
			})
		}
		if rec.State.Review != nil {
			c.SSEvent("review", SSEEvent{
				Content: fmt.Sprintf("approved=%t %s", rec.State.Review.Approved, rec.State.Review.Feedback),
			})
		}
	}
	c.SSEvent("done", SSEEvent{Type: "done"})
	return nil
}
