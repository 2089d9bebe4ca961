package supervisor

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// conversationWindow is how many trailing conversation messages are carried
// across a handoff and into each backend call.
const conversationWindow = 5

// Advisory floors for post-handoff validation.
const (
	handoffConfidenceFloor = 0.5
	handoffOverlapFloor    = 0.30
)

// Handoff records a validated transfer of control and context from one agent
// (or the supervisor, when FromAgent is empty) to another.
type Handoff struct {
	ID               string         `json:"id"`
	FromAgent        string         `json:"from_agent,omitempty"`
	ToAgent          string         `json:"to_agent"`
	Reason           string         `json:"reason"`
	Success          bool           `json:"success"`
	ValidationErrors []string       `json:"validation_errors,omitempty"`
	Context          HandoffContext `json:"context"`
	CreatedAt        time.Time      `json:"created_at"`
}

// HandoffContext is the context transferred to the receiving agent. Only the
// source agent's externally visible outputs travel; never its internal state.
type HandoffContext struct {
	Objective string       `json:"objective"`
	Phase     Phase        `json:"phase"`
	SessionID string       `json:"session_id"`
	Prior     []PriorWork  `json:"prior,omitempty"`    // Source agent's prior results.
	Messages  []Message    `json:"messages,omitempty"` // Trailing conversation window.
	Tasks     []*AgentTask `json:"tasks,omitempty"`    // Target agent's open tasks.
}

// PriorWork is the reduced view of a source agent's earlier result.
type PriorWork struct {
	TaskID     string   `json:"task_id"`
	Output     string   `json:"output"`
	Confidence *float64 `json:"confidence,omitempty"`
	Reasoning  string   `json:"reasoning,omitempty"`
}

// HandoffValidation is the advisory outcome of post-handoff completion checks.
type HandoffValidation struct {
	HandoffID       string   `json:"handoff_id"`
	AgentID         string   `json:"agent_id"`
	Validated       bool     `json:"validated"`
	Issues          []string `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// RelevanceFunc scores how much of the first text is reflected in the second,
// in [0,1]. The default keyword-overlap check is deliberately naive and can
// be swapped for an embedding-similarity implementation.
type RelevanceFunc func(context, output string) float64

// InitiateHandoff validates and assembles a handoff to the target agent.
// It refuses (returning a HandoffValidationError and a handoff with
// Success=false) when the target is absent or errored, or when the specified
// source agent is currently busy. No task is started on refusal.
func InitiateHandoff(s *SupervisorState, fromAgentID, toAgentID, reason string) (*Handoff, error) {
	h := &Handoff{
		ID:        uuid.NewString(),
		FromAgent: fromAgentID,
		ToAgent:   toAgentID,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}

	target := s.Agent(toAgentID)
	if target == nil {
		h.ValidationErrors = append(h.ValidationErrors, fmt.Sprintf("target agent %q not found", toAgentID))
	} else if target.Status == AgentError {
		h.ValidationErrors = append(h.ValidationErrors, fmt.Sprintf("target agent %q is in error status", toAgentID))
	}
	if fromAgentID != "" {
		source := s.Agent(fromAgentID)
		if source == nil {
			h.ValidationErrors = append(h.ValidationErrors, fmt.Sprintf("source agent %q not found", fromAgentID))
		} else if source.Status == AgentBusy {
			h.ValidationErrors = append(h.ValidationErrors, fmt.Sprintf("source agent %q is busy", fromAgentID))
		}
	}

	if len(h.ValidationErrors) > 0 {
		return h, &HandoffValidationError{From: fromAgentID, To: toAgentID, Issues: h.ValidationErrors}
	}

	h.Success = true
	h.Context = HandoffContext{
		Objective: s.Objective,
		Phase:     s.CurrentPhase,
		SessionID: s.SessionID,
		Prior:     priorWork(s, fromAgentID),
		Messages:  lastMessages(s.Messages, conversationWindow),
		Tasks:     openTasks(s, toAgentID),
	}
	return h, nil
}

// ValidateHandoffCompletion runs the advisory post-execution checks for a
// handoff: empty output, low confidence, and low keyword overlap between the
// task context and the produced output each add an issue and a matching
// recommendation. These signals attach to the result's metadata; they never
// block execution.
func ValidateHandoffCompletion(handoffID, agentID string, result *AgentResult, taskContext string, relevance RelevanceFunc) *HandoffValidation {
	if relevance == nil {
		relevance = KeywordOverlap
	}
	v := &HandoffValidation{HandoffID: handoffID, AgentID: agentID}

	if result == nil || strings.TrimSpace(result.Output) == "" {
		v.Issues = append(v.Issues, "empty output")
		v.Recommendations = append(v.Recommendations, "re-run the task or hand off to another agent")
	}
	if result != nil && result.Confidence != nil && *result.Confidence < handoffConfidenceFloor {
		v.Issues = append(v.Issues, fmt.Sprintf("confidence %.2f below %.2f", *result.Confidence, handoffConfidenceFloor))
		v.Recommendations = append(v.Recommendations, "corroborate the result with a second agent")
	}
	if result != nil && taskContext != "" {
		if overlap := relevance(taskContext, result.Output); overlap < handoffOverlapFloor {
			v.Issues = append(v.Issues, fmt.Sprintf("low relevance: %.0f%% keyword overlap with task context", overlap*100))
			v.Recommendations = append(v.Recommendations, "restate the task context and retry")
		}
	}

	v.Validated = len(v.Issues) == 0
	return v
}

// KeywordOverlap is the default RelevanceFunc: the fraction of distinct words
// (longer than three characters) from the context that appear in the output.
// An empty context scores 1.
func KeywordOverlap(context, output string) float64 {
	ctxWords := significantWords(context)
	if len(ctxWords) == 0 {
		return 1
	}
	outWords := significantWords(output)
	matched := 0
	for w := range ctxWords {
		if outWords[w] {
			matched++
		}
	}
	return float64(matched) / float64(len(ctxWords))
}

// significantWords tokenizes text into a set of lowercase words longer than
// three characters.
func significantWords(text string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	set := make(map[string]bool, len(words))
	for _, w := range words {
		if len(w) > 3 {
			set[w] = true
		}
	}
	return set
}

// priorWork collects the reduced prior results of the source agent.
func priorWork(s *SupervisorState, agentID string) []PriorWork {
	if agentID == "" {
		return nil
	}
	var prior []PriorWork
	for _, r := range s.Results {
		if r.AgentID != agentID || r.IsError() {
			continue
		}
		prior = append(prior, PriorWork{
			TaskID:     r.TaskID,
			Output:     r.Output,
			Confidence: r.Confidence,
			Reasoning:  r.Reasoning,
		})
	}
	return prior
}

// openTasks returns the target agent's not-yet-settled tasks.
func openTasks(s *SupervisorState, agentID string) []*AgentTask {
	var open []*AgentTask
	for _, t := range s.Tasks {
		if t.AgentID == agentID && (t.Status == TaskPending || t.Status == TaskInProgress) {
			open = append(open, t)
		}
	}
	return open
}
