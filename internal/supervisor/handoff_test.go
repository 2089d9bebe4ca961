package supervisor

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestInitiateHandoff_Success(t *testing.T) {
	s := NewState("investigate the outage", testAgents(), testConfig())
	s.CurrentPhase = PhaseExecution
	s.Results = []*AgentResult{
		{TaskID: "t1", AgentID: "researcher", Kind: OutputText, Output: "root cause notes", Confidence: confidence(0.8), Reasoning: "logs"},
		{TaskID: "t2", AgentID: "researcher", Kind: OutputError, Error: "timeout"},
		{TaskID: "t3", AgentID: "analyzer", Kind: OutputText, Output: "unrelated"},
	}
	for i := 0; i < 8; i++ {
		s.Messages = append(s.Messages, Message{From: "supervisor", Content: fmt.Sprintf("m%d", i)})
	}
	s.Tasks = []*AgentTask{
		{TaskID: "t4", AgentID: "analyzer", Status: TaskPending},
		{TaskID: "t5", AgentID: "analyzer", Status: TaskCompleted},
	}

	h, err := InitiateHandoff(s, "researcher", "analyzer", "analysis needed")
	if err != nil {
		t.Fatalf("handoff refused: %v", err)
	}
	if !h.Success || h.ID == "" {
		t.Fatalf("handoff = %+v, want success with id", h)
	}
	if h.Context.Objective != s.Objective || h.Context.SessionID != s.SessionID || h.Context.Phase != PhaseExecution {
		t.Errorf("context identifiers wrong: %+v", h.Context)
	}
	// Only the source's non-error results travel, reduced to output,
	// confidence, and reasoning.
	if len(h.Context.Prior) != 1 || h.Context.Prior[0].Output != "root cause notes" {
		t.Errorf("prior work = %+v", h.Context.Prior)
	}
	if len(h.Context.Messages) != 5 {
		t.Errorf("messages = %d, want last 5", len(h.Context.Messages))
	}
	// Only the target's open tasks travel.
	if len(h.Context.Tasks) != 1 || h.Context.Tasks[0].TaskID != "t4" {
		t.Errorf("tasks = %+v, want [t4]", h.Context.Tasks)
	}
}

func TestInitiateHandoff_RefusedTargetMissing(t *testing.T) {
	s := NewState("obj", testAgents(), testConfig())

	h, err := InitiateHandoff(s, "", "ghost", "because")
	if err == nil {
		t.Fatal("expected refusal for missing target")
	}
	var verr *HandoffValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want *HandoffValidationError", err)
	}
	if h.Success || len(h.ValidationErrors) == 0 {
		t.Errorf("handoff = %+v, want failure with validation errors", h)
	}
}

func TestInitiateHandoff_RefusedTargetErrored(t *testing.T) {
	s := NewState("obj", testAgents(), testConfig())
	s.Agent("analyzer").Status = AgentError

	if _, err := InitiateHandoff(s, "", "analyzer", "because"); err == nil {
		t.Fatal("expected refusal for errored target")
	}
}

func TestInitiateHandoff_RefusedSourceBusy(t *testing.T) {
	s := NewState("obj", testAgents(), testConfig())
	s.Agent("researcher").Status = AgentBusy

	if _, err := InitiateHandoff(s, "researcher", "analyzer", "because"); err == nil {
		t.Fatal("expected refusal for busy source")
	}
}

func TestInitiateHandoff_SupervisorOriginSkipsSourceChecks(t *testing.T) {
	s := NewState("obj", testAgents(), testConfig())

	h, err := InitiateHandoff(s, "", "analyzer", "initial dispatch")
	if err != nil || !h.Success {
		t.Fatalf("supervisor-originated handoff should succeed: %v", err)
	}
}

func TestValidateHandoffCompletion_Clean(t *testing.T) {
	result := &AgentResult{
		Output:     "the database connection pool was exhausted during peak traffic",
		Confidence: confidence(0.9),
	}
	v := ValidateHandoffCompletion("h1", "analyzer", result, "investigate database connection pool exhaustion", nil)
	if !v.Validated || len(v.Issues) != 0 {
		t.Errorf("validation = %+v, want clean", v)
	}
}

func TestValidateHandoffCompletion_EmptyOutput(t *testing.T) {
	v := ValidateHandoffCompletion("h1", "analyzer", &AgentResult{Output: "   "}, "", nil)
	if v.Validated {
		t.Fatal("empty output must be flagged")
	}
	if len(v.Issues) == 0 || len(v.Recommendations) != len(v.Issues) {
		t.Errorf("issues and recommendations must pair up: %+v", v)
	}
}

func TestValidateHandoffCompletion_LowConfidence(t *testing.T) {
	result := &AgentResult{Output: "some answer", Confidence: confidence(0.3)}
	v := ValidateHandoffCompletion("h1", "analyzer", result, "", nil)
	if v.Validated {
		t.Fatal("low confidence must be flagged")
	}
	found := false
	for _, issue := range v.Issues {
		if strings.Contains(issue, "confidence") {
			found = true
		}
	}
	if !found {
		t.Errorf("no confidence issue in %v", v.Issues)
	}
}

func TestValidateHandoffCompletion_LowOverlapIsAdvisory(t *testing.T) {
	result := &AgentResult{Output: "completely unrelated words here", Confidence: confidence(0.9)}
	v := ValidateHandoffCompletion("h1", "analyzer", result, "investigate database migration checksum mismatch", nil)
	if v.Validated {
		t.Fatal("low overlap must be flagged")
	}
	// Advisory only: no error anywhere, just issues plus recommendations.
	if len(v.Recommendations) == 0 {
		t.Error("expected a recommendation alongside the issue")
	}
}

func TestKeywordOverlap(t *testing.T) {
	if got := KeywordOverlap("", "anything"); got != 1 {
		t.Errorf("empty context = %v, want 1", got)
	}
	if got := KeywordOverlap("database connection pool", "the database pool looks fine"); got < 0.6 {
		t.Errorf("overlap = %v, want >= 2/3", got)
	}
	if got := KeywordOverlap("database connection pool", "weather forecast sunny"); got != 0 {
		t.Errorf("overlap = %v, want 0", got)
	}
}
