package supervisor

import (
	"strings"
	"testing"
	"time"
)

func failedTaskState(t *testing.T) *SupervisorState {
	t.Helper()
	s := NewState("obj", testAgents(), testConfig())
	now := time.Now().UTC()
	s.Tasks = []*AgentTask{
		{TaskID: "t1", AgentID: "researcher", Status: TaskFailed, StartedAt: &now, CompletedAt: &now, Error: "timeout", Result: "partial"},
		{TaskID: "t2", AgentID: "researcher", Status: TaskFailed},
	}
	s.Agent("researcher").Status = AgentError
	return s
}

func TestRecoverable(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{"request timeout after 30s", true},
		{"RATE_LIMIT exceeded", true},
		{"temporary_failure: please retry", true},
		{"agent execution Timeout after 30s", true},
		{"invalid api key", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := Recoverable(tt.message); got != tt.want {
			t.Errorf("Recoverable(%q) = %v, want %v", tt.message, got, tt.want)
		}
	}
}

func TestHandleError_RetryResetsFirstFailedTask(t *testing.T) {
	s := failedTaskState(t)
	recordError(s, "researcher", "timeout during fetch")

	d := HandleError(s)
	if !d.Retry {
		t.Fatalf("decision = %+v, want retry", d)
	}
	t1 := s.Task("t1")
	if t1.Status != TaskPending || t1.StartedAt != nil || t1.CompletedAt != nil || t1.Error != "" || t1.Result != "" {
		t.Errorf("first failed task not reset: %+v", t1)
	}
	// Only the first matching failed task is requeued.
	if s.Task("t2").Status != TaskFailed {
		t.Errorf("second failed task touched: %+v", s.Task("t2"))
	}
	if s.Agent("researcher").Status != AgentIdle {
		t.Errorf("agent status = %s, want idle", s.Agent("researcher").Status)
	}
	if s.RetryCount != 1 {
		t.Errorf("retryCount = %d, want 1", s.RetryCount)
	}
}

func TestHandleError_TerminalError(t *testing.T) {
	s := failedTaskState(t)
	recordError(s, "researcher", "invalid credentials")

	d := HandleError(s)
	if d.Retry {
		t.Fatal("terminal error must not retry")
	}
	if !strings.Contains(d.Message, "terminal error") {
		t.Errorf("message = %q", d.Message)
	}
	if s.RetryCount != 0 {
		t.Errorf("retryCount = %d, want 0", s.RetryCount)
	}
	if s.Task("t1").Status != TaskFailed {
		t.Error("task must stay failed on terminal error")
	}
}

func TestHandleError_BudgetExhausted(t *testing.T) {
	s := failedTaskState(t)
	s.RetryCount = s.MaxRetries
	recordError(s, "researcher", "timeout again")

	d := HandleError(s)
	if d.Retry {
		t.Fatal("exhausted budget must not retry")
	}
	if !strings.Contains(d.Message, "exhausted") {
		t.Errorf("message = %q", d.Message)
	}
	if s.RetryCount != s.MaxRetries {
		t.Errorf("retryCount = %d, want unchanged %d", s.RetryCount, s.MaxRetries)
	}
}

func TestHandleError_CounterIsGlobalAcrossTasks(t *testing.T) {
	s := failedTaskState(t)
	for i := 0; i < s.MaxRetries; i++ {
		recordError(s, "researcher", "timeout")
		if d := HandleError(s); !d.Retry {
			t.Fatalf("retry %d refused: %+v", i+1, d)
		}
		// Re-fail the task, as another failed attempt would.
		s.Task("t1").Status = TaskFailed
	}
	recordError(s, "researcher", "timeout")
	if d := HandleError(s); d.Retry {
		t.Fatal("fourth recoverable error must exceed the global budget")
	}
	if s.RetryCount != s.MaxRetries {
		t.Errorf("retryCount = %d, want %d", s.RetryCount, s.MaxRetries)
	}
}

func TestHandleError_NoFailedTask(t *testing.T) {
	s := NewState("obj", testAgents(), testConfig())
	recordError(s, "researcher", "timeout")

	d := HandleError(s)
	if d.Retry {
		t.Fatal("no failed task, must not retry")
	}
	if !strings.Contains(d.Message, "no failed task") {
		t.Errorf("message = %q", d.Message)
	}
}

func TestHandleError_EmptyLog(t *testing.T) {
	s := NewState("obj", testAgents(), testConfig())
	if d := HandleError(s); d.Retry {
		t.Fatal("empty error log must not retry")
	}
}

func TestReview_TooManyErrors(t *testing.T) {
	s := NewState("obj", testAgents(), testConfig())
	for i := 0; i < 5; i++ {
		recordError(s, "researcher", "timeout")
	}

	out := Review(s)
	if out.Approved {
		t.Fatal("expected rejection")
	}
	if out.Feedback != "Too many errors: 5" {
		t.Errorf("feedback = %q", out.Feedback)
	}
}

func TestReview_ErrorsWithinBudgetApproved(t *testing.T) {
	s := NewState("obj", testAgents(), testConfig())
	for i := 0; i < s.MaxRetries; i++ {
		recordError(s, "researcher", "timeout")
	}

	if out := Review(s); !out.Approved {
		t.Errorf("errors == budget must pass: %+v", out)
	}
}

func TestReview_ConsensusShortfall(t *testing.T) {
	s := NewState("obj", testAgents(), testConfig())
	s.ConsensusRequired = true
	s.ConsensusThreshold = 0.85
	s.Metadata = map[string]any{metaAgreementScore: 80.0}

	out := Review(s)
	if out.Approved {
		t.Fatal("expected rejection")
	}
	if out.Feedback != "Consensus threshold not met: 80% < 85%" {
		t.Errorf("feedback = %q", out.Feedback)
	}
}

func TestReview_ConsensusShortfallFloatNoise(t *testing.T) {
	s := NewState("obj", testAgents(), testConfig())
	s.ConsensusRequired = true
	s.ConsensusThreshold = 0.85
	// Mean of 0.9 and 0.7 does not land exactly on 80 in float64.
	s.Metadata = map[string]any{metaAgreementScore: (0.9 + 0.7) / 2 * 100}

	out := Review(s)
	if out.Feedback != "Consensus threshold not met: 80% < 85%" {
		t.Errorf("feedback = %q", out.Feedback)
	}
}

func TestReview_ConsensusMet(t *testing.T) {
	s := NewState("obj", testAgents(), testConfig())
	s.ConsensusRequired = true
	s.ConsensusThreshold = 0.7
	s.Metadata = map[string]any{metaAgreementScore: 80.0}

	if out := Review(s); !out.Approved {
		t.Errorf("80%% >= 70%% must pass: %+v", out)
	}
}

func TestReview_ConsensusRequiredButNeverScored(t *testing.T) {
	s := NewState("obj", testAgents(), testConfig())
	s.ConsensusRequired = true
	s.ConsensusThreshold = 0.7

	out := Review(s)
	if out.Approved {
		t.Fatal("missing agreement score must reject when consensus is required")
	}
	if out.Feedback != "Consensus threshold not met: 0% < 70%" {
		t.Errorf("feedback = %q", out.Feedback)
	}
}
