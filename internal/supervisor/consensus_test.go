package supervisor

import (
	"math"
	"testing"
)

func TestBuildConsensus_AgreementArithmetic(t *testing.T) {
	s := NewState("obj", testAgents(), testConfig())
	results := []*AgentResult{
		{TaskID: "t1", AgentID: "researcher", Kind: OutputText, Output: "a", Confidence: confidence(0.9)},
		{TaskID: "t2", AgentID: "analyzer", Kind: OutputText, Output: "b", Confidence: confidence(0.7)},
	}

	report := BuildConsensus(s, results)
	if math.Abs(report.AgreementScore-80) > 1e-9 {
		t.Errorf("agreement = %v, want 80", report.AgreementScore)
	}
	if report.Counted != 2 {
		t.Errorf("counted = %d, want 2", report.Counted)
	}
}

func TestBuildConsensus_MissingConfidenceExcluded(t *testing.T) {
	s := NewState("obj", testAgents(), testConfig())
	results := []*AgentResult{
		{TaskID: "t1", AgentID: "researcher", Kind: OutputText, Confidence: confidence(0.6)},
		{TaskID: "t2", AgentID: "analyzer", Kind: OutputText}, // No confidence: excluded from both sides.
	}

	report := BuildConsensus(s, results)
	if math.Abs(report.AgreementScore-60) > 1e-9 {
		t.Errorf("agreement = %v, want 60", report.AgreementScore)
	}
	if report.Counted != 1 {
		t.Errorf("counted = %d, want 1", report.Counted)
	}
}

func TestBuildConsensus_NoConfidencesAtAll(t *testing.T) {
	s := NewState("obj", testAgents(), testConfig())
	results := []*AgentResult{
		{TaskID: "t1", AgentID: "researcher", Kind: OutputText},
	}
	report := BuildConsensus(s, results)
	if report.AgreementScore != 0 || report.Counted != 0 {
		t.Errorf("report = %+v, want zero score and count", report)
	}
}

func TestBuildConsensus_GroupsByRole(t *testing.T) {
	agents := []*Agent{
		{ID: "r1", Role: RoleResearcher},
		{ID: "r2", Role: RoleResearcher},
		{ID: "typed", Type: "custom"},
		{ID: "bare"},
	}
	s := NewState("obj", agents, testConfig())
	results := []*AgentResult{
		{TaskID: "t1", AgentID: "r1", Kind: OutputText},
		{TaskID: "t2", AgentID: "r2", Kind: OutputText},
		{TaskID: "t3", AgentID: "typed", Kind: OutputText},
		{TaskID: "t4", AgentID: "bare", Kind: OutputText},
		{TaskID: "t5", AgentID: "ghost", Kind: OutputText},
	}

	report := BuildConsensus(s, results)
	if len(report.ByRole["researcher"]) != 2 {
		t.Errorf("researcher group = %d, want 2", len(report.ByRole["researcher"]))
	}
	if len(report.ByRole["custom"]) != 1 {
		t.Errorf("type fallback group = %d, want 1", len(report.ByRole["custom"]))
	}
	if len(report.ByRole["unknown"]) != 2 {
		t.Errorf("unknown group = %d, want 2 (bare agent + unregistered)", len(report.ByRole["unknown"]))
	}
}

func TestRecordConsensus_KeyedForLookup(t *testing.T) {
	s := NewState("obj", testAgents(), testConfig())
	report := BuildConsensus(s, []*AgentResult{
		{TaskID: "t1", AgentID: "researcher", Kind: OutputText, Confidence: confidence(0.8)},
	})

	recordConsensus(s, "batch-7", report)
	if s.Consensus["batch-7"] != report {
		t.Error("report not keyed by batch")
	}
	score, ok := s.Metadata[metaAgreementScore].(float64)
	if !ok || math.Abs(score-80) > 1e-9 {
		t.Errorf("agreementScore metadata = %v (%v)", score, ok)
	}
}
