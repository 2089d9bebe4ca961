package supervisor

import "testing"

func confidence(v float64) *float64 { return &v }

func TestLexiconConflict(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"yes vs no", "Yes, the service is reachable", "No, connectivity is down", true},
		{"true vs false", "the claim is TRUE", "the claim is false", true},
		{"success vs failure", "deployment success", "deployment failure", true},
		{"increase vs decrease", "metrics increase steadily", "metrics decrease", true},
		{"positive vs negative", "positive trend", "negative trend", true},
		{"agreement", "yes absolutely", "yes of course", false},
		{"unrelated", "the sky is blue", "grass is green", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, got := LexiconConflict(tc.a, tc.b); got != tc.want {
				t.Errorf("LexiconConflict(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestSynchronize_NoConflicts(t *testing.T) {
	results := []*AgentResult{
		{TaskID: "t1", AgentID: "a1", Kind: OutputText, Output: "all good"},
		{TaskID: "t2", AgentID: "a2", Kind: OutputText, Output: "looks fine"},
	}
	report := Synchronize(results, nil)
	if report.Count != 2 || len(report.Conflicts) != 0 {
		t.Errorf("report = %+v, want 2 examined, 0 conflicts", report)
	}
}

func TestSynchronize_ErrorResultsSkipped(t *testing.T) {
	results := []*AgentResult{
		{TaskID: "t1", AgentID: "a1", Kind: OutputError, Error: "yes... timeout"},
		{TaskID: "t2", AgentID: "a2", Kind: OutputText, Output: "no"},
	}
	report := Synchronize(results, nil)
	if len(report.Conflicts) != 0 {
		t.Errorf("error-tagged results must not participate in conflict detection: %+v", report.Conflicts)
	}
}

func TestSynchronize_HigherConfidenceWins(t *testing.T) {
	results := []*AgentResult{
		{TaskID: "t1", AgentID: "a1", Kind: OutputText, Output: "yes it works", Confidence: confidence(0.9), Meta: ResultMeta{CreatedAt: ts(1)}},
		{TaskID: "t2", AgentID: "a2", Kind: OutputText, Output: "no it is broken", Confidence: confidence(0.6), Meta: ResultMeta{CreatedAt: ts(2)}},
	}
	report := Synchronize(results, nil)
	if len(report.Resolutions) != 1 {
		t.Fatalf("resolutions = %d, want 1", len(report.Resolutions))
	}
	if got := report.Resolutions[0].Winner; got != "t1" {
		t.Errorf("winner = %s, want t1 (higher confidence beats later timestamp)", got)
	}
}

func TestSynchronize_EqualConfidenceLaterTimestampWins(t *testing.T) {
	results := []*AgentResult{
		{TaskID: "t1", AgentID: "a1", Kind: OutputText, Output: "success", Confidence: confidence(0.8), Meta: ResultMeta{CreatedAt: ts(1)}},
		{TaskID: "t2", AgentID: "a2", Kind: OutputText, Output: "failure", Confidence: confidence(0.8), Meta: ResultMeta{CreatedAt: ts(2)}},
	}
	report := Synchronize(results, nil)
	if got := report.Resolutions[0].Winner; got != "t2" {
		t.Errorf("winner = %s, want t2 (later timestamp)", got)
	}

	// Same but with the later result listed first.
	results[0].Meta.CreatedAt, results[1].Meta.CreatedAt = ts(2), ts(1)
	report = Synchronize(results, nil)
	if got := report.Resolutions[0].Winner; got != "t1" {
		t.Errorf("winner = %s, want t1 (later timestamp regardless of order)", got)
	}
}

func TestSynchronize_AbsentConfidenceTreatedAsZero(t *testing.T) {
	results := []*AgentResult{
		{TaskID: "t1", AgentID: "a1", Kind: OutputText, Output: "yes", Meta: ResultMeta{CreatedAt: ts(2)}},
		{TaskID: "t2", AgentID: "a2", Kind: OutputText, Output: "no", Confidence: confidence(0.1), Meta: ResultMeta{CreatedAt: ts(1)}},
	}
	report := Synchronize(results, nil)
	if got := report.Resolutions[0].Winner; got != "t2" {
		t.Errorf("winner = %s, want t2 (0.1 beats absent=0)", got)
	}
}

func TestSynchronize_TotalResolution(t *testing.T) {
	// Identical confidence and timestamp still produce a single winner.
	results := []*AgentResult{
		{TaskID: "t1", AgentID: "a1", Kind: OutputText, Output: "true", Confidence: confidence(0.5), Meta: ResultMeta{CreatedAt: ts(1)}},
		{TaskID: "t2", AgentID: "a2", Kind: OutputText, Output: "false", Confidence: confidence(0.5), Meta: ResultMeta{CreatedAt: ts(1)}},
	}
	report := Synchronize(results, nil)
	if len(report.Resolutions) != 1 || report.Resolutions[0].Winner == "" {
		t.Errorf("resolution must be total: %+v", report.Resolutions)
	}
}

func TestSynchronize_CustomDetector(t *testing.T) {
	always := func(a, b string) ([2]string, bool) { return [2]string{"x", "y"}, true }
	results := []*AgentResult{
		{TaskID: "t1", AgentID: "a1", Kind: OutputText, Output: "anything"},
		{TaskID: "t2", AgentID: "a2", Kind: OutputText, Output: "whatever"},
	}
	report := Synchronize(results, always)
	if len(report.Conflicts) != 1 {
		t.Errorf("pluggable detector not honored: %+v", report)
	}
}
