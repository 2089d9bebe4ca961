package supervisor

import "time"

// metaAgreementScore is the state metadata key under which the most recent
// agreement score is recorded for later lookup by the router and review gate.
const metaAgreementScore = "agreementScore"

// BuildConsensus aggregates results from multiple agents into a grouped view
// and an agreement score. Results are grouped by the producing agent's role
// (falling back to its free-form type). The agreement score is the mean of
// all non-missing confidences × 100; results without a confidence are
// excluded from both numerator and denominator.
//
// Consensus is recomputed once per batch, never incrementally, to keep the
// calculation auditable.
func BuildConsensus(s *SupervisorState, results []*AgentResult) *ConsensusReport {
	report := &ConsensusReport{
		Results:    results,
		ByRole:     make(map[string][]*AgentResult),
		ComputedAt: time.Now().UTC(),
	}

	var sum float64
	for _, r := range results {
		key := groupKey(s.Agent(r.AgentID))
		report.ByRole[key] = append(report.ByRole[key], r)
		if r.Confidence != nil {
			sum += *r.Confidence
			report.Counted++
		}
	}
	if report.Counted > 0 {
		report.AgreementScore = sum / float64(report.Counted) * 100
	}
	return report
}

// recordConsensus stores a report on the state, keyed by batch, and exposes
// the agreement score in metadata for the review gate.
func recordConsensus(s *SupervisorState, batchID string, report *ConsensusReport) {
	if s.Consensus == nil {
		s.Consensus = make(map[string]*ConsensusReport)
	}
	s.Consensus[batchID] = report
	if s.Metadata == nil {
		s.Metadata = make(map[string]any)
	}
	s.Metadata[metaAgreementScore] = report.AgreementScore
}

// groupKey derives the consensus grouping key for an agent.
func groupKey(a *Agent) string {
	switch {
	case a == nil:
		return "unknown"
	case a.Role != "":
		return string(a.Role)
	case a.Type != "":
		return a.Type
	default:
		return "unknown"
	}
}
