package supervisor

import (
	"fmt"
	"math"
	"strconv"
)

// Review is the terminal gate of a run. It rejects when the error log
// outgrew the retry budget, or when consensus was required and the recorded
// agreement score fell short of the threshold. Rejection never raises an
// error; callers read the feedback string from the final state.
func Review(s *SupervisorState) ReviewOutcome {
	if len(s.Errors) > s.MaxRetries {
		return ReviewOutcome{Approved: false, Feedback: fmt.Sprintf("Too many errors: %d", len(s.Errors))}
	}

	if s.ConsensusRequired {
		score, ok := agreementScore(s)
		required := s.ConsensusThreshold * 100
		if !ok || score < required {
			return ReviewOutcome{Approved: false,
				Feedback: fmt.Sprintf("Consensus threshold not met: %s%% < %s%%",
					formatPercent(score), formatPercent(required))}
		}
	}

	return ReviewOutcome{Approved: true, Feedback: "approved"}
}

// agreementScore reads the most recently recorded agreement score.
func agreementScore(s *SupervisorState) (float64, bool) {
	if s.Metadata == nil {
		return 0, false
	}
	score, ok := s.Metadata[metaAgreementScore].(float64)
	return score, ok
}

// formatPercent renders a percentage without trailing float noise
// (e.g. 79.999999999999 prints as 80).
func formatPercent(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
