package supervisor

import (
	"fmt"
	"strings"
)

// ConflictFunc decides whether two textual outputs contradict each other and,
// if so, which term pair triggered the contradiction. The default is the
// fixed-lexicon check below; callers may swap in an embedding-similarity
// implementation without touching the surrounding protocol.
type ConflictFunc func(a, b string) ([2]string, bool)

// antonymPairs is the fixed lexicon used by the default conflict detector.
var antonymPairs = [][2]string{
	{"yes", "no"},
	{"true", "false"},
	{"success", "failure"},
	{"increase", "decrease"},
	{"positive", "negative"},
}

// LexiconConflict flags a conflict when the two outputs contain opposite
// members of an antonym pair, case-insensitive, by substring match. This is
// an intentionally naive heuristic; it can misfire on embedded words.
func LexiconConflict(a, b string) ([2]string, bool) {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	for _, pair := range antonymPairs {
		if strings.Contains(la, pair[0]) && strings.Contains(lb, pair[1]) {
			return pair, true
		}
		if strings.Contains(la, pair[1]) && strings.Contains(lb, pair[0]) {
			return [2]string{pair[1], pair[0]}, true
		}
	}
	return [2]string{}, false
}

// Synchronize examines the results of a settled batch pairwise, flags
// contradictory outputs, and resolves each conflict deterministically.
// Error-tagged results are skipped. The resolution policy is total: strictly
// higher confidence wins; on equal confidence (absent treated as zero) the
// later timestamp wins; identical timestamps fall to the later arrival.
//
// Conflicts and resolutions are advisory metadata for the review gate; they
// never fail the run on their own.
func Synchronize(results []*AgentResult, detect ConflictFunc) *SyncReport {
	if detect == nil {
		detect = LexiconConflict
	}

	report := &SyncReport{Count: len(results)}
	for i := 0; i < len(results); i++ {
		if results[i].IsError() {
			continue
		}
		for j := i + 1; j < len(results); j++ {
			if results[j].IsError() {
				continue
			}
			terms, ok := detect(results[i].Output, results[j].Output)
			if !ok {
				continue
			}
			conflict := Conflict{
				TaskA:  results[i].TaskID,
				TaskB:  results[j].TaskID,
				AgentA: results[i].AgentID,
				AgentB: results[j].AgentID,
				Terms:  terms,
			}
			report.Conflicts = append(report.Conflicts, conflict)
			report.Resolutions = append(report.Resolutions, resolve(conflict, results[i], results[j]))
		}
	}
	return report
}

// resolve picks the single winner of a conflict.
func resolve(c Conflict, a, b *AgentResult) Resolution {
	ca, cb := a.ConfidenceOrZero(), b.ConfidenceOrZero()
	switch {
	case ca > cb:
		return Resolution{Conflict: c, Winner: a.TaskID,
			Reason: fmt.Sprintf("higher confidence (%.2f > %.2f)", ca, cb)}
	case cb > ca:
		return Resolution{Conflict: c, Winner: b.TaskID,
			Reason: fmt.Sprintf("higher confidence (%.2f > %.2f)", cb, ca)}
	case b.Meta.CreatedAt.After(a.Meta.CreatedAt):
		return Resolution{Conflict: c, Winner: b.TaskID, Reason: "equal confidence, later timestamp"}
	case a.Meta.CreatedAt.After(b.Meta.CreatedAt):
		return Resolution{Conflict: c, Winner: a.TaskID, Reason: "equal confidence, later timestamp"}
	default:
		// Identical confidence and timestamp: the later arrival wins so the
		// policy stays total.
		return Resolution{Conflict: c, Winner: b.TaskID, Reason: "equal confidence and timestamp, later arrival"}
	}
}
