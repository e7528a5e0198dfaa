package evidence

import (
	"strings"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
)

// Scoring constants. The relevance formula is deterministic: identical
// requirement and candidate inputs always produce identical scores.
const (
	hintBonus     = 0.2
	artifactBonus = 0.3
	clauseBonus   = 0.3
	fusedDivisor  = 10.0
	fusedCap      = 0.5

	// DiscardThreshold is the relevance at or below which a candidate
	// is dropped from the bundle while still counting as considered.
	DiscardThreshold = 0.3
	// StrongThreshold marks a candidate as direct evidence.
	StrongThreshold = 0.8
	// WeakThreshold is the bar below which surviving evidence is
	// reported as weak.
	WeakThreshold = 0.6
)

// ScoreCandidates assigns a relevance score to every candidate.
func ScoreCandidates(req models.Requirement, candidates []Candidate) {
	for i := range candidates {
		candidates[i].Relevance = scoreCandidate(req, candidates[i])
	}
}

func scoreCandidate(req models.Requirement, cand Candidate) float64 {
	score := 0.0
	lowerText := strings.ToLower(cand.Text)

	for _, hint := range req.Hints {
		hint = strings.ToLower(strings.TrimSpace(hint))
		if hint != "" && strings.Contains(lowerText, hint) {
			score += hintBonus
		}
	}

	for _, typical := range req.TypicalArtifacts {
		if cand.ArtifactType == typical {
			score += artifactBonus
			break
		}
	}

	if containsClause(cand.Text, req.Clause) {
		score += clauseBonus
	}

	fused := cand.FusedScore / fusedDivisor
	if fused > fusedCap {
		fused = fusedCap
	}
	score += fused

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// containsClause reports whether the clause number appears verbatim in
// the text, bounded so that "4.4" does not match inside "14.4".
func containsClause(text, clause string) bool {
	if clause == "" {
		return false
	}

	for start := 0; ; {
		idx := strings.Index(text[start:], clause)
		if idx < 0 {
			return false
		}
		idx += start

		beforeOK := idx == 0 || !isClauseChar(text[idx-1])
		afterIdx := idx + len(clause)
		afterOK := afterIdx >= len(text) || !isDigit(text[afterIdx])

		if beforeOK && afterOK {
			return true
		}
		start = idx + 1
		if start >= len(text) {
			return false
		}
	}
}

func isClauseChar(b byte) bool {
	return isDigit(b) || b == '.'
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
