package verdict

import (
	"strings"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/evidence"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/textmatch"
)

// repairThreshold is the minimum similarity ratio at which a quote is
// rewritten to the closest matching document span instead of being
// marked unverifiable.
const repairThreshold = 0.8

// VerificationResult summarizes one verification pass.
type VerificationResult struct {
	Verified     int
	Repaired     int
	Unverifiable int
}

// AllUnverifiable reports whether every citation failed verification.
// A verdict in that state cannot keep a PASS status.
func (r VerificationResult) AllUnverifiable() bool {
	total := r.Verified + r.Unverifiable
	return total > 0 && r.Unverifiable == total
}

// VerifyCitations checks each citation quote against the artifact
// texts the model was shown. Quotes found verbatim are verified as-is.
// Near-miss quotes above the repair threshold are rewritten to the
// actual document span with confidence preserved. Everything else is
// marked unverifiable with confidence forced to 0.
//
// The function mutates the citations in place and depends on nothing
// but its arguments.
func VerifyCitations(citations []Citation, artifacts []evidence.Artifact) VerificationResult {
	var result VerificationResult

	for i := range citations {
		cit := &citations[i]

		if artifact := findVerbatim(cit.Quote, artifacts); artifact != nil {
			cit.Verified = true
			result.Verified++
			continue
		}

		best := textmatch.Match{}
		for _, art := range artifacts {
			if m := textmatch.BestSpan(cit.Quote, art.Text); m.Ratio > best.Ratio {
				best = m
			}
		}

		if best.Ratio >= repairThreshold && best.Span != "" {
			cit.Quote = best.Span
			cit.Verified = true
			cit.Repaired = true
			result.Verified++
			result.Repaired++
			continue
		}

		cit.Confidence = 0
		cit.Unverifiable = true
		result.Unverifiable++
	}

	return result
}

func findVerbatim(quote string, artifacts []evidence.Artifact) *evidence.Artifact {
	if quote == "" {
		return nil
	}
	for i := range artifacts {
		if strings.Contains(artifacts[i].Text, quote) {
			return &artifacts[i]
		}
	}
	return nil
}
