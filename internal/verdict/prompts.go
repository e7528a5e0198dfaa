package verdict

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/evidence"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
)

// PromptVersion is recorded on every verdict so analytic queries can
// segment results across prompt revisions.
const PromptVersion = "judgement-v1"

// excerptCharLimit bounds how much of each evidence excerpt is quoted
// into the prompt. Chunks can run to several thousand words.
const excerptCharLimit = 1000

const judgementSystemPrompt = `You are an expert regulatory compliance analyst specializing in ISO 14971 medical device risk management. You evaluate whether a document satisfies one specific requirement using only the evidence excerpts provided.

MANDATORY METHOD:
1. Evaluate each acceptance criterion individually against the evidence excerpts; cite page or section references for your evidence.
2. Use PASS when all criteria are clearly satisfied with explicit evidence, FAIL when evidence is clearly missing or contradictory, and FLAGGED only when the evidence is partial or genuinely uncertain.
3. Use NOT_APPLICABLE only when the requirement cannot apply to this document at all.
4. Every citation quote must be copied verbatim from an evidence excerpt. Never paraphrase or combine text inside a quote.
5. Before finalising, confirm the chosen status best matches the evidence; avoid defaulting to FLAGGED when PASS or FAIL is well supported.

Respond strictly with JSON using this schema:
{
  "status": "PASS|FAIL|FLAGGED|NOT_APPLICABLE",
  "rationale": "explain satisfied and unsatisfied criteria with citations",
  "evidence_summary": "one short paragraph describing the evidence reviewed",
  "citations": [
    {"page": 1, "quote": "verbatim quote from an excerpt", "section_id": "heading path if known", "confidence": 0.9}
  ]
}`

// buildUserPrompt assembles the judgement request: requirement
// details, document context flags and the evidence excerpts, most
// relevant first.
func buildUserPrompt(req models.Requirement, bundle evidence.Bundle, contextFlags map[string]bool) string {
	var sections []string

	details := []string{
		"Requirement:",
		"- ID: " + req.ID,
		"- Clause: " + req.Clause,
		"- Title: " + req.Title,
		"- Requirement Text: " + req.Text,
		"- Acceptance Criteria: " + orUnspecified(req.AcceptanceCriteria),
		"- Expected Artifacts: " + orUnspecified(strings.Join(req.TypicalArtifacts, ", ")),
	}
	sections = append(sections, strings.Join(details, "\n"))

	if len(contextFlags) > 0 {
		keys := make([]string, 0, len(contextFlags))
		for k := range contextFlags {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		lines := []string{"Document Context:"}
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("- %s: %t", k, contextFlags[k]))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	if len(bundle.Artifacts) == 0 {
		sections = append(sections, "Evidence Excerpts: none. No relevant evidence was located in the document for this requirement.")
	} else {
		lines := []string{"Evidence Excerpts (most relevant first):"}
		for i, art := range bundle.Artifacts {
			header := fmt.Sprintf("Excerpt %d · Page %d · Section: %s · Type: %s · Relevance: %.2f",
				i+1, art.Page, orUnspecified(art.SectionPath), art.ArtifactType, art.Relevance)
			lines = append(lines, header+"\n"+truncateText(art.Text, excerptCharLimit))
		}
		sections = append(sections, strings.Join(lines, "\n\n"))
	}

	return strings.Join(sections, "\n\n")
}

func orUnspecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Not specified"
	}
	return s
}

func truncateText(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	// Break on a word boundary when one is close.
	if idx := strings.LastIndex(cut, " "); idx > limit-80 {
		cut = cut[:idx]
	}
	return cut + " [truncated]"
}
