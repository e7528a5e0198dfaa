package report

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/llm"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/verdict"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/logger"
)

const (
	summaryTemperature = 0.3
	summaryMaxTokens   = 2000
	maxGapsPerFinding  = 3
)

const summarySystemPrompt = `You are an expert regulatory compliance analyst specializing in ISO 14971 medical device risk management. Your task is to generate a concise executive summary from document evaluation results.

Rules:
1. The overview MUST be exactly 3 sentences: (1) Overall assessment, (2) Key areas of concern or strength, (3) Recommended next steps.
2. Only include findings that exist in the provided data - never invent or assume findings.
3. Critical gaps come from FAIL or FLAGGED requirements only.
4. Opportunities for improvement come from PASS requirements that have gaps noted.
5. Order all items by clause number (e.g., 4.1 before 4.2 before 5.1).
6. Keep findings and recommendations concise - one sentence each maximum.`

// Finding is one summarized item, either a critical gap or an
// improvement opportunity.
type Finding struct {
	Clause         string `json:"clause"`
	Title          string `json:"title"`
	Finding        string `json:"finding"`
	Recommendation string `json:"recommendation"`
}

// Summary is the executive summary attached to a report.
type Summary struct {
	Overview      string    `json:"overview"`
	CriticalGaps  []Finding `json:"critical_gaps"`
	Opportunities []Finding `json:"opportunities_for_improvement"`
	GeneratedAt   time.Time `json:"generated_at"`
	Fallback      bool      `json:"fallback,omitempty"`
}

// SummaryGenerator produces executive summaries, preferring the model
// and falling back to a deterministic rendering when the call fails.
type SummaryGenerator struct {
	client verdict.CompletionService
}

func NewSummaryGenerator(client verdict.CompletionService) *SummaryGenerator {
	return &SummaryGenerator{client: client}
}

// Generate builds the executive summary for a finished report.
func (g *SummaryGenerator) Generate(ctx context.Context, rep *Report, requirements []models.Requirement, verdicts []models.RequirementVerdict) *Summary {
	reqByID := make(map[string]models.Requirement, len(requirements))
	for _, req := range requirements {
		reqByID[req.ID] = req
	}
	ordered := sortByClause(verdicts, reqByID)

	if g.client != nil {
		if summary := g.fromModel(ctx, rep, reqByID, ordered); summary != nil {
			return summary
		}
	}

	return g.fallback(rep, reqByID, ordered)
}

func (g *SummaryGenerator) fromModel(ctx context.Context, rep *Report, reqByID map[string]models.Requirement, ordered []models.RequirementVerdict) *Summary {
	resp, err := g.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summarySystemPrompt,
		UserPrompt:   buildSummaryPrompt(rep, reqByID, ordered),
		Temperature:  summaryTemperature,
		MaxTokens:    summaryMaxTokens,
		JSONMode:     true,
	})
	if err != nil {
		logger.Warn("Executive summary generation failed", zap.String("doc_id", rep.DocID), zap.Error(err))
		return nil
	}

	var summary Summary
	if err := json.Unmarshal([]byte(resp.Content), &summary); err != nil {
		logger.Warn("Executive summary response was not valid JSON", zap.String("doc_id", rep.DocID), zap.Error(err))
		return nil
	}
	if strings.TrimSpace(summary.Overview) == "" {
		logger.Warn("Executive summary missing overview", zap.String("doc_id", rep.DocID))
		return nil
	}

	if summary.CriticalGaps == nil {
		summary.CriticalGaps = []Finding{}
	}
	if summary.Opportunities == nil {
		summary.Opportunities = []Finding{}
	}
	summary.Fallback = false
	summary.GeneratedAt = time.Now().UTC()

	logger.Info("Executive summary generated",
		zap.String("doc_id", rep.DocID),
		zap.Int("critical_gaps", len(summary.CriticalGaps)),
		zap.Int("opportunities", len(summary.Opportunities)),
	)

	return &summary
}

func buildSummaryPrompt(rep *Report, reqByID map[string]models.Requirement, ordered []models.RequirementVerdict) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Document: %s\n", rep.DocName)
	fmt.Fprintf(&sb, "Overall Compliance Score: %.1f%%\n\n", rep.Score)
	sb.WriteString("EVALUATION RESULTS:\n")

	for _, v := range ordered {
		req := reqByID[v.RequirementID]
		fmt.Fprintf(&sb, "Clause %s: %s\n", req.Clause, req.Title)
		fmt.Fprintf(&sb, "  Status: %s\n", v.Status)
		if gaps := verdictGaps(v); len(gaps) > 0 {
			if len(gaps) > maxGapsPerFinding {
				gaps = gaps[:maxGapsPerFinding]
			}
			fmt.Fprintf(&sb, "  Gaps: %s\n", strings.Join(gaps, "; "))
		}
	}

	sb.WriteString(`
Generate a JSON response with this exact structure:
{
  "overview": "Three sentence executive summary as described.",
  "critical_gaps": [
    {"clause": "4.1", "title": "Requirement title", "finding": "The specific gap", "recommendation": "How to address it"}
  ],
  "opportunities_for_improvement": [
    {"clause": "4.2", "title": "Requirement title", "finding": "The OFI", "recommendation": "How to improve"}
  ]
}

Include critical_gaps only from FAIL/FLAGGED requirements.
Include opportunities_for_improvement only from PASS requirements that have gaps.
If there are no items for a category, use an empty array [].
Order items by clause number.`)

	return sb.String()
}

// fallback renders the summary without a model call. Everything here
// is derived from the verdicts, so repeated calls agree.
func (g *SummaryGenerator) fallback(rep *Report, reqByID map[string]models.Requirement, ordered []models.RequirementVerdict) *Summary {
	summary := &Summary{
		CriticalGaps:  []Finding{},
		Opportunities: []Finding{},
		GeneratedAt:   time.Now().UTC(),
		Fallback:      true,
	}

	for _, v := range ordered {
		req := reqByID[v.RequirementID]
		switch v.Status {
		case verdict.StatusFail, verdict.StatusFlagged:
			summary.CriticalGaps = append(summary.CriticalGaps, Finding{
				Clause:         req.Clause,
				Title:          req.Title,
				Finding:        firstGapOrDefault(v, fmt.Sprintf("requirement %q is not satisfied by the evidence", req.Title)),
				Recommendation: fmt.Sprintf("Provide documented evidence addressing clause %s.", req.Clause),
			})
		case verdict.StatusPass:
			if gaps := verdictGaps(v); len(gaps) > 0 {
				summary.Opportunities = append(summary.Opportunities, Finding{
					Clause:         req.Clause,
					Title:          req.Title,
					Finding:        gaps[0],
					Recommendation: fmt.Sprintf("Strengthen the existing evidence for clause %s.", req.Clause),
				})
			}
		}
	}

	summary.Overview = fallbackOverview(rep, summary.CriticalGaps)

	return summary
}

func fallbackOverview(rep *Report, criticalGaps []Finding) string {
	scoreable := rep.Counts.Total - rep.Counts.NotApplicable - rep.Counts.Errors

	first := fmt.Sprintf("%s scored %.1f%% against the requirement catalogue, with %d of %d applicable requirements passing.",
		rep.DocName, rep.Score, rep.Counts.Passed, scoreable)

	var second string
	if len(criticalGaps) == 0 {
		second = "No critical gaps were identified across the evaluated clauses."
	} else {
		second = fmt.Sprintf("%d requirement(s) need attention, concentrated in clause %s.",
			len(criticalGaps), dominantClause(criticalGaps))
	}

	var third string
	if len(criticalGaps) > 0 {
		third = fmt.Sprintf("Address the findings for clause %s first, then re-run the evaluation to confirm closure.",
			criticalGaps[0].Clause)
	} else {
		third = "Maintain the current documentation and re-evaluate after the next revision."
	}

	return first + " " + second + " " + third
}

// dominantClause names the top-level clause with the most findings.
func dominantClause(findings []Finding) string {
	counts := make(map[string]int)
	for _, f := range findings {
		counts[topLevelClause(f.Clause)]++
	}

	clauses := make([]string, 0, len(counts))
	for clause := range counts {
		clauses = append(clauses, clause)
	}
	sort.Slice(clauses, func(i, j int) bool {
		if counts[clauses[i]] != counts[clauses[j]] {
			return counts[clauses[i]] > counts[clauses[j]]
		}
		return clauseLess(clauses[i], clauses[j])
	})

	return clauses[0]
}

func firstGapOrDefault(v models.RequirementVerdict, fallback string) string {
	if gaps := verdictGaps(v); len(gaps) > 0 {
		return gaps[0]
	}
	return fallback
}
