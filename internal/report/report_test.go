package report_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/llm"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/report"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
)

func fixtureDoc() *models.Document {
	return &models.Document{ID: "doc-1", Name: "RiskManagementPlan_v3.pdf", OrgID: "org-1"}
}

func fixtureRequirement(id, clause, title string) models.Requirement {
	return models.Requirement{ID: id, Clause: clause, Title: title}
}

func gapJSON(gaps ...string) string {
	quoted := make([]string, len(gaps))
	for i, g := range gaps {
		quoted[i] = fmt.Sprintf("%q", g)
	}
	return fmt.Sprintf(`{"missing_elements":[%s]}`, strings.Join(quoted, ","))
}

// fixtureEvaluation covers every status across clauses 4 through 10.
func fixtureEvaluation() ([]models.Requirement, []models.RequirementVerdict) {
	requirements := []models.Requirement{
		fixtureRequirement("PLAN-001", "4.1", "Risk management process"),
		fixtureRequirement("PLAN-002", "4.2", "Management responsibilities"),
		fixtureRequirement("EVAL-003", "5.4", "Hazard identification"),
		fixtureRequirement("ERRD-004", "6.1", "Risk control option analysis"),
		fixtureRequirement("RPRT-005", "8", "Overall residual risk evaluation"),
		fixtureRequirement("PROD-006", "10.1", "Post-production information collection"),
	}

	verdicts := []models.RequirementVerdict{
		{RequirementID: "PLAN-001", Status: "PASS",
			GapAnalysis: gapJSON("plan lacks an explicit review cadence")},
		{RequirementID: "PLAN-002", Status: "FAIL",
			GapAnalysis: gapJSON("no documented risk acceptability policy", "no management review record")},
		{RequirementID: "EVAL-003", Status: "FLAGGED",
			GapAnalysis: `{broken`},
		{RequirementID: "ERRD-004", Status: "ERROR"},
		{RequirementID: "RPRT-005", Status: "NOT_APPLICABLE"},
		{RequirementID: "PROD-006", Status: "FAIL",
			GapAnalysis: gapJSON("no production feedback loop")},
	}

	return requirements, verdicts
}

func TestBuildScoreAndRollups(t *testing.T) {
	requirements, verdicts := fixtureEvaluation()

	rep := report.Build("eval-1", fixtureDoc(), requirements, verdicts)

	assert.Equal(t, "eval-1", rep.EvaluationID)
	assert.Equal(t, "doc-1", rep.DocID)
	assert.Equal(t, "RiskManagementPlan_v3.pdf", rep.DocName)

	assert.Equal(t, report.StatusCounts{
		Passed: 1, Failed: 2, Flagged: 1, NotApplicable: 1, Errors: 1, Total: 6,
	}, rep.Counts)

	// 1 pass out of (6 - 1 NA - 1 error) scoreable requirements.
	assert.InDelta(t, 25.0, rep.Score, 0.001)

	// Only FAIL under clause 4 is high risk; 10.1 stays out.
	assert.Equal(t, []string{"PLAN-002"}, rep.HighRiskFindings)

	clauses := make([]string, len(rep.ByClause))
	for i, rollup := range rep.ByClause {
		clauses[i] = rollup.Clause
	}
	assert.Equal(t, []string{"4", "5", "6", "8", "10"}, clauses,
		"top-level clauses sort numerically, not lexically")

	assert.Equal(t, report.ClauseRollup{Clause: "4", Passed: 1, Failed: 1}, rep.ByClause[0])
	assert.Equal(t, report.ClauseRollup{Clause: "5", Flagged: 1}, rep.ByClause[1])
	assert.Equal(t, report.ClauseRollup{Clause: "6", Errors: 1}, rep.ByClause[2])
	assert.Equal(t, report.ClauseRollup{Clause: "8", NotApplicable: 1}, rep.ByClause[3])
	assert.Equal(t, report.ClauseRollup{Clause: "10", Failed: 1}, rep.ByClause[4])

	// Gaps walk in clause order; EVAL-003's malformed block contributes nothing.
	assert.Equal(t, []string{
		"plan lacks an explicit review cadence",
		"no documented risk acceptability policy",
		"no management review record",
		"no production feedback loop",
	}, rep.KeyGaps)
}

func TestBuildScoreZeroWhenNothingScoreable(t *testing.T) {
	requirements := []models.Requirement{fixtureRequirement("RPRT-001", "8", "Overall residual risk evaluation")}
	verdicts := []models.RequirementVerdict{{RequirementID: "RPRT-001", Status: "NOT_APPLICABLE"}}

	rep := report.Build("eval-1", fixtureDoc(), requirements, verdicts)

	assert.Zero(t, rep.Score)
	assert.Equal(t, 1, rep.Counts.NotApplicable)
}

func TestBuildKeyGapsDedupeAndCap(t *testing.T) {
	var requirements []models.Requirement
	var verdicts []models.RequirementVerdict
	for i := 1; i <= 12; i++ {
		id := fmt.Sprintf("PLAN-%03d", i)
		requirements = append(requirements, fixtureRequirement(id, fmt.Sprintf("4.%d", i), "Risk management plan"))
		verdicts = append(verdicts, models.RequirementVerdict{
			RequirementID: id,
			Status:        "FAIL",
			GapAnalysis:   gapJSON(fmt.Sprintf("gap-%d", i), "shared gap"),
		})
	}

	rep := report.Build("eval-1", fixtureDoc(), requirements, verdicts)

	require.Len(t, rep.KeyGaps, 10)
	assert.Equal(t, "gap-1", rep.KeyGaps[0])
	assert.Equal(t, "shared gap", rep.KeyGaps[1])
	// 4.2 precedes 4.10 in the walk, so gap-2 lands before gap-10.
	assert.Equal(t, "gap-2", rep.KeyGaps[2])
	assert.Equal(t, "gap-9", rep.KeyGaps[9])
	assert.NotContains(t, rep.KeyGaps, "gap-10")
}

type fakeSummaryClient struct {
	mu      sync.Mutex
	prompts []string
	respond func() (*llm.CompletionResponse, error)
}

func (f *fakeSummaryClient) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, req.UserPrompt)
	f.mu.Unlock()
	return f.respond()
}

func (f *fakeSummaryClient) ModelLabel() string { return "report-test-model@t0.3" }

func TestSummaryFromModel(t *testing.T) {
	requirements, verdicts := fixtureEvaluation()
	rep := report.Build("eval-1", fixtureDoc(), requirements, verdicts)

	client := &fakeSummaryClient{
		respond: func() (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: `{
				"overview": "The document scores poorly. Clause 4 planning evidence is weak. Remediate clause 4 first.",
				"critical_gaps": [
					{"clause": "4.2", "title": "Management responsibilities", "finding": "No acceptability policy.", "recommendation": "Document one."}
				]
			}`}, nil
		},
	}

	summary := report.NewSummaryGenerator(client).Generate(context.Background(), rep, requirements, verdicts)

	require.NotNil(t, summary)
	assert.False(t, summary.Fallback)
	assert.Contains(t, summary.Overview, "Clause 4 planning evidence is weak")
	require.Len(t, summary.CriticalGaps, 1)
	assert.Equal(t, "4.2", summary.CriticalGaps[0].Clause)
	assert.NotNil(t, summary.Opportunities, "absent array defaults to empty, not nil")
	assert.False(t, summary.GeneratedAt.IsZero())

	require.Len(t, client.prompts, 1)
	prompt := client.prompts[0]
	assert.Contains(t, prompt, "Document: RiskManagementPlan_v3.pdf")
	assert.Contains(t, prompt, "Overall Compliance Score: 25.0%")
	assert.Contains(t, prompt, "Clause 4.2: Management responsibilities")
	assert.Contains(t, prompt, "Gaps: no documented risk acceptability policy; no management review record")

	// Verdicts render in clause order within the prompt.
	assert.Less(t, strings.Index(prompt, "Clause 5.4"), strings.Index(prompt, "Clause 10.1"))
}

func TestSummaryFallbackWhenModelFails(t *testing.T) {
	requirements, verdicts := fixtureEvaluation()
	rep := report.Build("eval-1", fixtureDoc(), requirements, verdicts)

	client := &fakeSummaryClient{
		respond: func() (*llm.CompletionResponse, error) {
			return nil, errors.New("model service down")
		},
	}

	summary := report.NewSummaryGenerator(client).Generate(context.Background(), rep, requirements, verdicts)

	require.NotNil(t, summary)
	assert.True(t, summary.Fallback)

	// FAIL and FLAGGED requirements, in clause order.
	require.Len(t, summary.CriticalGaps, 3)
	assert.Equal(t, "4.2", summary.CriticalGaps[0].Clause)
	assert.Equal(t, "5.4", summary.CriticalGaps[1].Clause)
	assert.Equal(t, "10.1", summary.CriticalGaps[2].Clause)
	assert.Equal(t, "no documented risk acceptability policy", summary.CriticalGaps[0].Finding)
	assert.Contains(t, summary.CriticalGaps[1].Finding, "Hazard identification",
		"flagged verdict without a usable gap block falls back to the requirement title")

	// PASS with recorded gaps becomes an improvement opportunity.
	require.Len(t, summary.Opportunities, 1)
	assert.Equal(t, "4.1", summary.Opportunities[0].Clause)
	assert.Equal(t, "plan lacks an explicit review cadence", summary.Opportunities[0].Finding)

	assert.Contains(t, summary.Overview, "scored 25.0%")
	assert.Contains(t, summary.Overview, "1 of 4 applicable requirements")
	assert.Contains(t, summary.Overview, "3 requirement(s) need attention")
	assert.Contains(t, summary.Overview, "concentrated in clause 4")
	assert.Contains(t, summary.Overview, "clause 4.2 first")
}

func TestSummaryFallbackWhenOverviewMissing(t *testing.T) {
	requirements, verdicts := fixtureEvaluation()
	rep := report.Build("eval-1", fixtureDoc(), requirements, verdicts)

	client := &fakeSummaryClient{
		respond: func() (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: `{"critical_gaps": []}`}, nil
		},
	}

	summary := report.NewSummaryGenerator(client).Generate(context.Background(), rep, requirements, verdicts)

	require.NotNil(t, summary)
	assert.True(t, summary.Fallback)
	assert.NotEmpty(t, summary.Overview)
}

func TestSummaryFallbackWithoutClient(t *testing.T) {
	requirements, verdicts := fixtureEvaluation()
	rep := report.Build("eval-1", fixtureDoc(), requirements, verdicts)

	summary := report.NewSummaryGenerator(nil).Generate(context.Background(), rep, requirements, verdicts)

	require.NotNil(t, summary)
	assert.True(t, summary.Fallback)
	require.Len(t, summary.CriticalGaps, 3)
}

func TestSummaryCleanDocumentOverview(t *testing.T) {
	requirements := []models.Requirement{fixtureRequirement("PLAN-001", "4.1", "Risk management process")}
	verdicts := []models.RequirementVerdict{{RequirementID: "PLAN-001", Status: "PASS"}}
	rep := report.Build("eval-1", fixtureDoc(), requirements, verdicts)

	summary := report.NewSummaryGenerator(nil).Generate(context.Background(), rep, requirements, verdicts)

	require.NotNil(t, summary)
	assert.Empty(t, summary.CriticalGaps)
	assert.Empty(t, summary.Opportunities)
	assert.Contains(t, summary.Overview, "No critical gaps were identified")
	assert.Contains(t, summary.Overview, "Maintain the current documentation")
}
