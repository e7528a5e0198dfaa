package remediation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/evidence"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/llm"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/verdict"
)

type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.response}, nil
}

func (f *fakeLLM) ModelLabel() string { return "test-model@t0.2" }

func planRequirement() models.Requirement {
	return models.Requirement{
		ID:                 "ISO14971-4.4-01",
		Clause:             "4.4",
		Title:              "Risk management plan",
		Text:               "The manufacturer shall document a risk management plan",
		AcceptanceCriteria: "A plan exists covering scope; responsibilities are assigned; review cadence is defined",
		TypicalArtifacts:   []string{"text", "table"},
	}
}

func failedBundle() evidence.Bundle {
	return evidence.Bundle{
		RequirementID: "ISO14971-4.4-01",
		DocID:         "doc-1",
		EvidenceType:  evidence.EvidenceIndirect,
		Strength:      evidence.StrengthWeak,
		Artifacts: []evidence.Artifact{
			{ChunkID: "c1", Page: 2, ArtifactType: "text", Relevance: 0.4,
				Text: "The quality manual references risk activities in general terms."},
		},
		Gaps: []string{"no table evidence found"},
	}
}

func failVerdict() *verdict.Verdict {
	return &verdict.Verdict{
		RequirementID: "ISO14971-4.4-01",
		DocID:         "doc-1",
		Status:        verdict.StatusFail,
		Rationale:     "No plan is documented.",
	}
}

func TestBuildPlanMergesGapsAndCriteria(t *testing.T) {
	client := &fakeLLM{response: "The risk management plan shall define scope, responsibilities and review cadence."}
	planner := NewPlanner(client)

	plan := planner.BuildPlan(context.Background(), planRequirement(), failedBundle(), failVerdict())

	require.NotNil(t, plan)
	assert.Contains(t, plan.MissingElements, "no table evidence found")

	// The uncovered acceptance criteria show up as missing elements.
	var criteriaGaps int
	for _, e := range plan.MissingElements {
		if strings.HasPrefix(e, "acceptance criterion not evidenced: ") {
			criteriaGaps++
		}
	}
	assert.Greater(t, criteriaGaps, 0)
}

func TestBuildPlanSuggestedSections(t *testing.T) {
	planner := NewPlanner(&fakeLLM{response: "example"})

	plan := planner.BuildPlan(context.Background(), planRequirement(), failedBundle(), failVerdict())

	require.NotEmpty(t, plan.SuggestedSections)
	assert.Equal(t, "4.4 Risk management plan", plan.SuggestedSections[0])
	assert.Contains(t, plan.SuggestedSections, "a tabular summary supporting risk management plan")
}

func TestBuildPlanUsesModelExample(t *testing.T) {
	client := &fakeLLM{response: "The risk management plan shall define scope."}
	planner := NewPlanner(client)

	plan := planner.BuildPlan(context.Background(), planRequirement(), failedBundle(), failVerdict())

	assert.Equal(t, 1, client.calls)
	assert.Equal(t, "The risk management plan shall define scope.", plan.ExampleText)
}

func TestBuildPlanFallsBackOnModelError(t *testing.T) {
	client := &fakeLLM{err: errors.New("connection refused")}
	planner := NewPlanner(client)

	plan := planner.BuildPlan(context.Background(), planRequirement(), failedBundle(), failVerdict())

	assert.Contains(t, plan.ExampleText, "Risk management plan")
	assert.Contains(t, plan.ExampleText, "4.4")
}

func TestBuildPlanWithoutClient(t *testing.T) {
	planner := NewPlanner(nil)

	plan := planner.BuildPlan(context.Background(), planRequirement(), failedBundle(), failVerdict())

	assert.NotEmpty(t, plan.ExampleText)
	assert.NotEmpty(t, plan.MissingElements)
}

func TestMissingElementsNeverEmpty(t *testing.T) {
	req := planRequirement()
	req.AcceptanceCriteria = ""

	bundle := failedBundle()
	bundle.Gaps = nil

	elements := missingElements(req, bundle)

	require.NotEmpty(t, elements)
	assert.Contains(t, elements[0], "Risk management plan")
}
