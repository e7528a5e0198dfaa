package evidence_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/evidence"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
)

func bundleRequirement() models.Requirement {
	return models.Requirement{
		ID:               "ISO14971-4.4-01",
		Clause:           "4.4",
		Title:            "Risk management plan",
		Text:             "The manufacturer shall document a risk management plan",
		TypicalArtifacts: []string{"text", "table"},
	}
}

func candidate(id string, relevance float64) evidence.Candidate {
	return evidence.Candidate{
		ChunkID:      id,
		DocID:        "doc-1",
		Page:         1,
		ArtifactType: "text",
		Text:         "the risk management plan defines scope and responsibilities",
		Relevance:    relevance,
	}
}

func TestBuildBundleDirectStrong(t *testing.T) {
	cands := []evidence.Candidate{candidate("a", 0.9), candidate("b", 0.4)}

	bundle := evidence.BuildBundle(bundleRequirement(), cands, 5)

	assert.Equal(t, evidence.EvidenceDirect, bundle.EvidenceType)
	assert.Equal(t, evidence.StrengthStrong, bundle.Strength)
	assert.True(t, bundle.HasDirectEvidence())
	assert.Len(t, bundle.Artifacts, 2)
	assert.Equal(t, 2, bundle.CandidatesConsidered)
}

func TestBuildBundleIndirectModerate(t *testing.T) {
	cands := []evidence.Candidate{
		candidate("a", 0.5),
		candidate("b", 0.55),
		candidate("c", 0.6),
	}

	bundle := evidence.BuildBundle(bundleRequirement(), cands, 5)

	assert.Equal(t, evidence.EvidenceIndirect, bundle.EvidenceType)
	assert.Equal(t, evidence.StrengthModerate, bundle.Strength)
	assert.False(t, bundle.HasDirectEvidence())
	require.Len(t, bundle.Artifacts, 3)
	// Best first.
	assert.Equal(t, "c", bundle.Artifacts[0].ChunkID)
	assert.Equal(t, "b", bundle.Artifacts[1].ChunkID)
	assert.Equal(t, "a", bundle.Artifacts[2].ChunkID)
	// 0.6 is not strictly below the weak threshold.
	assert.NotContains(t, bundle.Gaps, "only weak indirect evidence located")
}

func TestBuildBundleIndirectWeak(t *testing.T) {
	cands := []evidence.Candidate{candidate("a", 0.5), candidate("b", 0.4)}

	bundle := evidence.BuildBundle(bundleRequirement(), cands, 5)

	assert.Equal(t, evidence.EvidenceIndirect, bundle.EvidenceType)
	assert.Equal(t, evidence.StrengthWeak, bundle.Strength)
	assert.Contains(t, bundle.Gaps, "only weak indirect evidence located")
}

func TestBuildBundleAbsentWhenNothingSurvives(t *testing.T) {
	// 0.3 sits exactly on the discard threshold and is discarded.
	cands := []evidence.Candidate{candidate("a", 0.3), candidate("b", 0.1)}

	bundle := evidence.BuildBundle(bundleRequirement(), cands, 5)

	assert.Equal(t, evidence.EvidenceAbsent, bundle.EvidenceType)
	assert.Equal(t, evidence.StrengthWeak, bundle.Strength)
	assert.Empty(t, bundle.Artifacts)
	assert.Equal(t, 2, bundle.CandidatesConsidered)
	assert.Contains(t, bundle.Gaps, "no relevant evidence located for this requirement")
}

func TestBuildBundleEmptyCandidates(t *testing.T) {
	bundle := evidence.BuildBundle(bundleRequirement(), nil, 5)

	assert.Equal(t, evidence.EvidenceAbsent, bundle.EvidenceType)
	assert.Equal(t, evidence.StrengthWeak, bundle.Strength)
	assert.Zero(t, bundle.CandidatesConsidered)
}

func TestBuildBundleCapsArtifacts(t *testing.T) {
	var cands []evidence.Candidate
	for i := 0; i < 7; i++ {
		cands = append(cands, candidate(fmt.Sprintf("c%d", i), 0.4+float64(i)*0.05))
	}

	bundle := evidence.BuildBundle(bundleRequirement(), cands, 5)

	assert.Len(t, bundle.Artifacts, 5)
	assert.Equal(t, 7, bundle.CandidatesConsidered)
	// The cap keeps the most relevant artifacts.
	assert.Equal(t, "c6", bundle.Artifacts[0].ChunkID)
}

func TestBuildBundleGapForMissingArtifactType(t *testing.T) {
	cands := []evidence.Candidate{candidate("a", 0.9)}

	bundle := evidence.BuildBundle(bundleRequirement(), cands, 5)

	assert.Contains(t, bundle.Gaps, "no table evidence found")
	assert.NotContains(t, bundle.Gaps, "no text evidence found")
}

func TestBuildBundleGapForExpectedArtifactWord(t *testing.T) {
	req := bundleRequirement()
	req.TypicalArtifacts = []string{"text"}

	cand := candidate("a", 0.9)
	cand.Text = "risk activities are reviewed quarterly by management"

	bundle := evidence.BuildBundle(req, []evidence.Candidate{cand}, 5)

	assert.Contains(t, bundle.Gaps, "requirement calls for a plan but the evidence does not mention one")
}

func TestBuildBundleNoGapsWhenCovered(t *testing.T) {
	req := bundleRequirement()
	req.TypicalArtifacts = []string{"text"}

	bundle := evidence.BuildBundle(req, []evidence.Candidate{candidate("a", 0.9)}, 5)

	assert.Empty(t, bundle.Gaps)
}
