package verdict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/evidence"
)

func planArtifacts() []evidence.Artifact {
	return []evidence.Artifact{
		{
			ChunkID:      "c1",
			Page:         3,
			ArtifactType: "text",
			Text:         "Section 4. Our risk management plan defines the scope, responsibilities and review cadence for the device.",
		},
		{
			ChunkID:      "c2",
			Page:         7,
			ArtifactType: "table",
			Text:         "Hazard | Severity | Probability\n--- | --- | ---\nBattery failure | High | Low",
		},
	}
}

func TestVerifyCitationsVerbatim(t *testing.T) {
	citations := []Citation{
		{Page: 3, Quote: "risk management plan defines the scope", Confidence: 0.9},
	}

	result := VerifyCitations(citations, planArtifacts())

	assert.Equal(t, 1, result.Verified)
	assert.Equal(t, 0, result.Repaired)
	assert.Equal(t, 0, result.Unverifiable)
	assert.True(t, citations[0].Verified)
	assert.False(t, citations[0].Repaired)
	assert.InDelta(t, 0.9, citations[0].Confidence, 0.0001)
}

func TestVerifyCitationsRepairsTypo(t *testing.T) {
	citations := []Citation{
		{Page: 3, Quote: "risk managment plan", Confidence: 0.85},
	}

	result := VerifyCitations(citations, planArtifacts())

	require.Equal(t, 1, result.Repaired)
	assert.True(t, citations[0].Verified)
	assert.True(t, citations[0].Repaired)
	// The quote is rewritten to the span actually present in the text.
	assert.Contains(t, citations[0].Quote, "management plan")
	assert.Contains(t, planArtifacts()[0].Text, citations[0].Quote)
	assert.InDelta(t, 0.85, citations[0].Confidence, 0.0001)
}

func TestVerifyCitationsUnverifiable(t *testing.T) {
	citations := []Citation{
		{Page: 1, Quote: "the sterilization cycle runs at 134 degrees", Confidence: 0.7},
	}

	result := VerifyCitations(citations, planArtifacts())

	assert.Equal(t, 1, result.Unverifiable)
	assert.True(t, citations[0].Unverifiable)
	assert.False(t, citations[0].Verified)
	assert.Zero(t, citations[0].Confidence)
}

func TestVerifyCitationsMixed(t *testing.T) {
	citations := []Citation{
		{Page: 3, Quote: "review cadence for the device", Confidence: 0.8},
		{Page: 1, Quote: "completely unrelated fabricated text", Confidence: 0.6},
	}

	result := VerifyCitations(citations, planArtifacts())

	assert.Equal(t, 1, result.Verified)
	assert.Equal(t, 1, result.Unverifiable)
	assert.False(t, result.AllUnverifiable())
}

func TestVerificationResultAllUnverifiable(t *testing.T) {
	assert.False(t, VerificationResult{}.AllUnverifiable())
	assert.False(t, VerificationResult{Verified: 1, Unverifiable: 1}.AllUnverifiable())
	assert.True(t, VerificationResult{Unverifiable: 2}.AllUnverifiable())
}

func TestVerifyCitationsNoArtifacts(t *testing.T) {
	citations := []Citation{{Page: 1, Quote: "anything", Confidence: 0.5}}

	result := VerifyCitations(citations, nil)

	assert.Equal(t, 1, result.Unverifiable)
	assert.Zero(t, citations[0].Confidence)
}
