package evidence_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/evidence"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
)

func scoringRequirement() models.Requirement {
	return models.Requirement{
		ID:               "ISO14971-4.4-01",
		Clause:           "4.4",
		Title:            "Risk management plan",
		Text:             "The manufacturer shall document a risk management plan",
		Hints:            []string{"risk management plan", "verification activities"},
		TypicalArtifacts: []string{"text", "table"},
	}
}

func TestScoreCandidates(t *testing.T) {
	req := scoringRequirement()

	tests := []struct {
		name string
		cand evidence.Candidate
		want float64
	}{
		{
			name: "no signals",
			cand: evidence.Candidate{ChunkID: "c1", ArtifactType: "figure", Text: "unrelated content"},
			want: 0,
		},
		{
			name: "single hint match",
			cand: evidence.Candidate{ChunkID: "c2", ArtifactType: "figure", Text: "the Risk Management Plan covers"},
			want: 0.2,
		},
		{
			name: "two hint matches",
			cand: evidence.Candidate{ChunkID: "c3", ArtifactType: "figure", Text: "risk management plan with verification activities"},
			want: 0.4,
		},
		{
			name: "typical artifact type",
			cand: evidence.Candidate{ChunkID: "c4", ArtifactType: "table", Text: "unrelated content"},
			want: 0.3,
		},
		{
			name: "clause mentioned verbatim",
			cand: evidence.Candidate{ChunkID: "c5", ArtifactType: "figure", Text: "as required by clause 4.4 of the standard"},
			want: 0.3,
		},
		{
			name: "clause inside larger number ignored",
			cand: evidence.Candidate{ChunkID: "c6", ArtifactType: "figure", Text: "see clause 14.4 for details"},
			want: 0,
		},
		{
			name: "clause followed by subdigit ignored",
			cand: evidence.Candidate{ChunkID: "c7", ArtifactType: "figure", Text: "see clause 4.41 for details"},
			want: 0,
		},
		{
			name: "fused score contribution",
			cand: evidence.Candidate{ChunkID: "c8", ArtifactType: "figure", Text: "unrelated content", FusedScore: 2.0},
			want: 0.2,
		},
		{
			name: "fused score capped",
			cand: evidence.Candidate{ChunkID: "c9", ArtifactType: "figure", Text: "unrelated content", FusedScore: 9.0},
			want: 0.5,
		},
		{
			name: "all signals clamp to one",
			cand: evidence.Candidate{
				ChunkID:      "c10",
				ArtifactType: "text",
				Text:         "clause 4.4 requires a risk management plan and verification activities",
				FusedScore:   9.0,
			},
			// 0.2+0.2 hints + 0.3 artifact + 0.3 clause + 0.5 fused clamps.
			want: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cands := []evidence.Candidate{tt.cand}
			evidence.ScoreCandidates(req, cands)
			assert.InDelta(t, tt.want, cands[0].Relevance, 0.0001)
		})
	}
}

func TestScoreCandidatesMutatesAll(t *testing.T) {
	req := scoringRequirement()
	cands := []evidence.Candidate{
		{ChunkID: "a", ArtifactType: "table", Text: "risk management plan"},
		{ChunkID: "b", ArtifactType: "figure", Text: "unrelated", FusedScore: 1.0},
	}

	evidence.ScoreCandidates(req, cands)

	assert.InDelta(t, 0.5, cands[0].Relevance, 0.0001)
	assert.InDelta(t, 0.1, cands[1].Relevance, 0.0001)
}
