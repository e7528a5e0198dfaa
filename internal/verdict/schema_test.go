package verdict

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJudgement(t *testing.T) {
	raw := `{"status":"PASS","rationale":"All criteria satisfied.","evidence_summary":"Plan documented.","citations":[{"page":3,"quote":"the risk management plan","confidence":0.9}]}`

	j, err := parseJudgement(raw)
	require.NoError(t, err)
	assert.Equal(t, StatusPass, j.Status)
	assert.Equal(t, "All criteria satisfied.", j.Rationale)
	assert.Equal(t, "Plan documented.", j.EvidenceSummary)
	require.Len(t, j.Citations, 1)
	assert.Equal(t, 3, j.Citations[0].Page)
	assert.InDelta(t, 0.9, j.Citations[0].Confidence, 0.0001)
}

func TestParseJudgementFencedJSON(t *testing.T) {
	raw := "```json\n{\"status\":\"FAIL\",\"rationale\":\"No plan found.\",\"evidence_summary\":\"\",\"citations\":[]}\n```"

	j, err := parseJudgement(raw)
	require.NoError(t, err)
	assert.Equal(t, StatusFail, j.Status)
}

func TestParseJudgementBareFence(t *testing.T) {
	raw := "```\n{\"status\":\"FLAGGED\",\"rationale\":\"Partial evidence.\",\"evidence_summary\":\"\",\"citations\":[]}\n```"

	j, err := parseJudgement(raw)
	require.NoError(t, err)
	assert.Equal(t, StatusFlagged, j.Status)
}

func TestParseJudgementProseWrapped(t *testing.T) {
	raw := `Here is my assessment: {"status":"PASS","rationale":"Criteria met.","evidence_summary":"","citations":[{"page":1,"quote":"plan","confidence":0.5}]} Let me know if you need more.`

	j, err := parseJudgement(raw)
	require.NoError(t, err)
	assert.Equal(t, StatusPass, j.Status)
}

func TestParseJudgementNormalizesStatusCase(t *testing.T) {
	raw := `{"status":"pass","rationale":"ok","evidence_summary":"","citations":[]}`

	j, err := parseJudgement(raw)
	require.NoError(t, err)
	assert.Equal(t, StatusPass, j.Status)
}

func TestParseJudgementClampsConfidence(t *testing.T) {
	raw := `{"status":"PASS","rationale":"ok","evidence_summary":"","citations":[{"page":1,"quote":"plan","confidence":1.7}]}`

	j, err := parseJudgement(raw)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, j.Citations[0].Confidence, 0.0001)
}

func TestParseJudgementResetsVerifierFlags(t *testing.T) {
	raw := `{"status":"PASS","rationale":"ok","evidence_summary":"","citations":[{"page":1,"quote":"plan","confidence":0.5,"verified":true}]}`

	j, err := parseJudgement(raw)
	require.NoError(t, err)
	assert.False(t, j.Citations[0].Verified)
}

func TestParseJudgementRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty response", ""},
		{"not json", "the document seems fine to me"},
		{"invalid status", `{"status":"MAYBE","rationale":"ok","evidence_summary":"","citations":[]}`},
		{"empty rationale", `{"status":"PASS","rationale":"  ","evidence_summary":"","citations":[]}`},
		{"citation page zero", `{"status":"PASS","rationale":"ok","evidence_summary":"","citations":[{"page":0,"quote":"plan","confidence":0.5}]}`},
		{"citation empty quote", `{"status":"PASS","rationale":"ok","evidence_summary":"","citations":[{"page":1,"quote":"","confidence":0.5}]}`},
		{"unknown field", `{"status":"PASS","rationale":"ok","evidence_summary":"","citations":[],"recommendations":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseJudgement(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errMalformedResponse))
		})
	}
}
