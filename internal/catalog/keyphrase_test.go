package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
)

func TestKeyTerms(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		contains []string
	}{
		{
			name:     "domain phrases outrank tokens",
			text:     "The manufacturer shall establish a risk management plan covering the intended use of the device.",
			contains: []string{"risk management plan", "intended use"},
		},
		{
			name:     "quoted strings extracted",
			text:     `The plan shall define "criteria for risk acceptability" for the device.`,
			contains: []string{"criteria for risk acceptability"},
		},
		{
			name:     "acronyms extracted",
			text:     "Records shall be kept in the RMF as required by the QMS.",
			contains: []string{"rmf", "qms"},
		},
		{
			name:     "parentheticals extracted",
			text:     "Residual risks shall be evaluated (including benefit-risk rationale) before release.",
			contains: []string{"including benefit-risk rationale"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			terms := KeyTerms(tt.text)
			for _, want := range tt.contains {
				assert.Contains(t, terms, want)
			}
		})
	}
}

func TestKeyTermsCapped(t *testing.T) {
	text := "risk management plan risk analysis risk estimation risk evaluation risk control " +
		"residual risk hazardous situation intended use protective measures top management " +
		"post-production state of the art information for safety"

	terms := KeyTerms(text)
	assert.LessOrEqual(t, len(terms), maxKeyTerms)
}

func TestSearchTerms(t *testing.T) {
	req := models.Requirement{
		ID:     "ISO14971-4.4-01",
		Clause: "4.4",
		Title:  "Risk management plan",
		Text:   "The manufacturer shall establish and document a risk management plan including criteria for risk acceptability.",
		Hints:  []string{"scope", "responsibilities"},
	}

	terms := SearchTerms(req, 300)
	require.NotEmpty(t, terms)
	assert.Contains(t, terms, "risk management plan")
	assert.Contains(t, terms, "scope")

	total := 0
	for _, term := range terms {
		total += len(term) + 1
	}
	assert.LessOrEqual(t, total, 301)
}

func TestSearchTermsBudget(t *testing.T) {
	req := models.Requirement{
		Clause: "5.4",
		Title:  "Identification of hazards and hazardous situations",
		Text: "The manufacturer shall identify known and foreseeable hazards associated with the device " +
			"in both normal and fault conditions and consider sequences of events that result in hazardous situations.",
		Hints: []string{"hazard", "hazardous situation", "fault condition", "sequence of events"},
	}

	terms := SearchTerms(req, 60)
	total := 0
	for _, term := range terms {
		total += len(term) + 1
	}
	assert.LessOrEqual(t, total, 61)
	assert.NotEmpty(t, terms)
}

func TestSearchTermsDeduplicated(t *testing.T) {
	req := models.Requirement{
		Clause: "4.4",
		Title:  "Risk management plan",
		Text:   "A risk management plan shall exist.",
		Hints:  []string{"risk management plan"},
	}

	terms := SearchTerms(req, 300)
	seen := make(map[string]int)
	for _, term := range terms {
		seen[term]++
	}
	assert.Equal(t, 1, seen["risk management plan"])
}

func TestClauseTerms(t *testing.T) {
	tests := []struct {
		clause string
		want   string
	}{
		{"4.4", "risk management plan"},
		{"5.5", "risk estimation"},
		{"5.1", "risk analysis"},
		{"10.1", "post-production"},
	}

	for _, tt := range tests {
		t.Run(tt.clause, func(t *testing.T) {
			terms := ClauseTerms(tt.clause)
			assert.Contains(t, terms, tt.want)
		})
	}
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("Risk management, post-production monitoring.")
	joined := strings.Join(tokens, " ")
	assert.Contains(t, joined, "risk")
	assert.Contains(t, joined, "management")
	assert.Contains(t, joined, "monitoring")
	for _, tok := range tokens {
		assert.NotContains(t, tok, ",")
		assert.NotContains(t, tok, ".")
	}
}
