package repeatability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
)

func record(batchID, docID, reqID string, runIndex int, status string) models.RunRecord {
	return models.RunRecord{
		BatchID:       batchID,
		DocID:         docID,
		RequirementID: reqID,
		RunIndex:      runIndex,
		Status:        status,
	}
}

func TestAnalyzeModalStatus(t *testing.T) {
	records := []models.RunRecord{
		record("b1", "doc-1", "req-1", 0, "PASS"),
		record("b1", "doc-1", "req-1", 1, "PASS"),
		record("b1", "doc-1", "req-1", 2, "FLAGGED"),
	}

	results := Analyze(records)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "PASS", r.ModalStatus)
	assert.Equal(t, 2, r.ModalCount)
	assert.Equal(t, 3, r.TotalRuns)
	assert.InDelta(t, 0.667, r.Repeatability, 0.001)
}

func TestAnalyzeTieBreaksCanonically(t *testing.T) {
	// Two of each: the canonical ordering prefers FAIL over FLAGGED.
	records := []models.RunRecord{
		record("b1", "doc-1", "req-1", 0, "FLAGGED"),
		record("b1", "doc-1", "req-1", 1, "FAIL"),
		record("b1", "doc-1", "req-1", 2, "FLAGGED"),
		record("b1", "doc-1", "req-1", 3, "FAIL"),
	}

	results := Analyze(records)
	require.Len(t, results, 1)
	assert.Equal(t, "FAIL", results[0].ModalStatus)
	assert.InDelta(t, 0.5, results[0].Repeatability, 0.0001)
}

func TestAnalyzeTiePrefersPass(t *testing.T) {
	records := []models.RunRecord{
		record("b1", "doc-1", "req-1", 0, "NOT_APPLICABLE"),
		record("b1", "doc-1", "req-1", 1, "PASS"),
	}

	results := Analyze(records)
	require.Len(t, results, 1)
	assert.Equal(t, "PASS", results[0].ModalStatus)
}

func TestAnalyzeGroupsPairsIndependently(t *testing.T) {
	records := []models.RunRecord{
		record("b1", "doc-1", "req-1", 0, "PASS"),
		record("b1", "doc-1", "req-2", 0, "FAIL"),
		record("b1", "doc-2", "req-1", 0, "FLAGGED"),
		record("b2", "doc-1", "req-1", 0, "PASS"),
	}

	results := Analyze(records)
	assert.Len(t, results, 4)
}

func TestAnalyzeInvariants(t *testing.T) {
	records := []models.RunRecord{
		record("b1", "doc-1", "req-1", 0, "PASS"),
		record("b1", "doc-1", "req-1", 1, "FAIL"),
		record("b1", "doc-1", "req-1", 2, "FLAGGED"),
		record("b1", "doc-1", "req-1", 3, "ERROR"),
		record("b1", "doc-1", "req-1", 4, "PASS"),
	}

	results := Analyze(records)
	require.Len(t, results, 1)

	r := results[0]
	assert.Greater(t, r.Repeatability, 0.0)
	assert.LessOrEqual(t, r.Repeatability, 1.0)

	var sum int
	for _, count := range r.StatusCounts {
		sum += count
	}
	assert.Equal(t, r.TotalRuns, sum)
	assert.LessOrEqual(t, r.ModalCount, r.TotalRuns)
}

func TestAnalyzeIdempotent(t *testing.T) {
	records := []models.RunRecord{
		record("b1", "doc-1", "req-1", 0, "PASS"),
		record("b1", "doc-1", "req-1", 1, "FLAGGED"),
		record("b1", "doc-2", "req-1", 0, "FAIL"),
	}

	first := Analyze(records)
	second := Analyze(records)
	assert.Equal(t, first, second)
}

func TestAnalyzeUniformRuns(t *testing.T) {
	records := []models.RunRecord{
		record("b1", "doc-1", "req-1", 0, "PASS"),
		record("b1", "doc-1", "req-1", 1, "PASS"),
		record("b1", "doc-1", "req-1", 2, "PASS"),
	}

	results := Analyze(records)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Repeatability, 0.0001)
}

func TestCompare(t *testing.T) {
	baseline := Analyze([]models.RunRecord{
		record("base", "doc-1", "req-1", 0, "PASS"),
		record("base", "doc-1", "req-1", 1, "FLAGGED"),
		record("base", "doc-1", "req-2", 0, "FAIL"),
		record("base", "doc-1", "req-2", 1, "FAIL"),
	})
	candidate := Analyze([]models.RunRecord{
		record("cand", "doc-1", "req-1", 0, "PASS"),
		record("cand", "doc-1", "req-1", 1, "PASS"),
		record("cand", "doc-1", "req-2", 0, "FAIL"),
		record("cand", "doc-1", "req-2", 1, "FLAGGED"),
	})

	cmp := Compare(baseline, candidate)

	assert.Equal(t, "base", cmp.BaselineBatchID)
	assert.Equal(t, "cand", cmp.CandidateBatchID)
	require.Len(t, cmp.Pairs, 2)

	// req-1 went from 1/2 to 2/2.
	assert.Equal(t, "req-1", cmp.Pairs[0].RequirementID)
	assert.InDelta(t, 0.5, cmp.Pairs[0].Delta, 0.0001)
	assert.False(t, cmp.Pairs[0].StatusChanged)

	// req-2 went from 2/2 to 1/2.
	assert.Equal(t, "req-2", cmp.Pairs[1].RequirementID)
	assert.InDelta(t, -0.5, cmp.Pairs[1].Delta, 0.0001)

	assert.Equal(t, 1, cmp.Improved)
	assert.Equal(t, 1, cmp.Harmed)
	assert.Equal(t, 0, cmp.Unchanged)
	assert.InDelta(t, 0.0, cmp.MeanDelta, 0.0001)
}

func TestCompareSkipsUnsharedPairs(t *testing.T) {
	baseline := Analyze([]models.RunRecord{
		record("base", "doc-1", "req-1", 0, "PASS"),
	})
	candidate := Analyze([]models.RunRecord{
		record("cand", "doc-1", "req-1", 0, "PASS"),
		record("cand", "doc-1", "req-9", 0, "FAIL"),
	})

	cmp := Compare(baseline, candidate)
	assert.Len(t, cmp.Pairs, 1)
	assert.Equal(t, "req-1", cmp.Pairs[0].RequirementID)
}

func TestCompareEmpty(t *testing.T) {
	cmp := Compare(nil, nil)
	assert.Empty(t, cmp.Pairs)
	assert.Zero(t, cmp.MeanDelta)
}
