package evidence_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/evidence"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/config"
)

type fakeVectorIndex struct {
	hits []models.ChunkHit
	err  error
}

func (f *fakeVectorIndex) SearchChunks(ctx context.Context, vector []float32, filter models.ChunkFilter, topK int) ([]models.ChunkHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.hits) > topK {
		return append([]models.ChunkHit(nil), f.hits[:topK]...), nil
	}
	return append([]models.ChunkHit(nil), f.hits...), nil
}

type fakeKeywordIndex struct {
	hits []models.ChunkHit
	err  error
}

func (f *fakeKeywordIndex) SearchKeyword(terms []string, filter models.ChunkFilter, topK int) ([]models.ChunkHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.hits) > topK {
		return append([]models.ChunkHit(nil), f.hits[:topK]...), nil
	}
	return append([]models.ChunkHit(nil), f.hits...), nil
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func testRequirement() models.Requirement {
	return models.Requirement{
		ID:     "ISO14971-4.4-01",
		Clause: "4.4",
		Title:  "Risk management plan",
		Text:   "The manufacturer shall document a risk management plan",
		Hints:  []string{"risk management plan"},
	}
}

func testFilter() models.ChunkFilter {
	return models.ChunkFilter{DocID: "doc-1", OrgID: "org-1"}
}

func TestRetrieveFusesStrategies(t *testing.T) {
	// The chunk carries the full requirement text so the semantic
	// token overlap is exactly 1.0 and the fused score is exact.
	hit := models.ChunkHit{
		ChunkID:      "chunk-1",
		DocID:        "doc-1",
		Page:         3,
		ArtifactType: "text",
		Text:         "The manufacturer shall document a risk management plan",
		Score:        1.0,
	}

	r := evidence.NewRetriever(
		&fakeVectorIndex{hits: []models.ChunkHit{hit}},
		&fakeKeywordIndex{hits: []models.ChunkHit{hit}},
		&fakeEmbedder{},
		config.RetrievalConfig{TopK: 10},
	)

	candidates, err := r.Retrieve(context.Background(), testRequirement(), testFilter())
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	cand := candidates[0]
	assert.Equal(t, "chunk-1", cand.ChunkID)
	assert.ElementsMatch(t, []string{"dense", "keyword", "semantic"}, cand.Strategies)
	// dense 1.0*1.0 + keyword 0.8*1.0 + semantic 1.2*(0.5*1.0+0.5*1.0)
	assert.InDelta(t, 3.0, cand.FusedScore, 0.0001)
}

func TestRetrieveDeterministic(t *testing.T) {
	hits := []models.ChunkHit{
		{ChunkID: "chunk-a", DocID: "doc-1", Text: "risk management plan scope", Score: 0.9},
		{ChunkID: "chunk-b", DocID: "doc-1", Text: "responsibilities and review", Score: 0.7},
		{ChunkID: "chunk-c", DocID: "doc-1", Text: "verification activities", Score: 0.5},
	}

	newRetriever := func() *evidence.Retriever {
		return evidence.NewRetriever(
			&fakeVectorIndex{hits: hits},
			&fakeKeywordIndex{hits: hits},
			&fakeEmbedder{},
			config.RetrievalConfig{TopK: 10},
		)
	}

	first, err := newRetriever().Retrieve(context.Background(), testRequirement(), testFilter())
	require.NoError(t, err)
	second, err := newRetriever().Retrieve(context.Background(), testRequirement(), testFilter())
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ChunkID, second[i].ChunkID)
		assert.InDelta(t, first[i].FusedScore, second[i].FusedScore, 0.000001)
	}
}

func TestRetrieveDeduplicatesByChunkID(t *testing.T) {
	hit := models.ChunkHit{ChunkID: "chunk-1", DocID: "doc-1", Text: "risk management plan", Score: 0.5}

	r := evidence.NewRetriever(
		&fakeVectorIndex{err: errors.New("index down")},
		&fakeKeywordIndex{hits: []models.ChunkHit{hit, hit}},
		&fakeEmbedder{},
		config.RetrievalConfig{TopK: 10},
	)

	candidates, err := r.Retrieve(context.Background(), testRequirement(), testFilter())
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
}

func TestRetrieveTruncatesToTopK(t *testing.T) {
	var hits []models.ChunkHit
	for i := 0; i < 15; i++ {
		hits = append(hits, models.ChunkHit{
			ChunkID: string(rune('a' + i)),
			DocID:   "doc-1",
			Text:    "evidence text",
			Score:   float64(15-i) / 15.0,
		})
	}

	r := evidence.NewRetriever(
		&fakeVectorIndex{hits: hits},
		&fakeKeywordIndex{hits: hits},
		&fakeEmbedder{},
		config.RetrievalConfig{TopK: 10, SemanticPool: 15},
	)

	candidates, err := r.Retrieve(context.Background(), testRequirement(), testFilter())
	require.NoError(t, err)
	assert.Len(t, candidates, 10)
}

func TestRetrieveUnavailableWhenAllStrategiesFail(t *testing.T) {
	r := evidence.NewRetriever(
		&fakeVectorIndex{err: errors.New("milvus unreachable")},
		&fakeKeywordIndex{err: errors.New("fts unreachable")},
		&fakeEmbedder{},
		config.RetrievalConfig{TopK: 10},
	)

	_, err := r.Retrieve(context.Background(), testRequirement(), testFilter())
	require.Error(t, err)
	assert.True(t, errors.Is(err, evidence.ErrRetrievalUnavailable))
}

func TestRetrieveToleratesPartialFailure(t *testing.T) {
	hit := models.ChunkHit{ChunkID: "chunk-1", DocID: "doc-1", Text: "risk management plan", Score: 2.5}

	r := evidence.NewRetriever(
		&fakeVectorIndex{err: errors.New("milvus unreachable")},
		&fakeKeywordIndex{hits: []models.ChunkHit{hit}},
		&fakeEmbedder{},
		config.RetrievalConfig{TopK: 10},
	)

	candidates, err := r.Retrieve(context.Background(), testRequirement(), testFilter())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, []string{"keyword"}, candidates[0].Strategies)
	// Keyword scores are normalized by the best hit, so a lone hit is 1.0.
	assert.InDelta(t, 0.8, candidates[0].FusedScore, 0.0001)
}

func TestRetrieveEmbedderFailureLeavesKeyword(t *testing.T) {
	hit := models.ChunkHit{ChunkID: "chunk-1", DocID: "doc-1", Text: "risk management plan", Score: 1.0}

	r := evidence.NewRetriever(
		&fakeVectorIndex{hits: []models.ChunkHit{hit}},
		&fakeKeywordIndex{hits: []models.ChunkHit{hit}},
		&fakeEmbedder{err: errors.New("embeddings down")},
		config.RetrievalConfig{TopK: 10},
	)

	candidates, err := r.Retrieve(context.Background(), testRequirement(), testFilter())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, []string{"keyword"}, candidates[0].Strategies)
}
