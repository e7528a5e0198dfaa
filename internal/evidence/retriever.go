package evidence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/catalog"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/metrics"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/config"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/logger"
)

// ErrRetrievalUnavailable signals that the chunk index could not be
// queried at all. Callers must surface it rather than treat the empty
// result as a weak-evidence bundle.
var ErrRetrievalUnavailable = errors.New("retrieval unavailable")

const (
	StrategyDense    = "dense"
	StrategyKeyword  = "keyword"
	StrategySemantic = "semantic"
)

// Fusion weights are fixed. Identical inputs must fuse identically
// across runs, so these are not configurable.
const (
	denseWeight    = 1.0
	keywordWeight  = 0.8
	semanticWeight = 1.2
)

const (
	ArtifactText           = "text"
	ArtifactTable          = "table"
	ArtifactFigure         = "figure"
	ArtifactCrossReference = "cross_reference"
)

// Candidate is one retrieved chunk with its per-strategy scores and the
// fused score used for ranking. Relevance is filled in by the scorer.
type Candidate struct {
	ChunkID        string
	DocID          string
	Page           int
	SectionPath    string
	ArtifactType   string
	Text           string
	Strategies     []string
	StrategyScores map[string]float64
	FusedScore     float64
	Relevance      float64
}

type VectorIndex interface {
	SearchChunks(ctx context.Context, vector []float32, filter models.ChunkFilter, topK int) ([]models.ChunkHit, error)
}

type KeywordIndex interface {
	SearchKeyword(terms []string, filter models.ChunkFilter, topK int) ([]models.ChunkHit, error)
}

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Retriever gathers candidate evidence for a requirement by fusing
// three query strategies against the chunk index: dense similarity,
// keyword search and a semantically reranked expanded query.
type Retriever struct {
	vector        VectorIndex
	keyword       KeywordIndex
	embedder      Embedder
	topK          int
	semanticPool  int
	maxQueryChars int
}

func NewRetriever(vector VectorIndex, keyword KeywordIndex, embedder Embedder, cfg config.RetrievalConfig) *Retriever {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 10
	}
	semanticPool := cfg.SemanticPool
	if semanticPool <= 0 {
		semanticPool = 3 * topK
	}

	return &Retriever{
		vector:        vector,
		keyword:       keyword,
		embedder:      embedder,
		topK:          topK,
		semanticPool:  semanticPool,
		maxQueryChars: cfg.MaxQueryChars,
	}
}

// Retrieve runs all three strategies, deduplicates by chunk id, fuses
// scores additively and returns the top candidates by fused score.
// Partial strategy failures are tolerated; only a complete index outage
// returns ErrRetrievalUnavailable.
func (r *Retriever) Retrieve(ctx context.Context, req models.Requirement, filter models.ChunkFilter) ([]Candidate, error) {
	byID := make(map[string]*Candidate)
	var failures []error

	merge := func(strategy string, weight float64, hits []models.ChunkHit) {
		for _, hit := range hits {
			cand, ok := byID[hit.ChunkID]
			if !ok {
				cand = &Candidate{
					ChunkID:        hit.ChunkID,
					DocID:          hit.DocID,
					Page:           hit.Page,
					SectionPath:    hit.SectionPath,
					ArtifactType:   hit.ArtifactType,
					Text:           hit.Text,
					StrategyScores: make(map[string]float64),
				}
				byID[hit.ChunkID] = cand
			}
			if _, seen := cand.StrategyScores[strategy]; seen {
				continue
			}
			cand.Strategies = append(cand.Strategies, strategy)
			cand.StrategyScores[strategy] = hit.Score
			cand.FusedScore += weight * hit.Score
		}
	}

	if hits, err := r.searchDense(ctx, req, filter); err != nil {
		failures = append(failures, fmt.Errorf("%s: %w", StrategyDense, err))
		metrics.RetrievalFailures.WithLabelValues(StrategyDense).Inc()
		logger.Warn("Dense retrieval failed", zap.String("requirement_id", req.ID), zap.Error(err))
	} else {
		merge(StrategyDense, denseWeight, hits)
	}

	if hits, err := r.searchKeyword(req, filter); err != nil {
		failures = append(failures, fmt.Errorf("%s: %w", StrategyKeyword, err))
		metrics.RetrievalFailures.WithLabelValues(StrategyKeyword).Inc()
		logger.Warn("Keyword retrieval failed", zap.String("requirement_id", req.ID), zap.Error(err))
	} else {
		merge(StrategyKeyword, keywordWeight, hits)
	}

	if hits, err := r.searchSemantic(ctx, req, filter); err != nil {
		failures = append(failures, fmt.Errorf("%s: %w", StrategySemantic, err))
		metrics.RetrievalFailures.WithLabelValues(StrategySemantic).Inc()
		logger.Warn("Semantic retrieval failed", zap.String("requirement_id", req.ID), zap.Error(err))
	} else {
		merge(StrategySemantic, semanticWeight, hits)
	}

	if len(failures) == 3 {
		return nil, fmt.Errorf("%w: %s", ErrRetrievalUnavailable, errors.Join(failures...))
	}

	candidates := make([]Candidate, 0, len(byID))
	for _, cand := range byID {
		candidates = append(candidates, *cand)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].FusedScore != candidates[j].FusedScore {
			return candidates[i].FusedScore > candidates[j].FusedScore
		}
		return candidates[i].ChunkID < candidates[j].ChunkID
	})

	if len(candidates) > r.topK {
		candidates = candidates[:r.topK]
	}

	metrics.RetrievalCandidates.Observe(float64(len(candidates)))

	logger.Debug("Evidence retrieval completed",
		zap.String("requirement_id", req.ID),
		zap.String("doc_id", filter.DocID),
		zap.Int("candidates", len(candidates)),
		zap.Int("failed_strategies", len(failures)),
	)

	return candidates, nil
}

func (r *Retriever) searchDense(ctx context.Context, req models.Requirement, filter models.ChunkFilter) ([]models.ChunkHit, error) {
	vector, err := r.embedder.GenerateEmbedding(ctx, req.Text)
	if err != nil {
		return nil, err
	}
	return r.vector.SearchChunks(ctx, vector, filter, r.topK)
}

func (r *Retriever) searchKeyword(req models.Requirement, filter models.ChunkFilter) ([]models.ChunkHit, error) {
	terms := catalog.SearchTerms(req, r.maxQueryChars)
	hits, err := r.keyword.SearchKeyword(terms, filter, r.topK)
	if err != nil {
		return nil, err
	}
	return normalizeScores(hits), nil
}

// searchSemantic embeds an expanded query, pulls a wider pool and
// reranks it by token overlap with the requirement before truncation.
func (r *Retriever) searchSemantic(ctx context.Context, req models.Requirement, filter models.ChunkFilter) ([]models.ChunkHit, error) {
	expanded := expandedQuery(req)

	vector, err := r.embedder.GenerateEmbedding(ctx, expanded)
	if err != nil {
		return nil, err
	}

	hits, err := r.vector.SearchChunks(ctx, vector, filter, r.semanticPool)
	if err != nil {
		return nil, err
	}

	queryTokens := tokenSet(expanded)
	for i := range hits {
		overlap := overlapScore(queryTokens, hits[i].Text, hits[i].SectionPath)
		hits[i].Score = 0.5*hits[i].Score + 0.5*overlap
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if len(hits) > r.topK {
		hits = hits[:r.topK]
	}

	return hits, nil
}

func expandedQuery(req models.Requirement) string {
	parts := []string{req.Title, req.Text}
	if req.AcceptanceCriteria != "" {
		parts = append(parts, req.AcceptanceCriteria)
	}
	if len(req.Hints) > 0 {
		parts = append(parts, strings.Join(req.Hints, " "))
	}
	return strings.Join(parts, "\n")
}

// overlapScore measures how many query tokens appear in a chunk, with
// heading matches counted at half weight.
func overlapScore(queryTokens map[string]struct{}, text, sectionPath string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	bodyTokens := tokenSet(text)
	headingTokens := tokenSet(sectionPath)

	var matched float64
	for tok := range queryTokens {
		if _, ok := bodyTokens[tok]; ok {
			matched += 1.0
		} else if _, ok := headingTokens[tok]; ok {
			matched += 0.5
		}
	}

	score := matched / float64(len(queryTokens))
	if score > 1 {
		score = 1
	}
	return score
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range catalog.Tokenize(text) {
		if len(tok) <= 3 {
			continue
		}
		set[tok] = struct{}{}
	}
	return set
}

// normalizeScores maps a strategy's raw scores onto [0,1] by dividing
// by the best score in the result set. BM25 magnitudes vary with corpus
// statistics, so only the relative ordering carries meaning.
func normalizeScores(hits []models.ChunkHit) []models.ChunkHit {
	var max float64
	for _, hit := range hits {
		if hit.Score > max {
			max = hit.Score
		}
	}
	if max <= 0 {
		return hits
	}
	for i := range hits {
		hits[i].Score = hits[i].Score / max
	}
	return hits
}
