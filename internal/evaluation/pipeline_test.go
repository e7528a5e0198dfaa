package evaluation

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/catalog"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/docctx"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/evidence"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/llm"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/sqlite"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/verdict"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/config"
)

type fakePipelineVector struct {
	hits []models.ChunkHit
}

func (f *fakePipelineVector) SearchChunks(ctx context.Context, vector []float32, filter models.ChunkFilter, topK int) ([]models.ChunkHit, error) {
	if len(f.hits) > topK {
		return f.hits[:topK], nil
	}
	return f.hits, nil
}

type fakePipelineEmbedder struct{}

func (f *fakePipelineEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeJudgeLLM struct {
	mu      sync.Mutex
	calls   int
	respond func(userPrompt string) (*llm.CompletionResponse, error)
}

func (f *fakeJudgeLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.respond(req.UserPrompt)
}

func (f *fakeJudgeLLM) ModelLabel() string { return "pipeline-test-model@t0.0" }

const planChunkText = "The risk management plan defines the scope, responsibilities and review cadence for the device. Reviews happen quarterly."

var pipelineRequirements = []models.Requirement{
	{
		ID:                 "RMP-001",
		Clause:             "4.4",
		Title:              "Risk management plan",
		Text:               "The manufacturer shall establish a risk management plan.",
		AcceptanceCriteria: "A documented plan exists; responsibilities are assigned",
		Priority:           "high",
		Hints:              []string{"risk management plan"},
		TypicalArtifacts:   []string{"text", "table"},
	},
	{
		ID:               "RMF-002",
		Clause:           "4.5",
		Title:            "Risk management file",
		Text:             "The manufacturer shall establish and maintain a risk management file.",
		Priority:         "high",
		Hints:            []string{"risk management file"},
		TypicalArtifacts: []string{"text"},
	},
}

const passJudgement = `{
	"status": "PASS",
	"rationale": "The plan is documented with assigned responsibilities.",
	"evidence_summary": "A risk management plan section covers scope and reviews.",
	"citations": [
		{"page": 2, "quote": "risk management plan defines the scope", "section_id": "4.4", "confidence": 0.9}
	]
}`

const failJudgement = `{
	"status": "FAIL",
	"rationale": "No risk management file is evidenced in the document.",
	"evidence_summary": "Nothing resembling a risk management file was found.",
	"citations": []
}`

func judgeByRequirement(userPrompt string) (*llm.CompletionResponse, error) {
	content := failJudgement
	if strings.Contains(userPrompt, "RMP-001") {
		content = passJudgement
	}
	return &llm.CompletionResponse{
		Content: content,
		Usage:   llm.Usage{TotalTokens: 80},
	}, nil
}

type pipelineFixture struct {
	db       *sqlite.Client
	judge    *fakeJudgeLLM
	pipeline *Pipeline
}

func newPipelineFixture(t *testing.T, respond func(string) (*llm.CompletionResponse, error)) *pipelineFixture {
	t.Helper()

	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())

	now := time.Now()
	for i := range pipelineRequirements {
		req := pipelineRequirements[i]
		req.CreatedAt = now
		require.NoError(t, db.InsertRequirement(&req))
	}

	require.NoError(t, db.InsertDocument(&models.Document{
		ID:          "doc-1",
		Name:        "risk_plan.pdf",
		OrgID:       "org-1",
		ContentHash: "hash-1",
		PageCount:   3,
		ChunkCount:  2,
		CreatedAt:   now,
		UpdatedAt:   now,
	}))

	chunks := []models.DocumentChunk{
		{
			ID:           "c1",
			DocID:        "doc-1",
			OrgID:        "org-1",
			ChunkIndex:   0,
			Page:         2,
			SectionPath:  "4 > 4.4 Risk management plan",
			ArtifactType: "text",
			Text:         planChunkText,
			CreatedAt:    now,
		},
		{
			ID:           "c2",
			DocID:        "doc-1",
			OrgID:        "org-1",
			ChunkIndex:   1,
			Page:         3,
			SectionPath:  "4 > 4.4 Risk management plan",
			ArtifactType: "table",
			Text:         "| Activity | Owner |\n| Risk review | QA lead |",
			CreatedAt:    now,
		},
	}
	var hits []models.ChunkHit
	for i := range chunks {
		require.NoError(t, db.InsertChunk(&chunks[i]))
		hits = append(hits, models.ChunkHit{
			ChunkID:      chunks[i].ID,
			DocID:        chunks[i].DocID,
			Page:         chunks[i].Page,
			SectionPath:  chunks[i].SectionPath,
			ArtifactType: chunks[i].ArtifactType,
			Text:         chunks[i].Text,
			Score:        0.9 - 0.2*float64(i),
		})
	}

	judge := &fakeJudgeLLM{respond: respond}
	cfg := config.EvaluationConfig{
		MaxConcurrent:       1,
		MaxJudgementRetries: 1,
		AbortAfterFailures:  2,
		EvidenceLimit:       5,
	}

	retriever := evidence.NewRetriever(
		&fakePipelineVector{hits: hits},
		db,
		&fakePipelineEmbedder{},
		config.RetrievalConfig{TopK: 10},
	)

	pipeline := NewPipeline(Deps{
		DB:        db,
		Catalog:   catalog.NewStore(db),
		Retriever: retriever,
		Context:   docctx.NewProvider(db, nil),
		Engine:    verdict.NewEngine(judge, cfg),
	}, cfg)

	return &pipelineFixture{db: db, judge: judge, pipeline: pipeline}
}

func insertEvaluation(t *testing.T, db *sqlite.Client, id string) {
	t.Helper()
	require.NoError(t, db.InsertEvaluation(&models.DocumentEvaluation{
		ID:                id,
		DocID:             "doc-1",
		OrgID:             "org-1",
		Status:            "queued",
		RequirementsTotal: len(pipelineRequirements),
		CreatedAt:         time.Now(),
	}))
}

func TestEvaluateDocumentEndToEnd(t *testing.T) {
	fx := newPipelineFixture(t, judgeByRequirement)
	insertEvaluation(t, fx.db, "eval-1")

	var progress []Progress
	err := fx.pipeline.EvaluateDocument(context.Background(), "eval-1", func(p Progress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	eval, err := fx.db.GetEvaluation("eval-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", eval.Status)
	assert.Equal(t, 2, eval.RequirementsDone)

	verdicts, err := fx.db.GetVerdictsByEvaluation("eval-1")
	require.NoError(t, err)
	require.Len(t, verdicts, 2)

	byReq := make(map[string]models.RequirementVerdict, len(verdicts))
	for _, v := range verdicts {
		byReq[v.RequirementID] = v
	}

	plan := byReq["RMP-001"]
	assert.Equal(t, verdict.StatusPass, plan.Status)
	assert.Contains(t, plan.Citations, `"verified":true`)
	assert.InDelta(t, 0.9, plan.Confidence, 0.001)
	assert.False(t, plan.ConsensusApplied)
	assert.Greater(t, plan.CandidatesConsidered, 0)

	file := byReq["RMF-002"]
	assert.Equal(t, verdict.StatusFlagged, file.Status,
		"FAIL with no citations against present evidence is downgraded")

	require.Len(t, progress, 3)
	assert.Equal(t, 1, progress[0].Done)
	assert.Equal(t, 2, progress[1].Done)
	assert.Equal(t, 2, progress[1].Total)
	assert.Equal(t, "doc-1", progress[0].DocID)

	final := progress[2]
	assert.Empty(t, final.RequirementID, "terminal frame carries no requirement")
	assert.Equal(t, "completed", final.Status)
	assert.Equal(t, 2, final.Done)
}

func TestEvaluateDocumentAbortsOnConsecutiveFailures(t *testing.T) {
	fx := newPipelineFixture(t, func(string) (*llm.CompletionResponse, error) {
		return nil, errors.New("model service down")
	})
	insertEvaluation(t, fx.db, "eval-2")

	var progress []Progress
	err := fx.pipeline.EvaluateDocument(context.Background(), "eval-2", func(p Progress) {
		progress = append(progress, p)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aborted after 2 consecutive")

	require.NotEmpty(t, progress)
	final := progress[len(progress)-1]
	assert.Empty(t, final.RequirementID)
	assert.Equal(t, "failed", final.Status)

	eval, err := fx.db.GetEvaluation("eval-2")
	require.NoError(t, err)
	assert.Equal(t, "error", eval.Status)
	assert.Contains(t, eval.Error, "aborted")

	verdicts, err := fx.db.GetVerdictsByEvaluation("eval-2")
	require.NoError(t, err)
	require.Len(t, verdicts, 2)
	for _, v := range verdicts {
		assert.Equal(t, StatusError, v.Status)
		assert.Contains(t, v.Rationale, "model service down")
	}
}

func TestEvaluatePairRunsFresh(t *testing.T) {
	fx := newPipelineFixture(t, judgeByRequirement)

	req := pipelineRequirements[0]
	v, err := fx.pipeline.EvaluatePair(context.Background(), "doc-1", req)
	require.NoError(t, err)

	assert.Equal(t, verdict.StatusPass, v.Status)
	assert.Equal(t, "doc-1", v.DocID)
	assert.Equal(t, "RMP-001", v.RequirementID)
	assert.Equal(t, "pipeline-test-model@t0.0", v.ModelLabel)
	require.Len(t, v.Citations, 1)
	assert.True(t, v.Citations[0].Verified)

	v2, err := fx.pipeline.EvaluatePair(context.Background(), "doc-1", req)
	require.NoError(t, err)
	assert.Equal(t, v.Status, v2.Status)

	fx.judge.mu.Lock()
	calls := fx.judge.calls
	fx.judge.mu.Unlock()
	assert.Equal(t, 2, calls, "pair evaluations never reuse cached judgements")
}

func TestEvaluateDocumentUnknownEvaluation(t *testing.T) {
	fx := newPipelineFixture(t, judgeByRequirement)

	err := fx.pipeline.EvaluateDocument(context.Background(), "missing", nil)
	require.Error(t, err)
}
