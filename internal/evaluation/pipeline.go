package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/cache/redis"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/catalog"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/docctx"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/evidence"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/metrics"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/remediation"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/sqlite"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/trace"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/verdict"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/config"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/logger"
)

const verdictCacheTTL = 7 * 24 * time.Hour

// cachedEntry is what the verdict cache stores per pair. The gap
// analysis rides along so a cache hit can still fill a complete
// verdict row.
type cachedEntry struct {
	Verdict     *verdict.Verdict `json:"verdict"`
	GapAnalysis string           `json:"gap_analysis,omitempty"`
}

// StatusError marks a per-requirement failure inside an otherwise
// surviving document evaluation.
const StatusError = "ERROR"

// Progress is one unit of evaluation progress, pushed to subscribers
// after each requirement settles. A frame with an empty RequirementID
// is terminal; its Status is then the run outcome (completed/failed).
type Progress struct {
	EvaluationID  string `json:"evaluation_id"`
	DocID         string `json:"doc_id"`
	RequirementID string `json:"requirement_id"`
	Status        string `json:"status"`
	Done          int    `json:"done"`
	Total         int    `json:"total"`
}

type ProgressFunc func(Progress)

// Deps are the collaborators a Pipeline orchestrates. Reconciler,
// Planner, Trace and Cache may be nil; the corresponding stage is then
// skipped.
type Deps struct {
	DB         *sqlite.Client
	Catalog    *catalog.Store
	Retriever  *evidence.Retriever
	Context    *docctx.Provider
	Engine     *verdict.Engine
	Reconciler *verdict.Reconciler
	Planner    *remediation.Planner
	Trace      *trace.Builder
	Cache      *redis.Client
}

// Pipeline runs the full evidence-to-verdict chain for documents and
// for single (document, requirement) pairs.
type Pipeline struct {
	deps       Deps
	cfg        config.EvaluationConfig
	promptHash string
}

func NewPipeline(deps Deps, cfg config.EvaluationConfig) *Pipeline {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.AbortAfterFailures <= 0 {
		cfg.AbortAfterFailures = 3
	}

	return &Pipeline{
		deps:       deps,
		cfg:        cfg,
		promptHash: hashPromptConfig(verdict.PromptVersion, deps.Engine.ModelLabel()),
	}
}

// EvaluatePair runs one uncached evaluation for a single pair. Batch
// repeatability runs go through here so that every run is a genuine
// fresh sample.
func (p *Pipeline) EvaluatePair(ctx context.Context, docID string, req models.Requirement) (*verdict.Verdict, error) {
	doc, err := p.deps.DB.GetDocument(docID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", docID, err)
	}

	flags := p.contextFlags(ctx, docID)

	v, _, err := p.evaluateRequirement(ctx, doc, req, flags)
	return v, err
}

// evaluateRequirement is the chain for one pair: retrieve, score,
// bundle, judge, reconcile. The bundle is returned alongside the
// verdict so the caller can build a remediation plan from it.
func (p *Pipeline) evaluateRequirement(ctx context.Context, doc *models.Document, req models.Requirement, flags map[string]bool) (*verdict.Verdict, evidence.Bundle, error) {
	filter := models.ChunkFilter{
		DocID: doc.ID,
		OrgID: doc.OrgID,
	}

	candidates, err := p.deps.Retriever.Retrieve(ctx, req, filter)
	if err != nil {
		return nil, evidence.Bundle{}, err
	}

	evidence.ScoreCandidates(req, candidates)
	bundle := evidence.BuildBundle(req, candidates, p.cfg.EvidenceLimit)
	bundle.DocID = doc.ID

	v, err := p.deps.Engine.Evaluate(ctx, req, bundle, flags)
	if err != nil {
		return nil, bundle, err
	}

	if p.deps.Reconciler != nil {
		p.deps.Reconciler.Reconcile(ctx, req, v)
	}

	return v, bundle, nil
}

// EvaluateDocument evaluates every catalogue requirement against one
// document. Per-requirement failures are recorded as error verdicts;
// the whole evaluation aborts only after too many failures in a row.
func (p *Pipeline) EvaluateDocument(ctx context.Context, evaluationID string, onProgress ProgressFunc) error {
	eval, err := p.deps.DB.GetEvaluation(evaluationID)
	if err != nil {
		return fmt.Errorf("failed to load evaluation %s: %w", evaluationID, err)
	}

	doc, err := p.deps.DB.GetDocument(eval.DocID)
	if err != nil {
		p.failEvaluation(evaluationID, fmt.Sprintf("document not found: %v", err))
		return fmt.Errorf("failed to load document %s: %w", eval.DocID, err)
	}

	requirements, err := p.deps.Catalog.All()
	if err != nil {
		p.failEvaluation(evaluationID, fmt.Sprintf("catalogue unavailable: %v", err))
		return fmt.Errorf("failed to load requirement catalogue: %w", err)
	}
	if len(requirements) == 0 {
		p.failEvaluation(evaluationID, "requirement catalogue is empty")
		return fmt.Errorf("requirement catalogue is empty")
	}

	if err := p.deps.DB.MarkEvaluationStarted(evaluationID); err != nil {
		logger.Warn("Failed to mark evaluation started", zap.String("evaluation_id", evaluationID), zap.Error(err))
	}

	logger.Info("Document evaluation started",
		zap.String("evaluation_id", evaluationID),
		zap.String("doc_id", doc.ID),
		zap.Int("requirements", len(requirements)),
		zap.Int("max_concurrent", p.cfg.MaxConcurrent),
	)

	flags := p.contextFlags(ctx, doc.ID)

	outer := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu          sync.Mutex
		done        int
		consecutive int
		aborted     bool
	)

	jobs := make(chan models.Requirement)
	var wg sync.WaitGroup

	for i := 0; i < p.cfg.MaxConcurrent; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range jobs {
				if ctx.Err() != nil {
					continue
				}

				entry, hit := p.lookupCached(ctx, doc.ID, req.ID)
				var evalErr error
				if !hit {
					var v *verdict.Verdict
					var bundle evidence.Bundle
					v, bundle, evalErr = p.evaluateRequirement(ctx, doc, req, flags)
					if evalErr == nil {
						entry = p.buildEntry(ctx, req, bundle, v)
					}
				}

				mu.Lock()
				if evalErr != nil {
					consecutive++
					logger.Error("Requirement evaluation failed",
						zap.String("evaluation_id", evaluationID),
						zap.String("requirement_id", req.ID),
						zap.Int("consecutive_failures", consecutive),
						zap.Error(evalErr),
					)
					if consecutive >= p.cfg.AbortAfterFailures && !aborted {
						aborted = true
						cancel()
					}
					p.persistErrorVerdict(eval, req, evalErr)
				} else {
					consecutive = 0
					p.persistVerdict(ctx, eval, doc, req, entry, !hit)
				}

				done++
				if err := p.deps.DB.UpdateEvaluationProgress(evaluationID, done); err != nil {
					logger.Warn("Failed to update evaluation progress", zap.String("evaluation_id", evaluationID), zap.Error(err))
				}

				if onProgress != nil {
					status := StatusError
					if evalErr == nil {
						status = entry.Verdict.Status
					}
					onProgress(Progress{
						EvaluationID:  evaluationID,
						DocID:         doc.ID,
						RequirementID: req.ID,
						Status:        status,
						Done:          done,
						Total:         len(requirements),
					})
				}
				mu.Unlock()
			}
		}()
	}

	for _, req := range requirements {
		select {
		case jobs <- req:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	final := func(status string) {
		if onProgress != nil {
			onProgress(Progress{
				EvaluationID: evaluationID,
				DocID:        doc.ID,
				Status:       status,
				Done:         done,
				Total:        len(requirements),
			})
		}
	}

	if aborted {
		msg := fmt.Sprintf("aborted after %d consecutive requirement failures", p.cfg.AbortAfterFailures)
		p.failEvaluation(evaluationID, msg)
		logger.Error("Document evaluation aborted",
			zap.String("evaluation_id", evaluationID),
			zap.String("doc_id", doc.ID),
			zap.Int("completed", done),
		)
		final("failed")
		return fmt.Errorf("evaluation %s %s", evaluationID, msg)
	}

	if outer.Err() != nil {
		msg := fmt.Sprintf("canceled: %v", outer.Err())
		p.failEvaluation(evaluationID, msg)
		final("failed")
		return fmt.Errorf("evaluation %s %s", evaluationID, msg)
	}

	if err := p.deps.DB.MarkEvaluationCompleted(evaluationID); err != nil {
		logger.Warn("Failed to mark evaluation completed", zap.String("evaluation_id", evaluationID), zap.Error(err))
	}
	metrics.DocumentEvaluations.WithLabelValues("completed").Inc()

	logger.Info("Document evaluation completed",
		zap.String("evaluation_id", evaluationID),
		zap.String("doc_id", doc.ID),
		zap.Int("requirements_done", done),
	)

	final("completed")
	return nil
}

func (p *Pipeline) contextFlags(ctx context.Context, docID string) map[string]bool {
	if p.deps.Context == nil {
		return nil
	}
	flags, err := p.deps.Context.Flags(ctx, docID)
	if err != nil {
		logger.Warn("Context flags unavailable", zap.String("doc_id", docID), zap.Error(err))
		return nil
	}
	return flags
}

// buildEntry finishes a fresh verdict: the remediation plan is built
// here so a later cache hit can reuse it.
func (p *Pipeline) buildEntry(ctx context.Context, req models.Requirement, bundle evidence.Bundle, v *verdict.Verdict) cachedEntry {
	entry := cachedEntry{Verdict: v}

	if v.Status == verdict.StatusFail && p.deps.Planner != nil {
		plan := p.deps.Planner.BuildPlan(ctx, req, bundle, v)
		entry.GapAnalysis = marshalJSON(plan)
	}

	return entry
}

// persistVerdict stores a settled verdict row, refreshes the cache on
// fresh results and feeds the trace graph. Failures here never fail
// the evaluation.
func (p *Pipeline) persistVerdict(ctx context.Context, eval *models.DocumentEvaluation, doc *models.Document, req models.Requirement, entry cachedEntry, fresh bool) {
	v := entry.Verdict

	record := &models.RequirementVerdict{
		ID:                   uuid.New().String(),
		EvaluationID:         eval.ID,
		DocID:                doc.ID,
		RequirementID:        req.ID,
		Status:               v.Status,
		Rationale:            v.Rationale,
		EvidenceSummary:      v.EvidenceSummary,
		Citations:            marshalJSON(v.Citations),
		Coverage:             v.Coverage,
		InterpretationRisk:   v.InterpretationRisk,
		EvidenceStrength:     v.EvidenceStrength,
		EvidenceType:         v.EvidenceType,
		Confidence:           v.CitationConfidence,
		ConsensusApplied:     v.ConsensusApplied,
		ConsensusNote:        v.ConsensusNote,
		GapAnalysis:          entry.GapAnalysis,
		CandidatesConsidered: v.CandidatesConsidered,
		LatencyMS:            int(v.LatencyMS),
		CreatedAt:            time.Now(),
	}

	if err := p.deps.DB.InsertVerdict(record); err != nil {
		logger.Error("Failed to persist verdict",
			zap.String("evaluation_id", eval.ID),
			zap.String("requirement_id", req.ID),
			zap.Error(err),
		)
	}

	if fresh && p.deps.Cache != nil {
		key := redis.VerdictKey(doc.ID, req.ID, p.promptHash)
		if err := p.deps.Cache.SetVerdict(ctx, key, entry, verdictCacheTTL); err != nil {
			logger.Warn("Failed to cache verdict", zap.String("requirement_id", req.ID), zap.Error(err))
		}
	}

	if p.deps.Trace != nil {
		if err := p.deps.Trace.RecordVerdict(ctx, doc.ID, doc.Name, eval.ID, v); err != nil {
			logger.Warn("Failed to record trace link",
				zap.String("doc_id", doc.ID),
				zap.String("requirement_id", req.ID),
				zap.Error(err),
			)
		}
	}
}

// lookupCached checks the verdict cache for a pair under the current
// prompt and model.
func (p *Pipeline) lookupCached(ctx context.Context, docID, requirementID string) (cachedEntry, bool) {
	if p.deps.Cache == nil {
		return cachedEntry{}, false
	}

	var entry cachedEntry
	key := redis.VerdictKey(docID, requirementID, p.promptHash)
	found, err := p.deps.Cache.GetVerdict(ctx, key, &entry)
	if err != nil {
		logger.Warn("Verdict cache lookup failed", zap.String("requirement_id", requirementID), zap.Error(err))
		return cachedEntry{}, false
	}
	if !found || entry.Verdict == nil {
		metrics.CacheMisses.WithLabelValues("verdict").Inc()
		return cachedEntry{}, false
	}

	metrics.CacheHits.WithLabelValues("verdict").Inc()
	return entry, true
}

func (p *Pipeline) persistErrorVerdict(eval *models.DocumentEvaluation, req models.Requirement, evalErr error) {
	record := &models.RequirementVerdict{
		ID:            uuid.New().String(),
		EvaluationID:  eval.ID,
		DocID:         eval.DocID,
		RequirementID: req.ID,
		Status:        StatusError,
		Rationale:     fmt.Sprintf("evaluation failed: %v", evalErr),
		CreatedAt:     time.Now(),
	}

	if err := p.deps.DB.InsertVerdict(record); err != nil {
		logger.Error("Failed to persist error verdict",
			zap.String("evaluation_id", eval.ID),
			zap.String("requirement_id", req.ID),
			zap.Error(err),
		)
	}
}

func (p *Pipeline) failEvaluation(evaluationID, msg string) {
	if err := p.deps.DB.MarkEvaluationFailed(evaluationID, msg); err != nil {
		logger.Error("Failed to mark evaluation failed", zap.String("evaluation_id", evaluationID), zap.Error(err))
	}
	metrics.DocumentEvaluations.WithLabelValues("failed").Inc()
}

func marshalJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func hashPromptConfig(parts ...string) string {
	h := fnv.New32a()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%08x", h.Sum32())
}
