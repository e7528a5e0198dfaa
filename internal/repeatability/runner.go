package repeatability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/catalog"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/metrics"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/sqlite"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/verdict"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/config"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/logger"
)

// Evaluator runs one online evaluation for a (document, requirement)
// pair. The evaluation pipeline satisfies this.
type Evaluator interface {
	EvaluatePair(ctx context.Context, docID string, req models.Requirement) (*verdict.Verdict, error)
}

// Runner drives repeated evaluations of the same pairs and logs one
// run record per call so the analyzer can measure stability.
type Runner struct {
	evaluator   Evaluator
	catalog     *catalog.Store
	db          *sqlite.Client
	numRuns     int
	configLabel string
}

func NewRunner(evaluator Evaluator, cat *catalog.Store, db *sqlite.Client, cfg config.BatchConfig) *Runner {
	numRuns := cfg.NumRuns
	if numRuns <= 0 {
		numRuns = 5
	}
	label := cfg.ConfigLabel
	if label == "" {
		label = "baseline_v1"
	}

	return &Runner{
		evaluator:   evaluator,
		catalog:     cat,
		db:          db,
		numRuns:     numRuns,
		configLabel: label,
	}
}

// BatchRequest selects the documents and requirements to re-run.
// Empty RequirementIDs means the whole catalogue; empty BatchID,
// ConfigLabel and NumRuns fall back to defaults.
type BatchRequest struct {
	BatchID        string   `json:"batch_id"`
	ConfigLabel    string   `json:"config_label"`
	DocIDs         []string `json:"doc_ids"`
	RequirementIDs []string `json:"requirement_ids"`
	NumRuns        int      `json:"num_runs"`
}

// RunBatch evaluates every (document, requirement) pair NumRuns times
// and records each outcome. Batch id and run index travel explicitly
// through every record so runs stay independently reproducible.
// Returns the batch id used.
func (r *Runner) RunBatch(ctx context.Context, req BatchRequest) (string, error) {
	batchID := req.BatchID
	if batchID == "" {
		batchID = fmt.Sprintf("manual_%s", time.Now().UTC().Format("20060102_150405"))
	}
	label := req.ConfigLabel
	if label == "" {
		label = r.configLabel
	}
	numRuns := req.NumRuns
	if numRuns <= 0 {
		numRuns = r.numRuns
	}

	if len(req.DocIDs) == 0 {
		return "", fmt.Errorf("batch %s: no documents selected", batchID)
	}

	requirements, err := r.selectRequirements(req.RequirementIDs)
	if err != nil {
		return "", fmt.Errorf("batch %s: %w", batchID, err)
	}

	logger.Info("Starting repeatability batch",
		zap.String("batch_id", batchID),
		zap.String("config_label", label),
		zap.Int("documents", len(req.DocIDs)),
		zap.Int("requirements", len(requirements)),
		zap.Int("num_runs", numRuns),
	)

	for _, docID := range req.DocIDs {
		for _, requirement := range requirements {
			for runIndex := 0; runIndex < numRuns; runIndex++ {
				select {
				case <-ctx.Done():
					return batchID, ctx.Err()
				default:
				}

				record := r.runOnce(ctx, docID, requirement, runIndex)
				record.BatchID = batchID
				record.ConfigLabel = label

				if err := r.db.InsertRunRecord(&record); err != nil {
					return batchID, fmt.Errorf("batch %s: failed to record run: %w", batchID, err)
				}
				metrics.RunsRecorded.Inc()
			}
		}
	}

	logger.Info("Completed repeatability batch", zap.String("batch_id", batchID))
	return batchID, nil
}

// AnalyzeBatch loads a batch's run records and aggregates them.
func (r *Runner) AnalyzeBatch(batchID string) ([]Result, error) {
	records, err := r.db.GetRunRecords(batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch %s: %w", batchID, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("batch %s has no run records", batchID)
	}
	return Analyze(records), nil
}

// CompareBatches aggregates two batches and joins them per pair.
func (r *Runner) CompareBatches(baselineID, candidateID string) (Comparison, error) {
	baseline, err := r.AnalyzeBatch(baselineID)
	if err != nil {
		return Comparison{}, err
	}
	candidate, err := r.AnalyzeBatch(candidateID)
	if err != nil {
		return Comparison{}, err
	}

	cmp := Compare(baseline, candidate)
	cmp.BaselineBatchID = baselineID
	cmp.CandidateBatchID = candidateID
	return cmp, nil
}

func (r *Runner) selectRequirements(ids []string) ([]models.Requirement, error) {
	if len(ids) == 0 {
		return r.catalog.All()
	}
	return r.catalog.ByIDs(ids)
}

func (r *Runner) runOnce(ctx context.Context, docID string, requirement models.Requirement, runIndex int) models.RunRecord {
	record := models.RunRecord{
		DocID:         docID,
		RequirementID: requirement.ID,
		RunIndex:      runIndex,
		CreatedAt:     time.Now(),
	}

	v, err := r.evaluator.EvaluatePair(ctx, docID, requirement)
	if err != nil {
		record.Status = "ERROR"
		record.RawOutput = mustMarshal(map[string]any{
			"run_index": runIndex,
			"error":     err.Error(),
		})
		logger.Warn("Batch run failed",
			zap.String("doc_id", docID),
			zap.String("requirement_id", requirement.ID),
			zap.Int("run_index", runIndex),
			zap.Error(err),
		)
		return record
	}

	record.Status = v.Status
	record.ModelLabel = v.ModelLabel
	record.RawOutput = mustMarshal(map[string]any{
		"run_index": runIndex,
		"verdict":   v,
	})
	return record
}

func mustMarshal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"marshal_error":%q}`, err.Error())
	}
	return string(data)
}
