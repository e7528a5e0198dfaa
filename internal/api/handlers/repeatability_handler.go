package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/middleware/validation"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/repeatability"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/sqlite"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/logger"
)

const (
	maxBatchRuns = 25
	maxBatchDocs = 100
)

type RepeatabilityHandler struct {
	runner *repeatability.Runner
	db     *sqlite.Client
}

func NewRepeatabilityHandler(runner *repeatability.Runner, db *sqlite.Client) *RepeatabilityHandler {
	return &RepeatabilityHandler{
		runner: runner,
		db:     db,
	}
}

// StartBatch launches a repeatability batch in the background and
// returns its id immediately. Run records appear as the batch runs;
// the analysis endpoint aggregates whatever has been recorded.
func (h *RepeatabilityHandler) StartBatch(c *fiber.Ctx) error {
	var req repeatability.BatchRequest

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if len(req.DocIDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "doc_ids is required",
		})
	}
	if len(req.DocIDs) > maxBatchDocs {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("at most %d documents per batch", maxBatchDocs),
		})
	}
	if req.NumRuns < 0 || req.NumRuns > maxBatchRuns {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("num_runs must be between 1 and %d", maxBatchRuns),
		})
	}

	for _, docID := range req.DocIDs {
		if _, err := h.db.GetDocument(docID); err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": fmt.Sprintf("Document %s not found", docID),
			})
		}
	}

	if req.BatchID == "" {
		req.BatchID = fmt.Sprintf("manual_%s", time.Now().UTC().Format("20060102_150405"))
	}

	if records, err := h.db.GetRunRecords(req.BatchID); err == nil && len(records) > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": fmt.Sprintf("Batch %s already has run records", req.BatchID),
		})
	}

	go func() {
		if _, err := h.runner.RunBatch(context.Background(), req); err != nil {
			logger.Error("Repeatability batch failed",
				zap.String("batch_id", req.BatchID), zap.Error(err))
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"batch_id":  req.BatchID,
		"status":    "running",
		"documents": len(req.DocIDs),
	})
}

// GetRepeatability aggregates one batch's run records into per-pair
// modal status and repeatability.
func (h *RepeatabilityHandler) GetRepeatability(c *fiber.Ctx) error {
	batchID := c.Params("id")
	if !validation.ValidID(batchID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid batch id",
		})
	}

	records, err := h.db.GetRunRecords(batchID)
	if err != nil {
		logger.Error("Failed to load run records", zap.String("batch_id", batchID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load run records",
		})
	}
	if len(records) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Batch has no run records yet",
		})
	}

	results := repeatability.Analyze(records)

	return c.JSON(fiber.Map{
		"batch_id":   batchID,
		"results":    results,
		"pairs":      len(results),
		"total_runs": len(records),
	})
}

// CompareBatches joins two analyzed batches pair by pair.
func (h *RepeatabilityHandler) CompareBatches(c *fiber.Ctx) error {
	baseline := c.Query("baseline")
	candidate := c.Query("candidate")

	if !validation.ValidID(baseline) || !validation.ValidID(candidate) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "baseline and candidate batch ids are required",
		})
	}

	for _, batchID := range []string{baseline, candidate} {
		records, err := h.db.GetRunRecords(batchID)
		if err != nil {
			logger.Error("Failed to load run records", zap.String("batch_id", batchID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to load run records",
			})
		}
		if len(records) == 0 {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": fmt.Sprintf("Batch %s has no run records", batchID),
			})
		}
	}

	comparison, err := h.runner.CompareBatches(baseline, candidate)
	if err != nil {
		logger.Error("Failed to compare batches",
			zap.String("baseline", baseline),
			zap.String("candidate", candidate),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compare batches",
		})
	}

	return c.JSON(comparison)
}

// ListBatches returns recent batch ids, newest first.
func (h *RepeatabilityHandler) ListBatches(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit <= 0 || limit > 500 {
		limit = defaultListLimit
	}

	ids, err := h.db.ListBatchIDs(limit)
	if err != nil {
		logger.Error("Failed to list batches", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list batches",
		})
	}

	return c.JSON(fiber.Map{
		"batches": ids,
		"count":   len(ids),
	})
}
