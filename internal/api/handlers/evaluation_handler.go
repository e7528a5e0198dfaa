package handlers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/catalog"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/evaluation"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/middleware/validation"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/report"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/sqlite"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/trace"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/logger"
)

const defaultListLimit = 50

type EvaluationHandler struct {
	db         *sqlite.Client
	catalog    *catalog.Store
	queue      *evaluation.Queue
	summarizer *report.SummaryGenerator
	trace      *trace.Builder
}

// NewEvaluationHandler wires the evaluation endpoints. summarizer and
// trace may be nil; the report then omits its executive summary and the
// coverage endpoint reports the graph as unavailable.
func NewEvaluationHandler(db *sqlite.Client, cat *catalog.Store, queue *evaluation.Queue, summarizer *report.SummaryGenerator, tr *trace.Builder) *EvaluationHandler {
	return &EvaluationHandler{
		db:         db,
		catalog:    cat,
		queue:      queue,
		summarizer: summarizer,
		trace:      tr,
	}
}

// StartEvaluation creates an evaluation for a document and enqueues it.
func (h *EvaluationHandler) StartEvaluation(c *fiber.Ctx) error {
	var req struct {
		DocID string `json:"doc_id"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.DocID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "doc_id is required",
		})
	}

	doc, err := h.db.GetDocument(req.DocID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Document not found",
		})
	}

	requirements, err := h.catalog.All()
	if err != nil {
		logger.Error("Failed to load requirement catalogue", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load requirement catalogue",
		})
	}

	eval := &models.DocumentEvaluation{
		ID:                uuid.New().String(),
		DocID:             doc.ID,
		OrgID:             doc.OrgID,
		Status:            "queued",
		RequirementsTotal: len(requirements),
		CreatedAt:         time.Now(),
	}

	if err := h.db.InsertEvaluation(eval); err != nil {
		logger.Error("Failed to create evaluation", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create evaluation",
		})
	}

	position, err := h.queue.Enqueue(eval.ID, doc.ID)
	if err != nil {
		if delErr := h.db.DeleteEvaluation(eval.ID); delErr != nil {
			logger.Warn("Failed to clean up unqueued evaluation",
				zap.String("evaluation_id", eval.ID), zap.Error(delErr))
		}
		switch {
		case errors.Is(err, evaluation.ErrQueueFull):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Evaluation queue is full, try again later",
			})
		case errors.Is(err, evaluation.ErrAlreadyQueued):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Evaluation is already queued",
			})
		}
		logger.Error("Failed to enqueue evaluation", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to enqueue evaluation",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"evaluation_id":      eval.ID,
		"doc_id":             doc.ID,
		"status":             eval.Status,
		"queue_position":     position,
		"requirements_total": eval.RequirementsTotal,
	})
}

// ListEvaluations returns recent evaluations, newest first, with queue
// positions filled in for still-waiting ones.
func (h *EvaluationHandler) ListEvaluations(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit <= 0 || limit > 500 {
		limit = defaultListLimit
	}

	evals, err := h.db.ListEvaluations(limit)
	if err != nil {
		logger.Error("Failed to list evaluations", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list evaluations",
		})
	}

	items := make([]fiber.Map, 0, len(evals))
	for i := range evals {
		items = append(items, h.evaluationJSON(&evals[i]))
	}

	return c.JSON(fiber.Map{
		"evaluations": items,
		"count":       len(items),
	})
}

// GetEvaluation returns one evaluation's status.
func (h *EvaluationHandler) GetEvaluation(c *fiber.Ctx) error {
	id := c.Params("id")
	if !validation.ValidID(id) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid evaluation id",
		})
	}

	eval, err := h.db.GetEvaluation(id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Evaluation not found",
		})
	}

	return c.JSON(h.evaluationJSON(eval))
}

// GetResults returns the per-requirement verdicts of an evaluation.
// Citations and gap analyses are stored as JSON and embedded verbatim.
func (h *EvaluationHandler) GetResults(c *fiber.Ctx) error {
	id := c.Params("id")
	if !validation.ValidID(id) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid evaluation id",
		})
	}

	eval, err := h.db.GetEvaluation(id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Evaluation not found",
		})
	}

	verdicts, err := h.db.GetVerdictsByEvaluation(id)
	if err != nil {
		logger.Error("Failed to load verdicts", zap.String("evaluation_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load verdicts",
		})
	}

	results := make([]fiber.Map, 0, len(verdicts))
	for _, v := range verdicts {
		entry := fiber.Map{
			"requirement_id":        v.RequirementID,
			"status":                v.Status,
			"rationale":             v.Rationale,
			"evidence_summary":      v.EvidenceSummary,
			"citations":             embedJSON(v.Citations, "[]"),
			"coverage":              v.Coverage,
			"interpretation_risk":   v.InterpretationRisk,
			"evidence_strength":     v.EvidenceStrength,
			"evidence_type":         v.EvidenceType,
			"confidence":            v.Confidence,
			"consensus_applied":     v.ConsensusApplied,
			"candidates_considered": v.CandidatesConsidered,
			"latency_ms":            v.LatencyMS,
			"created_at":            v.CreatedAt,
		}
		if v.ConsensusNote != "" {
			entry["consensus_note"] = v.ConsensusNote
		}
		if v.GapAnalysis != "" {
			entry["gap_analysis"] = embedJSON(v.GapAnalysis, "null")
		}
		results = append(results, entry)
	}

	return c.JSON(fiber.Map{
		"evaluation_id": id,
		"doc_id":        eval.DocID,
		"status":        eval.Status,
		"results":       results,
		"count":         len(results),
	})
}

// GetReport returns the compliance report for a completed evaluation,
// building and storing it on first request.
func (h *EvaluationHandler) GetReport(c *fiber.Ctx) error {
	id := c.Params("id")
	if !validation.ValidID(id) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid evaluation id",
		})
	}

	if stored, err := h.db.GetReportByEvaluation(id); err == nil {
		return c.JSON(json.RawMessage(stored.Report))
	}

	eval, err := h.db.GetEvaluation(id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Evaluation not found",
		})
	}
	if eval.Status != "completed" {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":  "Evaluation has not completed",
			"status": eval.Status,
		})
	}

	doc, err := h.db.GetDocument(eval.DocID)
	if err != nil {
		logger.Error("Failed to load document for report", zap.String("doc_id", eval.DocID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load document",
		})
	}

	requirements, err := h.catalog.All()
	if err != nil {
		logger.Error("Failed to load requirement catalogue", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load requirement catalogue",
		})
	}

	verdicts, err := h.db.GetVerdictsByEvaluation(id)
	if err != nil {
		logger.Error("Failed to load verdicts", zap.String("evaluation_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load verdicts",
		})
	}

	rep := report.Build(id, doc, requirements, verdicts)
	if h.summarizer != nil {
		rep.ExecutiveSummary = h.summarizer.Generate(c.Context(), rep, requirements, verdicts)
	}

	data, err := json.Marshal(rep)
	if err != nil {
		logger.Error("Failed to marshal report", zap.String("evaluation_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build report",
		})
	}

	record := &models.ComplianceReport{
		ID:           uuid.New().String(),
		EvaluationID: id,
		DocID:        eval.DocID,
		Score:        rep.Score,
		Report:       string(data),
		CreatedAt:    time.Now(),
	}
	if err := h.db.InsertReport(record); err != nil {
		logger.Warn("Failed to store compliance report",
			zap.String("evaluation_id", id), zap.Error(err))
	}

	return c.JSON(rep)
}

// DeleteEvaluation removes an evaluation and its queue entry. An
// evaluation that is currently processing cannot be deleted.
func (h *EvaluationHandler) DeleteEvaluation(c *fiber.Ctx) error {
	id := c.Params("id")
	if !validation.ValidID(id) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid evaluation id",
		})
	}

	if _, err := h.db.GetEvaluation(id); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Evaluation not found",
		})
	}

	if _, status, ok := h.queue.Position(id); ok && status == evaluation.QueueStatusProcessing {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Evaluation is processing and cannot be deleted",
		})
	}

	dequeued := h.queue.Remove(id)

	if err := h.db.DeleteEvaluation(id); err != nil {
		logger.Error("Failed to delete evaluation", zap.String("evaluation_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete evaluation",
		})
	}

	return c.JSON(fiber.Map{
		"evaluation_id": id,
		"deleted":       true,
		"dequeued":      dequeued,
	})
}

// GetQueue returns the evaluation queue state.
func (h *EvaluationHandler) GetQueue(c *fiber.Ctx) error {
	return c.JSON(h.queue.Snapshot())
}

// ListRequirements returns the requirement catalogue.
func (h *EvaluationHandler) ListRequirements(c *fiber.Ctx) error {
	requirements, err := h.catalog.All()
	if err != nil {
		logger.Error("Failed to load requirement catalogue", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load requirement catalogue",
		})
	}

	items := make([]fiber.Map, 0, len(requirements))
	for _, req := range requirements {
		items = append(items, fiber.Map{
			"id":                  req.ID,
			"clause":              req.Clause,
			"title":               req.Title,
			"text":                req.Text,
			"acceptance_criteria": req.AcceptanceCriteria,
			"priority":            req.Priority,
			"hints":               req.Hints,
			"typical_artifacts":   req.TypicalArtifacts,
		})
	}

	return c.JSON(fiber.Map{
		"requirements": items,
		"count":        len(items),
	})
}

// GetRequirementCoverage lists the documents evidencing one requirement
// from the traceability graph.
func (h *EvaluationHandler) GetRequirementCoverage(c *fiber.Ctx) error {
	id := c.Params("id")
	if !validation.ValidID(id) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid requirement id",
		})
	}

	if h.trace == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Traceability graph is not configured",
		})
	}

	if _, err := h.catalog.Get(id); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Requirement not found",
		})
	}

	links, err := h.trace.RequirementCoverage(c.Context(), id)
	if err != nil {
		logger.Error("Failed to load requirement coverage", zap.String("requirement_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load requirement coverage",
		})
	}

	return c.JSON(fiber.Map{
		"requirement_id": id,
		"links":          links,
		"count":          len(links),
	})
}

func (h *EvaluationHandler) evaluationJSON(eval *models.DocumentEvaluation) fiber.Map {
	entry := fiber.Map{
		"evaluation_id":      eval.ID,
		"doc_id":             eval.DocID,
		"org_id":             eval.OrgID,
		"status":             eval.Status,
		"requirements_total": eval.RequirementsTotal,
		"requirements_done":  eval.RequirementsDone,
		"created_at":         eval.CreatedAt,
	}
	if eval.Error != "" {
		entry["error"] = eval.Error
	}
	if eval.StartedAt != nil {
		entry["started_at"] = eval.StartedAt
	}
	if eval.CompletedAt != nil {
		entry["completed_at"] = eval.CompletedAt
	}
	if position, status, ok := h.queue.Position(eval.ID); ok && status == evaluation.QueueStatusQueued {
		entry["queue_position"] = position
	}
	return entry
}

// embedJSON re-embeds a stored JSON column without double encoding,
// falling back when the column is empty or holds malformed output.
func embedJSON(s, fallback string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return json.RawMessage(fallback)
	}
	return json.RawMessage(s)
}
