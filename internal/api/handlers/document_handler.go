package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/ingestion"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/middleware/validation"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/sqlite"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/trace"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/logger"
)

type DocumentHandler struct {
	processor *ingestion.Processor
	db        *sqlite.Client
	trace     *trace.Builder
}

// NewDocumentHandler wires the document endpoints. trace may be nil;
// the trace endpoint then reports the graph as unavailable.
func NewDocumentHandler(processor *ingestion.Processor, db *sqlite.Client, tr *trace.Builder) *DocumentHandler {
	return &DocumentHandler{
		processor: processor,
		db:        db,
		trace:     tr,
	}
}

// UploadDocument ingests a document's extracted pages. Re-uploading the
// same (org, name) replaces the document; unchanged content is a no-op.
func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	var req struct {
		Name  string   `json:"name"`
		OrgID string   `json:"org_id"`
		Pages []string `json:"pages"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Name == "" || len(req.Pages) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Name and pages are required",
		})
	}

	result, err := h.processor.IngestPages(c.Context(), req.Name, req.OrgID, req.Pages)
	if err != nil {
		logger.Error("Failed to ingest document", zap.String("name", req.Name), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to ingest document",
		})
	}

	status := fiber.StatusCreated
	if result.Unchanged || result.Reingested {
		status = fiber.StatusOK
	}

	return c.Status(status).JSON(result)
}

// ListDocuments returns an organization's documents, most recently
// updated first.
func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	orgID := c.Query("org_id")
	limit := c.QueryInt("limit", defaultListLimit)
	if limit <= 0 || limit > 500 {
		limit = defaultListLimit
	}

	docs, err := h.db.ListDocuments(orgID, limit)
	if err != nil {
		logger.Error("Failed to list documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list documents",
		})
	}

	items := make([]fiber.Map, 0, len(docs))
	for i := range docs {
		items = append(items, documentJSON(&docs[i]))
	}

	return c.JSON(fiber.Map{
		"documents": items,
		"count":     len(items),
	})
}

// GetDocument returns one document's metadata.
func (h *DocumentHandler) GetDocument(c *fiber.Ctx) error {
	id := c.Params("id")
	if !validation.ValidID(id) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid document id",
		})
	}

	doc, err := h.db.GetDocument(id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Document not found",
		})
	}

	return c.JSON(documentJSON(doc))
}

// GetTrace lists the evidence links recorded against a document in the
// traceability graph.
func (h *DocumentHandler) GetTrace(c *fiber.Ctx) error {
	id := c.Params("id")
	if !validation.ValidID(id) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid document id",
		})
	}

	if h.trace == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Traceability graph is not configured",
		})
	}

	if _, err := h.db.GetDocument(id); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Document not found",
		})
	}

	links, err := h.trace.DocumentTrace(c.Context(), id)
	if err != nil {
		logger.Error("Failed to load document trace", zap.String("doc_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load document trace",
		})
	}

	return c.JSON(fiber.Map{
		"doc_id": id,
		"links":  links,
		"count":  len(links),
	})
}

func documentJSON(doc *models.Document) fiber.Map {
	return fiber.Map{
		"doc_id":       doc.ID,
		"name":         doc.Name,
		"org_id":       doc.OrgID,
		"content_hash": doc.ContentHash,
		"page_count":   doc.PageCount,
		"word_count":   doc.WordCount,
		"chunk_count":  doc.ChunkCount,
		"created_at":   doc.CreatedAt,
		"updated_at":   doc.UpdatedAt,
	}
}
