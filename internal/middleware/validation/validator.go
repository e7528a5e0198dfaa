package validation

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/logger"
)

// Identifiers flow into index filter expressions and graph parameters,
// so they are screened at the boundary rather than trusted downstream.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][\w.:-]{0,63}$`)

type Config struct {
	MaxPages     int
	MaxPageBytes int
	MaxNameChars int
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 2000
	}
	if cfg.MaxPageBytes <= 0 {
		cfg.MaxPageBytes = 1 << 20
	}
	if cfg.MaxNameChars <= 0 {
		cfg.MaxNameChars = 255
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		if ct := c.Get("Content-Type"); ct != "" && !strings.Contains(ct, "application/json") {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "unsupported content type, expected application/json",
			})
		}

		path := c.Path()
		switch {
		case strings.HasSuffix(path, "/api/v1/documents"):
			return validateDocumentBody(c, cfg)
		case strings.HasSuffix(path, "/api/v1/evaluations"):
			return validateEvaluationBody(c)
		case strings.HasSuffix(path, "/api/v1/batches"):
			return validateBatchBody(c)
		}

		return c.Next()
	}
}

func validateDocumentBody(c *fiber.Ctx, cfg Config) error {
	var req struct {
		Name  string   `json:"name"`
		OrgID string   `json:"org_id"`
		Pages []string `json:"pages"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return badRequest(c, "name is required")
	}
	if len(name) > cfg.MaxNameChars || strings.ContainsAny(name, "\x00\n\r") {
		return badRequest(c, "invalid document name")
	}
	if req.OrgID != "" && !idPattern.MatchString(req.OrgID) {
		return rejectIdentifier(c, "org_id")
	}
	if len(req.Pages) == 0 {
		return badRequest(c, "pages must be a non-empty array")
	}
	if len(req.Pages) > cfg.MaxPages {
		return badRequest(c, "too many pages")
	}
	for _, page := range req.Pages {
		if len(page) > cfg.MaxPageBytes {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": "page exceeds maximum size",
			})
		}
	}

	return c.Next()
}

func validateEvaluationBody(c *fiber.Ctx) error {
	var req struct {
		DocID string `json:"doc_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if req.DocID == "" {
		return badRequest(c, "doc_id is required")
	}
	if !idPattern.MatchString(req.DocID) {
		return rejectIdentifier(c, "doc_id")
	}

	return c.Next()
}

func validateBatchBody(c *fiber.Ctx) error {
	var req struct {
		DocIDs         []string `json:"doc_ids"`
		RequirementIDs []string `json:"requirement_ids"`
		BatchID        string   `json:"batch_id"`
		ConfigLabel    string   `json:"config_label"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if len(req.DocIDs) == 0 {
		return badRequest(c, "doc_ids must be a non-empty array")
	}
	for _, id := range req.DocIDs {
		if !idPattern.MatchString(id) {
			return rejectIdentifier(c, "doc_ids")
		}
	}
	for _, id := range req.RequirementIDs {
		if !idPattern.MatchString(id) {
			return rejectIdentifier(c, "requirement_ids")
		}
	}
	if req.BatchID != "" && !idPattern.MatchString(req.BatchID) {
		return rejectIdentifier(c, "batch_id")
	}
	if req.ConfigLabel != "" && !idPattern.MatchString(req.ConfigLabel) {
		return rejectIdentifier(c, "config_label")
	}

	return c.Next()
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func rejectIdentifier(c *fiber.Ctx, field string) error {
	logger.Warn("Rejected malformed identifier",
		zap.String("field", field),
		zap.String("ip", c.IP()),
		zap.String("path", c.Path()),
	)
	return badRequest(c, "invalid "+field)
}

// ValidID reports whether a path or query identifier is safe to pass
// to storage and index layers.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}
