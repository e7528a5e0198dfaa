package trace

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/catalog"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/trace/neo4j"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/verdict"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/logger"
)

// Builder maintains the requirement-to-document traceability graph.
type Builder struct {
	client  *neo4j.Client
	catalog *catalog.Store
}

func NewBuilder(client *neo4j.Client, cat *catalog.Store) *Builder {
	return &Builder{
		client:  client,
		catalog: cat,
	}
}

// SeedCatalog mirrors the requirement catalogue into the graph so that
// evidence edges always have a requirement node to attach to.
func (b *Builder) SeedCatalog(ctx context.Context) error {
	requirements, err := b.catalog.All()
	if err != nil {
		return fmt.Errorf("failed to load requirement catalogue: %w", err)
	}

	seeded := 0
	for _, req := range requirements {
		if err := b.client.UpsertRequirement(ctx, req.ID, req.Clause, req.Title); err != nil {
			logger.Error("Failed to upsert requirement node", zap.String("requirement_id", req.ID), zap.Error(err))
			continue
		}
		seeded++
	}

	logger.Info("Requirement catalogue seeded into trace graph", zap.Int("count", seeded))
	return nil
}

// RecordVerdict upserts the document node and writes the evidence edge
// for one evaluated requirement.
func (b *Builder) RecordVerdict(ctx context.Context, docID, docName, runID string, v *verdict.Verdict) error {
	if err := b.client.UpsertDocument(ctx, docID, docName); err != nil {
		return err
	}

	link := &neo4j.EvidenceLink{
		RequirementID: v.RequirementID,
		DocID:         docID,
		Status:        v.Status,
		Confidence:    v.CitationConfidence,
		Pages:         citationPages(v.Citations),
		RunID:         runID,
	}

	return b.client.RecordEvidence(ctx, link)
}

// DocumentTrace lists the evidence links recorded against a document.
func (b *Builder) DocumentTrace(ctx context.Context, docID string) ([]neo4j.EvidenceLink, error) {
	return b.client.DocumentTrace(ctx, docID)
}

// RequirementCoverage lists the documents evidencing a requirement.
func (b *Builder) RequirementCoverage(ctx context.Context, requirementID string) ([]neo4j.EvidenceLink, error) {
	return b.client.RequirementCoverage(ctx, requirementID)
}

// RemoveDocument drops a document and its edges before re-ingestion.
func (b *Builder) RemoveDocument(ctx context.Context, docID string) error {
	return b.client.RemoveDocument(ctx, docID)
}

func citationPages(citations []verdict.Citation) []int {
	seen := make(map[int]bool, len(citations))
	var pages []int
	for _, c := range citations {
		if c.Page > 0 && !seen[c.Page] {
			seen[c.Page] = true
			pages = append(pages, c.Page)
		}
	}
	return pages
}
