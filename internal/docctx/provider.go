package docctx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/cache/redis"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/evidence"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/metrics"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/sqlite"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/logger"
)

const cacheTTL = 24 * time.Hour

// flagProbes are the whole-document signals passed to the judgement
// prompt. Each flag is true when any of its patterns appears anywhere
// in the document text.
var flagProbes = []struct {
	name     string
	patterns []string
}{
	{"mentions risk management plan", []string{"risk management plan"}},
	{"mentions risk management file", []string{"risk management file"}},
	{"mentions iso 14971", []string{"iso 14971", "iso14971"}},
	{"mentions risk acceptability criteria", []string{"acceptability criteria", "risk acceptance criteria"}},
	{"mentions hazard identification", []string{"hazard"}},
	{"mentions residual risk", []string{"residual risk"}},
	{"mentions post-production monitoring", []string{"post-production", "post production"}},
	{"mentions verification activities", []string{"verification"}},
}

// Provider derives boolean context flags from a document's chunks.
// Flags are document-wide, so they are computed once and cached.
type Provider struct {
	db    *sqlite.Client
	cache *redis.Client
}

// NewProvider returns a flag provider. cache may be nil; flags are
// then recomputed on every call.
func NewProvider(db *sqlite.Client, cache *redis.Client) *Provider {
	return &Provider{db: db, cache: cache}
}

// Flags returns the context flags for a document, computing and
// caching them on first use.
func (p *Provider) Flags(ctx context.Context, docID string) (map[string]bool, error) {
	if p.cache != nil {
		flags, found, err := p.cache.GetContextFlags(ctx, docID)
		if err != nil {
			logger.Warn("Context flag cache lookup failed", zap.String("doc_id", docID), zap.Error(err))
		} else if found {
			metrics.CacheHits.WithLabelValues("docctx").Inc()
			return flags, nil
		}
		metrics.CacheMisses.WithLabelValues("docctx").Inc()
	}

	chunks, err := p.db.GetChunksByDoc(docID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks for context flags: %w", err)
	}

	var text strings.Builder
	types := make(map[string]bool, 4)
	for _, chunk := range chunks {
		text.WriteString(strings.ToLower(chunk.Text))
		text.WriteByte('\n')
		types[chunk.ArtifactType] = true
	}

	flags := computeFlags(text.String(), types)

	if p.cache != nil {
		if err := p.cache.SetContextFlags(ctx, docID, flags, cacheTTL); err != nil {
			logger.Warn("Failed to cache context flags", zap.String("doc_id", docID), zap.Error(err))
		}
	}

	return flags, nil
}

// Invalidate drops a document's cached flags after re-ingestion.
func (p *Provider) Invalidate(ctx context.Context, docID string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.InvalidateDocument(ctx, docID); err != nil {
		logger.Warn("Failed to invalidate context flags", zap.String("doc_id", docID), zap.Error(err))
	}
}

func computeFlags(text string, types map[string]bool) map[string]bool {
	flags := make(map[string]bool, len(flagProbes)+2)

	for _, probe := range flagProbes {
		found := false
		for _, pattern := range probe.patterns {
			if strings.Contains(text, pattern) {
				found = true
				break
			}
		}
		flags[probe.name] = found
	}

	flags["contains tables"] = types[evidence.ArtifactTable]
	flags["contains figures"] = types[evidence.ArtifactFigure]

	return flags
}
