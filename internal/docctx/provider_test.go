package docctx_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/docctx"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/sqlite"
)

func seedDocument(t *testing.T, db *sqlite.Client, docID string, chunks []models.DocumentChunk) {
	t.Helper()

	now := time.Now()
	require.NoError(t, db.InsertDocument(&models.Document{
		ID:          docID,
		Name:        docID + ".pdf",
		OrgID:       "org-1",
		ContentHash: "hash-" + docID,
		PageCount:   3,
		ChunkCount:  len(chunks),
		CreatedAt:   now,
		UpdatedAt:   now,
	}))

	for i := range chunks {
		chunks[i].DocID = docID
		chunks[i].OrgID = "org-1"
		chunks[i].ChunkIndex = i
		if chunks[i].Page == 0 {
			chunks[i].Page = i + 1
		}
		if chunks[i].CreatedAt.IsZero() {
			chunks[i].CreatedAt = now
		}
		require.NoError(t, db.InsertChunk(&chunks[i]))
	}
}

func TestFlagsFromChunkText(t *testing.T) {
	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.InitSchema())

	seedDocument(t, db, "doc-1", []models.DocumentChunk{
		{
			ID:           "c1",
			SectionPath:  "4 > 4.4",
			ArtifactType: "text",
			Text:         "The Risk Management Plan defines scope per ISO 14971.",
		},
		{
			ID:           "c2",
			SectionPath:  "5 > 5.1",
			ArtifactType: "table",
			Text:         "| Hazard | Severity |\n| Burn | High |",
		},
	})

	provider := docctx.NewProvider(db, nil)
	flags, err := provider.Flags(context.Background(), "doc-1")
	require.NoError(t, err)

	assert.True(t, flags["mentions risk management plan"])
	assert.True(t, flags["mentions iso 14971"])
	assert.True(t, flags["mentions hazard identification"])
	assert.True(t, flags["contains tables"])
	assert.False(t, flags["contains figures"])
	assert.False(t, flags["mentions residual risk"])
	assert.False(t, flags["mentions post-production monitoring"])
}

func TestFlagsEmptyDocument(t *testing.T) {
	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.InitSchema())

	seedDocument(t, db, "doc-empty", nil)

	provider := docctx.NewProvider(db, nil)
	flags, err := provider.Flags(context.Background(), "doc-empty")
	require.NoError(t, err)

	for name, value := range flags {
		assert.False(t, value, "flag %q should be false for an empty document", name)
	}
}
