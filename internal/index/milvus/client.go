package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/logger"
)

// Client wraps the Milvus collection that stores chunk embeddings for
// every indexed document. Scores returned from searches are similarities
// derived from L2 distance, so higher is always better.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

func NewClient(endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(
		context.Background(),
		endpoint,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) CreateCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Device document chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
			{
				Name:     "doc_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "org_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "page",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "section_path",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
			{
				Name:     "artifact_type",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
			{
				Name:     "risk_content",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "text",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "12288",
				},
			},
		},
	}

	err = m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, _ := entity.NewIndexIvfFlat(entity.L2, 1024)
	err = m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = m.client.LoadCollection(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

func (m *Client) InsertChunks(ctx context.Context, chunks []models.DocumentChunk, embeddings [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("chunk and embedding counts differ: %d vs %d", len(chunks), len(embeddings))
	}

	chunkIDs := make([]string, len(chunks))
	docIDs := make([]string, len(chunks))
	orgIDs := make([]string, len(chunks))
	pages := make([]int64, len(chunks))
	sectionPaths := make([]string, len(chunks))
	artifactTypes := make([]string, len(chunks))
	riskContent := make([]int64, len(chunks))
	texts := make([]string, len(chunks))

	for i, chunk := range chunks {
		chunkIDs[i] = chunk.ID
		docIDs[i] = chunk.DocID
		orgIDs[i] = chunk.OrgID
		pages[i] = int64(chunk.Page)
		sectionPaths[i] = chunk.SectionPath
		artifactTypes[i] = chunk.ArtifactType
		if chunk.RiskContent {
			riskContent[i] = 1
		}
		texts[i] = chunk.Text
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
		entity.NewColumnVarChar("doc_id", docIDs),
		entity.NewColumnVarChar("org_id", orgIDs),
		entity.NewColumnInt64("page", pages),
		entity.NewColumnVarChar("section_path", sectionPaths),
		entity.NewColumnVarChar("artifact_type", artifactTypes),
		entity.NewColumnInt64("risk_content", riskContent),
		entity.NewColumnVarChar("text", texts),
	)

	if err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	err = m.client.Flush(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Chunks inserted into vector index", zap.Int("count", len(chunks)))

	return nil
}

// SearchChunks runs an approximate nearest-neighbour search scoped by
// the filter. Every search is at minimum scoped to one document.
func (m *Client) SearchChunks(ctx context.Context, queryEmbedding []float32, filter models.ChunkFilter, topK int) ([]models.ChunkHit, error) {
	expr := buildExpr(filter)

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		[]string{"chunk_id", "doc_id", "page", "section_path", "artifact_type", "text"},
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.L2,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	hits := make([]models.ChunkHit, 0)
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			chunkIDCol := sr.Fields.GetColumn("chunk_id")
			docIDCol := sr.Fields.GetColumn("doc_id")
			pageCol := sr.Fields.GetColumn("page")
			sectionCol := sr.Fields.GetColumn("section_path")
			artifactCol := sr.Fields.GetColumn("artifact_type")
			textCol := sr.Fields.GetColumn("text")

			chunkID, _ := chunkIDCol.Get(i)
			docID, _ := docIDCol.Get(i)
			page, _ := pageCol.Get(i)
			sectionPath, _ := sectionCol.Get(i)
			artifactType, _ := artifactCol.Get(i)
			text, _ := textCol.Get(i)

			hits = append(hits, models.ChunkHit{
				ChunkID:      chunkID.(string),
				DocID:        docID.(string),
				Page:         int(page.(int64)),
				SectionPath:  sectionPath.(string),
				ArtifactType: artifactType.(string),
				Text:         text.(string),
				Score:        distanceToSimilarity(sr.Scores[i]),
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(hits)),
		zap.String("filters", expr),
	)

	return hits, nil
}

func (m *Client) DeleteByDoc(ctx context.Context, docID string) error {
	expr := fmt.Sprintf(`doc_id == "%s"`, exprEscape(docID))
	if err := m.client.Delete(ctx, m.collectionName, "", expr); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	logger.Info("Chunks removed from vector index", zap.String("doc_id", docID))
	return nil
}

func buildExpr(filter models.ChunkFilter) string {
	expr := fmt.Sprintf(`doc_id == "%s"`, exprEscape(filter.DocID))
	if filter.OrgID != "" {
		expr += fmt.Sprintf(` && org_id == "%s"`, exprEscape(filter.OrgID))
	}
	if filter.ArtifactType != "" {
		expr += fmt.Sprintf(` && artifact_type == "%s"`, exprEscape(filter.ArtifactType))
	}
	if filter.RiskOnly {
		expr += " && risk_content == 1"
	}
	return expr
}

func exprEscape(value string) string {
	return strings.NewReplacer(`"`, ``, `\`, ``).Replace(value)
}

// distanceToSimilarity maps an L2 distance onto (0,1] with 1 meaning an
// exact match.
func distanceToSimilarity(distance float32) float64 {
	d := float64(distance)
	if d < 0 {
		d = 0
	}
	return 1.0 / (1.0 + d)
}
