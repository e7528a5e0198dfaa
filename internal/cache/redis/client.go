package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/logger"
)

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// VerdictKey builds the cache key for one evaluation outcome. The
// prompt hash keeps results from different prompt or model revisions
// apart.
func VerdictKey(docID, requirementID, promptHash string) string {
	return fmt.Sprintf("verdict:%s:%s:%s", docID, requirementID, promptHash)
}

func (c *Client) SetVerdict(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal verdict: %w", err)
	}

	err = c.client.Set(ctx, key, data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set verdict cache: %w", err)
	}

	logger.Debug("Verdict cached", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) GetVerdict(ctx context.Context, key string, v interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get verdict cache: %w", err)
	}

	err = json.Unmarshal(data, v)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal verdict: %w", err)
	}

	logger.Debug("Verdict cache hit", zap.String("key", key))
	return true, nil
}

func (c *Client) SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	err = c.client.Set(ctx, fmt.Sprintf("embedding:%s", textHash), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set embedding cache: %w", err)
	}

	logger.Debug("Embedding cached", zap.String("text_hash", textHash))
	return nil
}

func (c *Client) GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("embedding:%s", textHash)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get embedding cache: %w", err)
	}

	var embedding []float32
	err = json.Unmarshal(data, &embedding)
	if err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}

	logger.Debug("Embedding cache hit", zap.String("text_hash", textHash))
	return embedding, true, nil
}

func (c *Client) SetContextFlags(ctx context.Context, docID string, flags map[string]bool, ttl time.Duration) error {
	data, err := json.Marshal(flags)
	if err != nil {
		return fmt.Errorf("failed to marshal context flags: %w", err)
	}

	err = c.client.Set(ctx, fmt.Sprintf("docctx:%s", docID), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set context flags cache: %w", err)
	}

	logger.Debug("Context flags cached", zap.String("doc_id", docID))
	return nil
}

func (c *Client) GetContextFlags(ctx context.Context, docID string) (map[string]bool, bool, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("docctx:%s", docID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get context flags cache: %w", err)
	}

	var flags map[string]bool
	err = json.Unmarshal(data, &flags)
	if err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal context flags: %w", err)
	}

	logger.Debug("Context flags cache hit", zap.String("doc_id", docID))
	return flags, true, nil
}

// InvalidateDocument drops every cached entry keyed to a document.
// Called when a document is re-ingested or deleted.
func (c *Client) InvalidateDocument(ctx context.Context, docID string) error {
	patterns := []string{
		fmt.Sprintf("verdict:%s:*", docID),
		fmt.Sprintf("docctx:%s", docID),
	}

	for _, pattern := range patterns {
		iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			err := c.client.Del(ctx, iter.Val()).Err()
			if err != nil {
				logger.Warn("Failed to delete cache key", zap.Error(err))
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to iterate cache keys: %w", err)
		}
	}

	logger.Info("Document cache invalidated", zap.String("doc_id", docID))
	return nil
}
