package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/circuitbreaker"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/logger"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/retry"
)

type Client struct {
	driver      neo4j.DriverWithContext
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

// EvidenceLink is one Requirement-[EVIDENCED_BY]->Document edge.
type EvidenceLink struct {
	RequirementID string  `json:"requirement_id"`
	Clause        string  `json:"clause"`
	Title         string  `json:"title"`
	DocID         string  `json:"doc_id"`
	DocName       string  `json:"doc_name"`
	Status        string  `json:"status"`
	Confidence    float64 `json:"confidence"`
	Pages         []int   `json:"pages"`
	RunID         string  `json:"run_id"`
}

func NewClient(uri, username, password string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx := context.Background()
	err = driver.VerifyConnectivity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	cb := circuitbreaker.NewCircuitBreaker("neo4j", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          20 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Neo4j trace client initialized", zap.String("uri", uri))

	return &Client{
		driver:      driver,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) executeWithRetry(ctx context.Context, operation func(neo4j.SessionWithContext) error) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "neo4j"})
			defer session.Close(ctx)
			return operation(session)
		})
	})
}

func (c *Client) UpsertRequirement(ctx context.Context, id, clause, title string) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "neo4j"})
	defer session.Close(ctx)

	query := `
		MERGE (r:Requirement {id: $id})
		SET r.clause = $clause,
		    r.title = $title,
		    r.updated_at = timestamp()
	`

	_, err := session.Run(ctx, query, map[string]interface{}{
		"id":     id,
		"clause": clause,
		"title":  title,
	})

	if err != nil {
		return fmt.Errorf("failed to upsert requirement: %w", err)
	}

	logger.Debug("Requirement node upserted", zap.String("requirement_id", id))

	return nil
}

func (c *Client) UpsertDocument(ctx context.Context, id, name string) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "neo4j"})
	defer session.Close(ctx)

	query := `
		MERGE (d:Document {id: $id})
		SET d.name = $name,
		    d.updated_at = timestamp()
	`

	_, err := session.Run(ctx, query, map[string]interface{}{
		"id":   id,
		"name": name,
	})

	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	logger.Debug("Document node upserted", zap.String("doc_id", id))

	return nil
}

// RecordEvidence writes the EVIDENCED_BY edge for one verdict. Re-running
// an evaluation overwrites the previous edge for the same pair.
func (c *Client) RecordEvidence(ctx context.Context, link *EvidenceLink) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "neo4j"})
	defer session.Close(ctx)

	query := `
		MATCH (r:Requirement {id: $requirement_id})
		MATCH (d:Document {id: $doc_id})
		MERGE (r)-[e:EVIDENCED_BY]->(d)
		SET e.status = $status,
		    e.confidence = $confidence,
		    e.pages = $pages,
		    e.run_id = $run_id,
		    e.recorded_at = timestamp()
	`

	pages := make([]interface{}, len(link.Pages))
	for i, p := range link.Pages {
		pages[i] = p
	}

	_, err := session.Run(ctx, query, map[string]interface{}{
		"requirement_id": link.RequirementID,
		"doc_id":         link.DocID,
		"status":         link.Status,
		"confidence":     link.Confidence,
		"pages":          pages,
		"run_id":         link.RunID,
	})

	if err != nil {
		return fmt.Errorf("failed to record evidence link: %w", err)
	}

	logger.Debug("Evidence link recorded",
		zap.String("requirement_id", link.RequirementID),
		zap.String("doc_id", link.DocID),
		zap.String("status", link.Status),
	)

	return nil
}

// DocumentTrace returns every evidence link pointing at a document.
func (c *Client) DocumentTrace(ctx context.Context, docID string) ([]EvidenceLink, error) {
	var links []EvidenceLink

	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		query := `
			MATCH (r:Requirement)-[e:EVIDENCED_BY]->(d:Document {id: $doc_id})
			RETURN r.id, r.clause, r.title,
			       d.id, d.name,
			       e.status, e.confidence, e.pages, e.run_id
			ORDER BY r.clause
		`

		result, err := session.Run(ctx, query, map[string]interface{}{
			"doc_id": docID,
		})
		if err != nil {
			return fmt.Errorf("failed to query document trace: %w", err)
		}

		links, err = collectLinks(ctx, result)
		return err
	})

	if err != nil {
		return nil, err
	}

	logger.Info("Document trace queried",
		zap.String("doc_id", docID),
		zap.Int("links_found", len(links)),
	)

	return links, nil
}

// RequirementCoverage returns every document that evidences a requirement.
func (c *Client) RequirementCoverage(ctx context.Context, requirementID string) ([]EvidenceLink, error) {
	var links []EvidenceLink

	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		query := `
			MATCH (r:Requirement {id: $requirement_id})-[e:EVIDENCED_BY]->(d:Document)
			RETURN r.id, r.clause, r.title,
			       d.id, d.name,
			       e.status, e.confidence, e.pages, e.run_id
			ORDER BY e.confidence DESC
		`

		result, err := session.Run(ctx, query, map[string]interface{}{
			"requirement_id": requirementID,
		})
		if err != nil {
			return fmt.Errorf("failed to query requirement coverage: %w", err)
		}

		links, err = collectLinks(ctx, result)
		return err
	})

	if err != nil {
		return nil, err
	}

	return links, nil
}

// RemoveDocument detaches a document node before re-ingestion.
func (c *Client) RemoveDocument(ctx context.Context, docID string) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "neo4j"})
	defer session.Close(ctx)

	query := `
		MATCH (d:Document {id: $doc_id})
		DETACH DELETE d
	`

	_, err := session.Run(ctx, query, map[string]interface{}{
		"doc_id": docID,
	})

	if err != nil {
		return fmt.Errorf("failed to remove document: %w", err)
	}

	return nil
}

func collectLinks(ctx context.Context, result neo4j.ResultWithContext) ([]EvidenceLink, error) {
	var links []EvidenceLink

	for result.Next(ctx) {
		record := result.Record()

		reqID, _ := record.Get("r.id")
		clause, _ := record.Get("r.clause")
		title, _ := record.Get("r.title")
		docID, _ := record.Get("d.id")
		docName, _ := record.Get("d.name")
		status, _ := record.Get("e.status")
		confidence, _ := record.Get("e.confidence")
		rawPages, _ := record.Get("e.pages")
		runID, _ := record.Get("e.run_id")

		var pages []int
		if list, ok := rawPages.([]interface{}); ok {
			for _, item := range list {
				if page, ok := item.(int64); ok {
					pages = append(pages, int(page))
				}
			}
		}

		links = append(links, EvidenceLink{
			RequirementID: asString(reqID),
			Clause:        asString(clause),
			Title:         asString(title),
			DocID:         asString(docID),
			DocName:       asString(docName),
			Status:        asString(status),
			Confidence:    asFloat(confidence),
			Pages:         pages,
			RunID:         asString(runID),
		})
	}

	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}

	return links, nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}
