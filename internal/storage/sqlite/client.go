package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS requirements (
		id TEXT PRIMARY KEY,
		clause TEXT NOT NULL,
		title TEXT NOT NULL,
		text TEXT NOT NULL,
		acceptance_criteria TEXT,
		priority TEXT,
		hints TEXT,
		typical_artifacts TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_requirements_clause ON requirements(clause);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		org_id TEXT NOT NULL,
		content_hash TEXT,
		page_count INTEGER DEFAULT 0,
		word_count INTEGER DEFAULT 0,
		chunk_count INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_org ON documents(org_id);
	CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(updated_at);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL,
		org_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		page INTEGER NOT NULL,
		section_path TEXT,
		artifact_type TEXT NOT NULL,
		risk_content INTEGER DEFAULT 0,
		word_count INTEGER DEFAULT 0,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (doc_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON document_chunks(doc_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_org ON document_chunks(org_id);

	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		text,
		content='document_chunks',
		content_rowid='rowid'
	);
	CREATE TRIGGER IF NOT EXISTS chunks_fts_insert AFTER INSERT ON document_chunks BEGIN
		INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
	END;
	CREATE TRIGGER IF NOT EXISTS chunks_fts_delete AFTER DELETE ON document_chunks BEGIN
		INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
	END;

	CREATE TABLE IF NOT EXISTS document_evaluations (
		id TEXT PRIMARY KEY,
		doc_id TEXT NOT NULL,
		org_id TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		requirements_total INTEGER DEFAULT 0,
		requirements_done INTEGER DEFAULT 0,
		started_at INTEGER,
		completed_at INTEGER,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (doc_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_evaluations_doc ON document_evaluations(doc_id);
	CREATE INDEX IF NOT EXISTS idx_evaluations_status ON document_evaluations(status);
	CREATE INDEX IF NOT EXISTS idx_evaluations_created ON document_evaluations(created_at);

	CREATE TABLE IF NOT EXISTS requirement_verdicts (
		id TEXT PRIMARY KEY,
		evaluation_id TEXT NOT NULL,
		doc_id TEXT NOT NULL,
		requirement_id TEXT NOT NULL,
		status TEXT NOT NULL,
		rationale TEXT,
		evidence_summary TEXT,
		citations TEXT,
		coverage TEXT,
		interpretation_risk TEXT,
		evidence_strength TEXT,
		evidence_type TEXT,
		confidence REAL,
		consensus_applied INTEGER DEFAULT 0,
		consensus_note TEXT,
		gap_analysis TEXT,
		candidates_considered INTEGER DEFAULT 0,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (evaluation_id) REFERENCES document_evaluations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_verdicts_evaluation ON requirement_verdicts(evaluation_id);
	CREATE INDEX IF NOT EXISTS idx_verdicts_requirement ON requirement_verdicts(requirement_id);
	CREATE INDEX IF NOT EXISTS idx_verdicts_status ON requirement_verdicts(status);

	CREATE TABLE IF NOT EXISTS run_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL,
		config_label TEXT NOT NULL,
		doc_id TEXT NOT NULL,
		requirement_id TEXT NOT NULL,
		run_index INTEGER NOT NULL,
		model_label TEXT,
		status TEXT NOT NULL,
		raw_output TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_batch ON run_records(batch_id);
	CREATE INDEX IF NOT EXISTS idx_runs_pair ON run_records(doc_id, requirement_id);

	CREATE TABLE IF NOT EXISTS compliance_reports (
		id TEXT PRIMARY KEY,
		evaluation_id TEXT NOT NULL UNIQUE,
		doc_id TEXT NOT NULL,
		score REAL,
		report TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (evaluation_id) REFERENCES document_evaluations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_reports_doc ON compliance_reports(doc_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertRequirement(req *models.Requirement) error {
	hintsJSON, _ := json.Marshal(req.Hints)
	typicalJSON, _ := json.Marshal(req.TypicalArtifacts)

	query := `
		INSERT INTO requirements (id, clause, title, text, acceptance_criteria, priority, hints, typical_artifacts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			clause = excluded.clause,
			title = excluded.title,
			text = excluded.text,
			acceptance_criteria = excluded.acceptance_criteria,
			priority = excluded.priority,
			hints = excluded.hints,
			typical_artifacts = excluded.typical_artifacts
	`

	_, err := c.db.Exec(
		query,
		req.ID,
		req.Clause,
		req.Title,
		req.Text,
		req.AcceptanceCriteria,
		req.Priority,
		string(hintsJSON),
		string(typicalJSON),
		req.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert requirement: %w", err)
	}

	return nil
}

func (c *Client) GetRequirement(id string) (*models.Requirement, error) {
	query := `SELECT id, clause, title, text, acceptance_criteria, priority, hints, typical_artifacts, created_at FROM requirements WHERE id = ?`

	var req models.Requirement
	var hintsJSON, typicalJSON string
	var createdAt int64

	err := c.db.QueryRow(query, id).Scan(
		&req.ID,
		&req.Clause,
		&req.Title,
		&req.Text,
		&req.AcceptanceCriteria,
		&req.Priority,
		&hintsJSON,
		&typicalJSON,
		&createdAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get requirement: %w", err)
	}

	json.Unmarshal([]byte(hintsJSON), &req.Hints)
	json.Unmarshal([]byte(typicalJSON), &req.TypicalArtifacts)
	req.CreatedAt = time.Unix(createdAt, 0)

	return &req, nil
}

func (c *Client) ListRequirements() ([]models.Requirement, error) {
	query := `SELECT id, clause, title, text, acceptance_criteria, priority, hints, typical_artifacts, created_at FROM requirements ORDER BY clause, id`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list requirements: %w", err)
	}
	defer rows.Close()

	var reqs []models.Requirement
	for rows.Next() {
		var req models.Requirement
		var hintsJSON, typicalJSON string
		var createdAt int64

		err := rows.Scan(
			&req.ID,
			&req.Clause,
			&req.Title,
			&req.Text,
			&req.AcceptanceCriteria,
			&req.Priority,
			&hintsJSON,
			&typicalJSON,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		json.Unmarshal([]byte(hintsJSON), &req.Hints)
		json.Unmarshal([]byte(typicalJSON), &req.TypicalArtifacts)
		req.CreatedAt = time.Unix(createdAt, 0)
		reqs = append(reqs, req)
	}

	return reqs, nil
}

func (c *Client) InsertDocument(doc *models.Document) error {
	query := `
		INSERT INTO documents (id, name, org_id, content_hash, page_count, word_count, chunk_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			content_hash = excluded.content_hash,
			page_count = excluded.page_count,
			word_count = excluded.word_count,
			chunk_count = excluded.chunk_count,
			updated_at = excluded.updated_at
	`

	_, err := c.db.Exec(
		query,
		doc.ID,
		doc.Name,
		doc.OrgID,
		doc.ContentHash,
		doc.PageCount,
		doc.WordCount,
		doc.ChunkCount,
		doc.CreatedAt.Unix(),
		doc.UpdatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	logger.Debug("Document inserted", zap.String("doc_id", doc.ID), zap.String("name", doc.Name))
	return nil
}

func (c *Client) GetDocument(id string) (*models.Document, error) {
	query := `SELECT id, name, org_id, content_hash, page_count, word_count, chunk_count, created_at, updated_at FROM documents WHERE id = ?`

	var doc models.Document
	var createdAt, updatedAt int64

	err := c.db.QueryRow(query, id).Scan(
		&doc.ID,
		&doc.Name,
		&doc.OrgID,
		&doc.ContentHash,
		&doc.PageCount,
		&doc.WordCount,
		&doc.ChunkCount,
		&createdAt,
		&updatedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc.CreatedAt = time.Unix(createdAt, 0)
	doc.UpdatedAt = time.Unix(updatedAt, 0)

	return &doc, nil
}

func (c *Client) ListDocuments(orgID string, limit int) ([]models.Document, error) {
	query := `
		SELECT id, name, org_id, content_hash, page_count, word_count, chunk_count, created_at, updated_at
		FROM documents
		WHERE org_id = ?
		ORDER BY updated_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		var createdAt, updatedAt int64

		err := rows.Scan(
			&doc.ID,
			&doc.Name,
			&doc.OrgID,
			&doc.ContentHash,
			&doc.PageCount,
			&doc.WordCount,
			&doc.ChunkCount,
			&createdAt,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		doc.CreatedAt = time.Unix(createdAt, 0)
		doc.UpdatedAt = time.Unix(updatedAt, 0)
		docs = append(docs, doc)
	}

	return docs, nil
}

func (c *Client) DeleteDocument(id string) error {
	_, err := c.db.Exec(`DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	logger.Info("Document deleted", zap.String("doc_id", id))
	return nil
}

func (c *Client) InsertChunk(chunk *models.DocumentChunk) error {
	query := `
		INSERT INTO document_chunks (id, doc_id, org_id, chunk_index, page, section_path, artifact_type, risk_content, word_count, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	riskContent := 0
	if chunk.RiskContent {
		riskContent = 1
	}

	_, err := c.db.Exec(
		query,
		chunk.ID,
		chunk.DocID,
		chunk.OrgID,
		chunk.ChunkIndex,
		chunk.Page,
		chunk.SectionPath,
		chunk.ArtifactType,
		riskContent,
		chunk.WordCount,
		chunk.Text,
		chunk.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}

	return nil
}

func (c *Client) GetChunksByDoc(docID string) ([]models.DocumentChunk, error) {
	query := `
		SELECT id, doc_id, org_id, chunk_index, page, section_path, artifact_type, risk_content, word_count, text, created_at
		FROM document_chunks
		WHERE doc_id = ?
		ORDER BY chunk_index
	`

	rows, err := c.db.Query(query, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.DocumentChunk
	for rows.Next() {
		var chunk models.DocumentChunk
		var riskContent int
		var createdAt int64

		err := rows.Scan(
			&chunk.ID,
			&chunk.DocID,
			&chunk.OrgID,
			&chunk.ChunkIndex,
			&chunk.Page,
			&chunk.SectionPath,
			&chunk.ArtifactType,
			&riskContent,
			&chunk.WordCount,
			&chunk.Text,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		chunk.RiskContent = riskContent == 1
		chunk.CreatedAt = time.Unix(createdAt, 0)
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

func (c *Client) DeleteChunksByDoc(docID string) error {
	_, err := c.db.Exec(`DELETE FROM document_chunks WHERE doc_id = ?`, docID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// SearchKeyword runs a BM25 full-text search over the chunk index.
// The returned scores are negated bm25 ranks, so higher is better.
func (c *Client) SearchKeyword(terms []string, filter models.ChunkFilter, topK int) ([]models.ChunkHit, error) {
	match := buildMatchExpr(terms)
	if match == "" {
		return nil, nil
	}

	query := `
		SELECT ch.id, ch.doc_id, ch.page, ch.section_path, ch.artifact_type, ch.text, bm25(chunks_fts) AS rank
		FROM chunks_fts
		JOIN document_chunks ch ON ch.rowid = chunks_fts.rowid
		WHERE chunks_fts MATCH ? AND ch.doc_id = ?
	`
	args := []interface{}{match, filter.DocID}

	if filter.OrgID != "" {
		query += ` AND ch.org_id = ?`
		args = append(args, filter.OrgID)
	}
	if filter.ArtifactType != "" {
		query += ` AND ch.artifact_type = ?`
		args = append(args, filter.ArtifactType)
	}
	if filter.RiskOnly {
		query += ` AND ch.risk_content = 1`
	}

	query += ` ORDER BY rank LIMIT ?`
	args = append(args, topK)

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var hits []models.ChunkHit
	for rows.Next() {
		var hit models.ChunkHit
		var rank float64

		err := rows.Scan(
			&hit.ChunkID,
			&hit.DocID,
			&hit.Page,
			&hit.SectionPath,
			&hit.ArtifactType,
			&hit.Text,
			&rank,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		hit.Score = -rank
		if hit.Score < 0 {
			hit.Score = 0
		}
		hits = append(hits, hit)
	}

	return hits, nil
}

// buildMatchExpr turns plain terms into an FTS5 OR query, quoting each
// term so user text cannot inject FTS syntax.
func buildMatchExpr(terms []string) string {
	var quoted []string
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		quoted = append(quoted, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " OR ")
}

func (c *Client) InsertEvaluation(eval *models.DocumentEvaluation) error {
	query := `
		INSERT INTO document_evaluations (id, doc_id, org_id, status, error, requirements_total, requirements_done, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		eval.ID,
		eval.DocID,
		eval.OrgID,
		eval.Status,
		eval.Error,
		eval.RequirementsTotal,
		eval.RequirementsDone,
		eval.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert evaluation: %w", err)
	}

	logger.Info("Evaluation created",
		zap.String("evaluation_id", eval.ID),
		zap.String("doc_id", eval.DocID),
	)

	return nil
}

func (c *Client) MarkEvaluationStarted(id string) error {
	query := `UPDATE document_evaluations SET status = 'in_progress', started_at = ? WHERE id = ?`

	_, err := c.db.Exec(query, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark evaluation started: %w", err)
	}
	return nil
}

func (c *Client) MarkEvaluationCompleted(id string) error {
	query := `UPDATE document_evaluations SET status = 'completed', completed_at = ? WHERE id = ?`

	_, err := c.db.Exec(query, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark evaluation completed: %w", err)
	}
	return nil
}

func (c *Client) MarkEvaluationFailed(id string, errMsg string) error {
	query := `UPDATE document_evaluations SET status = 'error', error = ?, completed_at = ? WHERE id = ?`

	_, err := c.db.Exec(query, errMsg, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark evaluation failed: %w", err)
	}
	return nil
}

func (c *Client) UpdateEvaluationProgress(id string, done int) error {
	query := `UPDATE document_evaluations SET requirements_done = ? WHERE id = ?`

	_, err := c.db.Exec(query, done, id)
	if err != nil {
		return fmt.Errorf("failed to update evaluation progress: %w", err)
	}
	return nil
}

func (c *Client) GetEvaluation(id string) (*models.DocumentEvaluation, error) {
	query := `
		SELECT id, doc_id, org_id, status, error, requirements_total, requirements_done, started_at, completed_at, created_at
		FROM document_evaluations
		WHERE id = ?
	`

	var eval models.DocumentEvaluation
	var startedAt, completedAt sql.NullInt64
	var createdAt int64

	err := c.db.QueryRow(query, id).Scan(
		&eval.ID,
		&eval.DocID,
		&eval.OrgID,
		&eval.Status,
		&eval.Error,
		&eval.RequirementsTotal,
		&eval.RequirementsDone,
		&startedAt,
		&completedAt,
		&createdAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get evaluation: %w", err)
	}

	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0)
		eval.StartedAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		eval.CompletedAt = &t
	}
	eval.CreatedAt = time.Unix(createdAt, 0)

	return &eval, nil
}

func (c *Client) ListEvaluations(limit int) ([]models.DocumentEvaluation, error) {
	query := `
		SELECT id, doc_id, org_id, status, error, requirements_total, requirements_done, started_at, completed_at, created_at
		FROM document_evaluations
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	var evals []models.DocumentEvaluation
	for rows.Next() {
		var eval models.DocumentEvaluation
		var startedAt, completedAt sql.NullInt64
		var createdAt int64

		err := rows.Scan(
			&eval.ID,
			&eval.DocID,
			&eval.OrgID,
			&eval.Status,
			&eval.Error,
			&eval.RequirementsTotal,
			&eval.RequirementsDone,
			&startedAt,
			&completedAt,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if startedAt.Valid {
			t := time.Unix(startedAt.Int64, 0)
			eval.StartedAt = &t
		}
		if completedAt.Valid {
			t := time.Unix(completedAt.Int64, 0)
			eval.CompletedAt = &t
		}
		eval.CreatedAt = time.Unix(createdAt, 0)
		evals = append(evals, eval)
	}

	return evals, nil
}

func (c *Client) DeleteEvaluation(id string) error {
	_, err := c.db.Exec(`DELETE FROM document_evaluations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete evaluation: %w", err)
	}

	logger.Info("Evaluation deleted", zap.String("evaluation_id", id))
	return nil
}

func (c *Client) InsertVerdict(v *models.RequirementVerdict) error {
	query := `
		INSERT INTO requirement_verdicts (id, evaluation_id, doc_id, requirement_id, status, rationale,
			evidence_summary, citations, coverage, interpretation_risk, evidence_strength, evidence_type,
			confidence, consensus_applied, consensus_note, gap_analysis, candidates_considered, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	consensusApplied := 0
	if v.ConsensusApplied {
		consensusApplied = 1
	}

	_, err := c.db.Exec(
		query,
		v.ID,
		v.EvaluationID,
		v.DocID,
		v.RequirementID,
		v.Status,
		v.Rationale,
		v.EvidenceSummary,
		v.Citations,
		v.Coverage,
		v.InterpretationRisk,
		v.EvidenceStrength,
		v.EvidenceType,
		v.Confidence,
		consensusApplied,
		v.ConsensusNote,
		v.GapAnalysis,
		v.CandidatesConsidered,
		v.LatencyMS,
		v.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert verdict: %w", err)
	}

	return nil
}

func (c *Client) GetVerdictsByEvaluation(evaluationID string) ([]models.RequirementVerdict, error) {
	query := `
		SELECT id, evaluation_id, doc_id, requirement_id, status, rationale, evidence_summary, citations,
			coverage, interpretation_risk, evidence_strength, evidence_type, confidence, consensus_applied,
			consensus_note, gap_analysis, candidates_considered, latency_ms, created_at
		FROM requirement_verdicts
		WHERE evaluation_id = ?
		ORDER BY requirement_id
	`

	rows, err := c.db.Query(query, evaluationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get verdicts: %w", err)
	}
	defer rows.Close()

	var verdicts []models.RequirementVerdict
	for rows.Next() {
		var v models.RequirementVerdict
		var consensusApplied int
		var createdAt int64

		err := rows.Scan(
			&v.ID,
			&v.EvaluationID,
			&v.DocID,
			&v.RequirementID,
			&v.Status,
			&v.Rationale,
			&v.EvidenceSummary,
			&v.Citations,
			&v.Coverage,
			&v.InterpretationRisk,
			&v.EvidenceStrength,
			&v.EvidenceType,
			&v.Confidence,
			&consensusApplied,
			&v.ConsensusNote,
			&v.GapAnalysis,
			&v.CandidatesConsidered,
			&v.LatencyMS,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		v.ConsensusApplied = consensusApplied == 1
		v.CreatedAt = time.Unix(createdAt, 0)
		verdicts = append(verdicts, v)
	}

	return verdicts, nil
}

func (c *Client) InsertRunRecord(record *models.RunRecord) error {
	query := `
		INSERT INTO run_records (batch_id, config_label, doc_id, requirement_id, run_index, model_label, status, raw_output, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		record.BatchID,
		record.ConfigLabel,
		record.DocID,
		record.RequirementID,
		record.RunIndex,
		record.ModelLabel,
		record.Status,
		record.RawOutput,
		record.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert run record: %w", err)
	}

	return nil
}

func (c *Client) GetRunRecords(batchID string) ([]models.RunRecord, error) {
	query := `
		SELECT id, batch_id, config_label, doc_id, requirement_id, run_index, model_label, status, raw_output, created_at
		FROM run_records
		WHERE batch_id = ?
		ORDER BY doc_id, requirement_id, run_index
	`

	rows, err := c.db.Query(query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run records: %w", err)
	}
	defer rows.Close()

	var records []models.RunRecord
	for rows.Next() {
		var r models.RunRecord
		var createdAt int64

		err := rows.Scan(
			&r.ID,
			&r.BatchID,
			&r.ConfigLabel,
			&r.DocID,
			&r.RequirementID,
			&r.RunIndex,
			&r.ModelLabel,
			&r.Status,
			&r.RawOutput,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, nil
}

func (c *Client) ListBatchIDs(limit int) ([]string, error) {
	query := `
		SELECT batch_id
		FROM run_records
		GROUP BY batch_id
		ORDER BY MIN(created_at) DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func (c *Client) InsertReport(report *models.ComplianceReport) error {
	query := `
		INSERT INTO compliance_reports (id, evaluation_id, doc_id, score, report, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(evaluation_id) DO UPDATE SET
			score = excluded.score,
			report = excluded.report,
			created_at = excluded.created_at
	`

	_, err := c.db.Exec(
		query,
		report.ID,
		report.EvaluationID,
		report.DocID,
		report.Score,
		report.Report,
		report.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	logger.Info("Compliance report stored",
		zap.String("evaluation_id", report.EvaluationID),
		zap.Float64("score", report.Score),
	)

	return nil
}

func (c *Client) GetReportByEvaluation(evaluationID string) (*models.ComplianceReport, error) {
	query := `SELECT id, evaluation_id, doc_id, score, report, created_at FROM compliance_reports WHERE evaluation_id = ?`

	var report models.ComplianceReport
	var createdAt int64

	err := c.db.QueryRow(query, evaluationID).Scan(
		&report.ID,
		&report.EvaluationID,
		&report.DocID,
		&report.Score,
		&report.Report,
		&createdAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	report.CreatedAt = time.Unix(createdAt, 0)

	return &report, nil
}
