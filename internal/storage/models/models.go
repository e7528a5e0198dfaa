package models

import "time"

type Document struct {
	ID          string
	Name        string
	OrgID       string
	ContentHash string
	PageCount   int
	WordCount   int
	ChunkCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type DocumentChunk struct {
	ID           string
	DocID        string
	OrgID        string
	ChunkIndex   int
	Page         int
	SectionPath  string
	ArtifactType string
	RiskContent  bool
	WordCount    int
	Text         string
	CreatedAt    time.Time
}

// ChunkHit is a chunk returned by an index search together with the
// strategy's raw score, normalized so that higher is better.
type ChunkHit struct {
	ChunkID      string
	DocID        string
	Page         int
	SectionPath  string
	ArtifactType string
	Text         string
	Score        float64
}

// ChunkFilter scopes index searches. DocID is always required; the
// remaining fields narrow the candidate set when set.
type ChunkFilter struct {
	DocID        string
	OrgID        string
	ArtifactType string
	RiskOnly     bool
}

type Requirement struct {
	ID                 string
	Clause             string
	Title              string
	Text               string
	AcceptanceCriteria string
	Priority           string
	Hints              []string
	TypicalArtifacts   []string
	CreatedAt          time.Time
}

type DocumentEvaluation struct {
	ID                string
	DocID             string
	OrgID             string
	Status            string
	Error             string
	RequirementsTotal int
	RequirementsDone  int
	StartedAt         *time.Time
	CompletedAt       *time.Time
	CreatedAt         time.Time
}

type RequirementVerdict struct {
	ID                   string
	EvaluationID         string
	DocID                string
	RequirementID        string
	Status               string
	Rationale            string
	EvidenceSummary      string
	Citations            string
	Coverage             string
	InterpretationRisk   string
	EvidenceStrength     string
	EvidenceType         string
	Confidence           float64
	ConsensusApplied     bool
	ConsensusNote        string
	GapAnalysis          string
	CandidatesConsidered int
	LatencyMS            int
	CreatedAt            time.Time
}

type RunRecord struct {
	ID            int64
	BatchID       string
	ConfigLabel   string
	DocID         string
	RequirementID string
	RunIndex      int
	ModelLabel    string
	Status        string
	RawOutput     string
	CreatedAt     time.Time
}

type ComplianceReport struct {
	ID           string
	EvaluationID string
	DocID        string
	Score        float64
	Report       string
	CreatedAt    time.Time
}
