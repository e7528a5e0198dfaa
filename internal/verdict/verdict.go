package verdict

import "errors"

// ErrEvaluationFailed reports that the model could not produce a
// schema-valid judgement within the retry budget. Callers record an
// error verdict instead of guessing a status.
var ErrEvaluationFailed = errors.New("evaluation failed")

// Status labels for a requirement evaluation.
const (
	StatusPass          = "PASS"
	StatusFail          = "FAIL"
	StatusFlagged       = "FLAGGED"
	StatusNotApplicable = "NOT_APPLICABLE"
)

// Coverage tags describing how much of the requirement the evidence
// reaches.
const (
	CoverageComplete = "complete"
	CoveragePartial  = "partial"
	CoverageMinimal  = "minimal"
)

// Interpretation risk tags.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// ValidStatus reports whether s is one of the four verdict statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusPass, StatusFail, StatusFlagged, StatusNotApplicable:
		return true
	}
	return false
}

// Citation points at a verbatim span of document text backing a
// verdict. The verifier may rewrite Quote to the matched span or zero
// out Confidence when nothing close enough exists.
type Citation struct {
	Page         int     `json:"page"`
	Quote        string  `json:"quote"`
	SectionID    string  `json:"section_id,omitempty"`
	Confidence   float64 `json:"confidence"`
	Verified     bool    `json:"verified"`
	Repaired     bool    `json:"repaired,omitempty"`
	Unverifiable bool    `json:"unverifiable,omitempty"`
}

// Judgement is the model's parsed response before decision policy and
// citation verification run.
type Judgement struct {
	Status          string     `json:"status"`
	Rationale       string     `json:"rationale"`
	EvidenceSummary string     `json:"evidence_summary"`
	Citations       []Citation `json:"citations"`
}

// Verdict is the finished outcome for one (document, requirement)
// pair. It is created once by the engine, may be amended exactly once
// by the consensus reconciler, and is immutable afterwards.
type Verdict struct {
	RequirementID        string     `json:"requirement_id"`
	DocID                string     `json:"doc_id"`
	Status               string     `json:"status"`
	Rationale            string     `json:"rationale"`
	EvidenceSummary      string     `json:"evidence_summary"`
	Citations            []Citation `json:"citations"`
	EvidenceType         string     `json:"evidence_type"`
	EvidenceStrength     string     `json:"evidence_strength"`
	Coverage             string     `json:"coverage"`
	InterpretationRisk   string     `json:"interpretation_risk"`
	CitationConfidence   float64    `json:"citation_confidence"`
	ConsensusApplied     bool       `json:"consensus_applied"`
	ConsensusNote        string     `json:"consensus_note,omitempty"`
	CandidatesConsidered int        `json:"candidates_considered"`
	ModelLabel           string     `json:"model_label"`
	PromptVersion        string     `json:"prompt_version"`
	TokensUsed           int        `json:"tokens_used"`
	LatencyMS            int64      `json:"latency_ms"`
}
