package report

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/verdict"
)

const keyGapLimit = 10

// StatusCounts tallies verdict statuses across one evaluation.
type StatusCounts struct {
	Passed        int `json:"passed"`
	Failed        int `json:"failed"`
	Flagged       int `json:"flagged"`
	NotApplicable int `json:"not_applicable"`
	Errors        int `json:"errors"`
	Total         int `json:"total"`
}

// ClauseRollup is the per-clause status breakdown, keyed by the
// top-level clause number.
type ClauseRollup struct {
	Clause        string `json:"clause"`
	Passed        int    `json:"passed"`
	Failed        int    `json:"failed"`
	Flagged       int    `json:"flagged"`
	NotApplicable int    `json:"not_applicable"`
	Errors        int    `json:"errors"`
}

// Report is the compliance report for one document evaluation.
type Report struct {
	EvaluationID     string         `json:"evaluation_id"`
	DocID            string         `json:"doc_id"`
	DocName          string         `json:"doc_name"`
	Score            float64        `json:"score"`
	Counts           StatusCounts   `json:"counts"`
	ByClause         []ClauseRollup `json:"by_clause"`
	HighRiskFindings []string       `json:"high_risk_findings"`
	KeyGaps          []string       `json:"key_gaps"`
	ExecutiveSummary *Summary       `json:"executive_summary,omitempty"`
	GeneratedAt      time.Time      `json:"generated_at"`
}

// Build aggregates verdicts into a report. The score counts PASS
// against everything except NOT_APPLICABLE and errored requirements,
// so FLAGGED items drag the score down until a human clears them.
func Build(evaluationID string, doc *models.Document, requirements []models.Requirement, verdicts []models.RequirementVerdict) *Report {
	reqByID := make(map[string]models.Requirement, len(requirements))
	for _, req := range requirements {
		reqByID[req.ID] = req
	}

	rep := &Report{
		EvaluationID: evaluationID,
		DocID:        doc.ID,
		DocName:      doc.Name,
		GeneratedAt:  time.Now().UTC(),
	}

	rollups := make(map[string]*ClauseRollup)
	ordered := sortByClause(verdicts, reqByID)

	for _, v := range ordered {
		rep.Counts.Total++

		clause := reqByID[v.RequirementID].Clause
		top := topLevelClause(clause)
		rollup, ok := rollups[top]
		if !ok {
			rollup = &ClauseRollup{Clause: top}
			rollups[top] = rollup
		}

		switch v.Status {
		case verdict.StatusPass:
			rep.Counts.Passed++
			rollup.Passed++
		case verdict.StatusFail:
			rep.Counts.Failed++
			rollup.Failed++
			if strings.HasPrefix(clause, "4") {
				rep.HighRiskFindings = append(rep.HighRiskFindings, v.RequirementID)
			}
		case verdict.StatusFlagged:
			rep.Counts.Flagged++
			rollup.Flagged++
		case verdict.StatusNotApplicable:
			rep.Counts.NotApplicable++
			rollup.NotApplicable++
		default:
			rep.Counts.Errors++
			rollup.Errors++
		}
	}

	scoreable := rep.Counts.Total - rep.Counts.NotApplicable - rep.Counts.Errors
	if scoreable > 0 {
		rep.Score = math.Round(float64(rep.Counts.Passed)/float64(scoreable)*100*100) / 100
	}

	for _, rollup := range rollups {
		rep.ByClause = append(rep.ByClause, *rollup)
	}
	sort.Slice(rep.ByClause, func(i, j int) bool {
		return clauseLess(rep.ByClause[i].Clause, rep.ByClause[j].Clause)
	})

	rep.KeyGaps = collectKeyGaps(ordered)

	return rep
}

// collectKeyGaps walks verdicts in clause order and keeps the first
// occurrence of each distinct gap, up to the cap.
func collectKeyGaps(ordered []models.RequirementVerdict) []string {
	seen := make(map[string]bool)
	var gaps []string

	for _, v := range ordered {
		for _, gap := range verdictGaps(v) {
			if seen[gap] {
				continue
			}
			seen[gap] = true
			gaps = append(gaps, gap)
			if len(gaps) >= keyGapLimit {
				return gaps
			}
		}
	}

	return gaps
}

// verdictGaps extracts the missing elements recorded in a verdict's
// gap-analysis block.
func verdictGaps(v models.RequirementVerdict) []string {
	if v.GapAnalysis == "" {
		return nil
	}

	var plan struct {
		MissingElements []string `json:"missing_elements"`
	}
	if err := json.Unmarshal([]byte(v.GapAnalysis), &plan); err != nil {
		return nil
	}
	return plan.MissingElements
}

func sortByClause(verdicts []models.RequirementVerdict, reqByID map[string]models.Requirement) []models.RequirementVerdict {
	ordered := make([]models.RequirementVerdict, len(verdicts))
	copy(ordered, verdicts)
	sort.SliceStable(ordered, func(i, j int) bool {
		ci := reqByID[ordered[i].RequirementID].Clause
		cj := reqByID[ordered[j].RequirementID].Clause
		if ci == cj {
			return ordered[i].RequirementID < ordered[j].RequirementID
		}
		return clauseLess(ci, cj)
	})
	return ordered
}

func topLevelClause(clause string) string {
	if clause == "" {
		return "unknown"
	}
	if i := strings.IndexByte(clause, '.'); i > 0 {
		return clause[:i]
	}
	return clause
}

// clauseLess compares dot-separated clause numbers numerically, so
// 4.9 sorts before 4.10 and 10.1 after 9.1.
func clauseLess(a, b string) bool {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		if aerr != nil || berr != nil {
			if as[i] != bs[i] {
				return as[i] < bs[i]
			}
			continue
		}
		if an != bn {
			return an < bn
		}
	}
	return len(as) < len(bs)
}
