package repeatability

import (
	"sort"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/verdict"
)

// Result aggregates the runs of one (batch, document, requirement)
// group: how often each status occurred and how stable the modal
// status was.
type Result struct {
	BatchID       string         `json:"batch_id"`
	DocID         string         `json:"doc_id"`
	RequirementID string         `json:"requirement_id"`
	ModalStatus   string         `json:"modal_status"`
	ModalCount    int            `json:"modal_count"`
	TotalRuns     int            `json:"total_runs"`
	Repeatability float64        `json:"repeatability"`
	StatusCounts  map[string]int `json:"status_counts"`
}

// Delta is the per-pair stability change between two batches.
type Delta struct {
	DocID                  string  `json:"doc_id"`
	RequirementID          string  `json:"requirement_id"`
	BaselineStatus         string  `json:"baseline_status"`
	CandidateStatus        string  `json:"candidate_status"`
	BaselineRepeatability  float64 `json:"baseline_repeatability"`
	CandidateRepeatability float64 `json:"candidate_repeatability"`
	Delta                  float64 `json:"delta"`
	StatusChanged          bool    `json:"status_changed"`
}

// Comparison joins two batches' results over their shared
// (document, requirement) pairs.
type Comparison struct {
	BaselineBatchID  string  `json:"baseline_batch_id"`
	CandidateBatchID string  `json:"candidate_batch_id"`
	Pairs            []Delta `json:"pairs"`
	MeanDelta        float64 `json:"mean_delta"`
	Improved         int     `json:"improved"`
	Harmed           int     `json:"harmed"`
	Unchanged        int     `json:"unchanged"`
}

// Analyze groups run records by (batch, document, requirement) and
// computes the modal status and repeatability fraction for each group.
// Ties on the modal count break along the canonical status ordering so
// identical inputs always produce identical output.
func Analyze(records []models.RunRecord) []Result {
	type groupKey struct {
		batchID, docID, reqID string
	}

	groups := make(map[groupKey]map[string]int)
	for _, rec := range records {
		key := groupKey{rec.BatchID, rec.DocID, rec.RequirementID}
		if groups[key] == nil {
			groups[key] = make(map[string]int)
		}
		groups[key][rec.Status]++
	}

	results := make([]Result, 0, len(groups))
	for key, counts := range groups {
		modal, modalCount, total := modalStatus(counts)
		results = append(results, Result{
			BatchID:       key.batchID,
			DocID:         key.docID,
			RequirementID: key.reqID,
			ModalStatus:   modal,
			ModalCount:    modalCount,
			TotalRuns:     total,
			Repeatability: float64(modalCount) / float64(total),
			StatusCounts:  counts,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.BatchID != b.BatchID {
			return a.BatchID < b.BatchID
		}
		if a.DocID != b.DocID {
			return a.DocID < b.DocID
		}
		return a.RequirementID < b.RequirementID
	})

	return results
}

// Compare joins two result sets on (document, requirement) and
// reports candidate minus baseline repeatability per shared pair.
func Compare(baseline, candidate []Result) Comparison {
	cmp := Comparison{}
	if len(baseline) > 0 {
		cmp.BaselineBatchID = baseline[0].BatchID
	}
	if len(candidate) > 0 {
		cmp.CandidateBatchID = candidate[0].BatchID
	}

	type pairKey struct {
		docID, reqID string
	}
	baseByPair := make(map[pairKey]Result, len(baseline))
	for _, r := range baseline {
		baseByPair[pairKey{r.DocID, r.RequirementID}] = r
	}

	var sum float64
	for _, cand := range candidate {
		base, ok := baseByPair[pairKey{cand.DocID, cand.RequirementID}]
		if !ok {
			continue
		}

		delta := Delta{
			DocID:                  cand.DocID,
			RequirementID:          cand.RequirementID,
			BaselineStatus:         base.ModalStatus,
			CandidateStatus:        cand.ModalStatus,
			BaselineRepeatability:  base.Repeatability,
			CandidateRepeatability: cand.Repeatability,
			Delta:                  cand.Repeatability - base.Repeatability,
			StatusChanged:          base.ModalStatus != cand.ModalStatus,
		}
		cmp.Pairs = append(cmp.Pairs, delta)
		sum += delta.Delta

		switch {
		case delta.Delta > 0:
			cmp.Improved++
		case delta.Delta < 0:
			cmp.Harmed++
		default:
			cmp.Unchanged++
		}
	}

	sort.Slice(cmp.Pairs, func(i, j int) bool {
		a, b := cmp.Pairs[i], cmp.Pairs[j]
		if a.DocID != b.DocID {
			return a.DocID < b.DocID
		}
		return a.RequirementID < b.RequirementID
	})

	if len(cmp.Pairs) > 0 {
		cmp.MeanDelta = sum / float64(len(cmp.Pairs))
	}

	return cmp
}

// modalStatus picks the most frequent status. Ties resolve to the
// status appearing earliest in the canonical ordering PASS, FAIL,
// FLAGGED, NOT_APPLICABLE; labels outside it (such as ERROR) come
// last, ordered lexically.
func modalStatus(counts map[string]int) (string, int, int) {
	var modal string
	var modalCount, total int

	for status, count := range counts {
		total += count
		switch {
		case count > modalCount:
			modal, modalCount = status, count
		case count == modalCount && canonicalBefore(status, modal):
			modal = status
		}
	}
	return modal, modalCount, total
}

func canonicalBefore(a, b string) bool {
	ra, rb := canonicalRank(a), canonicalRank(b)
	if ra != rb {
		return ra < rb
	}
	return a < b
}

func canonicalRank(status string) int {
	switch status {
	case verdict.StatusPass:
		return 0
	case verdict.StatusFail:
		return 1
	case verdict.StatusFlagged:
		return 2
	case verdict.StatusNotApplicable:
		return 3
	}
	return 4
}
