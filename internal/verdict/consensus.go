package verdict

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/llm"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/metrics"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/logger"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/retry"
)

const consensusSystemPrompt = `You are an independent reviewer giving a second opinion on a regulatory compliance verdict for an ISO 14971 requirement. You see the first reviewer's conclusion but not the underlying document, so judge only whether the rationale actually supports the chosen status.

Respond strictly with JSON using this schema:
{
  "status": "PASS|FAIL|FLAGGED|NOT_APPLICABLE",
  "rationale": "why you agree or disagree with the first reviewer"
}`

// Reconciler requests a second, independent judgement for high-risk
// verdicts and reconciles disagreement conservatively. A verdict is
// never upgraded here; the only status change it can make is
// PASS to FLAGGED.
type Reconciler struct {
	client      CompletionService
	retryConfig retry.Config
}

func NewReconciler(client CompletionService) *Reconciler {
	return &Reconciler{
		client: client,
		retryConfig: retry.Config{
			MaxAttempts:  2,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
			RetryIf: func(err error) bool {
				return errors.Is(err, errMalformedResponse)
			},
			Logger: logger.GetLogger(),
		},
	}
}

// ShouldReconcile reports whether a verdict qualifies for a second
// opinion.
func ShouldReconcile(v *Verdict) bool {
	return v != nil && v.InterpretationRisk == RiskHigh
}

// Reconcile mutates v in place with the second opinion's outcome. An
// unavailable or malformed second opinion leaves the verdict exactly
// as it was; consensus trouble must never sink an otherwise finished
// evaluation.
func (r *Reconciler) Reconcile(ctx context.Context, req models.Requirement, v *Verdict) {
	if !ShouldReconcile(v) {
		return
	}

	userPrompt := buildConsensusPrompt(req, v)

	judgement, err := retry.DoWithResult(ctx, r.retryConfig, func() (Judgement, error) {
		resp, err := r.client.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: consensusSystemPrompt,
			UserPrompt:   userPrompt,
			JSONMode:     true,
		})
		if err != nil {
			return Judgement{}, err
		}
		v.TokensUsed += resp.Usage.TotalTokens
		return parseJudgement(resp.Content)
	})
	if err != nil {
		metrics.ConsensusRuns.WithLabelValues("unavailable").Inc()
		logger.Warn("Second opinion unavailable",
			zap.String("requirement_id", v.RequirementID),
			zap.String("doc_id", v.DocID),
			zap.Error(err),
		)
		return
	}

	v.ConsensusApplied = true

	if judgement.Status == v.Status {
		metrics.ConsensusRuns.WithLabelValues("agree").Inc()
		v.ConsensusNote = fmt.Sprintf("Second opinion (%s) agrees with %s.", r.client.ModelLabel(), v.Status)
		return
	}

	metrics.ConsensusRuns.WithLabelValues("disagree").Inc()
	v.ConsensusNote = fmt.Sprintf("Second opinion (%s) returned %s against the original %s.",
		r.client.ModelLabel(), judgement.Status, v.Status)

	if v.Status == StatusPass {
		v.Status = StatusFlagged
		v.InterpretationRisk = RiskHigh
		v.Rationale += fmt.Sprintf("\n\nNote: downgraded from PASS after an independent second opinion returned %s. %s",
			judgement.Status, judgement.Rationale)
		return
	}

	// Other disagreements are recorded but never change the status.
	v.Rationale += fmt.Sprintf("\n\nNote: an independent second opinion returned %s: %s",
		judgement.Status, judgement.Rationale)
}

func buildConsensusPrompt(req models.Requirement, v *Verdict) string {
	sections := []string{
		"Requirement:\n- ID: " + req.ID +
			"\n- Clause: " + req.Clause +
			"\n- Title: " + req.Title +
			"\n- Requirement Text: " + req.Text,
		"First reviewer's judgement:\n- Status: " + v.Status +
			"\n- Rationale: " + v.Rationale +
			"\n- Evidence Summary: " + orUnspecified(v.EvidenceSummary),
		"State the status you would assign based on this judgement alone.",
	}
	return strings.Join(sections, "\n\n")
}
