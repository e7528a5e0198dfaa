package verdict

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/evidence"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/llm"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/metrics"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/config"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/logger"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/retry"
)

// CompletionService is the slice of the LLM client the engine depends
// on. The client handles its own transport retries, rate limiting and
// circuit breaking; the engine only retries schema-invalid responses.
type CompletionService interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
	ModelLabel() string
}

// Engine turns a requirement and its evidence bundle into a Verdict.
type Engine struct {
	client      CompletionService
	retryConfig retry.Config
}

func NewEngine(client CompletionService, cfg config.EvaluationConfig) *Engine {
	attempts := cfg.MaxJudgementRetries + 1
	if cfg.MaxJudgementRetries <= 0 {
		attempts = 3
	}

	return &Engine{
		client: client,
		retryConfig: retry.Config{
			MaxAttempts:  attempts,
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

// ModelLabel identifies the model and temperature behind this engine.
func (e *Engine) ModelLabel() string {
	return e.client.ModelLabel()
}

// Evaluate runs one judgement for a (document, requirement) pair. The
// returned verdict has the decision policy and citation verification
// already applied; consensus reconciliation is the caller's step.
//
// A response that stays schema-invalid through the retry budget
// surfaces as ErrEvaluationFailed. The caller records an error verdict
// for it; no status is ever fabricated here.
func (e *Engine) Evaluate(ctx context.Context, req models.Requirement, bundle evidence.Bundle, contextFlags map[string]bool) (*Verdict, error) {
	start := time.Now()
	userPrompt := buildUserPrompt(req, bundle, contextFlags)

	var tokens int
	judgement, err := retry.DoWithResult(ctx, e.retryConfig, func() (Judgement, error) {
		resp, err := e.client.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: judgementSystemPrompt,
			UserPrompt:   userPrompt,
			JSONMode:     true,
		})
		if err != nil {
			return Judgement{}, err
		}
		tokens += resp.Usage.TotalTokens
		return parseJudgement(resp.Content)
	})
	if err != nil {
		if errors.Is(err, errMalformedResponse) {
			metrics.EvaluationFailures.Inc()
			logger.Error("Judgement failed schema validation after retries",
				zap.String("requirement_id", req.ID),
				zap.String("doc_id", bundle.DocID),
				zap.Error(err),
			)
			return nil, fmt.Errorf("%w: %v", ErrEvaluationFailed, err)
		}
		return nil, err
	}

	v := &Verdict{
		RequirementID:        req.ID,
		DocID:                bundle.DocID,
		Status:               judgement.Status,
		Rationale:            judgement.Rationale,
		EvidenceSummary:      judgement.EvidenceSummary,
		Citations:            judgement.Citations,
		EvidenceType:         bundle.EvidenceType,
		EvidenceStrength:     bundle.Strength,
		CandidatesConsidered: bundle.CandidatesConsidered,
		ModelLabel:           e.client.ModelLabel(),
		PromptVersion:        PromptVersion,
		TokensUsed:           tokens,
	}

	e.applyDecisionPolicy(v)

	result := VerifyCitations(v.Citations, bundle.Artifacts)
	if result.Repaired > 0 {
		metrics.CitationsRepaired.Add(float64(result.Repaired))
	}
	if result.Unverifiable > 0 {
		metrics.CitationsUnverifiable.Add(float64(result.Unverifiable))
		v.Rationale += fmt.Sprintf("\n\nNote: %d citation(s) could not be verified against the document text.", result.Unverifiable)
	}
	if result.AllUnverifiable() && v.Status == StatusPass {
		v.Status = StatusFlagged
		v.Rationale += "\n\nNote: downgraded from PASS because no citation could be verified against the document."
	}

	v.Coverage = computeCoverage(bundle)
	v.InterpretationRisk = computeRisk(v.Status, bundle)
	v.CitationConfidence = meanConfidence(v.Citations)
	v.LatencyMS = time.Since(start).Milliseconds()

	metrics.VerdictsTotal.WithLabelValues(v.Status).Inc()
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())

	logger.Debug("Verdict produced",
		zap.String("requirement_id", req.ID),
		zap.String("doc_id", bundle.DocID),
		zap.String("status", v.Status),
		zap.String("coverage", v.Coverage),
		zap.String("interpretation_risk", v.InterpretationRisk),
		zap.Int("citations", len(v.Citations)),
	)

	return v, nil
}

// applyDecisionPolicy enforces citation requirements regardless of
// what the model claimed.
func (e *Engine) applyDecisionPolicy(v *Verdict) {
	switch v.Status {
	case StatusNotApplicable:
		return
	case StatusPass:
		if len(v.Citations) == 0 {
			v.Status = StatusFlagged
			v.Rationale += "\n\nNote: downgraded from PASS because the model provided no citations for a passing verdict."
		}
	case StatusFail:
		if len(v.Citations) == 0 && v.EvidenceType != evidence.EvidenceAbsent {
			v.Status = StatusFlagged
			v.Rationale += "\n\nNote: downgraded from FAIL because the model cited nothing although relevant evidence exists."
		}
	}
}

func computeCoverage(bundle evidence.Bundle) string {
	direct := bundle.EvidenceType == evidence.EvidenceDirect
	switch {
	case direct && len(bundle.Artifacts) >= 3:
		return CoverageComplete
	case direct || len(bundle.Artifacts) >= 2:
		return CoveragePartial
	default:
		return CoverageMinimal
	}
}

func computeRisk(status string, bundle evidence.Bundle) string {
	switch {
	case status == StatusPass && bundle.Strength == evidence.StrengthStrong:
		return RiskLow
	case status == StatusFail && bundle.EvidenceType == evidence.EvidenceAbsent:
		return RiskLow
	case status == StatusFlagged:
		return RiskHigh
	default:
		return RiskMedium
	}
}

func meanConfidence(citations []Citation) float64 {
	if len(citations) == 0 {
		return 0
	}
	var sum float64
	for _, cit := range citations {
		sum += cit.Confidence
	}
	return sum / float64(len(citations))
}
