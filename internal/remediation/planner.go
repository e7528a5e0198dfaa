package remediation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/evidence"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/llm"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/verdict"
	"github.com/Kelm-ai/DocAnalyzer-sub000/pkg/logger"
)

// exampleTemperature keeps remediation text generation close to
// deterministic while allowing minor phrasing variation.
const exampleTemperature = 0.2

// Plan describes how to close the gap behind a failing requirement.
type Plan struct {
	MissingElements   []string `json:"missing_elements"`
	SuggestedSections []string `json:"suggested_sections"`
	ExampleText       string   `json:"example_text,omitempty"`
}

// Planner builds gap-analysis plans for FAIL verdicts. The missing
// elements and suggested sections are computed deterministically; only
// the example text involves the model, and a template stands in when
// the model is unavailable.
type Planner struct {
	client verdict.CompletionService
}

func NewPlanner(client verdict.CompletionService) *Planner {
	return &Planner{client: client}
}

// BuildPlan assembles a remediation plan from the requirement, the
// evidence bundle's gap list and the verdict rationale.
func (p *Planner) BuildPlan(ctx context.Context, req models.Requirement, bundle evidence.Bundle, v *verdict.Verdict) *Plan {
	plan := &Plan{
		MissingElements:   missingElements(req, bundle),
		SuggestedSections: suggestedSections(req),
	}

	plan.ExampleText = p.exampleText(ctx, req, plan.MissingElements)

	logger.Debug("Remediation plan built",
		zap.String("requirement_id", req.ID),
		zap.String("doc_id", v.DocID),
		zap.Int("missing_elements", len(plan.MissingElements)),
	)

	return plan
}

// missingElements merges the bundle's own gap list with the elements
// named by the acceptance criteria that no artifact mentions.
func missingElements(req models.Requirement, bundle evidence.Bundle) []string {
	var elements []string
	seen := make(map[string]bool)

	add := func(e string) {
		e = strings.TrimSpace(e)
		if e == "" || seen[strings.ToLower(e)] {
			return
		}
		seen[strings.ToLower(e)] = true
		elements = append(elements, e)
	}

	for _, gap := range bundle.Gaps {
		add(gap)
	}

	for _, criterion := range splitCriteria(req.AcceptanceCriteria) {
		if !criterionCovered(criterion, bundle.Artifacts) {
			add("acceptance criterion not evidenced: " + criterion)
		}
	}

	if len(elements) == 0 {
		add("evidence does not satisfy: " + req.Title)
	}

	return elements
}

// suggestedSections proposes where the missing material belongs,
// derived from the clause and the expected artifact kinds.
func suggestedSections(req models.Requirement) []string {
	var sections []string
	seen := make(map[string]bool)

	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		sections = append(sections, s)
	}

	add(fmt.Sprintf("%s %s", req.Clause, req.Title))
	for _, artifact := range req.TypicalArtifacts {
		switch artifact {
		case evidence.ArtifactTable:
			add("a tabular summary supporting " + strings.ToLower(req.Title))
		case evidence.ArtifactFigure:
			add("a diagram or flowchart supporting " + strings.ToLower(req.Title))
		case evidence.ArtifactCrossReference:
			add("cross-references to the related procedures")
		}
	}

	sort.Strings(sections[1:])
	return sections
}

func (p *Planner) exampleText(ctx context.Context, req models.Requirement, missing []string) string {
	if p.client == nil {
		return fallbackExample(req)
	}

	prompt := strings.Join([]string{
		"A medical device manufacturer failed this ISO 14971 requirement:",
		"- Clause: " + req.Clause,
		"- Title: " + req.Title,
		"- Requirement Text: " + req.Text,
		"",
		"The document is missing:",
		"- " + strings.Join(missing, "\n- "),
		"",
		"Write a short example passage (3 to 4 sentences) the manufacturer could adapt to satisfy the requirement. Respond with the passage only, no preamble.",
	}, "\n")

	resp, err := p.client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: "You are an expert regulatory compliance analyst specializing in ISO 14971 medical device risk management. You write concise, audit-ready documentation passages.",
		UserPrompt:   prompt,
		Temperature:  exampleTemperature,
		MaxTokens:    300,
	})
	if err != nil {
		logger.Warn("Example text generation failed, using template",
			zap.String("requirement_id", req.ID),
			zap.Error(err),
		)
		return fallbackExample(req)
	}

	return strings.TrimSpace(resp.Content)
}

func fallbackExample(req models.Requirement) string {
	return fmt.Sprintf(
		"Add a section titled %q documenting how the organization addresses clause %s: %s",
		req.Title, req.Clause, req.Text,
	)
}

func splitCriteria(criteria string) []string {
	var parts []string
	for _, part := range strings.FieldsFunc(criteria, func(r rune) bool {
		return r == ';' || r == '.' || r == '\n'
	}) {
		part = strings.TrimSpace(part)
		if len(part) > 3 {
			parts = append(parts, part)
		}
	}
	return parts
}

// criterionCovered checks whether the significant words of a criterion
// mostly appear somewhere in the evidence.
func criterionCovered(criterion string, artifacts []evidence.Artifact) bool {
	words := significantWords(criterion)
	if len(words) == 0 {
		return true
	}

	var joined strings.Builder
	for _, art := range artifacts {
		joined.WriteString(strings.ToLower(art.Text))
		joined.WriteString(" ")
	}
	haystack := joined.String()

	matched := 0
	for _, w := range words {
		if strings.Contains(haystack, w) {
			matched++
		}
	}
	return float64(matched) >= 0.5*float64(len(words))
}

func significantWords(s string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ",.;:()")
		if len(w) > 3 {
			words = append(words, w)
		}
	}
	return words
}
