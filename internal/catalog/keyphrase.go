package catalog

import (
	"regexp"
	"strings"

	prose "github.com/jdkato/prose/v2"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
)

const maxKeyTerms = 10

// domainVocabulary lists multi-word phrases that outrank single tokens
// when present in a requirement. Matching is case-insensitive.
var domainVocabulary = []string{
	"risk management process",
	"risk management plan",
	"risk management file",
	"risk management report",
	"risk management review",
	"risk analysis",
	"risk assessment",
	"risk estimation",
	"risk evaluation",
	"risk control",
	"risk acceptability",
	"residual risk",
	"overall residual risk",
	"benefit-risk analysis",
	"hazardous situation",
	"hazard identification",
	"probability of occurrence",
	"severity of harm",
	"intended use",
	"reasonably foreseeable misuse",
	"state of the art",
	"protective measures",
	"inherently safe design",
	"information for safety",
	"post-production",
	"production and post-production",
	"control measure",
	"top management",
	"use environment",
	"patient population",
}

var (
	quotedPattern        = regexp.MustCompile(`"([^"]{2,60})"`)
	parentheticalPattern = regexp.MustCompile(`\(([^)]{2,50})\)`)
	acronymPattern       = regexp.MustCompile(`\b[A-Z]{2,10}\b`)
)

/// KeyTerms extracts up to maxKeyTerms search terms from free text:
// domain vocabulary hits first, then quoted strings, parentheticals,
// acronyms and finally significant single tokens.
func KeyTerms(text string) []string {
	var terms []string
	seen := make(map[string]bool)

	add := func(term string) {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" || seen[term] || len(terms) >= maxKeyTerms {
			return
		}
		seen[term] = true
		terms = append(terms, term)
	}

	lower := strings.ToLower(text)
	for _, phrase := range domainVocabulary {
		if strings.Contains(lower, phrase) {
			add(phrase)
		}
	}

	for _, m := range quotedPattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range parentheticalPattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range acronymPattern.FindAllString(text, -1) {
		add(m)
	}

	for _, tok := range tokenize(text) {
		if len(tok) > 3 && !isStopword(tok) {
			add(tok)
		}
	}

	return terms
}

// SearchTerms assembles the keyword query terms for a requirement:
// key terms from the requirement text, clause-specific terms, title
// terms and the evaluation hints, bounded by a character budget so the
// resulting query stays focused.
func SearchTerms(req models.Requirement, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = 300
	}

	var terms []string
	seen := make(map[string]bool)
	budget := 0

	add := func(term string) {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" || seen[term] {
			return
		}
		if budget+len(term) > maxChars {
			return
		}
		seen[term] = true
		budget += len(term) + 1
		terms = append(terms, term)
	}

	for _, t := range KeyTerms(req.Text) {
		add(t)
	}
	for _, t := range ClauseTerms(req.Clause) {
		add(t)
	}
	for _, t := range tokenize(req.Title) {
		if len(t) > 3 && !isStopword(t) {
			add(t)
		}
	}
	for _, h := range req.Hints {
		add(h)
	}

	return terms
}

var clauseTermTable = []struct {
	prefix string
	terms  []string
}{
	{"4.1", []string{"risk management process"}},
	{"4.2", []string{"top management", "policy"}},
	{"4.3", []string{"competence", "training"}},
	{"4.4", []string{"risk management plan"}},
	{"4.5", []string{"risk management file"}},
	{"5.2", []string{"intended use", "misuse"}},
	{"5.4", []string{"hazard", "hazardous situation"}},
	{"5.5", []string{"risk estimation", "severity", "probability"}},
	{"5", []string{"risk analysis"}},
	{"6", []string{"risk evaluation"}},
	{"7", []string{"risk control"}},
	{"8", []string{"residual risk"}},
	{"9", []string{"risk management report"}},
	{"10", []string{"post-production", "monitoring"}},
}

// ClauseTerms returns standard terms for a clause number using the
// longest matching prefix in the table.
func ClauseTerms(clause string) []string {
	var best []string
	bestLen := -1
	for _, entry := range clauseTermTable {
		if strings.HasPrefix(clause, entry.prefix) && len(entry.prefix) > bestLen {
			best = entry.terms
			bestLen = len(entry.prefix)
		}
	}
	return best
}

// Tokenize splits text into lowercase word tokens. The prose tokenizer
// handles hyphenation and abbreviations better than a whitespace split;
// when it fails the fallback is a plain field split.
func Tokenize(text string) []string {
	return tokenize(text)
}

func tokenize(text string) []string {
	doc, err := prose.NewDocument(
		text,
		prose.WithSegmentation(false),
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return strings.Fields(strings.ToLower(text))
	}

	var tokens []string
	for _, tok := range doc.Tokens() {
		word := strings.ToLower(tok.Text)
		if !isWord(word) {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			continue
		}
		return false
	}
	return true
}
