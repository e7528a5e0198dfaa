package verdict

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// errMalformedResponse marks a response that failed schema validation.
// The engine retries these; everything else aborts the attempt loop.
var errMalformedResponse = errors.New("malformed model response")

// parseJudgement decodes a model response into a Judgement, enforcing
// the response schema strictly. Markdown code fences around the JSON
// body are tolerated because models emit them even when told not to.
func parseJudgement(raw string) (Judgement, error) {
	cleaned := stripFences(raw)
	if cleaned == "" {
		return Judgement{}, fmt.Errorf("%w: empty response", errMalformedResponse)
	}

	parsed, err := decodeStrict(cleaned)
	if err != nil {
		// Some models wrap the JSON object in prose. Retry on the
		// outermost brace span before giving up.
		start := strings.Index(cleaned, "{")
		end := strings.LastIndex(cleaned, "}")
		if start >= 0 && end > start {
			if inner, innerErr := decodeStrict(cleaned[start : end+1]); innerErr == nil {
				parsed = inner
				err = nil
			}
		}
		if err != nil {
			return Judgement{}, fmt.Errorf("%w: %v", errMalformedResponse, err)
		}
	}

	if err := validateJudgement(&parsed); err != nil {
		return Judgement{}, err
	}
	return parsed, nil
}

func decodeStrict(s string) (Judgement, error) {
	var parsed Judgement
	dec := json.NewDecoder(strings.NewReader(s))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&parsed); err != nil {
		return Judgement{}, err
	}
	return parsed, nil
}

func validateJudgement(j *Judgement) error {
	j.Status = strings.ToUpper(strings.TrimSpace(j.Status))
	if !ValidStatus(j.Status) {
		return fmt.Errorf("%w: invalid status %q", errMalformedResponse, j.Status)
	}

	j.Rationale = strings.TrimSpace(j.Rationale)
	if j.Rationale == "" {
		return fmt.Errorf("%w: empty rationale", errMalformedResponse)
	}
	j.EvidenceSummary = strings.TrimSpace(j.EvidenceSummary)

	kept := j.Citations[:0]
	for i := range j.Citations {
		cit := j.Citations[i]
		cit.Quote = strings.TrimSpace(cit.Quote)
		if cit.Quote == "" {
			return fmt.Errorf("%w: citation %d has an empty quote", errMalformedResponse, i)
		}
		if cit.Page < 1 {
			return fmt.Errorf("%w: citation %d has page %d", errMalformedResponse, i, cit.Page)
		}
		if cit.Confidence < 0 {
			cit.Confidence = 0
		}
		if cit.Confidence > 1 {
			cit.Confidence = 1
		}
		// Verification flags belong to the verifier, not the model.
		cit.Verified = false
		cit.Repaired = false
		cit.Unverifiable = false
		kept = append(kept, cit)
	}
	j.Citations = kept
	return nil
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = cleaned[len("```json"):]
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = cleaned[len("```"):]
	}
	if strings.HasSuffix(cleaned, "```") {
		cleaned = cleaned[:len(cleaned)-len("```")]
	}
	return strings.TrimSpace(cleaned)
}
