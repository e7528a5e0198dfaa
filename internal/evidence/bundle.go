package evidence

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Kelm-ai/DocAnalyzer-sub000/internal/storage/models"
)

const (
	EvidenceDirect   = "direct"
	EvidenceIndirect = "indirect"
	EvidenceAbsent   = "absent"
)

const (
	StrengthStrong   = "strong"
	StrengthModerate = "moderate"
	StrengthWeak     = "weak"
)

// Artifact is one piece of evidence kept in a bundle.
type Artifact struct {
	ChunkID      string
	Text         string
	Page         int
	SectionPath  string
	ArtifactType string
	Relevance    float64
	FusedScore   float64
	Strategies   []string
}

// Bundle is the scored, classified evidence set for one requirement
// against one document. It is what the judgement prompt sees.
type Bundle struct {
	RequirementID        string
	DocID                string
	EvidenceType         string
	Strength             string
	Artifacts            []Artifact
	Gaps                 []string
	CandidatesConsidered int
}

// HasDirectEvidence reports whether any artifact scored above the
// direct-evidence threshold.
func (b Bundle) HasDirectEvidence() bool {
	return b.EvidenceType == EvidenceDirect
}

// BuildBundle filters scored candidates, classifies the surviving set
// and identifies evidence gaps. The classification branches are ordered
// and exhaustive: absent, direct, indirect/moderate, indirect/weak.
func BuildBundle(req models.Requirement, candidates []Candidate, limit int) Bundle {
	if limit <= 0 {
		limit = 5
	}

	bundle := Bundle{
		RequirementID:        req.ID,
		CandidatesConsidered: len(candidates),
	}
	if len(candidates) > 0 {
		bundle.DocID = candidates[0].DocID
	}

	var surviving []Candidate
	for _, cand := range candidates {
		if cand.Relevance > DiscardThreshold {
			surviving = append(surviving, cand)
		}
	}

	switch {
	case len(surviving) == 0:
		bundle.EvidenceType = EvidenceAbsent
		bundle.Strength = StrengthWeak
	case anyAbove(surviving, StrongThreshold):
		bundle.EvidenceType = EvidenceDirect
		bundle.Strength = StrengthStrong
	case len(surviving) >= 3:
		bundle.EvidenceType = EvidenceIndirect
		bundle.Strength = StrengthModerate
	default:
		bundle.EvidenceType = EvidenceIndirect
		bundle.Strength = StrengthWeak
	}

	sort.Slice(surviving, func(i, j int) bool {
		if surviving[i].Relevance != surviving[j].Relevance {
			return surviving[i].Relevance > surviving[j].Relevance
		}
		return surviving[i].ChunkID < surviving[j].ChunkID
	})

	if len(surviving) > limit {
		surviving = surviving[:limit]
	}

	bundle.Artifacts = make([]Artifact, 0, len(surviving))
	for _, cand := range surviving {
		bundle.Artifacts = append(bundle.Artifacts, Artifact{
			ChunkID:      cand.ChunkID,
			Text:         cand.Text,
			Page:         cand.Page,
			SectionPath:  cand.SectionPath,
			ArtifactType: cand.ArtifactType,
			Relevance:    cand.Relevance,
			FusedScore:   cand.FusedScore,
			Strategies:   cand.Strategies,
		})
	}

	bundle.Gaps = identifyGaps(req, bundle.Artifacts)

	return bundle
}

func anyAbove(candidates []Candidate, threshold float64) bool {
	for _, cand := range candidates {
		if cand.Relevance > threshold {
			return true
		}
	}
	return false
}

// expectedArtifactWords are requirement phrasings that imply a concrete
// artifact should be named somewhere in the evidence.
var expectedArtifactWords = []string{"plan", "procedure", "report", "record", "file"}

func identifyGaps(req models.Requirement, artifacts []Artifact) []string {
	var gaps []string

	if len(artifacts) == 0 {
		gaps = append(gaps, "no relevant evidence located for this requirement")
	}

	present := make(map[string]bool)
	for _, art := range artifacts {
		present[art.ArtifactType] = true
	}
	for _, typical := range req.TypicalArtifacts {
		if !present[typical] {
			gaps = append(gaps, fmt.Sprintf("no %s evidence found", artifactDisplayName(typical)))
		}
	}

	if len(artifacts) > 0 && allBelow(artifacts, WeakThreshold) {
		gaps = append(gaps, "only weak indirect evidence located")
	}

	lowerReq := strings.ToLower(req.Text)
	for _, word := range expectedArtifactWords {
		if !strings.Contains(lowerReq, word) {
			continue
		}
		found := false
		for _, art := range artifacts {
			if strings.Contains(strings.ToLower(art.Text), word) {
				found = true
				break
			}
		}
		if !found {
			gaps = append(gaps, fmt.Sprintf("requirement calls for a %s but the evidence does not mention one", word))
		}
	}

	return gaps
}

func allBelow(artifacts []Artifact, threshold float64) bool {
	for _, art := range artifacts {
		if art.Relevance >= threshold {
			return false
		}
	}
	return true
}

func artifactDisplayName(artifactType string) string {
	if artifactType == ArtifactCrossReference {
		return "cross-reference"
	}
	return artifactType
}
