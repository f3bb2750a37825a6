package confidence

import (
	"fmt"

	"github.com/leichangqing/intelligence-intent-sub003/dialog/nlu"
	"github.com/leichangqing/intelligence-intent-sub003/internal/profile"
	"github.com/leichangqing/intelligence-intent-sub003/store"
)

// minCandidateConfidence is the floor a candidate must satisfy to count
// toward an ambiguity.
const minCandidateConfidence = 0.50

// maxAmbiguityCandidates caps how many candidates a clarification offers.
const maxAmbiguityCandidates = 5

// Signal is one contributing ambiguity indicator.
type Signal struct {
	Type        string  `json:"type"` // confidence, semantic, contextual
	Score       float64 `json:"score"`
	Description string  `json:"description"`
}

// Analysis is the detector output for one candidate list.
type Analysis struct {
	IsAmbiguous       bool            `json:"is_ambiguous"`
	Score             float64         `json:"score"`
	PrimaryType       string          `json:"primary_type"`
	Signals           []Signal        `json:"signals"`
	Candidates        []nlu.Candidate `json:"candidates"`
	RecommendedAction string          `json:"recommended_action"` // auto_resolve, clarify, proceed
}

// Detector flags ambiguous classifications.
type Detector struct {
	profile *profile.Profile
}

// NewDetector creates an ambiguity detector.
func NewDetector(p *profile.Profile) *Detector {
	return &Detector{profile: p}
}

// Analyze inspects an ordered candidate list (confidence desc). Ambiguity
// requires the top two candidates to both clear the 0.50 floor with a gap
// no larger than the configured detection threshold; all candidates within
// that gap of the leader are included, capped at five.
func (d *Detector) Analyze(candidates []nlu.Candidate, intents map[string]*store.IntentDefinition) *Analysis {
	analysis := &Analysis{RecommendedAction: "proceed"}
	if len(candidates) < 2 {
		return analysis
	}

	threshold := d.profile.AmbiguityDetectionThreshold
	if threshold <= 0 {
		threshold = 0.15
	}

	top1, top2 := candidates[0], candidates[1]
	if top1.Confidence < minCandidateConfidence || top2.Confidence < minCandidateConfidence {
		return analysis
	}
	gap := top1.Confidence - top2.Confidence
	if gap > threshold {
		return analysis
	}

	for _, c := range candidates {
		if c.Confidence >= minCandidateConfidence && top1.Confidence-c.Confidence <= threshold {
			analysis.Candidates = append(analysis.Candidates, c)
			if len(analysis.Candidates) == maxAmbiguityCandidates {
				break
			}
		}
	}

	analysis.IsAmbiguous = true
	analysis.Score = 1 - gap/threshold
	analysis.PrimaryType = "confidence"
	analysis.Signals = append(analysis.Signals, Signal{
		Type:        "confidence",
		Score:       analysis.Score,
		Description: fmt.Sprintf("top-2 gap %.2f within threshold %.2f", gap, threshold),
	})

	// Same-category candidates also signal semantic closeness.
	if i1, i2 := intents[top1.Name], intents[top2.Name]; i1 != nil && i2 != nil &&
		i1.Category != "" && i1.Category == i2.Category {
		analysis.PrimaryType = "semantic"
		analysis.Signals = append(analysis.Signals, Signal{
			Type:        "semantic",
			Score:       0.8,
			Description: fmt.Sprintf("both candidates in category %s", i1.Category),
		})
	}

	analysis.RecommendedAction = "auto_resolve"
	return analysis
}
