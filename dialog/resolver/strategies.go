package resolver

import (
	"context"
)

// highConfidenceFloor marks a candidate safe to pick without asking.
const highConfidenceFloor = 0.85

// automaticStrategy applies declarative rules: a single high-confidence
// candidate, continuation of the session's current intent, the user's
// habitual intent, or a temporal usage pattern.
type automaticStrategy struct {
	resolver *Resolver
}

func (s *automaticStrategy) Name() string { return "automatic" }

func (s *automaticStrategy) Fitness(in *Input) float64 {
	if in.CurrentIntent != "" || len(in.Candidates) > 0 && in.Candidates[0].Confidence >= highConfidenceFloor {
		return 1.0
	}
	return 0.5
}

func (s *automaticStrategy) Resolve(_ context.Context, in *Input) (string, float64) {
	// Rule 1: high-confidence single. Only the leader clears the floor.
	if len(in.Candidates) > 0 && in.Candidates[0].Confidence >= highConfidenceFloor {
		if len(in.Candidates) == 1 || in.Candidates[1].Confidence < highConfidenceFloor {
			return in.Candidates[0].Name, in.Candidates[0].Confidence
		}
	}

	// Rule 2: context continuation. The session is already inside one of
	// the candidates.
	if in.CurrentIntent != "" {
		for _, c := range in.Candidates {
			if c.Name == in.CurrentIntent {
				return c.Name, 0.8
			}
		}
	}

	// Rule 3: user pattern. A candidate dominates the user's history.
	if model := s.resolver.user(in.UserID); model != nil && model.total >= 5 {
		for _, c := range in.Candidates {
			if float64(model.intentCount[c.Name])/float64(model.total) >= 0.5 {
				return c.Name, 0.75
			}
		}

		// Rule 4: temporal pattern. The user does this intent at this hour.
		for _, c := range in.Candidates {
			hours := model.hourCount[c.Name]
			if hours == nil {
				continue
			}
			if count := hours[in.Hour]; count >= 3 && float64(count) >= 0.6*float64(model.intentCount[c.Name]) {
				return c.Name, 0.7
			}
		}
	}
	return "", 0
}

// contextualStrategy scores candidates by coherence with recent intents.
type contextualStrategy struct{}

func (s *contextualStrategy) Name() string { return "contextual" }

func (s *contextualStrategy) Fitness(in *Input) float64 {
	if len(in.RecentIntents) > 0 {
		return 1.0
	}
	return 0.2
}

func (s *contextualStrategy) Resolve(_ context.Context, in *Input) (string, float64) {
	if len(in.RecentIntents) == 0 {
		return "", 0
	}
	bestIntent, bestScore := "", 0.0
	for _, c := range in.Candidates {
		score := 0.0
		for rank, recent := range in.RecentIntents {
			if recent == c.Name {
				// Recency-weighted: the most recent match counts most.
				score += 1.0 / float64(rank+1)
			} else if in.Intents[recent] != nil && in.Intents[c.Name] != nil &&
				in.Intents[recent].Category != "" &&
				in.Intents[recent].Category == in.Intents[c.Name].Category {
				score += 0.3 / float64(rank+1)
			}
		}
		// Candidate relevance keeps ties broken by classifier confidence.
		score += 0.2 * c.Confidence
		if score > bestScore {
			bestIntent, bestScore = c.Name, score
		}
	}
	if bestScore >= 0.6 {
		confidence := bestScore
		if confidence > 0.9 {
			confidence = 0.9
		}
		return bestIntent, confidence
	}
	return "", bestScore
}

// statisticalStrategy picks from the per-user frequency, time-of-day and
// success model.
type statisticalStrategy struct {
	resolver *Resolver
}

func (s *statisticalStrategy) Name() string { return "statistical" }

func (s *statisticalStrategy) Fitness(in *Input) float64 {
	if model := s.resolver.user(in.UserID); model != nil && model.total >= 10 {
		return 1.0
	}
	return 0.1
}

func (s *statisticalStrategy) Resolve(_ context.Context, in *Input) (string, float64) {
	model := s.resolver.user(in.UserID)
	if model == nil || model.total < 10 {
		return "", 0
	}

	bestIntent, bestScore := "", 0.0
	for _, c := range in.Candidates {
		count := model.intentCount[c.Name]
		if count == 0 {
			continue
		}
		frequency := float64(count) / float64(model.total)
		hourShare := 0.0
		if hours := model.hourCount[c.Name]; hours != nil {
			hourShare = float64(hours[in.Hour]) / float64(count)
		}
		successRate := float64(model.success[c.Name]) / float64(count)
		score := 0.5*frequency + 0.3*hourShare + 0.2*successRate
		if score > bestScore {
			bestIntent, bestScore = c.Name, score
		}
	}
	if bestScore >= 0.4 {
		return bestIntent, bestScore
	}
	return "", bestScore
}

// hybridStrategy votes across the member strategies.
type hybridStrategy struct {
	members []Strategy
}

func (s *hybridStrategy) Name() string { return "hybrid" }

func (s *hybridStrategy) Fitness(_ *Input) float64 { return 0.5 }

func (s *hybridStrategy) Resolve(ctx context.Context, in *Input) (string, float64) {
	votes := make(map[string]float64)
	for _, member := range s.members {
		if intent, confidence := member.Resolve(ctx, in); intent != "" {
			votes[intent] += confidence
		}
	}
	bestIntent, bestScore := "", 0.0
	for intent, score := range votes {
		if score > bestScore {
			bestIntent, bestScore = intent, score
		}
	}
	// Two or more member agreement, or one very strong member.
	if bestScore >= 1.2 {
		return bestIntent, 0.8
	}
	return "", bestScore
}
