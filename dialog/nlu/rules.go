package nlu

import (
	"context"
	"regexp"
	"strings"

	"github.com/leichangqing/intelligence-intent-sub003/store"
)

// Pre-compiled patterns for rule-based entity extraction.
var (
	routePattern    = regexp.MustCompile(`从(.{1,10}?)到(.{1,10}?)(?:[,，。 ]|$)`)
	datePattern     = regexp.MustCompile(`今天|明天|后天|昨天|前天|\d{4}-\d{2}-\d{2}`)
	emailPattern    = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phonePattern    = regexp.MustCompile(`1[3-9][0-9]{9}`)
	countPattern    = regexp.MustCompile(`([0-9一二三四五六七八九十两俩]+)\s*[个张位名]`)
	orderIDPattern  = regexp.MustCompile(`[A-Z]{2,4}\d{6,}|\b\d{8,}\b`)
	cityTailPattern = regexp.MustCompile(`(?:去|到|飞)(.{1,10}?)(?:[,，。 ]|$)`)
)

// RuleRecognizer is the zero-dependency fallback classifier. It scores each
// active intent by example and keyword overlap against the input.
type RuleRecognizer struct{}

// NewRuleRecognizer creates a rule recognizer.
func NewRuleRecognizer() *RuleRecognizer {
	return &RuleRecognizer{}
}

func (r *RuleRecognizer) Recognize(_ context.Context, text string, intents []*store.IntentDefinition, _ []string) (*Recognition, error) {
	input := strings.ToLower(strings.TrimSpace(text))

	known := make(map[string]*store.IntentDefinition, len(intents))
	candidates := []Candidate{}
	for _, intent := range intents {
		known[intent.Name] = intent
		if score := scoreIntent(input, intent); score > 0 {
			candidates = append(candidates, Candidate{Name: intent.Name, Confidence: score})
		}
	}
	SortCandidates(candidates, known)

	recognition := &Recognition{
		TopIntent: Candidate{Name: IntentUnknown},
		Entities:  ExtractEntities(text),
		Source:    "rule",
	}
	if len(candidates) > 0 {
		recognition.TopIntent = candidates[0]
		recognition.Alternatives = candidates[1:]
	}
	return recognition, nil
}

// scoreIntent combines example containment with keyword overlap.
func scoreIntent(input string, intent *store.IntentDefinition) float64 {
	best := 0.0
	for _, example := range intent.Examples {
		example = strings.ToLower(strings.TrimSpace(example))
		if example == "" {
			continue
		}
		if input == example {
			return 0.95
		}
		if strings.Contains(input, example) || strings.Contains(example, input) {
			if 0.85 > best {
				best = 0.85
			}
			continue
		}
		hits := 0
		for _, token := range exampleTokens(example) {
			if strings.Contains(input, token) {
				hits++
			}
		}
		if hits > 0 {
			score := 0.45 + 0.12*float64(hits)
			if score > 0.80 {
				score = 0.80
			}
			if score > best {
				best = score
			}
		}
	}
	return best
}

// exampleTokens splits an example into bigram keywords for CJK text and
// whitespace tokens for ASCII.
func exampleTokens(example string) []string {
	if fields := strings.Fields(example); len(fields) > 1 {
		return fields
	}
	runes := []rune(example)
	var tokens []string
	for i := 0; i+1 < len(runes); i += 2 {
		tokens = append(tokens, string(runes[i:i+2]))
	}
	return tokens
}

// ExtractEntities pulls slot-bearing spans out of the raw input with the
// pre-compiled patterns. Used by the rule recognizer and by the slot
// supplement branch of the orchestrator.
func ExtractEntities(text string) []Entity {
	var entities []Entity

	if m := routePattern.FindStringSubmatch(text); m != nil {
		entities = append(entities,
			Entity{Name: "departure_city", Value: strings.TrimSpace(m[1]), Confidence: 0.9},
			Entity{Name: "arrival_city", Value: strings.TrimSpace(m[2]), Confidence: 0.9},
		)
	} else if m := cityTailPattern.FindStringSubmatch(text); m != nil {
		entities = append(entities, Entity{Name: "arrival_city", Value: strings.TrimSpace(m[1]), Confidence: 0.6})
	}
	if m := datePattern.FindString(text); m != "" {
		entities = append(entities, Entity{Name: "departure_date", Value: m, Confidence: 0.85})
	}
	if m := emailPattern.FindString(text); m != "" {
		entities = append(entities, Entity{Name: "email", Value: m, Confidence: 0.95})
	}
	if m := phonePattern.FindString(text); m != "" {
		entities = append(entities, Entity{Name: "phone", Value: m, Confidence: 0.95})
	}
	if m := countPattern.FindStringSubmatch(text); m != nil {
		entities = append(entities, Entity{Name: "passenger_count", Value: m[1], Confidence: 0.8})
	}
	if m := orderIDPattern.FindString(text); m != "" {
		entities = append(entities, Entity{Name: "order_id", Value: m, Confidence: 0.85})
	}
	return entities
}
