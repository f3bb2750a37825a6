// Package nlu wraps the external intent classifier. The primary recognizer
// is an OpenAI-compatible LLM; a rule matcher over configured examples and
// keywords serves as fallback when the LLM is unconfigured or fails.
package nlu

import (
	"context"
	"log/slog"

	"github.com/leichangqing/intelligence-intent-sub003/internal/profile"
	"github.com/leichangqing/intelligence-intent-sub003/store"
)

// IntentUnknown is returned when no intent can be recognized.
const IntentUnknown = "unknown"

// Candidate is one ranked classification candidate.
type Candidate struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Entity is one extracted slot-bearing span.
type Entity struct {
	Name       string  `json:"name"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Recognition is the classifier output for one utterance.
type Recognition struct {
	TopIntent    Candidate   `json:"top_intent"`
	Alternatives []Candidate `json:"alternatives"`
	Entities     []Entity    `json:"entities"`
	Reasoning    string      `json:"reasoning,omitempty"`
	Source       string      `json:"source"` // llm or rule
}

// Recognizer classifies an utterance against the active intents.
// History carries recent successful turns for context.
type Recognizer interface {
	Recognize(ctx context.Context, text string, intents []*store.IntentDefinition, history []string) (*Recognition, error)
}

// composite tries the LLM recognizer first and falls back to rules.
type composite struct {
	llm   Recognizer
	rules Recognizer
}

// NewRecognizer builds the recognizer stack for a profile.
// Without an API key only the rule matcher runs.
func NewRecognizer(p *profile.Profile) Recognizer {
	rules := NewRuleRecognizer()
	if !p.IsNLUEnabled() {
		slog.Info("nlu: no api key configured, using rule matcher only")
		return rules
	}
	return &composite{llm: NewLLMRecognizer(p), rules: rules}
}

func (c *composite) Recognize(ctx context.Context, text string, intents []*store.IntentDefinition, history []string) (*Recognition, error) {
	recognition, err := c.llm.Recognize(ctx, text, intents, history)
	if err == nil && recognition != nil {
		return recognition, nil
	}
	if err != nil {
		slog.Warn("nlu: llm classification failed, falling back to rules", "error", err)
	}
	return c.rules.Recognize(ctx, text, intents, history)
}
