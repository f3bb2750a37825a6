package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leichangqing/intelligence-intent-sub003/dialog/nlu"
	"github.com/leichangqing/intelligence-intent-sub003/store"
)

func resolverIntents() map[string]*store.IntentDefinition {
	return map[string]*store.IntentDefinition{
		"book_flight":   {Name: "book_flight", Category: "booking"},
		"book_train":    {Name: "book_train", Category: "booking"},
		"check_weather": {Name: "check_weather", Category: "query"},
	}
}

func TestResolve_HighConfidenceSingle(t *testing.T) {
	r := New()
	intent, attempts, ok := r.Resolve(context.Background(), &Input{
		Candidates: []nlu.Candidate{
			{Name: "book_flight", Confidence: 0.90},
			{Name: "book_train", Confidence: 0.72},
		},
		Intents: resolverIntents(),
	})

	require.True(t, ok)
	assert.Equal(t, "book_flight", intent)
	require.NotEmpty(t, attempts)
	assert.Equal(t, "automatic", attempts[0].Strategy)
	assert.Equal(t, AttemptResolved, attempts[0].Result)
}

func TestResolve_ContextContinuation(t *testing.T) {
	r := New()
	intent, _, ok := r.Resolve(context.Background(), &Input{
		Candidates: []nlu.Candidate{
			{Name: "book_flight", Confidence: 0.72},
			{Name: "book_train", Confidence: 0.70},
		},
		Intents:       resolverIntents(),
		CurrentIntent: "book_train",
	})

	require.True(t, ok)
	assert.Equal(t, "book_train", intent)
}

func TestResolve_UserPattern(t *testing.T) {
	r := New()
	for i := 0; i < 6; i++ {
		r.Learn("u1", "check_weather", 9, true)
	}

	intent, _, ok := r.Resolve(context.Background(), &Input{
		Candidates: []nlu.Candidate{
			{Name: "check_weather", Confidence: 0.70},
			{Name: "book_flight", Confidence: 0.68},
		},
		Intents: resolverIntents(),
		UserID:  "u1",
		Hour:    9,
	})

	require.True(t, ok)
	assert.Equal(t, "check_weather", intent)
}

func TestResolve_RecentIntentCoherence(t *testing.T) {
	r := New()
	intent, _, ok := r.Resolve(context.Background(), &Input{
		Candidates: []nlu.Candidate{
			{Name: "book_train", Confidence: 0.66},
			{Name: "check_weather", Confidence: 0.64},
		},
		Intents:       resolverIntents(),
		RecentIntents: []string{"book_train", "book_flight"},
		UserID:        "u2",
	})

	require.True(t, ok)
	assert.Equal(t, "book_train", intent)
}

func TestResolve_Unresolved(t *testing.T) {
	r := New()
	intent, attempts, ok := r.Resolve(context.Background(), &Input{
		Candidates: []nlu.Candidate{
			{Name: "book_flight", Confidence: 0.62},
			{Name: "check_weather", Confidence: 0.60},
		},
		Intents: resolverIntents(),
		UserID:  "nobody",
	})

	assert.False(t, ok)
	assert.Empty(t, intent)
	// Every strategy must leave an attempt record.
	assert.Len(t, attempts, 4)
	for _, attempt := range attempts {
		assert.NotEqual(t, AttemptResolved, attempt.Result)
	}
}

func TestLearn_FeedsStatisticalStrategy(t *testing.T) {
	r := New()
	for i := 0; i < 12; i++ {
		r.Learn("u3", "book_flight", 14, true)
	}

	intent, _, ok := r.Resolve(context.Background(), &Input{
		Candidates: []nlu.Candidate{
			{Name: "book_flight", Confidence: 0.65},
			{Name: "check_weather", Confidence: 0.63},
		},
		Intents: resolverIntents(),
		UserID:  "u3",
		Hour:    14,
	})

	require.True(t, ok)
	assert.Equal(t, "book_flight", intent)
}
