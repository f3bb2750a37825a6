package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leichangqing/intelligence-intent-sub003/dialog/nlu"
	"github.com/leichangqing/intelligence-intent-sub003/store"
)

func bookingIntents() map[string]*store.IntentDefinition {
	return map[string]*store.IntentDefinition{
		"book_flight":   {Name: "book_flight", Category: "booking"},
		"book_train":    {Name: "book_train", Category: "booking"},
		"check_weather": {Name: "check_weather", Category: "query"},
	}
}

func TestAnalyze_SingleCandidateIsNotAmbiguous(t *testing.T) {
	d := NewDetector(testProfile())
	analysis := d.Analyze([]nlu.Candidate{{Name: "book_flight", Confidence: 0.9}}, bookingIntents())
	assert.False(t, analysis.IsAmbiguous)
	assert.Equal(t, "proceed", analysis.RecommendedAction)
}

func TestAnalyze_WideGapIsNotAmbiguous(t *testing.T) {
	d := NewDetector(testProfile())
	analysis := d.Analyze([]nlu.Candidate{
		{Name: "book_flight", Confidence: 0.90},
		{Name: "book_train", Confidence: 0.60},
	}, bookingIntents())
	assert.False(t, analysis.IsAmbiguous)
}

func TestAnalyze_BelowFloorIsNotAmbiguous(t *testing.T) {
	d := NewDetector(testProfile())
	analysis := d.Analyze([]nlu.Candidate{
		{Name: "book_flight", Confidence: 0.55},
		{Name: "check_weather", Confidence: 0.45},
	}, bookingIntents())
	assert.False(t, analysis.IsAmbiguous)
}

func TestAnalyze_CloseCandidatesAreAmbiguous(t *testing.T) {
	d := NewDetector(testProfile())
	analysis := d.Analyze([]nlu.Candidate{
		{Name: "book_flight", Confidence: 0.72},
		{Name: "check_weather", Confidence: 0.68},
	}, bookingIntents())

	require.True(t, analysis.IsAmbiguous)
	assert.Equal(t, "auto_resolve", analysis.RecommendedAction)
	assert.Equal(t, "confidence", analysis.PrimaryType)
	assert.Len(t, analysis.Candidates, 2)
	assert.Greater(t, analysis.Score, 0.0)
}

func TestAnalyze_SameCategorySignalsSemantic(t *testing.T) {
	d := NewDetector(testProfile())
	analysis := d.Analyze([]nlu.Candidate{
		{Name: "book_flight", Confidence: 0.72},
		{Name: "book_train", Confidence: 0.70},
	}, bookingIntents())

	require.True(t, analysis.IsAmbiguous)
	assert.Equal(t, "semantic", analysis.PrimaryType)
	assert.Len(t, analysis.Signals, 2)
}

func TestAnalyze_CandidateCap(t *testing.T) {
	d := NewDetector(testProfile())
	candidates := make([]nlu.Candidate, 0, 7)
	for i := 0; i < 7; i++ {
		candidates = append(candidates, nlu.Candidate{Name: "intent", Confidence: 0.70})
	}
	analysis := d.Analyze(candidates, map[string]*store.IntentDefinition{})
	require.True(t, analysis.IsAmbiguous)
	assert.Len(t, analysis.Candidates, 5)
}
