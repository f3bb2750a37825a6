package choice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leichangqing/intelligence-intent-sub003/store"
)

func bookingCandidates() []store.CandidateIntent {
	return []store.CandidateIntent{
		{Name: "book_flight", DisplayName: "预订机票", Confidence: 0.72},
		{Name: "book_train", DisplayName: "预订火车票", Confidence: 0.68},
		{Name: "check_weather", DisplayName: "查询天气", Confidence: 0.55},
	}
}

func TestParse_Numeric(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"1", 1},
		{"2", 2},
		{"3号", 3},
		{"第2个", 2},
		{"第二个", 2},
		{"二", 2},
		{"第 3 个", 3},
	}
	for _, tt := range tests {
		result := Parse(tt.input, bookingCandidates(), nil)
		assert.Equal(t, TypeNumeric, result.Type, "input %q", tt.input)
		assert.Equal(t, tt.want, result.SelectedOption, "input %q", tt.input)
		assert.Equal(t, LevelHigh, result.Level, "input %q", tt.input)
	}
}

func TestParse_NumericOutOfRange(t *testing.T) {
	result := Parse("9", bookingCandidates(), nil)
	assert.Equal(t, TypeNumeric, result.Type)
	assert.Zero(t, result.SelectedOption)
	assert.Equal(t, LevelVeryLow, result.Level)
}

func TestParse_Textual(t *testing.T) {
	result := Parse("火车票", bookingCandidates(), nil)
	require.Equal(t, TypeTextual, result.Type)
	assert.Equal(t, 2, result.SelectedOption)
	assert.Equal(t, "预订火车票", result.SelectedText)

	// Reordered characters still match through token overlap.
	result = Parse("机票预订", bookingCandidates(), nil)
	assert.Equal(t, TypeTextual, result.Type)
	assert.Equal(t, 1, result.SelectedOption)
}

func TestParse_Negative(t *testing.T) {
	for _, input := range []string{"都不是", "不对", "算了"} {
		result := Parse(input, bookingCandidates(), nil)
		assert.Equal(t, TypeNegative, result.Type, "input %q", input)
		assert.Zero(t, result.SelectedOption)
	}
}

func TestParse_Uncertain(t *testing.T) {
	result := Parse("不知道", bookingCandidates(), nil)
	assert.Equal(t, TypeUncertain, result.Type)
	assert.Zero(t, result.SelectedOption)
}

func TestParse_TypoCorrection(t *testing.T) {
	// A lone "l" is a common mistype of "1".
	result := Parse("l", bookingCandidates(), nil)
	require.Equal(t, TypeNumeric, result.Type)
	assert.Equal(t, 1, result.SelectedOption)
	assert.NotEmpty(t, result.Corrections)
	// Corrected parses carry a confidence penalty.
	assert.Less(t, result.Confidence, 0.95)
}

func TestParse_ContextualAffirmation(t *testing.T) {
	parseContext := &Context{RecentIntents: []string{"book_train"}}
	result := Parse("老样子", bookingCandidates(), parseContext)
	require.Equal(t, TypeMixed, result.Type)
	assert.Equal(t, 2, result.SelectedOption)
}

func TestParse_PreferenceOutranksRecency(t *testing.T) {
	parseContext := &Context{
		RecentIntents: []string{"book_train"},
		Preferences:   map[string]string{"preferred_intent": "查询天气"},
	}
	result := Parse("老样子", bookingCandidates(), parseContext)
	require.Equal(t, TypeMixed, result.Type)
	assert.Equal(t, 3, result.SelectedOption)
	assert.Equal(t, "查询天气", result.SelectedText)
}

func TestParse_HabitualNumericRescue(t *testing.T) {
	patterns := NewPatterns()
	for i := 0; i < 3; i++ {
		patterns.Record("u1", TypeNumeric)
	}

	// Without a recorded habit the noisy pick stays unparseable.
	result := Parse("好像2吧", bookingCandidates(), nil)
	assert.Equal(t, TypeUncertain, result.Type)

	parseContext := &Context{UserID: "u1", Patterns: patterns}
	result = Parse("好像2吧", bookingCandidates(), parseContext)
	require.Equal(t, TypeNumeric, result.Type)
	assert.Equal(t, 2, result.SelectedOption)
	assert.Equal(t, LevelMedium, result.Level)
}

func TestPatterns_Habitual(t *testing.T) {
	patterns := NewPatterns()
	patterns.Record("u1", TypeNumeric)
	patterns.Record("u1", TypeTextual)
	_, ok := patterns.Habitual("u1")
	assert.False(t, ok, "needs at least three answers")

	patterns.Record("u1", TypeNumeric)
	habit, ok := patterns.Habitual("u1")
	require.True(t, ok)
	assert.Equal(t, TypeNumeric, habit)

	patterns.Record("u1", TypeTextual)
	_, ok = patterns.Habitual("u1")
	assert.False(t, ok, "an even split is not a habit")

	_, ok = patterns.Habitual("unknown")
	assert.False(t, ok)
}

func TestParse_Unparseable(t *testing.T) {
	result := Parse("叽里咕噜", bookingCandidates(), nil)
	assert.Equal(t, TypeUncertain, result.Type)
	assert.Zero(t, result.SelectedOption)
	// The failure result suggests how to answer instead.
	assert.NotEmpty(t, result.Corrections)
}

func TestParse_FillerPrefixStripped(t *testing.T) {
	result := Parse("嗯那就1吧", bookingCandidates(), nil)
	// "吧" survives preprocessing, so this goes through the bare-number
	// path only if the remainder is numeric; "1吧" is not, so the parser
	// falls through to weaker strategies without crashing.
	assert.NotNil(t, result)

	result = Parse("嗯2", bookingCandidates(), nil)
	assert.Equal(t, 2, result.SelectedOption)
}

func TestParse_Deterministic(t *testing.T) {
	first := Parse("第2个", bookingCandidates(), nil)
	for i := 0; i < 10; i++ {
		again := Parse("第2个", bookingCandidates(), nil)
		assert.Equal(t, first, again)
	}
}

func TestParseMulti(t *testing.T) {
	results := ParseMulti("1和3", bookingCandidates(), nil)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].SelectedOption)
	assert.Equal(t, 3, results[1].SelectedOption)
}

func TestParseMulti_NoTriggerFallsBackToSingle(t *testing.T) {
	results := ParseMulti("2", bookingCandidates(), nil)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].SelectedOption)
}
