package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leichangqing/intelligence-intent-sub003/internal/profile"
	"github.com/leichangqing/intelligence-intent-sub003/store"
)

func testProfile() *profile.Profile {
	return &profile.Profile{
		IntentConfidenceThreshold:   0.70,
		AmbiguityDetectionThreshold: 0.15,
		ConfidenceHigh:              0.85,
		ConfidenceMedium:            0.70,
		ConfidenceLow:               0.55,
		ConfidenceReject:            0.40,
	}
}

func TestThreshold(t *testing.T) {
	m := NewManager(testProfile())

	configured := &store.IntentDefinition{Name: "book_flight", ConfidenceThreshold: 0.60}
	assert.InDelta(t, 0.60, m.Threshold(configured), 1e-9)

	// Without a per-intent threshold the global floor applies.
	unset := &store.IntentDefinition{Name: "check_weather"}
	assert.InDelta(t, 0.70, m.Threshold(unset), 1e-9)

	assert.True(t, m.Passed(configured, 0.60))
	assert.False(t, m.Passed(configured, 0.59))
}

func TestBand(t *testing.T) {
	m := NewManager(testProfile())

	tests := []struct {
		confidence float64
		want       Band
	}{
		{0.95, BandHigh},
		{0.85, BandHigh},
		{0.75, BandMedium},
		{0.60, BandLow},
		{0.45, BandReject},
		{0.20, BandVeryLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Band(tt.confidence), "confidence %.2f", tt.confidence)
	}
}

func TestRecord_RaisesThresholdOnSustainedFailure(t *testing.T) {
	m := NewManager(testProfile())
	intent := &store.IntentDefinition{Name: "book_flight", ConfidenceThreshold: 0.70}

	// Below the sample floor nothing moves.
	for i := 0; i < 19; i++ {
		m.Record(intent.Name, 0.72, false)
	}
	assert.InDelta(t, 0.70, m.Threshold(intent), 1e-9)

	// Sustained failure drifts the threshold up, bounded at +0.05.
	for i := 0; i < 20; i++ {
		m.Record(intent.Name, 0.72, false)
	}
	assert.InDelta(t, 0.75, m.Threshold(intent), 1e-9)

	n, successes, avg := m.Stats(intent.Name)
	assert.Equal(t, int64(39), n)
	assert.Equal(t, int64(0), successes)
	assert.InDelta(t, 0.72, avg, 1e-9)
}

func TestRecord_LowersThresholdOnSustainedSuccess(t *testing.T) {
	m := NewManager(testProfile())
	intent := &store.IntentDefinition{Name: "check_weather", ConfidenceThreshold: 0.60}

	for i := 0; i < 40; i++ {
		m.Record(intent.Name, 0.80, true)
	}
	assert.InDelta(t, 0.55, m.Threshold(intent), 1e-9)
}
