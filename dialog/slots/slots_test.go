package slots

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leichangqing/intelligence-intent-sub003/store"
)

func validSlot(name, value string) *CachedSlot {
	return &CachedSlot{Name: name, Value: value, Normalized: value, Confidence: 0.9, Status: store.ValidationValid}
}

func TestMerge(t *testing.T) {
	existing := map[string]*CachedSlot{
		"departure_city": validSlot("departure_city", "北京"),
		"arrival_city":   validSlot("arrival_city", "上海"),
	}
	incoming := map[string]*CachedSlot{
		"arrival_city": validSlot("arrival_city", "广州"),
	}

	merged := Merge(existing, incoming)
	assert.Equal(t, "北京", merged["departure_city"].Normalized)
	assert.Equal(t, "广州", merged["arrival_city"].Normalized)
	// Inputs stay untouched.
	assert.Equal(t, "上海", existing["arrival_city"].Normalized)
}

func TestMissingRequired(t *testing.T) {
	required := []*store.SlotDefinition{
		{Name: "departure_city", Required: true},
		{Name: "arrival_city", Required: true},
		{Name: "departure_date", Required: true},
	}
	current := map[string]*CachedSlot{
		"departure_city": validSlot("departure_city", "北京"),
		"departure_date": {Name: "departure_date", Value: "下周三", Status: store.ValidationPending},
	}

	missing := MissingRequired(required, current)
	assert.Equal(t, []string{"arrival_city", "departure_date"}, missing)
}

func TestInvalidSlots(t *testing.T) {
	current := map[string]*CachedSlot{
		"passenger_count": {Name: "passenger_count", Value: "12", Status: store.ValidationInvalid},
		"departure_city":  validSlot("departure_city", "北京"),
	}
	assert.Equal(t, []string{"passenger_count"}, InvalidSlots(current))
}

func TestSnapshot(t *testing.T) {
	current := map[string]*CachedSlot{
		"departure_city": validSlot("departure_city", "北京"),
		"departure_date": {Name: "departure_date", Value: "下周三", Status: store.ValidationPending},
	}
	snapshot := Snapshot(current)
	require.Len(t, snapshot, 1)
	assert.Equal(t, "北京", snapshot["departure_city"])
}

func TestFromRowToWire(t *testing.T) {
	row := &store.SlotValue{
		IntentName:       "book_flight",
		SlotName:         "departure_date",
		ExtractedValue:   "明天",
		NormalizedValue:  "2026-08-25",
		Confidence:       0.85,
		ValidationStatus: store.ValidationValid,
	}
	cached := FromRow(row)
	assert.Equal(t, "book_flight", cached.Intent)
	assert.Equal(t, "明天", cached.Value)
	assert.Equal(t, "2026-08-25", cached.Normalized)

	wire := cached.ToWire()
	assert.Equal(t, "departure_date", wire.Name)
	assert.Equal(t, "2026-08-25", wire.Value)
	assert.Equal(t, 0.85, wire.Confidence)
}
