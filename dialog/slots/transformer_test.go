package slots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leichangqing/intelligence-intent-sub003/store"
)

var testNow = time.Date(2026, 8, 24, 10, 0, 0, 0, time.Local)

func dateSlot() *store.SlotDefinition {
	return &store.SlotDefinition{Name: "departure_date", Type: store.SlotTypeDate}
}

func TestNormalize_Date(t *testing.T) {
	tr := NewTransformer()

	tests := []struct {
		raw        string
		wantValue  string
		wantStatus store.ValidationStatus
	}{
		{"今天", "2026-08-24", store.ValidationValid},
		{"明天", "2026-08-25", store.ValidationValid},
		{"后天", "2026-08-26", store.ValidationValid},
		{"昨天", "2026-08-23", store.ValidationValid},
		{"tomorrow", "2026-08-25", store.ValidationValid},
		{"2026-09-01", "2026-09-01", store.ValidationValid},
		{"2026-02-30", "2026-02-30", store.ValidationInvalid},
		{"下周三", "下周三", store.ValidationPending},
	}
	for _, tt := range tests {
		got := tr.Normalize(dateSlot(), tt.raw, testNow)
		assert.Equal(t, tt.wantValue, got.Value, "raw %q", tt.raw)
		assert.Equal(t, tt.wantStatus, got.Status, "raw %q", tt.raw)
	}
}

func TestNormalize_DateIdempotent(t *testing.T) {
	tr := NewTransformer()
	first := tr.Normalize(dateSlot(), "明天", testNow)
	require.Equal(t, store.ValidationValid, first.Status)

	again := tr.Normalize(dateSlot(), first.Value, testNow)
	assert.Equal(t, first.Value, again.Value)
	assert.Equal(t, store.ValidationValid, again.Status)
}

func TestNormalize_Number(t *testing.T) {
	tr := NewTransformer()
	slot := &store.SlotDefinition{Name: "passenger_count", Type: store.SlotTypeNumber}

	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"3", "3", true},
		{"3个", "3", true},
		{"两张", "2", true},
		{"一", "1", true},
		{"十", "10", true},
		{"十二", "12", true},
		{"二十", "20", true},
		{"三十五", "35", true},
		{"2.0", "2", true},
		{"2.5", "2.5", true},
		{"abc", "abc", false},
	}
	for _, tt := range tests {
		got := tr.Normalize(slot, tt.raw, testNow)
		if tt.ok {
			assert.Equal(t, store.ValidationValid, got.Status, "raw %q", tt.raw)
			assert.Equal(t, tt.want, got.Value, "raw %q", tt.raw)
		} else {
			assert.Equal(t, store.ValidationInvalid, got.Status, "raw %q", tt.raw)
		}
	}
}

func TestNormalize_Email(t *testing.T) {
	tr := NewTransformer()
	slot := &store.SlotDefinition{Name: "email", Type: store.SlotTypeEmail}

	got := tr.Normalize(slot, "User@Example.COM", testNow)
	assert.Equal(t, store.ValidationValid, got.Status)
	assert.Equal(t, "user@example.com", got.Value)

	got = tr.Normalize(slot, "not-an-email", testNow)
	assert.Equal(t, store.ValidationInvalid, got.Status)
}

func TestNormalize_Phone(t *testing.T) {
	tr := NewTransformer()
	slot := &store.SlotDefinition{Name: "phone", Type: store.SlotTypePhone}

	got := tr.Normalize(slot, "138-1234-5678", testNow)
	assert.Equal(t, store.ValidationValid, got.Status)
	assert.Equal(t, "13812345678", got.Value)

	got = tr.Normalize(slot, "12345", testNow)
	assert.Equal(t, store.ValidationInvalid, got.Status)
}

func TestNormalize_TextLength(t *testing.T) {
	tr := NewTransformer()
	slot := &store.SlotDefinition{
		Name: "departure_city",
		Type: store.SlotTypeText,
		ValidationRules: map[string]any{
			"min_length": 2,
			"max_length": 5,
		},
	}

	assert.Equal(t, store.ValidationValid, tr.Normalize(slot, "北京", testNow).Status)
	assert.Equal(t, store.ValidationInvalid, tr.Normalize(slot, "沪", testNow).Status)
	assert.Equal(t, store.ValidationInvalid, tr.Normalize(slot, "很长很长的城市名", testNow).Status)
	// JSON-decoded rules arrive as float64.
	slot.ValidationRules = map[string]any{"min_length": float64(2)}
	assert.Equal(t, store.ValidationInvalid, tr.Normalize(slot, "沪", testNow).Status)
}

func TestNormalize_Enum(t *testing.T) {
	tr := NewTransformer()
	slot := &store.SlotDefinition{
		Name: "seat_class",
		Type: store.SlotTypeEnum,
		ValidationRules: map[string]any{
			"values": []any{"economy", "business"},
		},
	}

	got := tr.Normalize(slot, "Economy", testNow)
	assert.Equal(t, store.ValidationValid, got.Status)
	assert.Equal(t, "economy", got.Value)

	got = tr.Normalize(slot, "first", testNow)
	assert.Equal(t, store.ValidationInvalid, got.Status)
}

func TestNormalize_CustomRule(t *testing.T) {
	tr := NewTransformer()
	slot := &store.SlotDefinition{
		Name: "passenger_count",
		Type: store.SlotTypeNumber,
		ValidationRules: map[string]any{
			"cel": "int(value) >= 1 && int(value) <= 9",
		},
	}

	assert.Equal(t, store.ValidationValid, tr.Normalize(slot, "3", testNow).Status)

	got := tr.Normalize(slot, "12", testNow)
	assert.Equal(t, store.ValidationInvalid, got.Status)
	assert.NotEmpty(t, got.Error)
}

func TestNormalize_BrokenRuleIsSkipped(t *testing.T) {
	tr := NewTransformer()
	slot := &store.SlotDefinition{
		Name:            "city",
		Type:            store.SlotTypeText,
		ValidationRules: map[string]any{"cel": "this is not cel"},
	}
	// An uncompilable rule must not block the value.
	assert.Equal(t, store.ValidationValid, tr.Normalize(slot, "北京", testNow).Status)
}

func TestNormalize_Empty(t *testing.T) {
	tr := NewTransformer()
	got := tr.Normalize(dateSlot(), "   ", testNow)
	assert.Equal(t, store.ValidationMissing, got.Status)
}
