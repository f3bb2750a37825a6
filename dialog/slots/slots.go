package slots

import (
	"encoding/json"
	"strconv"

	"github.com/leichangqing/intelligence-intent-sub003/store"
)

// WireSlot is the API I/O representation of a slot value.
type WireSlot struct {
	Name         string  `json:"name"`
	Value        string  `json:"value"`
	Confidence   float64 `json:"confidence,omitempty"`
	Source       string  `json:"source,omitempty"`
	OriginalText string  `json:"original_text,omitempty"`
}

// CachedSlot is the compact hot-read representation kept per session.
type CachedSlot struct {
	Name       string                 `json:"name"`
	Intent     string                 `json:"intent"`
	Value      string                 `json:"value"`
	Normalized string                 `json:"normalized"`
	Confidence float64                `json:"confidence"`
	Status     store.ValidationStatus `json:"status"`
}

// ToWire converts a cached slot back to the wire shape.
func (c *CachedSlot) ToWire() WireSlot {
	return WireSlot{
		Name:       c.Name,
		Value:      c.Normalized,
		Confidence: c.Confidence,
		Source:     "store",
	}
}

// FromRow converts an authoritative store row to the cache shape.
func FromRow(row *store.SlotValue) *CachedSlot {
	return &CachedSlot{
		Name:       row.SlotName,
		Intent:     row.IntentName,
		Value:      row.ExtractedValue,
		Normalized: row.NormalizedValue,
		Confidence: row.Confidence,
		Status:     row.ValidationStatus,
	}
}

// Merge overwrites existing slots by name with new ones; keys present only
// in existing are preserved. Neither input map is mutated.
func Merge(existing, new map[string]*CachedSlot) map[string]*CachedSlot {
	merged := make(map[string]*CachedSlot, len(existing)+len(new))
	for name, slot := range existing {
		merged[name] = slot
	}
	for name, slot := range new {
		merged[name] = slot
	}
	return merged
}

// MissingRequired returns names of required slots without a valid current value.
func MissingRequired(required []*store.SlotDefinition, current map[string]*CachedSlot) []string {
	var missing []string
	for _, slot := range required {
		cached, ok := current[slot.Name]
		if !ok || cached.Status != store.ValidationValid || cached.Normalized == "" {
			missing = append(missing, slot.Name)
		}
	}
	return missing
}

// InvalidSlots returns names of current slots with validation errors.
func InvalidSlots(current map[string]*CachedSlot) []string {
	var invalid []string
	for name, cached := range current {
		if cached.Status == store.ValidationInvalid {
			invalid = append(invalid, name)
		}
	}
	return invalid
}

// Snapshot renders the normalized slot values as a plain string map, the
// form used by confirmation requests and template rendering.
func Snapshot(current map[string]*CachedSlot) map[string]string {
	snapshot := make(map[string]string, len(current))
	for name, cached := range current {
		if cached.Status == store.ValidationValid {
			snapshot[name] = cached.Normalized
		}
	}
	return snapshot
}

// ruleInt reads an integer validation rule, tolerating the float64 shape
// that JSON decoding produces.
func ruleInt(rules map[string]any, key string) (int, bool) {
	switch v := rules[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), true
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	return 0, false
}
