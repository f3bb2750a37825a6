package sqlite

import (
	"encoding/json"
)

// marshalJSON serializes a value for a JSON text column, defaulting to the
// given literal on nil input.
func marshalJSON(v any, def string) string {
	if v == nil {
		return def
	}
	b, err := json.Marshal(v)
	if err != nil {
		return def
	}
	return string(b)
}

func unmarshalMap(s string) map[string]any {
	m := map[string]any{}
	if s != "" {
		_ = json.Unmarshal([]byte(s), &m)
	}
	return m
}

func unmarshalStringMap(s string) map[string]string {
	m := map[string]string{}
	if s != "" {
		_ = json.Unmarshal([]byte(s), &m)
	}
	return m
}

func unmarshalStrings(s string) []string {
	var list []string
	if s != "" {
		_ = json.Unmarshal([]byte(s), &list)
	}
	return list
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
