package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"我要订机票", "我要订机票"},
		{"  我要订机票  ", "我要订机票"},
		{"你好<script>alert(1)</script>", "你好scriptalert(1)/script"},
		{`a;b"c'd\e`, "abcde"},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeInput(tt.input), "input %q", tt.input)
	}
}

func TestPerUserLimiter(t *testing.T) {
	limits := newPerUserLimiters(rate.Limit(1), 3)

	// One user exhausts only their own burst.
	for i := 0; i < 3; i++ {
		assert.True(t, limits.allow("u1"), "request %d within burst", i+1)
	}
	assert.False(t, limits.allow("u1"))
	assert.True(t, limits.allow("u2"))
}
