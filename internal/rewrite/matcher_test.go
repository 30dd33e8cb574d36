package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefixMatcher(t *testing.T) {
	t.Parallel()

	m := NewPrefixMatcher("/proxy")

	tests := []struct {
		path     string
		expected bool
	}{
		{"/proxy", true},
		{"/proxy/", true},
		{"/proxy/ws", true},
		{"/proxyws", false},
		{"/prox", false},
		{"/", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, m.Match(tt.path), tt.path)
	}
	assert.Equal(t, "prefix", m.Type())
	assert.Equal(t, "/proxy", m.Pattern())
}

func TestPrefixMatcher_EmptyPrefixNeverMatches(t *testing.T) {
	t.Parallel()

	assert.False(t, NewPrefixMatcher("").Match("/anything"))
}

func TestExactMatcher(t *testing.T) {
	t.Parallel()

	m := NewExactMatcher("/ws", "/proxy/ws")

	assert.True(t, m.Match("/ws"))
	assert.True(t, m.Match("/proxy/ws"))
	assert.False(t, m.Match("/ws/"))
	assert.Equal(t, "exact", m.Type())
	assert.Equal(t, "/ws|/proxy/ws", m.Pattern())
}

func TestAnyMatcher(t *testing.T) {
	t.Parallel()

	var m AnyMatcher
	assert.True(t, m.Match(""))
	assert.Equal(t, "any", m.Type())
	assert.Equal(t, "*", m.Pattern())
}
