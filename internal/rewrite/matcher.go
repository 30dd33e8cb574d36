package rewrite

import "strings"

// Matcher decides whether a rule applies to a path.
type Matcher interface {
	Match(path string) bool
	Type() string
	Pattern() string
}

// ExactMatcher matches one of a fixed set of paths.
type ExactMatcher struct {
	paths []string
}

// NewExactMatcher creates a matcher for the given paths.
func NewExactMatcher(paths ...string) *ExactMatcher {
	return &ExactMatcher{paths: paths}
}

// Match checks if the path equals one of the configured paths.
func (m *ExactMatcher) Match(path string) bool {
	for _, p := range m.paths {
		if path == p {
			return true
		}
	}
	return false
}

// Type returns the matcher type.
func (m *ExactMatcher) Type() string {
	return "exact"
}

// Pattern returns the pattern.
func (m *ExactMatcher) Pattern() string {
	return strings.Join(m.paths, "|")
}

// PrefixMatcher matches paths under a prefix, at a segment boundary.
type PrefixMatcher struct {
	prefix string
}

// NewPrefixMatcher creates a new prefix path matcher.
func NewPrefixMatcher(prefix string) *PrefixMatcher {
	return &PrefixMatcher{prefix: prefix}
}

// Match checks if the path starts with the prefix.
func (m *PrefixMatcher) Match(path string) bool {
	return hasSegmentPrefix(path, m.prefix)
}

// Type returns the matcher type.
func (m *PrefixMatcher) Type() string {
	return "prefix"
}

// Pattern returns the pattern.
func (m *PrefixMatcher) Pattern() string {
	return m.prefix
}

// AnyMatcher matches every path.
type AnyMatcher struct{}

// Match always returns true.
func (AnyMatcher) Match(string) bool {
	return true
}

// Type returns the matcher type.
func (AnyMatcher) Type() string {
	return "any"
}

// Pattern returns the pattern.
func (AnyMatcher) Pattern() string {
	return "*"
}

// hasSegmentPrefix reports whether path equals prefix or continues it with
// a slash. "/proxyx" is not under "/proxy".
func hasSegmentPrefix(path, prefix string) bool {
	if prefix == "" || !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) || strings.HasSuffix(prefix, "/") {
		return true
	}
	return path[len(prefix)] == '/'
}
