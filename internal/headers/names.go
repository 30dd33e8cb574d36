package headers

import (
	"net/textproto"
	"strings"
)

// Names is an ordered set of header names compared case-insensitively.
// The first spelling added is kept for display.
type Names struct {
	order   []string
	display map[string]string
}

// NewNames creates a set holding names in order, ignoring duplicates.
func NewNames(names ...string) Names {
	n := Names{display: make(map[string]string, len(names))}
	for _, name := range names {
		n = n.add(name)
	}
	return n
}

func (n Names) add(name string) Names {
	name = strings.TrimSpace(name)
	if name == "" {
		return n
	}
	key := Canonical(name)
	if _, ok := n.display[key]; ok {
		return n
	}
	n.display[key] = name
	n.order = append(n.order, key)
	return n
}

// With returns a copy of n extended with names.
func (n Names) With(names ...string) Names {
	out := Names{
		order:   make([]string, len(n.order), len(n.order)+len(names)),
		display: make(map[string]string, len(n.display)+len(names)),
	}
	copy(out.order, n.order)
	for k, v := range n.display {
		out.display[k] = v
	}
	for _, name := range names {
		out = out.add(name)
	}
	return out
}

// Contains reports whether name is in the set.
func (n Names) Contains(name string) bool {
	_, ok := n.display[Canonical(name)]
	return ok
}

// Canonical returns the canonical keys in insertion order.
func (n Names) Canonical() []string {
	out := make([]string, len(n.order))
	copy(out, n.order)
	return out
}

// Display returns the names as first spelled, in insertion order.
func (n Names) Display() []string {
	out := make([]string, len(n.order))
	for i, key := range n.order {
		out[i] = n.display[key]
	}
	return out
}

// Join renders the set as a comma separated header value.
func (n Names) Join() string {
	return strings.Join(n.Display(), ", ")
}

// Len returns the number of names.
func (n Names) Len() int {
	return len(n.order)
}

// Canonical returns the canonical MIME form of a header name.
func Canonical(name string) string {
	return textproto.CanonicalMIMEHeaderKey(name)
}
