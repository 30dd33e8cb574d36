package rewrite

import (
	"strings"

	"github.com/vyrodovalexey/corsrelay/internal/config"
)

// Rule names reported by Resolve.
const (
	RuleProxyNamespace = "proxy-namespace"
	RuleAlias          = "alias"
	RuleProxyPrefix    = "proxy-prefix"
	RuleAPIPassthrough = "api-passthrough"
	RuleDefault        = "default"
)

// Rewriter transforms a matched path.
type Rewriter interface {
	Rewrite(path string) string
}

// Rule is one entry of the translation table.
type Rule struct {
	Name     string
	Matcher  Matcher
	Rewriter Rewriter
}

// StripPrefix removes a leading prefix.
type StripPrefix struct {
	Prefix string
}

// Rewrite implements Rewriter.
func (s StripPrefix) Rewrite(path string) string {
	rest := strings.TrimPrefix(path, s.Prefix)
	if rest == "" {
		return "/"
	}
	return rest
}

// Replace substitutes a fixed target path.
type Replace struct {
	Target string
}

// Rewrite implements Rewriter.
func (r Replace) Rewrite(string) string {
	return r.Target
}

// Identity leaves the path untouched.
type Identity struct{}

// Rewrite implements Rewriter.
func (Identity) Rewrite(path string) string {
	return path
}

// Namespace places a path inside the versioned API namespace.
type Namespace struct {
	Namespace string
}

// Rewrite implements Rewriter.
func (n Namespace) Rewrite(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if hasSegmentPrefix(path, n.Namespace) {
		return path
	}
	if path == "/" {
		return n.Namespace + "/"
	}
	return n.Namespace + path
}

// StripAndNamespace removes the proxy prefix and namespaces the remainder
// unless it already lives under the API root.
type StripAndNamespace struct {
	Prefix    string
	APIRoot   string
	Namespace string
}

// Rewrite implements Rewriter.
func (s StripAndNamespace) Rewrite(path string) string {
	rest := StripPrefix{Prefix: s.Prefix}.Rewrite(path)
	if hasSegmentPrefix(rest, s.APIRoot) {
		return rest
	}
	return Namespace{Namespace: s.Namespace}.Rewrite(rest)
}

// DefaultRules builds the translation table from path configuration.
func DefaultRules(paths config.PathsConfig) []Rule {
	prefix := paths.ProxyPrefix
	namespace := paths.APINamespace
	apiRoot := APIRoot(namespace)

	rules := make([]Rule, 0, len(paths.Aliases)+4)

	if prefix != "" {
		rules = append(rules, Rule{
			Name:     RuleProxyNamespace,
			Matcher:  NewPrefixMatcher(prefix + namespace),
			Rewriter: StripPrefix{Prefix: prefix},
		})
	}

	for _, from := range paths.SortedAliases() {
		sources := []string{from}
		if prefix != "" {
			sources = append(sources, prefix+from)
		}
		rules = append(rules, Rule{
			Name:     RuleAlias,
			Matcher:  NewExactMatcher(sources...),
			Rewriter: Replace{Target: namespace + paths.Aliases[from]},
		})
	}

	if prefix != "" {
		rules = append(rules, Rule{
			Name:     RuleProxyPrefix,
			Matcher:  NewPrefixMatcher(prefix),
			Rewriter: StripAndNamespace{Prefix: prefix, APIRoot: apiRoot, Namespace: namespace},
		})
	}

	rules = append(rules,
		Rule{
			Name:     RuleAPIPassthrough,
			Matcher:  NewPrefixMatcher(apiRoot),
			Rewriter: Identity{},
		},
		Rule{
			Name:     RuleDefault,
			Matcher:  AnyMatcher{},
			Rewriter: Namespace{Namespace: namespace},
		},
	)

	return rules
}

// APIRoot returns the first segment of a namespace: "/_api/v3" -> "/_api".
func APIRoot(namespace string) string {
	trimmed := strings.TrimPrefix(namespace, "/")
	if i := strings.Index(trimmed, "/"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return "/" + trimmed
}

// Translator applies an ordered rule table.
type Translator struct {
	rules     []Rule
	namespace string
}

// New creates a translator with the default table for paths.
func New(paths config.PathsConfig) *Translator {
	return NewWithRules(paths.APINamespace, DefaultRules(paths))
}

// NewWithRules creates a translator with a custom table. A final catch-all
// rule namespacing every path is appended if the table lacks one.
func NewWithRules(namespace string, rules []Rule) *Translator {
	table := make([]Rule, len(rules), len(rules)+1)
	copy(table, rules)
	if len(table) == 0 || table[len(table)-1].Matcher.Type() != "any" {
		table = append(table, Rule{
			Name:     RuleDefault,
			Matcher:  AnyMatcher{},
			Rewriter: Namespace{Namespace: namespace},
		})
	}
	return &Translator{rules: table, namespace: namespace}
}

// Resolve translates a path (without query) and reports the matching rule.
func (t *Translator) Resolve(path string) (translated, rule string) {
	if path == "" {
		return t.namespace + "/", RuleDefault
	}
	for _, r := range t.rules {
		if r.Matcher.Match(path) {
			return r.Rewriter.Rewrite(path), r.Name
		}
	}
	// unreachable: the table always ends with a catch-all
	return Namespace{Namespace: t.namespace}.Rewrite(path), RuleDefault
}

// Translate returns the upstream path with the raw query re-attached.
func (t *Translator) Translate(path, rawQuery string) string {
	translated, _ := t.Resolve(path)
	return WithQuery(translated, rawQuery)
}

// WithQuery appends rawQuery to path when it is non-empty.
func WithQuery(path, rawQuery string) string {
	if rawQuery == "" {
		return path
	}
	return path + "?" + rawQuery
}

// Rules returns a copy of the table.
func (t *Translator) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}
