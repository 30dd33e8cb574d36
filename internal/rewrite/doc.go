// Package rewrite translates inbound dashboard paths into the upstream
// API path convention.
//
// Translation is driven by an ordered table of rules. Each rule pairs a
// Matcher with a Rewriter; rules are evaluated top-down and the first match
// wins. The default table is:
//
//  1. <prefix>/<namespace>/...  strip the proxy prefix
//  2. bare alias (with or without the prefix)  alias target in the namespace
//  3. <prefix>/...  strip the prefix, namespace unless already under /_api/
//  4. /_api/...  unchanged
//  5. anything else  ensure a leading slash and namespace it
//
// Translation is pure: the same input always yields the same output.
package rewrite
