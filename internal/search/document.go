// Package search implements the unified lexical+vector search index
// (spec §4.4): BM25 over {symbol, file, snippet, prefixes}, an optional
// HNSW vector field, and reciprocal-rank fusion between the two.
package search

import "strings"

// Document is one indexable unit: a node's identity plus the text
// fields BM25 ranks over. Prefixes is derived, not author-supplied — see
// DerivePrefixes.
type Document struct {
	ID       string
	Symbol   string
	File     string
	Snippet  string
	Prefixes []string
	Vector   []float32 // optional; nil if the node had no embedding
}

// DerivePrefixes splits Symbol into camelCase/snake_case parts and
// accumulates the whole symbol plus the substring prefixes of each part,
// all lowercased, so a query like "provider" recalls "ProviderService"
// (spec §4.4).
func DerivePrefixes(symbol string) []string {
	parts := splitCodeToken(symbol)
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		s = strings.ToLower(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	add(symbol)
	for _, part := range parts {
		lower := strings.ToLower(part)
		for i := 1; i <= len(lower); i++ {
			add(lower[:i])
		}
	}
	return out
}
