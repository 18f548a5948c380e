// Package resolve implements symbol resolution with disambiguation
// (spec §4.9): turning a {symbol, file?, module?, package?} request into
// a single node ID, or a structured Ambiguous/NotFound payload when it
// can't.
package resolve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/couzic/ts-graph-mcp/internal/graph"
)

// MaxSuggestions is the number of Levenshtein-nearest names/files offered
// in a NotFound result.
const MaxSuggestions = 5

// Query is the resolver's input. File, Module and Package narrow the
// search when provided; Module and Package are applied as filters over
// whatever candidate set the Symbol/File lookup produces.
type Query struct {
	Symbol  string
	File    string
	Module  string
	Package string
}

// Candidate describes one node in an Ambiguous result, enough for a
// caller to narrow by file, module or package.
type Candidate struct {
	ID      graph.NodeID
	Type    graph.NodeType
	Name    string
	FilePath string
	Package string
}

// Result is the resolver's tagged-union output. Exactly one of Unique,
// Ambiguous, NotFound is non-nil.
type Result struct {
	Unique    *Unique
	Ambiguous *Ambiguous
	NotFound  *NotFound
}

// Unique is returned when resolution yields exactly one node.
type Unique struct {
	ID graph.NodeID
	// Message explains a non-trivial disambiguation path (case-insensitive
	// match or method-suffix recovery); empty for a plain exact match.
	Message string
}

// Ambiguous is returned when more than one node matches and no further
// narrowing field (file/module/package) distinguishes them.
type Ambiguous struct {
	Candidates []Candidate
}

// NotFound is returned when nothing matches, carrying up to
// MaxSuggestions Levenshtein-nearest names or files to guide a retry.
type NotFound struct {
	SuggestedNames []string
	SuggestedFiles []string
}

// Resolver resolves symbol queries against a graph.Store (spec §4.9).
// It is the only component that constructs or parses graph.NodeID
// strings on behalf of callers; every other package treats IDs as
// opaque.
type Resolver struct {
	store *graph.Store
}

// New returns a Resolver backed by store.
func New(store *graph.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve resolves q per spec §4.9's resolution order.
func (r *Resolver) Resolve(ctx context.Context, q Query) (Result, error) {
	if strings.TrimSpace(q.Symbol) == "" {
		return Result{}, fmt.Errorf("resolve: symbol is required")
	}

	if q.File != "" {
		return r.resolveInFile(ctx, q)
	}
	return r.resolveGlobal(ctx, q)
}

// resolveInFile implements step 1: exact {file, name}, else method-suffix
// within the file.
func (r *Resolver) resolveInFile(ctx context.Context, q Query) (Result, error) {
	fileNodes, err := r.store.NodesByFile(ctx, q.File)
	if err != nil {
		return Result{}, fmt.Errorf("resolve: %w", err)
	}

	if exact := filterByName(fileNodes, q.Symbol, false); len(exact) > 0 {
		return r.finalize(ctx, q, exact, "")
	}

	if ci := filterByName(fileNodes, q.Symbol, true); len(ci) > 0 {
		return r.finalize(ctx, q, ci, "case-insensitive match")
	}

	if ms := filterByMethodSuffix(fileNodes, q.Symbol); len(ms) > 0 {
		return r.finalize(ctx, q, ms, methodSuffixMessage(q.Symbol, ms))
	}

	return r.notFound(ctx, q)
}

// resolveGlobal implements step 2: exact name anywhere, else
// method-suffix, else NodeID path-suffix.
func (r *Resolver) resolveGlobal(ctx context.Context, q Query) (Result, error) {
	exact, err := r.store.NodesByName(ctx, q.Symbol, false)
	if err != nil {
		return Result{}, fmt.Errorf("resolve: %w", err)
	}
	if len(exact) > 0 {
		return r.finalize(ctx, q, exact, "")
	}

	ci, err := r.store.NodesByName(ctx, q.Symbol, true)
	if err != nil {
		return Result{}, fmt.Errorf("resolve: %w", err)
	}
	if len(ci) > 0 {
		return r.finalize(ctx, q, ci, "case-insensitive match")
	}

	all, err := r.store.AllNodes(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("resolve: %w", err)
	}

	if ms := filterByMethodSuffix(all, q.Symbol); len(ms) > 0 {
		return r.finalize(ctx, q, ms, methodSuffixMessage(q.Symbol, ms))
	}

	if ps := filterByPathSuffix(all, q.Symbol); len(ps) > 0 {
		return r.finalize(ctx, q, ps, "matched by NodeId suffix")
	}

	return r.notFoundFrom(ctx, q, all)
}

// finalize applies module/package narrowing to candidates and produces
// Unique or Ambiguous.
func (r *Resolver) finalize(ctx context.Context, q Query, candidates []*graph.Node, message string) (Result, error) {
	if q.Package != "" {
		candidates = filterByPackage(candidates, q.Package)
	}
	// Module is an alias narrowing dimension for the same Package field
	// (spec §4.9 input shape names both; this store has one notion of
	// "package" a node belongs to).
	if q.Module != "" {
		candidates = filterByPackage(candidates, q.Module)
	}

	switch len(candidates) {
	case 0:
		return r.notFound(ctx, q)
	case 1:
		return Result{Unique: &Unique{ID: candidates[0].ID, Message: message}}, nil
	default:
		return Result{Ambiguous: &Ambiguous{Candidates: toCandidates(candidates)}}, nil
	}
}

func (r *Resolver) notFound(ctx context.Context, q Query) (Result, error) {
	all, err := r.store.AllNodes(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("resolve: %w", err)
	}
	return r.notFoundFrom(ctx, q, all)
}

// notFoundFrom builds suggestions from the full node set: nearest names
// within the given file if one was specified and indexed, else nearest
// files where the symbol name matches elsewhere.
func (r *Resolver) notFoundFrom(_ context.Context, q Query, all []*graph.Node) (Result, error) {
	nf := &NotFound{}

	if q.File != "" {
		fileNodes := filterByFile(all, q.File)
		if len(fileNodes) > 0 {
			names := make([]string, 0, len(fileNodes))
			for _, n := range fileNodes {
				names = append(names, n.Name)
			}
			nf.SuggestedNames = nearest(q.Symbol, dedupe(names), MaxSuggestions)
			return Result{NotFound: nf}, nil
		}
	}

	files := make(map[string]bool)
	for _, n := range all {
		if strings.EqualFold(n.Name, q.Symbol) || strings.Contains(strings.ToLower(n.Name), strings.ToLower(q.Symbol)) {
			files[n.FilePath] = true
		}
	}
	if len(files) > 0 {
		fileList := make([]string, 0, len(files))
		for f := range files {
			fileList = append(fileList, f)
		}
		nf.SuggestedFiles = nearest(q.Symbol, fileList, MaxSuggestions)
		return Result{NotFound: nf}, nil
	}

	allNames := make([]string, 0, len(all))
	for _, n := range all {
		allNames = append(allNames, n.Name)
	}
	nf.SuggestedNames = nearest(q.Symbol, dedupe(allNames), MaxSuggestions)
	return Result{NotFound: nf}, nil
}

func filterByName(nodes []*graph.Node, name string, caseInsensitive bool) []*graph.Node {
	var out []*graph.Node
	for _, n := range nodes {
		if caseInsensitive {
			if strings.EqualFold(n.Name, name) {
				out = append(out, n)
			}
		} else if n.Name == name {
			out = append(out, n)
		}
	}
	return out
}

func filterByFile(nodes []*graph.Node, file string) []*graph.Node {
	var out []*graph.Node
	for _, n := range nodes {
		if n.FilePath == file {
			out = append(out, n)
		}
	}
	return out
}

func filterByPackage(nodes []*graph.Node, pkg string) []*graph.Node {
	var out []*graph.Node
	for _, n := range nodes {
		if n.Package == pkg {
			out = append(out, n)
		}
	}
	return out
}

// filterByMethodSuffix recovers Class.method identities: matches either
// a fully-qualified "Class.method" symbol against the node's symbol
// path, or a bare method name against the suffix of that path.
func filterByMethodSuffix(nodes []*graph.Node, symbol string) []*graph.Node {
	var out []*graph.Node
	for _, n := range nodes {
		if n.Type != graph.NodeMethod {
			continue
		}
		_, _, symbolPath, err := n.ID.Split()
		if err != nil {
			continue
		}
		if symbolPath == symbol || strings.HasSuffix(symbolPath, "."+symbol) {
			out = append(out, n)
		}
	}
	return out
}

// filterByPathSuffix matches symbol as a suffix of the full NodeID
// string, the resolver's broadest and last-resort fallback.
func filterByPathSuffix(nodes []*graph.Node, symbol string) []*graph.Node {
	var out []*graph.Node
	for _, n := range nodes {
		if strings.HasSuffix(string(n.ID), symbol) {
			out = append(out, n)
		}
	}
	return out
}

func methodSuffixMessage(symbol string, matches []*graph.Node) string {
	if len(matches) == 0 {
		return ""
	}
	_, _, symbolPath, err := matches[0].ID.Split()
	if err != nil || symbolPath == symbol {
		return "method-suffix match"
	}
	return fmt.Sprintf("method-suffix match: %s recovered from %s", symbolPath, symbol)
}

func toCandidates(nodes []*graph.Node) []Candidate {
	out := make([]Candidate, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, Candidate{
			ID:       n.ID,
			Type:     n.Type,
			Name:     n.Name,
			FilePath: n.FilePath,
			Package:  n.Package,
		})
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// nearest returns the k candidates with the smallest Levenshtein
// distance to target, ascending, ties broken alphabetically.
func nearest(target string, candidates []string, k int) []string {
	type scored struct {
		value string
		dist  int
	}
	scoredList := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		scoredList = append(scoredList, scored{value: c, dist: levenshtein.Distance(target, c, nil)})
	}
	sort.Slice(scoredList, func(i, j int) bool {
		if scoredList[i].dist != scoredList[j].dist {
			return scoredList[i].dist < scoredList[j].dist
		}
		return scoredList[i].value < scoredList[j].value
	})
	if len(scoredList) > k {
		scoredList = scoredList[:k]
	}
	out := make([]string, len(scoredList))
	for i, s := range scoredList {
		out[i] = s.value
	}
	return out
}
