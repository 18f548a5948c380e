// Package format renders a query.Result as the two-section text payload
// returned by the HTTP API (spec §4.12): a chain-compacted graph section
// and a per-node snippet section, grounded on the teacher's markdown
// result rendering in internal/mcp/format.go (same "bold header plus
// fenced block per hit" shape, adapted here to a graph of nodes instead
// of a flat list of search hits).
package format

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/couzic/ts-graph-mcp/internal/graph"
	"github.com/couzic/ts-graph-mcp/internal/query"
)

const (
	DefaultMaxNodes     = query.DefaultMaxNodes
	DefaultContextLines = 3
)

// Formatter renders query results against a project root, so snippet
// extraction can read the current source lines straight off disk.
type Formatter struct {
	projectRoot  string
	contextLines int
}

// New returns a Formatter rooted at projectRoot. contextLines <= 0 falls
// back to DefaultContextLines.
func New(projectRoot string, contextLines int) *Formatter {
	if contextLines <= 0 {
		contextLines = DefaultContextLines
	}
	return &Formatter{projectRoot: projectRoot, contextLines: contextLines}
}

// Format renders result as the Graph section plus, unless truncated, the
// Nodes section. excludeIDs holds the query's own input endpoints: they
// still appear in the Graph section's chains but are skipped in the
// Nodes section, since the caller already knows what they asked for.
func (f *Formatter) Format(result *query.Result, excludeIDs []graph.NodeID, maxNodes int) string {
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}

	total := len(result.Nodes)
	nodes := result.Nodes
	truncated := total > maxNodes
	if truncated {
		nodes = nodes[:maxNodes]
	}

	kept := make(map[graph.NodeID]bool, len(nodes))
	for _, n := range nodes {
		kept[n.ID] = true
	}
	keptEdges := make([]*graph.Edge, 0, len(result.Edges))
	for _, e := range result.Edges {
		if kept[e.Source] && kept[e.Target] {
			keptEdges = append(keptEdges, e)
		}
	}

	labels := assignLabels(nodes, keptEdges)

	var sb strings.Builder
	sb.WriteString("Graph:\n")
	sb.WriteString(renderGraph(nodes, keptEdges, labels))

	if truncated {
		fmt.Fprintf(&sb, "\n%d nodes total — Nodes section skipped\n", total)
		return sb.String()
	}

	excluded := make(map[graph.NodeID]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}
	callSites := callSitesByNode(keptEdges)

	sb.WriteString("\nNodes:\n")
	for _, n := range nodes {
		if excluded[n.ID] {
			continue
		}
		sb.WriteString(f.renderNode(n, labels[n.ID], callSites[n.ID]))
	}
	return sb.String()
}

// assignLabels computes each node's display label: formatDisplayName's
// per-type decoration, then a "#N" suffix for every label beyond the
// first sharing it with an earlier node (spec §4.12).
func assignLabels(nodes []*graph.Node, edges []*graph.Edge) map[graph.NodeID]string {
	jsxTarget := make(map[graph.NodeID]bool)
	for _, e := range edges {
		if e.Type == graph.EdgeIncludes {
			jsxTarget[e.Target] = true
		}
	}

	labels := make(map[graph.NodeID]string, len(nodes))
	counts := make(map[string]int, len(nodes))
	for _, n := range nodes {
		name := formatDisplayName(n, jsxTarget[n.ID])
		counts[name]++
		if counts[name] == 1 {
			labels[n.ID] = name
		} else {
			labels[n.ID] = fmt.Sprintf("%s#%d", name, counts[name])
		}
	}
	return labels
}

func formatDisplayName(n *graph.Node, isJSXTarget bool) string {
	if isJSXTarget {
		return "<" + n.Name + ">"
	}
	switch n.Type {
	case graph.NodeFunction, graph.NodeMethod:
		return n.Name + "()"
	default:
		return n.Name
	}
}

// renderGraph chain-compacts the kept edges: a node with a single
// unvisited outgoing edge continues the current line; a branch point
// (more than one unvisited outgoing edge) finishes the current chain on
// one edge and opens a fresh line, repeating the branch node's label,
// for every other edge.
func renderGraph(nodes []*graph.Node, edges []*graph.Edge, labels map[graph.NodeID]string) string {
	outEdges := make(map[graph.NodeID][]*graph.Edge)
	hasIncoming := make(map[graph.NodeID]bool)
	for _, e := range edges {
		outEdges[e.Source] = append(outEdges[e.Source], e)
		hasIncoming[e.Target] = true
	}
	for id, es := range outEdges {
		sorted := append([]*graph.Edge(nil), es...)
		sort.Slice(sorted, func(i, j int) bool { return string(sorted[i].Target) < string(sorted[j].Target) })
		outEdges[id] = sorted
	}

	visited := make(map[*graph.Edge]bool)
	var lines []string

	var buildChain func(start graph.NodeID) string
	buildChain = func(start graph.NodeID) string {
		var sb strings.Builder
		sb.WriteString(labels[start])
		current := start
		for {
			var pending []*graph.Edge
			for _, e := range outEdges[current] {
				if !visited[e] {
					pending = append(pending, e)
				}
			}
			if len(pending) == 0 {
				break
			}
			primary := pending[0]
			visited[primary] = true
			for _, extra := range pending[1:] {
				if visited[extra] {
					continue
				}
				visited[extra] = true
				lines = append(lines, fmt.Sprintf("%s --%s--> %s", labels[current], extra.Type, buildChain(extra.Target)))
			}
			fmt.Fprintf(&sb, " --%s--> %s", primary.Type, labels[primary.Target])
			current = primary.Target
		}
		return sb.String()
	}

	for _, n := range nodes {
		if hasIncoming[n.ID] {
			continue
		}
		if len(outEdges[n.ID]) == 0 {
			lines = append(lines, labels[n.ID])
			continue
		}
		lines = append(lines, buildChain(n.ID))
	}

	// Cycles leave every member node with incoming edges, so none is
	// picked as a chain start above; sweep again for leftover edges.
	for _, n := range nodes {
		for _, e := range outEdges[n.ID] {
			if !visited[e] {
				lines = append(lines, buildChain(n.ID))
				break
			}
		}
	}

	return strings.Join(lines, "\n") + "\n"
}

func callSitesByNode(edges []*graph.Edge) map[graph.NodeID][]graph.CallSite {
	out := make(map[graph.NodeID][]graph.CallSite)
	for _, e := range edges {
		if e.Type != graph.EdgeCalls || len(e.Meta.CallSites) == 0 {
			continue
		}
		out[e.Source] = append(out[e.Source], e.Meta.CallSites...)
	}
	return out
}

func (f *Formatter) renderNode(n *graph.Node, label string, callSites []graph.CallSite) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:\n", label)
	fmt.Fprintf(&sb, "  type: %s\n", n.Type)
	fmt.Fprintf(&sb, "  file: %s\n", n.FilePath)
	fmt.Fprintf(&sb, "  offset: %d\n", n.StartLine)
	fmt.Fprintf(&sb, "  limit: %d\n", n.EndLine-n.StartLine+1)
	sb.WriteString("  snippet:\n")
	sb.WriteString(f.snippet(n, callSites))
	sb.WriteString("\n")
	return sb.String()
}

type lineRange struct{ start, end int }

// snippet applies the extraction policy of spec §4.12: the whole
// declaration when there are no call sites, otherwise the union of
// context-padded call-site ranges, gap-filled up to 2 lines and
// ellipsized beyond that.
func (f *Formatter) snippet(n *graph.Node, callSites []graph.CallSite) string {
	lines, err := f.readLines(n.FilePath)
	if err != nil || len(lines) < n.EndLine {
		return fallbackSnippet(n)
	}

	ranges := snippetRanges(n.StartLine, n.EndLine, callSites, f.contextLines)
	hot := make(map[int]bool)
	for _, cs := range callSites {
		for l := cs.Start; l <= cs.End; l++ {
			hot[l] = true
		}
	}

	var sb strings.Builder
	prevEnd := -1
	for _, r := range ranges {
		if prevEnd >= 0 {
			fmt.Fprintf(&sb, "    ... %d lines omitted ...\n", r.start-prevEnd-1)
		}
		for l := r.start; l <= r.end; l++ {
			marker := "  "
			if hot[l] {
				marker = "> "
			}
			fmt.Fprintf(&sb, "%s%d: %s\n", marker, l, lines[l-1])
		}
		prevEnd = r.end
	}
	return sb.String()
}

func snippetRanges(startLine, endLine int, callSites []graph.CallSite, context int) []lineRange {
	if len(callSites) == 0 {
		return []lineRange{{startLine, endLine}}
	}

	raw := make([]lineRange, 0, len(callSites))
	for _, cs := range callSites {
		s, e := cs.Start-context, cs.End+context
		if s < startLine {
			s = startLine
		}
		if e > endLine {
			e = endLine
		}
		raw = append(raw, lineRange{s, e})
	}
	sort.Slice(raw, func(i, j int) bool { return raw[i].start < raw[j].start })

	merged := []lineRange{raw[0]}
	for _, r := range raw[1:] {
		last := &merged[len(merged)-1]
		if r.start <= last.end+3 {
			if r.end > last.end {
				last.end = r.end
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// fallbackSnippet degrades to the snippet captured at extraction time
// when the current source file can't be read (deleted, moved, or the
// project root wasn't supplied).
func fallbackSnippet(n *graph.Node) string {
	if n.Snippet == "" {
		return ""
	}
	var sb strings.Builder
	for i, l := range strings.Split(n.Snippet, "\n") {
		fmt.Fprintf(&sb, "  %d: %s\n", n.StartLine+i, l)
	}
	return sb.String()
}

func (f *Formatter) readLines(relPath string) ([]string, error) {
	path := relPath
	if f.projectRoot != "" {
		path = filepath.Join(f.projectRoot, relPath)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
