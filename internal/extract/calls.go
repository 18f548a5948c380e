package extract

import (
	"github.com/couzic/ts-graph-mcp/internal/graph"
	"github.com/couzic/ts-graph-mcp/internal/tsparse"
)

// callEdges walks a function or method body for call_expression nodes
// and emits one CALLS edge per distinct resolvable callee, with
// call_sites aggregated onto that single edge and call_count set to the
// number of sites (spec §4.5's "aggregated call_sites and call_count").
//
// Resolution is intentionally narrow: a bare identifier callee resolves
// through the resolver (imports + local declarations); a `this.method(...)`
// callee resolves directly to a method of className without type
// inference. Any other callee shape (arbitrary member expressions,
// computed calls) is an unresolved target and dropped per §4.5.
func callEdges(source graph.NodeID, body *tsparse.Node, relPath, className string, tree *tsparse.Tree, r *resolver) []graph.Edge {
	if body == nil {
		return nil
	}

	bySite := make(map[graph.NodeID]*graph.EdgeMeta)
	var order []graph.NodeID

	for _, call := range body.FindAllByType("call_expression") {
		callee := call.Field("function")
		if callee == nil {
			continue
		}

		target, ok := resolveCallee(callee, relPath, className, tree, r)
		if !ok {
			continue
		}

		meta, seen := bySite[target]
		if !seen {
			meta = &graph.EdgeMeta{}
			bySite[target] = meta
			order = append(order, target)
		}
		meta.CallCount++
		meta.CallSites = append(meta.CallSites, graph.CallSite{Start: call.Line(), End: call.EndLine()})
	}

	edges := make([]graph.Edge, 0, len(order))
	for _, target := range order {
		edges = append(edges, graph.Edge{Source: source, Target: target, Type: graph.EdgeCalls, Meta: *bySite[target]})
	}
	return edges
}

func resolveCallee(callee *tsparse.Node, relPath, className string, tree *tsparse.Tree, r *resolver) (graph.NodeID, bool) {
	switch callee.Type {
	case "identifier":
		return r.resolveValue(callee.Content(tree.Source))

	case "member_expression":
		object := callee.Field("object")
		property := callee.Field("property")
		if object == nil || property == nil {
			return "", false
		}
		if object.Type == "this" && className != "" {
			return graph.NewNodeID(relPath, graph.NodeMethod, className+"."+property.Content(tree.Source)), true
		}
	}
	return "", false
}
