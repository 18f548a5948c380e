package extract

import (
	"github.com/couzic/ts-graph-mcp/internal/graph"
	"github.com/couzic/ts-graph-mcp/internal/tsparse"
)

// referenceEdges walks a function/method body for identifiers used as a
// value rather than called — callback arguments, assignment right-hand
// sides, array/object elements, and return values (spec §4.5's
// REFERENCES rule) — and emits one edge per distinct context use. Unlike
// callEdges this does not aggregate call sites; each occurrence is its
// own edge, matching the simpler "reference_context" meta spec §3.1
// describes (no call_count analog for references).
func referenceEdges(source graph.NodeID, body *tsparse.Node, tree *tsparse.Tree, r *resolver) []graph.Edge {
	if body == nil {
		return nil
	}

	var edges []graph.Edge
	emit := func(id *tsparse.Node, ctx graph.ReferenceContext) {
		if id == nil || id.Type != "identifier" {
			return
		}
		target, ok := r.resolveValue(id.Content(tree.Source))
		if !ok {
			return
		}
		edges = append(edges, graph.Edge{
			Source: source, Target: target, Type: graph.EdgeReferences,
			Meta: graph.EdgeMeta{ReferenceContext: ctx},
		})
	}

	var walk func(n *tsparse.Node)
	walk = func(n *tsparse.Node) {
		switch n.Type {
		case "call_expression":
			// The callee itself is handled by callEdges; only walk into
			// the arguments, where each bare identifier is a callback
			// reference.
			if args := n.Field("arguments"); args != nil {
				for _, a := range args.Children {
					emit(a, graph.RefContextCallback)
					walk(a)
				}
			}
			return

		case "assignment_expression":
			emit(n.Field("right"), graph.RefContextAssignment)

		case "variable_declarator":
			emit(n.Field("value"), graph.RefContextAssignment)

		case "return_statement":
			for _, c := range n.Children {
				if c.Type == "identifier" {
					emit(c, graph.RefContextReturn)
				}
			}

		case "array":
			for _, c := range n.Children {
				emit(c, graph.RefContextArray)
			}

		case "pair":
			emit(n.Field("value"), graph.RefContextProperty)

		case "member_expression":
			if obj := n.Field("object"); obj != nil {
				emit(obj, graph.RefContextAccess)
			}
		}

		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(body)

	return edges
}
