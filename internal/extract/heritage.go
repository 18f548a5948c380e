package extract

import (
	"github.com/couzic/ts-graph-mcp/internal/graph"
	"github.com/couzic/ts-graph-mcp/internal/tsparse"
)

// heritageEdges emits EXTENDS (class/interface superclass and interface
// extends list) and IMPLEMENTS (class implements list) edges from a
// class or interface declaration's heritage clause (spec §4.5).
func heritageEdges(id graph.NodeID, n *tsparse.Node, tree *tsparse.Tree, r *resolver) []graph.Edge {
	var edges []graph.Edge

	clauseHolder := n.FindChildByType("class_heritage")
	if clauseHolder == nil {
		clauseHolder = n
	}

	if ext := clauseHolder.FindChildByType("extends_clause"); ext != nil {
		// A class's superclass is a value expression (an identifier), not
		// a type_identifier, so direct identifier children count too.
		names := typeReferences(ext, tree.Source)
		for _, c := range ext.Children {
			if c.Type == "identifier" {
				names = append(names, c.Content(tree.Source))
			}
		}
		for _, name := range names {
			if target, ok := r.resolveType(name); ok {
				edges = append(edges, graph.Edge{Source: id, Target: target, Type: graph.EdgeExtends})
			}
		}
	}

	if impl := clauseHolder.FindChildByType("implements_clause"); impl != nil {
		for _, name := range typeReferences(impl, tree.Source) {
			if target, ok := r.resolveType(name); ok {
				edges = append(edges, graph.Edge{Source: id, Target: target, Type: graph.EdgeImplements})
			}
		}
	}

	return edges
}

// includesEdges emits INCLUDES edges for JSX element usage inside a
// component function's body (spec §4.5 and §9: "the INCLUDES edge is
// JSX-specific; non-TSX consumers may treat it as unused rather than
// forbidden"). The target is the JSX tag name resolved as a value
// reference (a component is just a function/class in scope).
func includesEdges(source graph.NodeID, body *tsparse.Node, tree *tsparse.Tree, r *resolver) []graph.Edge {
	if body == nil {
		return nil
	}

	var edges []graph.Edge
	seen := make(map[graph.NodeID]bool)
	for _, opening := range append(body.FindAllByType("jsx_opening_element"), body.FindAllByType("jsx_self_closing_element")...) {
		nameNode := opening.Field("name")
		if nameNode == nil {
			nameNode = opening.FindChildByType("identifier")
		}
		if nameNode == nil {
			continue
		}
		name := nameNode.Content(tree.Source)
		if name == "" || (name[0] >= 'a' && name[0] <= 'z') {
			// Lowercase tags are plain DOM elements (div, span, ...), not
			// component references.
			continue
		}
		target, ok := r.resolveValue(name)
		if !ok || seen[target] {
			continue
		}
		seen[target] = true
		edges = append(edges, graph.Edge{Source: source, Target: target, Type: graph.EdgeIncludes})
	}
	return edges
}
