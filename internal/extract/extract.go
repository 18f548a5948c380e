// Package extract implements the per-file extraction pass (spec §4.5):
// turning one parsed TypeScript file into the graph.Node/graph.Edge
// values that describe it, using a registry.Project to resolve imports
// and re-exports across file boundaries.
package extract

import (
	"context"

	"github.com/couzic/ts-graph-mcp/internal/graph"
	"github.com/couzic/ts-graph-mcp/internal/registry"
	"github.com/couzic/ts-graph-mcp/internal/tsparse"
)

// Extract produces every node and edge owned by the file at relPath
// within proj. Unresolved references anywhere in the file, including
// imports whose target file cannot be parsed, are dropped rather than
// surfaced as errors, per spec §4.5, so the returned error is always nil.
func Extract(ctx context.Context, proj *registry.Project, relPath, pkg string, tree *tsparse.Tree) ([]graph.Node, []graph.Edge, error) {
	nodes := extractDeclarations(relPath, pkg, tree)

	r := newResolver()
	for _, d := range topLevelDeclarations(tree) {
		if d.node.Type == "function_declaration" || d.node.Type == "class_declaration" ||
			d.node.Type == "interface_declaration" || d.node.Type == "type_alias_declaration" {
			if name := declName(d.node, tree.Source); name != "" {
				kind, _ := declKind(tree, name)
				r.local[name] = graph.NewNodeID(relPath, kind, name)
			}
			continue
		}
		for _, decl := range d.node.FindChildrenByType("variable_declarator") {
			if n := fieldOrType(decl, "name", "identifier"); n != nil {
				name := n.Content(tree.Source)
				r.local[name] = graph.NewNodeID(relPath, graph.NodeVariable, name)
			}
		}
	}
	buildImports(ctx, proj, relPath, tree, r)

	var edges []graph.Edge
	for _, d := range topLevelDeclarations(tree) {
		edges = append(edges, declEdges(relPath, d.node, tree, r)...)
	}

	return nodes, edges, nil
}

// declEdges dispatches edge extraction for one top-level declaration,
// keying every edge off the correct owning node: a class's own edges
// are sourced from the class, but each of its methods gets its own
// NodeId so TAKES/RETURNS/CALLS/REFERENCES/INCLUDES attribute correctly
// to the method rather than the enclosing class.
func declEdges(relPath string, n *tsparse.Node, tree *tsparse.Tree, r *resolver) []graph.Edge {
	var edges []graph.Edge

	switch n.Type {
	case "function_declaration":
		name := declName(n, tree.Source)
		if name == "" {
			return nil
		}
		id := graph.NewNodeID(relPath, graph.NodeFunction, name)
		body := n.Field("body")
		edges = append(edges, declarationTypeEdges(id, n, tree, r)...)
		edges = append(edges, callEdges(id, body, relPath, "", tree, r)...)
		edges = append(edges, referenceEdges(id, body, tree, r)...)
		edges = append(edges, includesEdges(id, body, tree, r)...)

	case "class_declaration":
		name := declName(n, tree.Source)
		if name == "" {
			return nil
		}
		id := graph.NewNodeID(relPath, graph.NodeClass, name)
		edges = append(edges, heritageEdges(id, n, tree, r)...)
		edges = append(edges, declarationTypeEdges(id, n, tree, r)...)

		body := n.Field("body")
		if body == nil {
			body = n.FindChildByType("class_body")
		}
		if body != nil {
			for _, m := range body.FindChildrenByType("method_definition") {
				methodName := declName(m, tree.Source)
				if methodName == "" {
					continue
				}
				methodID := graph.NewNodeID(relPath, graph.NodeMethod, name+"."+methodName)
				methodBody := m.Field("body")
				edges = append(edges, declarationTypeEdges(methodID, m, tree, r)...)
				edges = append(edges, callEdges(methodID, methodBody, relPath, name, tree, r)...)
				edges = append(edges, referenceEdges(methodID, methodBody, tree, r)...)
				edges = append(edges, includesEdges(methodID, methodBody, tree, r)...)
			}
		}

	case "interface_declaration":
		name := declName(n, tree.Source)
		if name == "" {
			return nil
		}
		id := graph.NewNodeID(relPath, graph.NodeInterface, name)
		edges = append(edges, heritageEdges(id, n, tree, r)...)
		edges = append(edges, declarationTypeEdges(id, n, tree, r)...)

	case "type_alias_declaration":
		name := declName(n, tree.Source)
		if name == "" {
			return nil
		}
		id := graph.NewNodeID(relPath, graph.NodeTypeAlias, name)
		edges = append(edges, typeAliasEdges(id, n, tree, r)...)

	case "lexical_declaration", "variable_declaration":
		for _, decl := range n.FindChildrenByType("variable_declarator") {
			nameNode := fieldOrType(decl, "name", "identifier")
			if nameNode == nil {
				continue
			}
			id := graph.NewNodeID(relPath, graph.NodeVariable, nameNode.Content(tree.Source))
			edges = append(edges, declarationTypeEdges(id, decl, tree, r)...)

			value := decl.Field("value")
			if value != nil && (value.Type == "arrow_function" || value.Type == "function") {
				body := value.Field("body")
				edges = append(edges, callEdges(id, body, relPath, "", tree, r)...)
				edges = append(edges, referenceEdges(id, body, tree, r)...)
				edges = append(edges, includesEdges(id, body, tree, r)...)
			}
		}
	}

	return edges
}
