package extract

import (
	"github.com/couzic/ts-graph-mcp/internal/graph"
	"github.com/couzic/ts-graph-mcp/internal/tsparse"
)

// primitiveTypes are skipped entirely (spec §4.5: "primitives are
// skipped"); tree-sitter-typescript represents them as predefined_type
// leaves rather than type_identifier, so in practice they are already
// excluded by typeReferences only collecting type_identifier nodes, but
// the list is kept to document the rule explicitly to future editors.
var primitiveTypes = map[string]bool{
	"string": true, "number": true, "boolean": true, "void": true,
	"any": true, "unknown": true, "never": true, "object": true,
	"symbol": true, "bigint": true, "undefined": true, "null": true,
}

// typeReferences walks a type expression and collects every referenced
// type name. Built-in generic wrappers (Array, Promise, Map, ...) are
// not special-cased: walking into their type_arguments already recurses
// into the wrapped type, and since "Array" itself is never in the import
// map it is silently dropped per §4.5's unresolved-target rule — the
// same mechanism that implements union/intersection decomposition (their
// branches are just more type_identifier descendants).
func typeReferences(typeNode *tsparse.Node, source []byte) []string {
	if typeNode == nil {
		return nil
	}
	var names []string
	typeNode.Walk(func(n *tsparse.Node) bool {
		if n.Type == "type_identifier" {
			name := n.Content(source)
			if !primitiveTypes[name] {
				names = append(names, name)
			}
		}
		return true
	})
	return names
}

// usesTypeEdges emits a USES_TYPE edge (spec §4.5's generic type-
// reference edge, tagged with context) plus the matching
// context-specific decomposition edge (TAKES/RETURNS/HAS_TYPE/
// HAS_PROPERTY) for every resolvable reference found in typeNode.
func usesTypeEdges(source graph.NodeID, typeNode *tsparse.Node, tree *tsparse.Tree, imports *resolver, ctx graph.UsageContext, decompositionType graph.EdgeType) []graph.Edge {
	var edges []graph.Edge
	for _, name := range typeReferences(typeNode, tree.Source) {
		target, ok := imports.resolveType(name)
		if !ok {
			continue
		}
		edges = append(edges,
			graph.Edge{Source: source, Target: target, Type: graph.EdgeUsesType, Meta: graph.EdgeMeta{Context: ctx}},
			graph.Edge{Source: source, Target: target, Type: decompositionType, Meta: graph.EdgeMeta{Context: ctx}},
		)
	}
	return edges
}

// declarationTypeEdges produces every USES_TYPE/TAKES/RETURNS/HAS_TYPE/
// HAS_PROPERTY edge owned by one extracted declaration node.
func declarationTypeEdges(id graph.NodeID, n *tsparse.Node, tree *tsparse.Tree, imports *resolver) []graph.Edge {
	var edges []graph.Edge

	switch n.Type {
	case "function_declaration", "method_definition", "method_signature":
		if params := fieldOrType(n, "parameters", "formal_parameters"); params != nil {
			for _, p := range params.Children {
				if t := p.Field("type"); t != nil {
					edges = append(edges, usesTypeEdges(id, t, tree, imports, graph.UsageContextParameter, graph.EdgeTakes)...)
				}
			}
		}
		if rt := n.Field("return_type"); rt != nil {
			edges = append(edges, usesTypeEdges(id, rt, tree, imports, graph.UsageContextReturn, graph.EdgeReturns)...)
		}

	case "variable_declarator":
		if t := n.Field("type"); t != nil {
			edges = append(edges, usesTypeEdges(id, t, tree, imports, graph.UsageContextVariable, graph.EdgeHasType)...)
		}

	case "interface_declaration", "class_declaration":
		// Class method_definition members are handled by the caller with
		// the method's own NodeId as edge source, not the class's — a
		// method is a separate node (spec §3.1), so its TAKES/RETURNS
		// edges must not be attributed to the class. Interface
		// method_signature members have no node of their own, so their
		// parameter/return types are attributed to the interface itself.
		body := n.Field("body")
		if body == nil {
			body = n.FindChildByType("interface_body")
		}
		if body == nil {
			body = n.FindChildByType("class_body")
		}
		if body != nil {
			for _, member := range body.Children {
				switch member.Type {
				case "property_signature", "public_field_definition":
					if t := member.Field("type"); t != nil {
						edges = append(edges, usesTypeEdges(id, t, tree, imports, graph.UsageContextProperty, graph.EdgeHasProperty)...)
					}
				case "method_signature":
					edges = append(edges, declarationTypeEdges(id, member, tree, imports)...)
				}
			}
		}
	}

	return edges
}

// typeAliasEdges implements ALIAS_FOR/DERIVES_FROM for a type alias
// declaration: a direct reference to a single other named type
// ("type UserId = User") is ALIAS_FOR; every other type reference
// reachable from a composed aliased type (union, intersection, generic
// instantiation, mapped type) is DERIVES_FROM. Both are undetailed by
// spec beyond being compile-time edges (§3.1); this split is the
// project's own resolution, recorded in DESIGN.md.
func typeAliasEdges(id graph.NodeID, n *tsparse.Node, tree *tsparse.Tree, imports *resolver) []graph.Edge {
	value := n.Field("value")
	if value == nil {
		return nil
	}

	if value.Type == "type_identifier" {
		if target, ok := imports.resolveType(value.Content(tree.Source)); ok {
			return []graph.Edge{{Source: id, Target: target, Type: graph.EdgeAliasFor}}
		}
		return nil
	}

	var edges []graph.Edge
	for _, name := range typeReferences(value, tree.Source) {
		if target, ok := imports.resolveType(name); ok {
			edges = append(edges, graph.Edge{Source: id, Target: target, Type: graph.EdgeDerivesFrom})
		}
	}
	return edges
}
