package extract

import (
	"strings"

	"github.com/couzic/ts-graph-mcp/internal/graph"
	"github.com/couzic/ts-graph-mcp/internal/tsparse"
)

// unwrapExport peels an export_statement down to the declaration it
// wraps (if any), reporting whether the wrapped declaration is exported.
// `export default` statements whose value is an expression rather than a
// declaration (e.g. `export default 1`) have no declaration to unwrap
// and are skipped — spec's node table only covers named declarations.
func unwrapExport(n *tsparse.Node) (decl *tsparse.Node, exported bool) {
	if n.Type != "export_statement" {
		return n, false
	}
	if d := n.Field("declaration"); d != nil {
		return d, true
	}
	for _, c := range n.Children {
		switch c.Type {
		case "function_declaration", "class_declaration", "interface_declaration",
			"type_alias_declaration", "lexical_declaration", "variable_declaration":
			return c, true
		}
	}
	return nil, true
}

// topLevelDeclarations returns every declaration-bearing node directly
// under the file root, unwrapping a surrounding export_statement and
// reporting whether each was exported.
func topLevelDeclarations(tree *tsparse.Tree) []struct {
	node     *tsparse.Node
	exported bool
} {
	var out []struct {
		node     *tsparse.Node
		exported bool
	}
	for _, c := range tree.Root.Children {
		if c.Type == "export_statement" {
			decl, exported := unwrapExport(c)
			if decl == nil {
				continue
			}
			out = append(out, struct {
				node     *tsparse.Node
				exported bool
			}{decl, exported})
			continue
		}
		switch c.Type {
		case "function_declaration", "class_declaration", "interface_declaration",
			"type_alias_declaration", "lexical_declaration", "variable_declaration":
			out = append(out, struct {
				node     *tsparse.Node
				exported bool
			}{c, false})
		}
	}
	return out
}

// declName returns the identifier field of a declaration node.
func declName(n *tsparse.Node, source []byte) string {
	id := fieldOrType(n, "name", "identifier")
	if id == nil {
		id = fieldOrType(n, "name", "type_identifier")
	}
	if id == nil {
		return ""
	}
	return id.Content(source)
}

// declKind scans tree's top-level declarations for name and reports its
// NodeType, used both for the current file's own declarations and for
// minting the correct type segment of an imported symbol's NodeId.
func declKind(tree *tsparse.Tree, name string) (graph.NodeType, bool) {
	for _, d := range topLevelDeclarations(tree) {
		switch d.node.Type {
		case "function_declaration":
			if declName(d.node, tree.Source) == name {
				return graph.NodeFunction, true
			}
		case "class_declaration":
			if declName(d.node, tree.Source) == name {
				return graph.NodeClass, true
			}
		case "interface_declaration":
			if declName(d.node, tree.Source) == name {
				return graph.NodeInterface, true
			}
		case "type_alias_declaration":
			if declName(d.node, tree.Source) == name {
				return graph.NodeTypeAlias, true
			}
		case "lexical_declaration", "variable_declaration":
			for _, decl := range d.node.FindChildrenByType("variable_declarator") {
				if n := fieldOrType(decl, "name", "identifier"); n != nil && n.Content(tree.Source) == name {
					return graph.NodeVariable, true
				}
			}
		}
	}
	return "", false
}

// extractDeclarations walks the file's top-level declarations and
// produces one Node per declaration, plus one Method node per member of
// every class (spec §3.1's exhaustive node table). Snippet and
// ContentHash are left zero: spec §4.7 assigns both during the indexer's
// canonical-embedding-input derivation, which needs the whole-project
// truncation/progressive-fallback policy this package has no part in.
func extractDeclarations(relPath, pkg string, tree *tsparse.Tree) []graph.Node {
	var nodes []graph.Node

	for _, d := range topLevelDeclarations(tree) {
		switch d.node.Type {
		case "function_declaration":
			name := declName(d.node, tree.Source)
			if name == "" {
				continue
			}
			nodes = append(nodes, functionNode(relPath, pkg, d.node, name, d.exported, tree))

		case "class_declaration":
			name := declName(d.node, tree.Source)
			if name == "" {
				continue
			}
			classNode, methods := classNodes(relPath, pkg, d.node, name, d.exported, tree)
			nodes = append(nodes, classNode)
			nodes = append(nodes, methods...)

		case "interface_declaration":
			name := declName(d.node, tree.Source)
			if name == "" {
				continue
			}
			nodes = append(nodes, interfaceNode(relPath, pkg, d.node, name, d.exported, tree))

		case "type_alias_declaration":
			name := declName(d.node, tree.Source)
			if name == "" {
				continue
			}
			nodes = append(nodes, typeAliasNode(relPath, pkg, d.node, name, d.exported, tree))

		case "lexical_declaration", "variable_declaration":
			nodes = append(nodes, variableNodes(relPath, pkg, d.node, d.exported, tree)...)
		}
	}

	return nodes
}

func functionNode(relPath, pkg string, n *tsparse.Node, name string, exported bool, tree *tsparse.Tree) graph.Node {
	params, returnType := signature(n, tree)
	return graph.Node{
		ID:        graph.NewNodeID(relPath, graph.NodeFunction, name),
		Type:      graph.NodeFunction,
		Name:      name,
		Package:   pkg,
		FilePath:  relPath,
		StartLine: n.Line(),
		EndLine:   n.EndLine(),
		Exported:  exported,
		Props: graph.Props{
			Parameters: params,
			ReturnType: returnType,
			Async:      n.FindChildByType("async") != nil,
		},
	}
}

func classNodes(relPath, pkg string, n *tsparse.Node, name string, exported bool, tree *tsparse.Tree) (graph.Node, []graph.Node) {
	extends, implements := heritage(n, tree)

	classNode := graph.Node{
		ID:        graph.NewNodeID(relPath, graph.NodeClass, name),
		Type:      graph.NodeClass,
		Name:      name,
		Package:   pkg,
		FilePath:  relPath,
		StartLine: n.Line(),
		EndLine:   n.EndLine(),
		Exported:  exported,
		Props: graph.Props{
			Extends:    extends,
			Implements: implements,
		},
	}

	var methods []graph.Node
	body := n.Field("body")
	if body == nil {
		body = n.FindChildByType("class_body")
	}
	if body != nil {
		for _, m := range body.FindChildrenByType("method_definition") {
			methods = append(methods, methodNode(relPath, pkg, m, name, tree))
		}
	}

	return classNode, methods
}

func methodNode(relPath, pkg string, n *tsparse.Node, className string, tree *tsparse.Tree) graph.Node {
	methodName := declName(n, tree.Source)
	params, returnType := signature(n, tree)

	visibility := graph.VisibilityPublic
	if n.FindChildByType("private") != nil {
		visibility = graph.VisibilityPrivate
	} else if n.FindChildByType("protected") != nil {
		visibility = graph.VisibilityProtected
	}

	return graph.Node{
		ID:        graph.NewNodeID(relPath, graph.NodeMethod, className+"."+methodName),
		Type:      graph.NodeMethod,
		Name:      methodName,
		Package:   pkg,
		FilePath:  relPath,
		StartLine: n.Line(),
		EndLine:   n.EndLine(),
		Exported:  false,
		Props: graph.Props{
			Parameters: params,
			ReturnType: returnType,
			Async:      n.FindChildByType("async") != nil,
			Visibility: visibility,
			Static:     n.FindChildByType("static") != nil,
		},
	}
}

func interfaceNode(relPath, pkg string, n *tsparse.Node, name string, exported bool, tree *tsparse.Tree) graph.Node {
	_, extends := heritage(n, tree)
	return graph.Node{
		ID:        graph.NewNodeID(relPath, graph.NodeInterface, name),
		Type:      graph.NodeInterface,
		Name:      name,
		Package:   pkg,
		FilePath:  relPath,
		StartLine: n.Line(),
		EndLine:   n.EndLine(),
		Exported:  exported,
		Props: graph.Props{
			InterfaceExtends: extends,
		},
	}
}

func typeAliasNode(relPath, pkg string, n *tsparse.Node, name string, exported bool, tree *tsparse.Tree) graph.Node {
	aliased := ""
	if v := n.Field("value"); v != nil {
		aliased = strings.TrimSpace(v.Content(tree.Source))
	}
	return graph.Node{
		ID:        graph.NewNodeID(relPath, graph.NodeTypeAlias, name),
		Type:      graph.NodeTypeAlias,
		Name:      name,
		Package:   pkg,
		FilePath:  relPath,
		StartLine: n.Line(),
		EndLine:   n.EndLine(),
		Exported:  exported,
		Props: graph.Props{
			AliasedType: aliased,
		},
	}
}

func variableNodes(relPath, pkg string, n *tsparse.Node, exported bool, tree *tsparse.Tree) []graph.Node {
	isConst := n.Type == "lexical_declaration" && n.FindChildByType("const") != nil

	var nodes []graph.Node
	for _, decl := range n.FindChildrenByType("variable_declarator") {
		nameNode := fieldOrType(decl, "name", "identifier")
		if nameNode == nil {
			continue
		}
		name := nameNode.Content(tree.Source)

		variableType := ""
		if t := decl.Field("type"); t != nil {
			variableType = typeAnnotationText(t, tree.Source)
		}

		nodes = append(nodes, graph.Node{
			ID:        graph.NewNodeID(relPath, graph.NodeVariable, name),
			Type:      graph.NodeVariable,
			Name:      name,
			Package:   pkg,
			FilePath:  relPath,
			StartLine: n.Line(),
			EndLine:   n.EndLine(),
			Exported:  exported,
			Props: graph.Props{
				VariableType: variableType,
				IsConst:      isConst,
			},
		})
	}
	return nodes
}

// LocateDeclaration finds the AST node an already-extracted graph.Node
// came from, so a caller (the indexer, building embedding input) can get
// at the original source text without re-walking the tree itself. A
// Method's symbol path is "ClassName.methodName", so the lookup first
// finds the class then scans its members.
func LocateDeclaration(tree *tsparse.Tree, id graph.NodeID) (*tsparse.Node, bool) {
	_, typ, symbolPath, err := id.Split()
	if err != nil {
		return nil, false
	}

	if typ == graph.NodeMethod {
		className, methodName, ok := strings.Cut(symbolPath, ".")
		if !ok {
			return nil, false
		}
		for _, d := range topLevelDeclarations(tree) {
			if d.node.Type != "class_declaration" || declName(d.node, tree.Source) != className {
				continue
			}
			body := d.node.Field("body")
			if body == nil {
				body = d.node.FindChildByType("class_body")
			}
			if body == nil {
				continue
			}
			for _, m := range body.FindChildrenByType("method_definition") {
				if declName(m, tree.Source) == methodName {
					return m, true
				}
			}
		}
		return nil, false
	}

	for _, d := range topLevelDeclarations(tree) {
		if d.node.Type == "lexical_declaration" || d.node.Type == "variable_declaration" {
			for _, decl := range d.node.FindChildrenByType("variable_declarator") {
				if n := fieldOrType(decl, "name", "identifier"); n != nil && n.Content(tree.Source) == symbolPath {
					return d.node, true
				}
			}
			continue
		}
		if declName(d.node, tree.Source) == symbolPath {
			return d.node, true
		}
	}
	return nil, false
}

// signature extracts a function/method's parameter list and return type
// text for the Props.Parameters/ReturnType fields (spec §3.1).
func signature(n *tsparse.Node, tree *tsparse.Tree) ([]graph.Param, string) {
	var params []graph.Param

	paramList := fieldOrType(n, "parameters", "formal_parameters")
	if paramList != nil {
		for _, p := range paramList.Children {
			switch p.Type {
			case "required_parameter", "optional_parameter", "identifier":
				nameNode := fieldOrType(p, "pattern", "identifier")
				if nameNode == nil {
					nameNode = p
				}
				pType := ""
				if t := p.Field("type"); t != nil {
					pType = typeAnnotationText(t, tree.Source)
				}
				params = append(params, graph.Param{Name: nameNode.Content(tree.Source), Type: pType})
			}
		}
	}

	returnType := ""
	if t := n.Field("return_type"); t != nil {
		returnType = typeAnnotationText(t, tree.Source)
	}

	return params, returnType
}

// heritage extracts a class/interface's extends target and implements
// list from its heritage clause.
func heritage(n *tsparse.Node, tree *tsparse.Tree) (extends string, implements []string) {
	clauseHolder := n.FindChildByType("class_heritage")
	if clauseHolder == nil {
		clauseHolder = n
	}

	if ext := clauseHolder.FindChildByType("extends_clause"); ext != nil {
		if id := firstTypeIdentifier(ext, tree.Source); id != "" {
			extends = id
		}
	}
	if impl := clauseHolder.FindChildByType("implements_clause"); impl != nil {
		for _, t := range impl.FindChildrenByType("type_identifier") {
			implements = append(implements, t.Content(tree.Source))
		}
	}
	return extends, implements
}

func firstTypeIdentifier(n *tsparse.Node, source []byte) string {
	var found string
	n.Walk(func(c *tsparse.Node) bool {
		if found != "" {
			return false
		}
		if c.Type == "type_identifier" || c.Type == "identifier" {
			found = c.Content(source)
			return false
		}
		return true
	})
	return found
}

// typeAnnotationText strips the leading ":" a type_annotation node
// carries and returns the remaining type text, decomposed generics and
// unions included verbatim (Props fields store the type as written).
func typeAnnotationText(n *tsparse.Node, source []byte) string {
	text := n.Content(source)
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), ":"))
}
