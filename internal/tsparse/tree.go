// Package tsparse wraps the tree-sitter TypeScript/TSX grammars behind a
// small facade. Per spec §1 the actual AST parser is an external
// collaborator ("arbitrary facade that yields declarations, references,
// and import resolutions"); this package is the concrete implementation
// the rest of the module compiles against, adapted from the teacher's
// generic multi-language chunk parser and narrowed to the two grammars
// the extractor needs.
package tsparse

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// Point is a zero-indexed row/column position in the source.
type Point struct {
	Row    uint32
	Column uint32
}

// Node is a simplified tree-sitter node: type name, byte/point range, and
// children, with the named-field lookups the extractor needs to find a
// declaration's name, heritage clause, or parameter list without
// depending on tree-sitter's own node type at every call site.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
	fields     map[string]*Node
}

// Tree is a parsed source file.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string // "typescript" or "tsx"
}

// Content returns the source text spanned by n.
func (n *Node) Content(source []byte) string {
	if n == nil || n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// Field returns the named child field (tree-sitter field name, e.g.
// "name", "body", "value"), or nil if absent.
func (n *Node) Field(name string) *Node {
	if n == nil {
		return nil
	}
	return n.fields[name]
}

// FindChildByType returns the first direct child of the given type.
func (n *Node) FindChildByType(nodeType string) *Node {
	for _, c := range n.Children {
		if c.Type == nodeType {
			return c
		}
	}
	return nil
}

// FindChildrenByType returns all direct children of the given type.
func (n *Node) FindChildrenByType(nodeType string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Type == nodeType {
			out = append(out, c)
		}
	}
	return out
}

// FindAllByType recursively collects every descendant (including n
// itself) of the given type.
func (n *Node) FindAllByType(nodeType string) []*Node {
	var out []*Node
	n.Walk(func(child *Node) bool {
		if child.Type == nodeType {
			out = append(out, child)
		}
		return true
	})
	return out
}

// Walk traverses the subtree depth-first, pre-order. fn returning false
// skips the node's children but continues the walk at the next sibling.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Line returns n's 1-indexed start line.
func (n *Node) Line() int { return int(n.StartPoint.Row) + 1 }

// EndLine returns n's 1-indexed, inclusive end line.
func (n *Node) EndLine() int { return int(n.EndPoint.Row) + 1 }

func convert(tsNode *sitter.Node) *Node {
	if tsNode == nil {
		return nil
	}
	n := &Node{
		Type:      tsNode.Type(),
		StartByte: tsNode.StartByte(),
		EndByte:   tsNode.EndByte(),
		StartPoint: Point{
			Row:    tsNode.StartPoint().Row,
			Column: tsNode.StartPoint().Column,
		},
		EndPoint: Point{
			Row:    tsNode.EndPoint().Row,
			Column: tsNode.EndPoint().Column,
		},
		Children: make([]*Node, 0, int(tsNode.ChildCount())),
		HasError: tsNode.HasError(),
		fields:   make(map[string]*Node),
	}

	for i := 0; i < int(tsNode.ChildCount()); i++ {
		child := tsNode.Child(i)
		if child == nil {
			continue
		}
		childNode := convert(child)
		n.Children = append(n.Children, childNode)
		if fieldName := tsNode.FieldNameForChild(i); fieldName != "" {
			n.fields[fieldName] = childNode
		}
	}

	return n
}
