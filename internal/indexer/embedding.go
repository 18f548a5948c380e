package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/couzic/ts-graph-mcp/internal/graph"
	"github.com/couzic/ts-graph-mcp/internal/tsparse"
)

// maxSourceLines bounds a function/method body's embedding input (spec
// §4.7 step 3).
const maxSourceLines = 50

const truncatedMarker = "// ... truncated"

// buildEmbeddingInput constructs the canonical text an embedder sees for
// one node (spec §4.7 step 3): a type header followed by the source body
// for functions/methods, or the class declaration with method bodies
// collapsed for classes. declNode is the AST node LocateDeclaration
// found for n; it may be nil for a node whose declaration could not be
// re-located, in which case the header alone is used.
func buildEmbeddingInput(n *graph.Node, declNode *tsparse.Node, source []byte) string {
	header := embeddingHeader(n)

	switch n.Type {
	case graph.NodeFunction, graph.NodeMethod:
		if declNode == nil {
			return header
		}
		body := truncateLines(declNode.Content(source), maxSourceLines)
		return header + "\n" + body

	case graph.NodeClass:
		if declNode == nil {
			return header
		}
		return header + "\n" + classBodyWithStubbedMethods(declNode, source)

	default:
		if declNode == nil {
			return header
		}
		return header + "\n" + truncateLines(declNode.Content(source), maxSourceLines)
	}
}

// embeddingHeader renders the "// Kind: name(params) -> return_type"
// line spec §4.7 step 3 names for functions/methods, and an analogous
// one-liner for the other node kinds so every embedding input carries a
// stable, grep-able identity line regardless of body truncation.
func embeddingHeader(n *graph.Node) string {
	switch n.Type {
	case graph.NodeFunction, graph.NodeMethod:
		return fmt.Sprintf("// %s: %s(%s) -> %s", n.Type, n.Name, formatParams(n.Props.Parameters), n.Props.ReturnType)
	case graph.NodeClass:
		extends := ""
		if n.Props.Extends != "" {
			extends = " extends " + n.Props.Extends
		}
		return fmt.Sprintf("// Class: %s%s", n.Name, extends)
	case graph.NodeInterface:
		return fmt.Sprintf("// Interface: %s", n.Name)
	case graph.NodeTypeAlias:
		return fmt.Sprintf("// TypeAlias: %s = %s", n.Name, n.Props.AliasedType)
	case graph.NodeVariable:
		return fmt.Sprintf("// Variable: %s: %s", n.Name, n.Props.VariableType)
	default:
		return fmt.Sprintf("// %s: %s", n.Type, n.Name)
	}
}

func formatParams(params []graph.Param) string {
	parts := make([]string, len(params))
	for i, p := range params {
		if p.Type != "" {
			parts[i] = p.Name + ": " + p.Type
		} else {
			parts[i] = p.Name
		}
	}
	return strings.Join(parts, ", ")
}

// classBodyWithStubbedMethods replaces every method body with `{ ... }`
// (spec §4.7 step 3's "class bodies replaced the first time"), keeping
// method signatures intact so the embedding still reflects the class's
// shape.
func classBodyWithStubbedMethods(classNode *tsparse.Node, source []byte) string {
	body := classNode.Field("body")
	if body == nil {
		body = classNode.FindChildByType("class_body")
	}
	if body == nil {
		return truncateLines(classNode.Content(source), maxSourceLines)
	}

	var sb strings.Builder
	sb.WriteString("{\n")
	for _, member := range body.Children {
		switch member.Type {
		case "method_definition":
			sig := methodSignatureText(member, source)
			sb.WriteString("  " + sig + " { ... }\n")
		case "public_field_definition", "property_signature":
			sb.WriteString("  " + strings.TrimSpace(member.Content(source)) + "\n")
		}
	}
	sb.WriteString("}")
	return sb.String()
}

// methodSignatureText returns a method_definition's text up to (but not
// including) its body, i.e. everything before the first `{`.
func methodSignatureText(n *tsparse.Node, source []byte) string {
	text := n.Content(source)
	if brace := strings.IndexByte(text, '{'); brace >= 0 {
		text = text[:brace]
	}
	return strings.TrimSpace(text)
}

// stripClassMethodBodiesFurther is the first progressive-fallback step
// for a class that still overflows after the initial `{ ... }` stub
// (spec §4.7 step 5): it drops field declarations too, keeping only
// method signatures, shortening the input further.
func stripClassMethodBodiesFurther(classNode *tsparse.Node, source []byte) string {
	body := classNode.Field("body")
	if body == nil {
		body = classNode.FindChildByType("class_body")
	}
	if body == nil {
		return ""
	}
	var sb strings.Builder
	for _, member := range body.FindChildrenByType("method_definition") {
		sb.WriteString(methodSignatureText(member, source) + "\n")
	}
	return sb.String()
}

func truncateLines(text string, max int) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= max {
		return text
	}
	return strings.Join(lines[:max], "\n") + "\n" + truncatedMarker
}

// contentHash computes spec §4.7 step 4's content_hash.
func contentHash(embeddingInput string) string {
	sum := sha256.Sum256([]byte(embeddingInput))
	return hex.EncodeToString(sum[:])
}
