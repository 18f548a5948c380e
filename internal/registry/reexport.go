package registry

import (
	"context"

	"github.com/couzic/ts-graph-mcp/internal/tsparse"
)

// maxReexportDepth bounds re-export chain following so a cyclic or very
// long barrel-file chain degrades to "not found" instead of looping.
const maxReexportDepth = 8

// ResolveReexport implements spec §4.5 step 3: follow re-export alias
// chains to the file that actually defines exportedName, starting from
// relPath. Returns ok=false if relPath defines the name directly (the
// caller should stop following and mint the ID against relPath itself)
// or if the chain cannot be resolved.
func (p *Project) ResolveReexport(ctx context.Context, relPath, exportedName string) (targetFile, targetName string, ok bool) {
	return p.followReexport(ctx, relPath, exportedName, 0)
}

func (p *Project) followReexport(ctx context.Context, relPath, name string, depth int) (string, string, bool) {
	if depth >= maxReexportDepth {
		return "", "", false
	}

	tree, err := p.Tree(ctx, relPath)
	if err != nil {
		return "", "", false
	}

	for _, exp := range tree.Root.FindChildrenByType("export_statement") {
		source := fieldOrType(exp, "source", "string")

		if star := exp.FindChildByType("*"); star != nil && source != nil {
			target := unquote(source.Content(tree.Source))
			targetFile, ok := p.ResolveModuleFile(relPath, target)
			if !ok {
				continue
			}
			if next, nextName, ok := p.followReexport(ctx, targetFile, name, depth+1); ok {
				return next, nextName, true
			}
			if p.definesLocally(ctx, targetFile, name) {
				return targetFile, name, true
			}
			continue
		}

		clause := fieldOrType(exp, "export_clause", "export_clause")
		if clause == nil {
			continue
		}
		for _, spec := range clause.FindChildrenByType("export_specifier") {
			localName := fieldOrType(spec, "name", "identifier")
			exportedAs := spec.Field("alias")
			displayName := localName
			if exportedAs != nil {
				displayName = exportedAs
			}
			if displayName == nil || displayName.Content(tree.Source) != name {
				continue
			}
			origName := name
			if localName != nil {
				origName = localName.Content(tree.Source)
			}

			if source == nil {
				// Local re-export ("export { a as b }"): b is an alias
				// for a declaration in this same file.
				if origName == name {
					return "", "", false
				}
				return relPath, origName, true
			}

			target := unquote(source.Content(tree.Source))
			targetFile, ok := p.ResolveModuleFile(relPath, target)
			if !ok {
				return "", "", false
			}
			if next, nextName, ok := p.followReexport(ctx, targetFile, origName, depth+1); ok {
				return next, nextName, true
			}
			return targetFile, origName, true
		}
	}

	return "", "", false
}

// definesLocally reports whether relPath has a top-level declaration
// (not merely a re-export) named name.
func (p *Project) definesLocally(ctx context.Context, relPath, name string) bool {
	tree, err := p.Tree(ctx, relPath)
	if err != nil {
		return false
	}
	found := false
	tree.Root.Walk(func(n *tsparse.Node) bool {
		if found {
			return false
		}
		switch n.Type {
		case "function_declaration", "class_declaration", "interface_declaration", "type_alias_declaration":
			if id := n.Field("name"); id != nil && id.Content(tree.Source) == name {
				found = true
			}
		case "variable_declarator":
			if id := n.Field("name"); id != nil && id.Content(tree.Source) == name {
				found = true
			}
		}
		return !found
	})
	return found
}

// fieldOrType looks up a named field and falls back to the first child of
// the given node type when the grammar's field name guess misses; the
// two lookups agree on every tree-sitter-typescript release this was
// checked against, but the fallback keeps resolution working even if a
// grammar update renames the field.
func fieldOrType(n *tsparse.Node, field, nodeType string) *tsparse.Node {
	if f := n.Field(field); f != nil {
		return f
	}
	return n.FindChildByType(nodeType)
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'' || s[0] == '`') {
		return s[1 : len(s)-1]
	}
	return s
}
