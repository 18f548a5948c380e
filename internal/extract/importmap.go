package extract

import (
	"context"

	"github.com/couzic/ts-graph-mcp/internal/graph"
	"github.com/couzic/ts-graph-mcp/internal/registry"
	"github.com/couzic/ts-graph-mcp/internal/tsparse"
)

// resolver is the per-file "LocalName -> TargetNodeId" map spec §4.5
// describes, extended with the current file's own top-level
// declarations so a call or type reference to a sibling declaration
// resolves the same way an imported one does. It is split into a
// value half (used to resolve CALLS and REFERENCES targets) and a
// type-only half (additionally consulted for USES_TYPE and the other
// compile-time edges, since a value import or local value declaration
// remains a valid type reference but an `import type` import cannot be
// called).
type resolver struct {
	local    map[string]graph.NodeID // this file's own declarations
	value    map[string]graph.NodeID // imported value symbols
	typeOnly map[string]graph.NodeID // imported type-only symbols
}

func newResolver() *resolver {
	return &resolver{
		local:    make(map[string]graph.NodeID),
		value:    make(map[string]graph.NodeID),
		typeOnly: make(map[string]graph.NodeID),
	}
}

// resolveValue looks up a local name for a value-position use (a call
// target or a referenced identifier).
func (m *resolver) resolveValue(name string) (graph.NodeID, bool) {
	if id, ok := m.local[name]; ok {
		return id, true
	}
	id, ok := m.value[name]
	return id, ok
}

// resolveType looks up a local name for a type-position use, consulting
// local declarations and both import halves since ordinary value
// imports remain valid type references.
func (m *resolver) resolveType(name string) (graph.NodeID, bool) {
	if id, ok := m.local[name]; ok {
		return id, true
	}
	if id, ok := m.value[name]; ok {
		return id, true
	}
	id, ok := m.typeOnly[name]
	return id, ok
}

// buildImports walks every import_statement in the file, resolving each
// specifier to a target file (spec §4.5 steps 1-2) and following any
// re-export chain to the file that actually defines the symbol (step 3),
// then mints the target NodeId by parsing the defining file to find the
// declaration's kind. An import that cannot be resolved to a file or
// whose target declaration cannot be found is dropped per §4.5's
// unresolved-target rule — the caller never sees a half-built entry.
func buildImports(ctx context.Context, proj *registry.Project, relPath string, tree *tsparse.Tree, r *resolver) {
	for _, imp := range collectImports(ctx, proj, relPath, tree) {
		targetTree, err := proj.Tree(ctx, imp.targetFile)
		if err != nil {
			continue
		}
		kind, ok := declKind(targetTree, imp.targetName)
		if !ok {
			continue
		}
		id := graph.NewNodeID(imp.targetFile, kind, imp.targetName)
		if imp.typeOnly {
			r.typeOnly[imp.localName] = id
		} else {
			r.value[imp.localName] = id
		}
	}
}

type unresolvedImport struct {
	localName  string
	targetFile string
	targetName string
	typeOnly   bool
}

func collectImports(ctx context.Context, proj *registry.Project, relPath string, tree *tsparse.Tree) []unresolvedImport {
	var out []unresolvedImport

	for _, imp := range tree.Root.FindChildrenByType("import_statement") {
		sourceNode := fieldOrType(imp, "source", "string")
		if sourceNode == nil {
			continue
		}
		specifier := unquote(sourceNode.Content(tree.Source))

		targetFile, ok := proj.ResolveModuleFile(relPath, specifier)
		if !ok {
			// Unresolved specifier (external package, alias we don't
			// understand): spec §4.5 treats this as an intentional drop.
			continue
		}

		statementTypeOnly := imp.FindChildByType("type") != nil

		clause := imp.FindChildByType("import_clause")
		if clause == nil {
			continue
		}

		// Default import: `import Foo from "./foo"`.
		if def := clause.FindChildByType("identifier"); def != nil {
			name := def.Content(tree.Source)
			resolvedFile, resolvedName := followOrSelf(ctx, proj, targetFile, "default")
			out = append(out, unresolvedImport{localName: name, targetFile: resolvedFile, targetName: resolvedName, typeOnly: statementTypeOnly})
		}

		// Namespace import: `import * as Foo from "./foo"`. Not recorded
		// in the resolver, so `Foo.bar()` calls and `Foo.Bar` type
		// references through it resolve to nothing and are dropped.

		named := clause.FindChildByType("named_imports")
		if named == nil {
			continue
		}
		for _, spec := range named.FindChildrenByType("import_specifier") {
			specTypeOnly := statementTypeOnly || spec.FindChildByType("type") != nil
			imported := fieldOrType(spec, "name", "identifier")
			alias := spec.Field("alias")
			if imported == nil {
				continue
			}
			exportedName := imported.Content(tree.Source)
			localName := exportedName
			if alias != nil {
				localName = alias.Content(tree.Source)
			}

			resolvedFile, resolvedName := followOrSelf(ctx, proj, targetFile, exportedName)
			out = append(out, unresolvedImport{localName: localName, targetFile: resolvedFile, targetName: resolvedName, typeOnly: specTypeOnly})
		}
	}

	return out
}

// followOrSelf follows a re-export chain starting at targetFile for
// exportedName; if the name is defined directly in targetFile (the
// common case), it returns targetFile unchanged.
func followOrSelf(ctx context.Context, proj *registry.Project, targetFile, exportedName string) (string, string) {
	if file, name, ok := proj.ResolveReexport(ctx, targetFile, exportedName); ok {
		return file, name
	}
	return targetFile, exportedName
}

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
