package registry

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/couzic/ts-graph-mcp/internal/tsparse"
)

// candidateSuffixes are appended in order to a joined specifier path:
// the path itself, extensionless -> .ts/.tsx, plus the index file
// fallback every bundler resolver supports. ResolveModuleFile maps a
// relative ".js"/".jsx" specifier to its ".ts"/".tsx" source before
// trying these.
var candidateSuffixes = []string{"", ".ts", ".tsx", "/index.ts", "/index.tsx"}

// Project is one configured TypeScript project: a root directory, its
// tsconfig path-alias table, and a cache of parsed files. It is the
// opaque "parsed project object" spec §4.6 describes.
type Project struct {
	Name         string
	Root         string // absolute
	TSConfigPath string
	TSConfig     TSConfig

	parser tsparse.SourceParser

	mu    sync.RWMutex
	trees map[string]*tsparse.Tree // relative, forward-slash path -> tree
}

func newProject(name, root, tsconfigPath string, cfg TSConfig, parser tsparse.SourceParser) *Project {
	return &Project{
		Name:         name,
		Root:         root,
		TSConfigPath: tsconfigPath,
		TSConfig:     cfg,
		parser:       parser,
		trees:        make(map[string]*tsparse.Tree),
	}
}

// HasFile reports whether relPath exists under the project root.
func (p *Project) HasFile(relPath string) bool {
	_, err := os.Stat(filepath.Join(p.Root, filepath.FromSlash(relPath)))
	return err == nil
}

// Tree parses (or returns the cached parse of) relPath.
func (p *Project) Tree(ctx context.Context, relPath string) (*tsparse.Tree, error) {
	p.mu.RLock()
	if t, ok := p.trees[relPath]; ok {
		p.mu.RUnlock()
		return t, nil
	}
	p.mu.RUnlock()

	source, err := os.ReadFile(filepath.Join(p.Root, filepath.FromSlash(relPath)))
	if err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", relPath, err)
	}
	tree, err := p.parser.ParseFile(ctx, relPath, source)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.trees[relPath] = tree
	p.mu.Unlock()
	return tree, nil
}

// Invalidate drops relPath from the parse cache, for re-parsing after a
// file change.
func (p *Project) Invalidate(relPath string) {
	p.mu.Lock()
	delete(p.trees, relPath)
	p.mu.Unlock()
}

// ResolveModuleFile implements spec §4.5's first two import-resolution
// steps: ask the parser for the target (not available from this facade,
// so step 1 is a no-op here) and, for relative specifiers, resolve
// manually against the candidate extension list; for non-relative
// specifiers, resolve through the tsconfig path-alias table.
func (p *Project) ResolveModuleFile(fromRelFile, specifier string) (string, bool) {
	if isRelativeSpecifier(specifier) {
		dir := path.Dir(fromRelFile)
		joined := path.Clean(path.Join(dir, specifier))
		switch path.Ext(joined) {
		case ".js":
			if ts := joined[:len(joined)-len(".js")] + ".ts"; p.HasFile(ts) {
				return ts, true
			}
		case ".jsx":
			if tsx := joined[:len(joined)-len(".jsx")] + ".tsx"; p.HasFile(tsx) {
				return tsx, true
			}
		}
		return p.firstExisting(joined)
	}

	if target, ok := p.TSConfig.resolveAlias(specifier); ok {
		base := p.TSConfig.BaseURL
		joined := path.Clean(path.Join(base, target))
		return p.firstExisting(joined)
	}

	return "", false
}

func (p *Project) firstExisting(base string) (string, bool) {
	for _, suffix := range candidateSuffixes {
		candidate := base + suffix
		if p.HasFile(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func isRelativeSpecifier(specifier string) bool {
	return len(specifier) > 0 && (specifier[0] == '.' || specifier[0] == '/')
}
