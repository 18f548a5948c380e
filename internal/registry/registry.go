// Package registry maps a configured package name to its parsed project
// (spec §4.6), caching tsconfig path-alias tables and parsed files so the
// extractor and watcher never reparse a file more than once per change.
package registry

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/couzic/ts-graph-mcp/internal/tsparse"
)

// Registry is safe for concurrent use; the watcher and any number of
// indexing goroutines share one instance.
type Registry struct {
	parser tsparse.SourceParser

	mu       sync.RWMutex
	projects map[string]*Project
}

// New returns an empty Registry backed by the given source parser.
func New(parser tsparse.SourceParser) *Registry {
	return &Registry{
		parser:   parser,
		projects: make(map[string]*Project),
	}
}

// Register adds or replaces the project named name, rooted at root, with
// tsconfig path aliases loaded from tsconfigPath (may not exist). Given the
// same root and TSConfig path, the same parsed Project is returned on every
// subsequent call for this name (spec §4.6's caching requirement); a
// different root or path replaces it.
func (r *Registry) Register(name, root, tsconfigPath string) (*Project, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("registry: %s: %w", name, err)
	}

	r.mu.RLock()
	if p, ok := r.projects[name]; ok && p.Root == absRoot && p.TSConfigPath == tsconfigPath {
		r.mu.RUnlock()
		return p, nil
	}
	r.mu.RUnlock()

	cfg, err := loadTSConfig(tsconfigPath)
	if err != nil {
		return nil, fmt.Errorf("registry: %s: tsconfig: %w", name, err)
	}

	proj := newProject(name, absRoot, tsconfigPath, cfg, r.parser)

	r.mu.Lock()
	r.projects[name] = proj
	r.mu.Unlock()

	return proj, nil
}

// Project returns the registered project by package name.
func (r *Registry) Project(name string) (*Project, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[name]
	return p, ok
}

// ProjectForPath returns the project whose root is an ancestor of
// absPath, used by the watcher to decide whether a changed file belongs
// to any configured package before indexing it (spec §4.8).
func (r *Registry) ProjectForPath(absPath string) (*Project, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Project
	for _, p := range r.projects {
		rel, err := filepath.Rel(p.Root, absPath)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if best == nil || len(p.Root) > len(best.Root) {
			best = p
		}
	}
	return best, best != nil
}

// Projects returns every registered project, for bulk indexing.
func (r *Registry) Projects() []*Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	return out
}
