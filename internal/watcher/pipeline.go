package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/couzic/ts-graph-mcp/internal/graph"
	"github.com/couzic/ts-graph-mcp/internal/indexer"
	"github.com/couzic/ts-graph-mcp/internal/registry"
	"github.com/couzic/ts-graph-mcp/internal/search"
)

// PipelineDependencies are the collaborators the incremental watch/reindex
// loop needs to turn a batch of debounced file events into store,
// search-index and manifest updates.
type PipelineDependencies struct {
	Registry     *registry.Registry
	Indexer      *indexer.Indexer
	Store        *graph.Store
	SearchIndex  *search.SearchIndex
	ManifestPath string
}

// Pipeline drives a HybridWatcher: every debounced batch it receives is
// applied one file at a time to the store, the search index, and the
// manifest. A failure on one file is logged and never aborts the batch
// or the watcher.
type Pipeline struct {
	deps    PipelineDependencies
	watcher *HybridWatcher

	mu       sync.Mutex
	manifest *graph.Manifest

	readyOnce sync.Once
	readyCh   chan struct{}
	doneCh    chan struct{}
}

// NewPipeline loads (or creates) the manifest at deps.ManifestPath and
// returns a Pipeline ready to drive w.
func NewPipeline(deps PipelineDependencies, w *HybridWatcher) (*Pipeline, error) {
	m, err := graph.LoadManifest(deps.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("watcher: load manifest: %w", err)
	}
	return &Pipeline{
		deps:     deps,
		watcher:  w,
		manifest: m,
		readyCh:  make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Run starts the watcher on root and processes batches until ctx is
// cancelled or the watcher stops. Run blocks; callers typically invoke
// it in its own goroutine and await Ready()/Close() from elsewhere.
func (p *Pipeline) Run(ctx context.Context, root string) error {
	go p.consumeErrors()
	go func() {
		defer close(p.doneCh)
		for {
			select {
			case <-ctx.Done():
				return
			case batch, ok := <-p.watcher.Events():
				if !ok {
					return
				}
				p.applyBatch(ctx, root, batch)
				p.readyOnce.Do(func() { close(p.readyCh) })
			}
		}
	}()
	return p.watcher.Start(ctx, root)
}

// Ready returns a channel that closes once the first batch has been
// processed, standing in for the event source's initial-scan settling
// (spec's "ready promise").
func (p *Pipeline) Ready() <-chan struct{} { return p.readyCh }

// Close stops the underlying watcher, waits for in-flight batch
// processing to drain, and leaves the manifest at its last-written
// state on disk.
func (p *Pipeline) Close() error {
	err := p.watcher.Stop()
	<-p.doneCh
	return err
}

func (p *Pipeline) consumeErrors() {
	for err := range p.watcher.Errors() {
		slog.Warn("watcher_error", slog.String("error", err.Error()))
	}
}

// applyBatch processes events in the order the batch lists them (the
// debouncer builds a batch in no particular order), rewriting the
// manifest once at the end if anything changed.
func (p *Pipeline) applyBatch(ctx context.Context, root string, batch []FileEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	changed := false
	for _, ev := range batch {
		if ev.IsDir {
			continue
		}
		switch ev.Operation {
		case OpGitignoreChange, OpConfigChange:
			// These name the .gitignore or config file itself. Files
			// indexed before the change are not re-checked or removed,
			// and files the change un-ignores are not indexed until
			// their own next event.
			continue
		case OpDelete:
			if p.handleUnlink(ctx, ev.Path) {
				changed = true
			}
		default: // OpCreate, OpModify, OpRename
			if p.handleAddOrChange(ctx, root, ev.Path) {
				changed = true
			}
		}
	}

	if changed {
		if err := graph.SaveManifest(p.deps.ManifestPath, p.manifest); err != nil {
			slog.Error("watcher_manifest_save_failed", slog.String("error", err.Error()))
		}
	}
}

func (p *Pipeline) handleAddOrChange(ctx context.Context, root, relPath string) bool {
	absPath := filepath.Join(root, filepath.FromSlash(relPath))
	info, err := os.Stat(absPath)
	if err != nil {
		// File no longer exists at dispatch time: skip (spec §4.8).
		return false
	}

	proj, ok := p.deps.Registry.ProjectForPath(absPath)
	if !ok {
		// Not part of any configured package: skip.
		return false
	}
	proj.Invalidate(relPath)

	result, err := p.deps.Indexer.IndexFile(ctx, proj, relPath)
	if err != nil {
		slog.Error("watcher_index_failed", slog.String("file", relPath), slog.String("error", err.Error()))
		return false
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		slog.Error("watcher_read_failed", slog.String("file", relPath), slog.String("error", err.Error()))
		return false
	}

	p.manifest.Files[relPath] = graph.ManifestEntry{
		MTime:       info.ModTime(),
		Size:        info.Size(),
		ContentHash: fileHash(content),
	}

	slog.Info("watcher_indexed",
		slog.String("file", relPath),
		slog.Int("nodes", result.NodesAdded),
		slog.Int("edges", result.EdgesAdded))
	return true
}

func (p *Pipeline) handleUnlink(ctx context.Context, relPath string) bool {
	if err := p.deps.Store.RemoveFileNodes(ctx, relPath); err != nil {
		slog.Error("watcher_remove_nodes_failed", slog.String("file", relPath), slog.String("error", err.Error()))
		return false
	}
	if p.deps.SearchIndex != nil {
		if err := p.deps.SearchIndex.RemoveByFile(ctx, relPath); err != nil {
			slog.Error("watcher_remove_search_failed", slog.String("file", relPath), slog.String("error", err.Error()))
			return false
		}
	}
	delete(p.manifest.Files, relPath)
	return true
}

// fileHash is the manifest's content_hash: SHA-256 of the file's raw
// source bytes, distinct from a node's content_hash (SHA-256 of its
// derived embedding input) so re-indexing an unchanged file never
// perturbs the manifest (spec: "does not change the manifest's
// content_hash").
func fileHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
