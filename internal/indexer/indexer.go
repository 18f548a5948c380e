// Package indexer implements the per-file indexing pipeline (spec §4.7,
// component C7): extract a file's nodes and edges, write them to the
// store, derive each node's canonical embedding input, and upsert the
// result into the search index, embedding on a best-effort, never-fatal
// basis.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couzic/ts-graph-mcp/internal/embed"
	"github.com/couzic/ts-graph-mcp/internal/embedcache"
	"github.com/couzic/ts-graph-mcp/internal/extract"
	"github.com/couzic/ts-graph-mcp/internal/graph"
	"github.com/couzic/ts-graph-mcp/internal/registry"
	"github.com/couzic/ts-graph-mcp/internal/search"
	"github.com/couzic/ts-graph-mcp/internal/tsparse"
)

// Dependencies is the indexer's injected dependency set, grounded on
// internal/index.RunnerDependencies's shape (a struct of required
// collaborators the caller assembles once and shares across files).
type Dependencies struct {
	Store       *graph.Store
	SearchIndex *search.SearchIndex

	// Embedder and Cache are optional: a nil Embedder means every node is
	// indexed lexically only (spec §4.7's embedding step is best-effort).
	Embedder embed.Embedder
	Cache    *embedcache.Cache
}

// Result reports spec §4.7's "return counts {nodes_added, edges_added}".
type Result struct {
	NodesAdded int
	EdgesAdded int
}

// Indexer runs the per-file pipeline over one registry.Project at a
// time.
type Indexer struct {
	deps Dependencies
}

// New builds an Indexer from its dependencies.
func New(deps Dependencies) *Indexer {
	return &Indexer{deps: deps}
}

// IndexFile implements spec §4.7's index_file(source_file, ctx, store,
// {search_index?, embedding?, cache?}) for one file already resolved
// within proj.
func (ix *Indexer) IndexFile(ctx context.Context, proj *registry.Project, relPath string) (Result, error) {
	tree, err := proj.Tree(ctx, relPath)
	if err != nil {
		return Result{}, fmt.Errorf("indexer: parse %s: %w", relPath, err)
	}

	nodes, edges, err := extract.Extract(ctx, proj, relPath, proj.Name, tree)
	if err != nil {
		return Result{}, fmt.Errorf("indexer: extract %s: %w", relPath, err)
	}

	nodePtrs := make([]*graph.Node, len(nodes))
	for i := range nodes {
		nodePtrs[i] = &nodes[i]
	}
	edgePtrs := make([]*graph.Edge, len(edges))
	for i := range edges {
		edgePtrs[i] = &edges[i]
	}

	docs := make([]*search.Document, 0, len(nodePtrs))
	for _, n := range nodePtrs {
		declNode, _ := extract.LocateDeclaration(tree, n.ID)
		input := buildEmbeddingInput(n, declNode, tree.Source)
		n.ContentHash = contentHash(input)
		n.Snippet = input

		vector, err := ix.embedWithFallback(ctx, n, declNode, tree.Source, input)
		if err != nil {
			// Embedding must never be the cause of a hard failure (spec
			// §4.7 step 5); log and continue lexical-only for this node.
			slog.Warn("indexer_embed_failed", slog.String("node", string(n.ID)), slog.String("error", err.Error()))
			vector = nil
		}

		docs = append(docs, &search.Document{
			ID:       string(n.ID),
			Symbol:   n.Name,
			File:     n.FilePath,
			Snippet:  input,
			Prefixes: search.DerivePrefixes(n.Name),
			Vector:   vector,
		})
	}

	if err := ix.deps.Store.ReplaceFile(ctx, relPath, nodePtrs, edgePtrs); err != nil {
		return Result{}, fmt.Errorf("indexer: write %s: %w", relPath, err)
	}

	if ix.deps.SearchIndex != nil {
		if err := ix.deps.SearchIndex.RemoveByFile(ctx, relPath); err != nil {
			return Result{}, fmt.Errorf("indexer: clear search index for %s: %w", relPath, err)
		}
		if err := ix.deps.SearchIndex.Upsert(ctx, docs); err != nil {
			return Result{}, fmt.Errorf("indexer: upsert search index for %s: %w", relPath, err)
		}
	}

	return Result{NodesAdded: len(nodePtrs), EdgesAdded: len(edgePtrs)}, nil
}

// embedWithFallback computes the embedding vector for one node,
// progressively shortening the embedding input on an overflow error
// (spec §4.7 step 5) until embedding succeeds or the hard-truncation
// floor is reached, at which point it must succeed. Returns (nil, nil)
// when no embedder is configured.
func (ix *Indexer) embedWithFallback(ctx context.Context, n *graph.Node, declNode *tsparse.Node, source []byte, input string) ([]float32, error) {
	if ix.deps.Embedder == nil {
		return nil, nil
	}

	if ix.deps.Cache != nil {
		if v, ok, err := ix.deps.Cache.Get(ix.deps.Embedder.ModelName(), input); err == nil && ok {
			return v, nil
		}
	}

	vector, err := ix.deps.Embedder.EmbedDocument(ctx, input)
	if err == nil {
		ix.cacheSet(input, vector)
		return vector, nil
	}
	if !errors.Is(err, embed.ErrContentTooLong) {
		return nil, err
	}

	// Step 5a: class nodes strip method bodies further than the initial
	// `{ ... }` stub.
	if n.Type == graph.NodeClass && declNode != nil {
		if stripped := stripClassMethodBodiesFurther(declNode, source); stripped != "" {
			shortened := embeddingHeader(n) + "\n" + stripped
			if vector, err := ix.deps.Embedder.EmbedDocument(ctx, shortened); err == nil {
				ix.cacheSet(shortened, vector)
				return vector, nil
			}
		}
	}

	// Step 5b: long functions/methods truncate harder than
	// maxSourceLines already did (halve it).
	if (n.Type == graph.NodeFunction || n.Type == graph.NodeMethod) && declNode != nil {
		half := truncateLines(declNode.Content(source), maxSourceLines/2)
		shortened := embeddingHeader(n) + "\n" + half
		if vector, err := ix.deps.Embedder.EmbedDocument(ctx, shortened); err == nil {
			ix.cacheSet(shortened, vector)
			return vector, nil
		}
	}

	// Step 5c: final fallback, hard-truncate to the provider's
	// max_content_length. This path must always succeed.
	maxLen := ix.deps.Embedder.MaxContentLength()
	hardTruncated := input
	if maxLen > 0 && len(hardTruncated) > maxLen {
		hardTruncated = hardTruncated[:maxLen]
	}
	vector, err = ix.deps.Embedder.EmbedDocument(ctx, hardTruncated)
	if err != nil {
		return nil, fmt.Errorf("indexer: embedding did not succeed even after hard truncation: %w", err)
	}
	ix.cacheSet(hardTruncated, vector)
	return vector, nil
}

func (ix *Indexer) cacheSet(input string, vector []float32) {
	if ix.deps.Cache == nil {
		return
	}
	if err := ix.deps.Cache.Set(ix.deps.Embedder.ModelName(), input, vector); err != nil {
		slog.Warn("indexer_cache_set_failed", slog.String("error", err.Error()))
	}
}
