package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/couzic/ts-graph-mcp/internal/config"
	"github.com/couzic/ts-graph-mcp/internal/embed"
	"github.com/couzic/ts-graph-mcp/internal/embedcache"
	"github.com/couzic/ts-graph-mcp/internal/graph"
	"github.com/couzic/ts-graph-mcp/internal/indexer"
	"github.com/couzic/ts-graph-mcp/internal/registry"
	"github.com/couzic/ts-graph-mcp/internal/search"
	"github.com/couzic/ts-graph-mcp/internal/telemetry"
	"github.com/couzic/ts-graph-mcp/internal/tsparse"
)

// cacheDirName is the project-relative directory holding all derived
// state: graph store, search index, embedding cache, manifest, and the
// server/lock files (spec §6's cache directory layout).
const cacheDirName = ".ts-graph-mcp"

// app bundles the collaborators shared by serve and index: both build
// the same store/search/registry/indexer stack from one project root,
// then diverge into "watch and serve" vs. "walk once and exit".
type app struct {
	root         string
	cacheDir     string
	cfg          *config.Config
	store        *graph.Store
	search       *search.SearchIndex
	embedder     embed.Embedder
	cache        *embedcache.Cache
	registry     *registry.Registry
	indexer      *indexer.Indexer
	manifestPath string
	metrics      *telemetry.QueryMetrics
}

func newApp(root string) (*app, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	cfg, err := config.Load(absRoot)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cacheDir := filepath.Join(absRoot, cacheDirName)
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	storePath := filepath.Join(cacheDir, "sqlite", "graph.db")
	if cfg.Storage.Path != "" {
		storePath = cfg.Storage.Path
	}
	if err := os.MkdirAll(filepath.Dir(storePath), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	store, err := graph.Open(storePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	embedder := embed.NewCachedEmbedder(embed.NewStaticEmbedder(0), embed.DefaultCacheSize)
	if err := embedder.Initialize(context.Background()); err != nil {
		store.Close()
		return nil, fmt.Errorf("initialize embedder: %w", err)
	}

	searchCfg := search.DefaultConfig(embedder.Dimensions())
	searchCfg.BM25Path = filepath.Join(cacheDir, "orama", "bm25.db")
	if err := os.MkdirAll(filepath.Dir(searchCfg.BM25Path), 0o755); err != nil {
		store.Close()
		return nil, fmt.Errorf("create search dir: %w", err)
	}
	idx, err := search.Open(searchCfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open search index: %w", err)
	}

	embedCache, err := embedcache.Open(filepath.Join(cacheDir, "embedding-cache", embedder.ModelName()+".db"))
	if err != nil {
		store.Close()
		idx.Close()
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}

	reg := registry.New(tsparse.NewSourceParser())
	for _, pkg := range cfg.Packages {
		if _, err := reg.Register(pkg.Name, absRoot, pkg.TSConfig); err != nil {
			store.Close()
			idx.Close()
			embedCache.Close()
			return nil, fmt.Errorf("register package %s: %w", pkg.Name, err)
		}
	}

	ix := indexer.New(indexer.Dependencies{
		Store:       store,
		SearchIndex: idx,
		Embedder:    embedder,
		Cache:       embedCache,
	})

	if err := telemetry.InitTelemetrySchema(store.DB()); err != nil {
		store.Close()
		idx.Close()
		embedCache.Close()
		return nil, fmt.Errorf("init telemetry schema: %w", err)
	}
	metricsStore, err := telemetry.NewSQLiteMetricsStore(store.DB())
	if err != nil {
		store.Close()
		idx.Close()
		embedCache.Close()
		return nil, fmt.Errorf("open metrics store: %w", err)
	}
	metrics := telemetry.NewQueryMetrics(metricsStore)

	return &app{
		root:         absRoot,
		cacheDir:     cacheDir,
		cfg:          cfg,
		store:        store,
		search:       idx,
		embedder:     embedder,
		cache:        embedCache,
		registry:     reg,
		indexer:      ix,
		manifestPath: filepath.Join(cacheDir, "manifest.json"),
		metrics:      metrics,
	}, nil
}

func (a *app) Close() {
	_ = a.metrics.Close()
	_ = a.cache.Close()
	_ = a.search.Close()
	_ = a.store.Close()
	_ = a.embedder.Dispose()
}
