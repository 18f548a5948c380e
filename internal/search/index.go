package search

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Hit is one result of a unified search: the fused rank plus the
// document's identity (spec §4.4: "hits with a per-hit score and the
// source {file, symbol}").
type Hit struct {
	ID      string
	File    string
	Symbol  string
	Score   float64
	Snippet string
}

// SearchIndex composes the lexical (BM25) and vector (HNSW) halves of
// the index with reciprocal-rank fusion, matching spec §4.4's unified
// search(query, vector?, limit) contract. No single teacher file wires
// BM25+vector+fusion at this exact seam; method names follow the
// closest analog in the pack, a hybrid indexer's Search/Index/Delete/
// Close shape.
type SearchIndex struct {
	bm25    *BM25Index
	vectors *VectorStore
	fusion  *RRFFusion
	weights Weights

	// meta holds {file, symbol, snippet} per doc ID, since neither the
	// BM25 nor the vector store returns anything but an ID and a score.
	meta map[string]Document
}

// Config configures a SearchIndex.
type Config struct {
	BM25Path      string // empty = in-memory
	VectorPath    string // not read by Open; the vector half is in memory only
	Dimensions    int
	BM25Config    BM25Config
	FusionK       int
	FusionWeights Weights
}

// DefaultConfig returns a Config with the package defaults for the
// given embedding dimension.
func DefaultConfig(dimensions int) Config {
	return Config{
		Dimensions:    dimensions,
		BM25Config:    DefaultBM25Config(),
		FusionK:       DefaultRRFConstant,
		FusionWeights: DefaultWeights(),
	}
}

// Open builds a SearchIndex: the BM25 half is opened at cfg.BM25Path and
// the vector half starts empty in memory; nothing is loaded from disk
// for it.
func Open(cfg Config) (*SearchIndex, error) {
	bm25, err := NewBM25Index(cfg.BM25Path, cfg.BM25Config)
	if err != nil {
		return nil, fmt.Errorf("search: open bm25: %w", err)
	}
	vectors, err := NewVectorStore(DefaultVectorStoreConfig(cfg.Dimensions))
	if err != nil {
		_ = bm25.Close()
		return nil, fmt.Errorf("search: open vectors: %w", err)
	}

	weights := cfg.FusionWeights
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}

	return &SearchIndex{
		bm25:    bm25,
		vectors: vectors,
		fusion:  NewRRFFusionWithK(cfg.FusionK),
		weights: weights,
		meta:    make(map[string]Document),
	}, nil
}

// Upsert indexes or re-indexes a batch of documents in both halves. A
// document with a nil Vector is indexed lexically only, so cold-start
// rebuilds with an unavailable embedder still produce searchable
// results (spec §4.7's progressive-fallback embedding relies on this).
func (s *SearchIndex) Upsert(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	if err := s.bm25.Index(ctx, docs); err != nil {
		return fmt.Errorf("search: upsert bm25: %w", err)
	}

	var ids []string
	var vectors [][]float32
	for _, d := range docs {
		s.meta[d.ID] = *d
		if d.Vector != nil {
			ids = append(ids, d.ID)
			vectors = append(vectors, d.Vector)
		}
	}
	if len(ids) > 0 {
		if err := s.vectors.Add(ctx, ids, vectors); err != nil {
			return fmt.Errorf("search: upsert vectors: %w", err)
		}
	}
	return nil
}

// RemoveByFile deletes every document whose ID carries the given
// file's NodeID prefix, from both halves (spec §4.4 remove_by_file).
func (s *SearchIndex) RemoveByFile(ctx context.Context, path string) error {
	var ids []string
	for id := range s.meta {
		if strings.HasPrefix(id, path+":") {
			ids = append(ids, id)
		}
	}
	if err := s.bm25.DeleteByFile(ctx, path); err != nil {
		return fmt.Errorf("search: remove_by_file bm25: %w", err)
	}
	if len(ids) > 0 {
		if err := s.vectors.Delete(ctx, ids); err != nil {
			return fmt.Errorf("search: remove_by_file vectors: %w", err)
		}
	}
	for _, id := range ids {
		delete(s.meta, id)
	}
	return nil
}

// Search runs a lexical query, and if queryVector is non-nil also a
// vector k-NN, fusing both with reciprocal-rank fusion (spec §4.4). The
// two lookups run concurrently via errgroup, same pattern as the
// teacher's Engine.parallelSearch.
func (s *SearchIndex) Search(ctx context.Context, query string, queryVector []float32, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 20
	}

	var bm25Results []*BM25Result
	var vecResults []*VectorResult

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		bm25Results, err = s.bm25.Search(gctx, query, limit*4)
		if err != nil {
			return fmt.Errorf("search: bm25 search: %w", err)
		}
		return nil
	})

	if queryVector != nil {
		g.Go(func() error {
			var err error
			vecResults, err = s.vectors.Search(gctx, queryVector, limit*4)
			if err != nil {
				return fmt.Errorf("search: vector search: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := s.fusion.Fuse(bm25Results, vecResults, s.weights)
	if len(fused) > limit {
		fused = fused[:limit]
	}

	hits := make([]Hit, 0, len(fused))
	for _, f := range fused {
		doc := s.meta[f.ID]
		hits = append(hits, Hit{
			ID:      f.ID,
			File:    doc.File,
			Symbol:  doc.Symbol,
			Score:   f.RRFScore,
			Snippet: doc.Snippet,
		})
	}
	return hits, nil
}

// TopicSimilarity returns, for each of candidateIDs present in the
// vector index, its cosine-similarity score against topicVector. IDs
// absent from the result had no close match within the oversampled
// k-NN search and should be treated as below any similarity threshold.
// Used by the search-graph orchestrator's topic+endpoint filter
// (spec §4.11: "drop nodes whose embedding-to-topic similarity falls
// below the filter threshold").
func (s *SearchIndex) TopicSimilarity(ctx context.Context, topicVector []float32, candidateIDs []string) (map[string]float64, error) {
	if topicVector == nil || len(candidateIDs) == 0 {
		return map[string]float64{}, nil
	}

	k := len(candidateIDs) * 4
	if k < 200 {
		k = 200
	}
	results, err := s.vectors.Search(ctx, topicVector, k)
	if err != nil {
		return nil, fmt.Errorf("search: topic_similarity: %w", err)
	}

	want := make(map[string]bool, len(candidateIDs))
	for _, id := range candidateIDs {
		want[id] = true
	}

	scores := make(map[string]float64, len(candidateIDs))
	for _, r := range results {
		if want[r.ID] {
			scores[r.ID] = float64(r.Score)
		}
	}
	return scores, nil
}

// Count returns the number of documents in the lexical index, the
// authoritative document count.
func (s *SearchIndex) Count() (int, error) {
	return s.bm25.Count()
}

// Close releases both underlying indexes.
func (s *SearchIndex) Close() error {
	err1 := s.bm25.Close()
	err2 := s.vectors.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
