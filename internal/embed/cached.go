package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of embeddings (query and
// document alike) to keep in memory, distinct from the on-disk
// content-addressed cache in internal/embedcache: this one caches by
// text+model, in process memory, for repeated identical inputs within a
// single run.
const DefaultCacheSize = 1000

// CachedEmbedder wraps an Embedder with an in-memory LRU so repeated
// identical queries skip recomputation.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps inner with an LRU cache of the given size.
// size <= 0 uses DefaultCacheSize.
func NewCachedEmbedder(inner Embedder, size int) *CachedEmbedder {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &CachedEmbedder{inner: inner, cache: cache}
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + c.inner.ModelName()))
	return hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := c.key("q:" + text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

func (c *CachedEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	key := c.key("d:" + text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.EmbedDocument(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

func (c *CachedEmbedder) MaxContentLength() int { return c.inner.MaxContentLength() }
func (c *CachedEmbedder) Dimensions() int        { return c.inner.Dimensions() }
func (c *CachedEmbedder) ModelName() string      { return c.inner.ModelName() }
func (c *CachedEmbedder) Initialize(ctx context.Context) error { return c.inner.Initialize(ctx) }
func (c *CachedEmbedder) Dispose() error         { return c.inner.Dispose() }

// Inner returns the wrapped embedder.
func (c *CachedEmbedder) Inner() Embedder { return c.inner }
