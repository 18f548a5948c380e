// Package embed implements the embedding provider contract (spec §4.3):
// async embed_query/embed_document plus a max-context hint, with a
// deterministic fake provider and an LRU-caching wrapper.
package embed

import (
	"context"
	"errors"
	"math"
)

// ErrContentTooLong is the sentinel a provider returns when its input
// exceeds what it can embed, signalling the indexer's progressive
// fallback (spec §4.7 step 5) rather than a fatal failure.
var ErrContentTooLong = errors.New("embed: content exceeds provider's max content length")

// Embedder generates vector embeddings for text. Queries and documents
// go through separate methods since some providers prepend a different
// instruction prefix to each (spec §4.3).
type Embedder interface {
	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocument embeds a unit of indexed content (a node's snippet).
	EmbedDocument(ctx context.Context, text string) ([]float32, error)

	// MaxContentLength returns the maximum input length the provider
	// accepts before truncation/overflow handling applies.
	MaxContentLength() int

	// Dimensions returns the embedding's fixed dimension.
	Dimensions() int

	// ModelName identifies the provider, used as the embedding cache's
	// bucket key.
	ModelName() string

	// Initialize prepares the provider for use (model load, connection
	// warmup). Safe to call multiple times.
	Initialize(ctx context.Context) error

	// Dispose releases resources held by the provider.
	Dispose() error
}

// normalizeVector scales v to unit length, leaving zero vectors as-is.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return v
	}
	magnitude := math.Sqrt(sumSquares)
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / magnitude)
	}
	return out
}
