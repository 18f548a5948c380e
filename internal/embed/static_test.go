package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TS01: the same input always yields the same vector.
func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder(0)
	ctx := context.Background()

	a, err := e.EmbedDocument(ctx, "function save(user) {}")
	require.NoError(t, err)
	b, err := e.EmbedDocument(ctx, "function save(user) {}")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, StaticDimensions)
}

// TS02: empty/whitespace input returns a zero vector rather than erroring.
func TestStaticEmbedder_EmptyInput(t *testing.T) {
	e := NewStaticEmbedder(0)
	vec, err := e.EmbedQuery(context.Background(), "   ")
	require.NoError(t, err)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

// TS03: input longer than maxLength is truncated rather than rejected.
func TestStaticEmbedder_Overflow(t *testing.T) {
	e := NewStaticEmbedder(8)
	long, err := e.EmbedDocument(context.Background(), "functionWithAVeryLongName")
	require.NoError(t, err)

	short, err := e.EmbedDocument(context.Background(), "function")
	require.NoError(t, err)

	assert.Equal(t, short, long)
}

// TS04: after Dispose, further calls return an error.
func TestStaticEmbedder_DisposeThenEmbed(t *testing.T) {
	e := NewStaticEmbedder(0)
	require.NoError(t, e.Dispose())

	_, err := e.EmbedQuery(context.Background(), "x")
	assert.Error(t, err)
}

// TS05: camelCase and snake_case identifiers produce overlapping token
// weight, so "getUserName" and "get_user_name" embed similarly.
func TestStaticEmbedder_CamelAndSnakeOverlap(t *testing.T) {
	e := NewStaticEmbedder(0)
	ctx := context.Background()

	camel, err := e.EmbedDocument(ctx, "getUserName")
	require.NoError(t, err)
	snake, err := e.EmbedDocument(ctx, "get_user_name")
	require.NoError(t, err)

	var dot float64
	for i := range camel {
		dot += float64(camel[i]) * float64(snake[i])
	}
	assert.Greater(t, dot, 0.5)
}
