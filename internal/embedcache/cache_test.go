package embedcache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "embed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// TS01: Set then Get round-trips a vector for the same model.
func TestCache_SetAndGet(t *testing.T) {
	c := newTestCache(t)
	vec := []float32{0.1, 0.2, 0.3}

	require.NoError(t, c.Set("static-v1", "function foo() {}", vec))

	got, found, err := c.Get("static-v1", "function foo() {}")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, vec, got)
}

// TS02: a miss reports found=false rather than an error.
func TestCache_Get_Miss(t *testing.T) {
	c := newTestCache(t)

	_, found, err := c.Get("static-v1", "never indexed")
	require.NoError(t, err)
	assert.False(t, found)
}

// TS03: the same content under two different models is cached separately.
func TestCache_ModelIsolation(t *testing.T) {
	c := newTestCache(t)
	content := "function foo() {}"

	require.NoError(t, c.Set("static-v1", content, []float32{1, 0}))
	require.NoError(t, c.Set("ollama-nomic", content, []float32{0, 1}))

	a, _, err := c.Get("static-v1", content)
	require.NoError(t, err)
	b, _, err := c.Get("ollama-nomic", content)
	require.NoError(t, err)

	assert.Equal(t, []float32{1, 0}, a)
	assert.Equal(t, []float32{0, 1}, b)
}

// TS04: GetBatch resolves whichever keys are present and skips misses.
func TestCache_GetBatch(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Set("static-v1", "a", []float32{1}))
	require.NoError(t, c.Set("static-v1", "b", []float32{2}))

	got, err := c.GetBatch("static-v1", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, []float32{1}, got["a"])
	assert.Equal(t, []float32{2}, got["b"])
	_, ok := got["c"]
	assert.False(t, ok)
}

// TS05: Count reflects the number of distinct cached contents per model.
func TestCache_Count(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.SetBatch("static-v1", map[string][]float32{
		"a": {1}, "b": {2}, "c": {3},
	}))

	n, err := c.Count("static-v1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = c.Count("unused-model")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
