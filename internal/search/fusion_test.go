package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TS01: a document in both lists outranks one in only a single list.
func TestRRFFusion_BothListsRankHigher(t *testing.T) {
	f := NewRRFFusion()
	bm25 := []*BM25Result{{DocID: "a", Score: 5}, {DocID: "b", Score: 4}}
	vec := []*VectorResult{{ID: "a", Score: 0.9}}

	results := f.Fuse(bm25, vec, DefaultWeights())
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.True(t, results[0].InBothLists)
}

// TS02: empty inputs produce an empty (non-nil) slice.
func TestRRFFusion_Empty(t *testing.T) {
	f := NewRRFFusion()
	results := f.Fuse(nil, nil, DefaultWeights())
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

// TS03: scores are normalized so the top result is exactly 1.0.
func TestRRFFusion_Normalizes(t *testing.T) {
	f := NewRRFFusion()
	bm25 := []*BM25Result{{DocID: "a", Score: 5}, {DocID: "b", Score: 1}}
	results := f.Fuse(bm25, nil, DefaultWeights())
	assert.Equal(t, 1.0, results[0].RRFScore)
}

// TS04: a document absent from the vector list still gets a
// missing-rank contribution rather than being dropped.
func TestRRFFusion_MissingRankContribution(t *testing.T) {
	f := NewRRFFusion()
	bm25 := []*BM25Result{{DocID: "a", Score: 1}}
	vec := []*VectorResult{{ID: "b", Score: 0.5}, {ID: "c", Score: 0.4}}

	results := f.Fuse(bm25, vec, DefaultWeights())
	require.Len(t, results, 3)
	for _, r := range results {
		if r.ID == "a" {
			assert.Greater(t, r.RRFScore, 0.0)
			assert.False(t, r.InBothLists)
		}
	}
}
