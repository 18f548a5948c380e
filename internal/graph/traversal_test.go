package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildChain wires A -> B -> C -> D via CALLS edges, plus a stray cycle
// edge D -> A to exercise the cycle check.
func buildChain(t *testing.T, s *Store) (a, b, c, d *Node) {
	t.Helper()
	ctx := context.Background()
	a = sampleNode("src/a.ts", NodeFunction, "a")
	b = sampleNode("src/b.ts", NodeFunction, "b")
	c = sampleNode("src/c.ts", NodeFunction, "c")
	d = sampleNode("src/d.ts", NodeFunction, "d")
	require.NoError(t, s.AddNodes(ctx, []*Node{a, b, c, d}))
	require.NoError(t, s.AddEdges(ctx, []*Edge{
		{Source: a.ID, Target: b.ID, Type: EdgeCalls},
		{Source: b.ID, Target: c.ID, Type: EdgeCalls},
		{Source: c.ID, Target: d.ID, Type: EdgeCalls},
		{Source: d.ID, Target: a.ID, Type: EdgeCalls},
	}))
	return
}

// TS05: QueryNeighbors respects distance and direction.
func TestStore_QueryNeighbors_Outbound(t *testing.T) {
	s := newTestStore(t)
	a, b, c, _ := buildChain(t, s)

	nbh, err := s.QueryNeighbors(context.Background(), a.ID, 2, DirOut, nil)
	require.NoError(t, err)

	names := nodeNames(nbh.Nodes)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, names)
}

// TS06: QueryNeighbors with direction "in" follows edges backward.
func TestStore_QueryNeighbors_Inbound(t *testing.T) {
	s := newTestStore(t)
	a, _, _, d := buildChain(t, s)

	nbh, err := s.QueryNeighbors(context.Background(), d.ID, 1, DirIn, nil)
	require.NoError(t, err)

	names := nodeNames(nbh.Nodes)
	assert.ElementsMatch(t, []string{"d", "c"}, names)
	_ = a
}

// TS07: QueryShortestPaths finds the single path in an acyclic chain and
// does not loop forever over the cyclic edge back to A.
func TestStore_QueryShortestPaths(t *testing.T) {
	s := newTestStore(t)
	a, _, _, d := buildChain(t, s)

	paths, err := s.QueryShortestPaths(context.Background(), a.ID, d.ID, 10, 5)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, []NodeID{a.ID, "src/b.ts:Function:b", "src/c.ts:Function:c", d.ID}, paths[0].Nodes)
	assert.Len(t, paths[0].Edges, 3)
}

// TS08: QueryShortestPaths rejects from == to.
func TestStore_QueryShortestPaths_SameEndpoint(t *testing.T) {
	s := newTestStore(t)
	a, _, _, _ := buildChain(t, s)

	_, err := s.QueryShortestPaths(context.Background(), a.ID, a.ID, 10, 5)
	assert.ErrorIs(t, err, ErrSameEndpoint)
}

// TS09: QueryImpact returns transitive callers restricted to edge type.
func TestStore_QueryImpact(t *testing.T) {
	s := newTestStore(t)
	a, _, _, d := buildChain(t, s)

	nbh, err := s.QueryImpact(context.Background(), d.ID, 10, []EdgeType{EdgeCalls})
	require.NoError(t, err)

	names := nodeNames(nbh.Nodes)
	assert.Contains(t, names, "a")
	assert.Contains(t, names, "c")
	assert.Contains(t, names, "d")
}

// TS10: Callers/Callees are CALLS-only convenience wrappers over QueryNeighbors.
func TestStore_CallersCallees(t *testing.T) {
	s := newTestStore(t)
	a, b, _, _ := buildChain(t, s)

	callers, err := s.Callers(context.Background(), b.ID, 0)
	require.NoError(t, err)
	assert.Contains(t, nodeNames(callers.Nodes), "a")

	callees, err := s.Callees(context.Background(), a.ID, 0)
	require.NoError(t, err)
	assert.Contains(t, nodeNames(callees.Nodes), "b")
}

func nodeNames(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name
	}
	return out
}
