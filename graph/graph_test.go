package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGraph(t *testing.T, nodes []string, edges [][2]string) *Graph {
	t.Helper()
	g := New()
	for _, n := range nodes {
		g.AddNode(n, nil)
	}
	for _, e := range edges {
		require.NoError(t, g.AddEdge(e[0], e[1]))
	}
	return g
}

func TestAddEdge(t *testing.T) {
	t.Parallel()
	g := newGraph(t, []string{"a", "b"}, nil)

	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("a", "b"), "duplicate edges are ignored")
	assert.Equal(t, []string{"b"}, g.Children("a"))
	assert.Equal(t, []string{"a"}, g.Parents("b"))
	assert.True(t, g.HasEdge("a", "b"))
	assert.False(t, g.HasEdge("b", "a"))

	assert.Error(t, g.AddEdge("a", "a"))
	assert.Error(t, g.AddEdge("a", "missing"))
	assert.Error(t, g.AddEdge("missing", "a"))
}

func TestAddNode_UpdatesData(t *testing.T) {
	t.Parallel()
	g := New()
	g.AddNode("a", 1)
	g.AddNode("a", 2)
	n, ok := g.Node("a")
	require.True(t, ok)
	assert.Equal(t, 2, n.Data)
	assert.Equal(t, 1, g.Len())
}

func TestTopologicalSort(t *testing.T) {
	t.Parallel()
	g := newGraph(t,
		[]string{"posts", "authors", "comments", "tags"},
		[][2]string{{"authors", "posts"}, {"posts", "comments"}, {"authors", "comments"}},
	)
	order, err := g.TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"authors", "posts", "comments", "tags"}, order)

	// Stable across calls.
	again, err := g.TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, order, again)
}

func TestTopologicalSort_Cycle(t *testing.T) {
	t.Parallel()
	g := newGraph(t,
		[]string{"a", "b", "c"},
		[][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}},
	)
	_, err := g.TopologicalSort()
	var cerr *CycleError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, cerr.Path[0], cerr.Path[len(cerr.Path)-1])
	assert.Len(t, cerr.Path, 4)
}

func TestHasCycle(t *testing.T) {
	t.Parallel()
	acyclic := newGraph(t, []string{"a", "b"}, [][2]string{{"a", "b"}})
	ok, path := acyclic.HasCycle()
	assert.False(t, ok)
	assert.Nil(t, path)

	cyclic := newGraph(t, []string{"a", "b"}, [][2]string{{"a", "b"}, {"b", "a"}})
	ok, path = cyclic.HasCycle()
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b", "a"}, path)
}

func TestOrderBreakingCycles(t *testing.T) {
	t.Parallel()
	// x -> a, and a <-> b form a cycle that depends on x.
	g := newGraph(t,
		[]string{"a", "b", "x", "z"},
		[][2]string{{"x", "a"}, {"a", "b"}, {"b", "a"}, {"b", "z"}},
	)
	order := g.OrderBreakingCycles()
	assert.Equal(t, []string{"x", "a", "b", "z"}, order)
}

func TestComponents(t *testing.T) {
	t.Parallel()
	g := newGraph(t,
		[]string{"a", "b", "c", "d", "e"},
		[][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}, {"c", "d"}, {"d", "e"}, {"e", "d"}},
	)
	assert.Equal(t, [][]string{{"a", "b", "c"}, {"d", "e"}}, g.Components())

	cycles := g.Cycles(3)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a", "b", "c", "a"}, cycles[0])
	assert.Len(t, g.Cycles(2), 2)
}

func TestCycles_ReciprocalPairs(t *testing.T) {
	t.Parallel()
	chain := newGraph(t,
		[]string{"a", "b", "c"},
		[][2]string{{"a", "b"}, {"b", "a"}, {"b", "c"}, {"c", "b"}},
	)
	assert.Equal(t, [][]string{{"a", "b", "c"}}, chain.Components())
	assert.Empty(t, chain.Cycles(3), "pairs joined in a chain hold no cycle of three")
	assert.Equal(t, [][]string{{"a", "b", "a"}}, chain.Cycles(2))

	// The pair a <-> b shares b with the ring b -> c -> d -> b.
	mixed := newGraph(t,
		[]string{"a", "b", "c", "d"},
		[][2]string{{"a", "b"}, {"b", "a"}, {"b", "c"}, {"c", "d"}, {"d", "b"}},
	)
	assert.Equal(t, [][]string{{"b", "c", "d", "b"}}, mixed.Cycles(3))
}

func TestSubgraph(t *testing.T) {
	t.Parallel()
	g := newGraph(t,
		[]string{"a", "b", "c"},
		[][2]string{{"a", "b"}, {"b", "c"}},
	)
	sub := g.Subgraph([]string{"a", "b", "missing"})
	assert.Equal(t, []string{"a", "b"}, sub.IDs())
	assert.True(t, sub.HasEdge("a", "b"))
	assert.Empty(t, sub.Children("b"))
}
