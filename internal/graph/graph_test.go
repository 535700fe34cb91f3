package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddNode(t *testing.T) {
	g := New(0)
	assert.Equal(t, 0, g.Len())

	assert.Equal(t, 0, g.AddNode())
	assert.Equal(t, 1, g.AddNode())
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, 1, g.Node(1).Index())
	assert.Nil(t, g.Node(2))
	assert.Nil(t, g.Node(-1))
}

func TestAddEdge(t *testing.T) {
	t.Run("labels collapse onto one edge", func(t *testing.T) {
		g := New(2)
		require.NoError(t, g.AddEdge(0, 1, "b"))
		require.NoError(t, g.AddEdge(0, 1, "a"))
		require.NoError(t, g.AddEdge(0, 1, "a"))

		edges := g.Node(0).Edges()
		require.Len(t, edges, 1)
		assert.Equal(t, 1, edges[0].To)
		assert.Equal(t, []string{"a", "b"}, edges[0].Labels)
		assert.Equal(t, []string{"a", "b"}, g.Labels(0, 1))

		to, ok := g.Node(0).Downstream("b")
		require.True(t, ok)
		assert.Equal(t, 1, to)
	})

	t.Run("error cases", func(t *testing.T) {
		g := New(2)
		assert.ErrorContains(t, g.AddEdge(5, 0, "x"), "source node not found")
		assert.ErrorContains(t, g.AddEdge(0, 5, "x"), "destination node not found")
		assert.ErrorContains(t, g.AddEdge(1, 1, "x"), "self-referential edge")
	})
}

func TestRootsAndDegrees(t *testing.T) {
	g := New(4)
	require.NoError(t, g.AddEdge(0, 1, "a"))
	require.NoError(t, g.AddEdge(0, 2, "b"))
	require.NoError(t, g.AddEdge(1, 3, "c"))
	require.NoError(t, g.AddEdge(2, 3, "d"))

	assert.Equal(t, []int{0, 1, 1, 2}, g.InDegrees())
	assert.Equal(t, []int{0}, g.Roots())
	assert.Equal(t, []int{1, 2}, g.Node(0).Successors())
	assert.Equal(t, []int{1, 2}, g.Predecessors(3))
	assert.Len(t, g.Reachable(0), 4)
	assert.Len(t, g.Reachable(1), 2)
}

func TestDetectCycles(t *testing.T) {
	t.Run("acyclic", func(t *testing.T) {
		g := New(3)
		require.NoError(t, g.AddEdge(0, 1, "a"))
		require.NoError(t, g.AddEdge(1, 2, "b"))
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("cycle", func(t *testing.T) {
		g := New(3)
		require.NoError(t, g.AddEdge(0, 1, "a"))
		require.NoError(t, g.AddEdge(1, 2, "b"))
		require.NoError(t, g.AddEdge(2, 1, "c"))
		assert.ErrorContains(t, g.DetectCycles(), "cycle detected")
	})
}

func TestTopologicalOrder(t *testing.T) {
	g := New(5)
	require.NoError(t, g.AddEdge(3, 0, "a"))
	require.NoError(t, g.AddEdge(0, 1, "b"))
	require.NoError(t, g.AddEdge(3, 1, "c"))
	require.NoError(t, g.AddEdge(2, 4, "d"))

	assert.Equal(t, []int{2, 3, 0, 1, 4}, g.TopologicalOrder())

	t.Run("cycle members trail", func(t *testing.T) {
		g := New(3)
		require.NoError(t, g.AddEdge(1, 2, "a"))
		require.NoError(t, g.AddEdge(2, 1, "b"))

		assert.Equal(t, []int{0, 1, 2}, g.TopologicalOrder())
	})
}

func TestUndirected(t *testing.T) {
	g := New(3)
	require.NoError(t, g.AddEdge(0, 2, "a"))
	require.NoError(t, g.AddEdge(2, 1, "b"))

	adj := g.Undirected()
	assert.Equal(t, []int{2}, adj[0])
	assert.Equal(t, []int{2}, adj[1])
	assert.Equal(t, []int{0, 1}, adj[2])
}
