package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aescanero/periphery/pkg/domain"
)

func TestBuildLinear(t *testing.T) {
	sg, err := Build([]Boundary{
		{Inputs: []string{"x", "w0"}, Outputs: []string{"b"}},
		{Inputs: []string{"b"}, Outputs: []string{"d"}},
		{Inputs: []string{"d"}, Outputs: []string{"y"}},
	}, map[string]bool{"w0": true})
	require.NoError(t, err)
	require.NoError(t, sg.Validate())

	root, err := sg.Root()
	require.NoError(t, err)
	assert.Equal(t, 0, root)

	assert.Equal(t, []string{"b"}, sg.Labels(0, 1))
	assert.Equal(t, []string{"d"}, sg.Labels(1, 2))
	assert.Empty(t, sg.Labels(0, 2))

	assert.Equal(t, []string{"x"}, sg.ExternalInputs[0])
	assert.Empty(t, sg.ExternalInputs[1])
	assert.Equal(t, []string{"y"}, sg.TerminalNames())
}

func TestBuildCollapsesSharedNames(t *testing.T) {
	sg, err := Build([]Boundary{
		{Inputs: []string{"x"}, Outputs: []string{"p", "q", "r"}},
		{Inputs: []string{"p", "q"}, Outputs: []string{"y"}},
		{Inputs: []string{"r", "y"}, Outputs: []string{"z"}},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, sg.Validate())

	edges := sg.Node(0).Edges()
	require.Len(t, edges, 2)
	assert.Equal(t, []string{"p", "q"}, edges[0].Labels)
	assert.Equal(t, []string{"r"}, edges[1].Labels)
	assert.Equal(t, map[int][]string{1: {"p", "q"}, 2: {"r"}}, sg.ChildOutputs(0))
	assert.Equal(t, []string{"z"}, sg.TerminalNames())
}

func TestBuildErrors(t *testing.T) {
	t.Run("value produced twice", func(t *testing.T) {
		_, err := Build([]Boundary{
			{Inputs: []string{"x"}, Outputs: []string{"a"}},
			{Inputs: []string{"x"}, Outputs: []string{"a"}},
		}, nil)
		assert.ErrorIs(t, err, domain.ErrTopology)
	})

	t.Run("multiple roots", func(t *testing.T) {
		sg, err := Build([]Boundary{
			{Inputs: []string{"x"}, Outputs: []string{"a"}},
			{Inputs: []string{"y"}, Outputs: []string{"b"}},
		}, nil)
		require.NoError(t, err)
		assert.ErrorIs(t, sg.Validate(), domain.ErrMultipleRoots)
		assert.True(t, domain.IsTopologyError(sg.Validate()))
	})

	t.Run("no root", func(t *testing.T) {
		sg, err := Build([]Boundary{
			{Inputs: []string{"b"}, Outputs: []string{"a"}},
			{Inputs: []string{"a"}, Outputs: []string{"b"}},
		}, nil)
		require.NoError(t, err)
		_, err = sg.Root()
		assert.ErrorIs(t, err, domain.ErrNoRoot)
		assert.ErrorIs(t, sg.Validate(), domain.ErrCycle)
	})
}
