// Package topology infers the shard-level execution DAG from the input and
// output boundary sets of every shard.
package topology

import (
	"fmt"
	"sort"

	"github.com/aescanero/periphery/internal/graph"
	"github.com/aescanero/periphery/pkg/domain"
)

// Boundary is the input/output name set of one shard.
type Boundary struct {
	Inputs  []string
	Outputs []string
}

// ShardGraph is a DirectedGraph with one node per shard. Edge labels are the
// value names handed from one shard to the next.
type ShardGraph struct {
	*graph.DirectedGraph

	// ExternalInputs[i] are the inputs of shard i that no shard produces and
	// that are not constants. They must be supplied by the caller.
	ExternalInputs [][]string
	// Terminal[i] are the outputs of shard i that no shard consumes.
	Terminal [][]string
}

// Build wires shards together by matching produced names to consumed names.
// constants may be nil.
func Build(boundaries []Boundary, constants map[string]bool) (*ShardGraph, error) {
	g := graph.New(len(boundaries))

	producer := make(map[string]int)
	for i, b := range boundaries {
		for _, name := range b.Outputs {
			if prev, ok := producer[name]; ok && prev != i {
				return nil, fmt.Errorf("%w: value %q produced by shards %d and %d", domain.ErrTopology, name, prev, i)
			}
			producer[name] = i
		}
	}

	consumed := make(map[string]bool)
	sg := &ShardGraph{
		DirectedGraph:  g,
		ExternalInputs: make([][]string, len(boundaries)),
		Terminal:       make([][]string, len(boundaries)),
	}
	for i, b := range boundaries {
		for _, name := range b.Inputs {
			consumed[name] = true
			from, ok := producer[name]
			switch {
			case ok && from != i:
				if err := g.AddEdge(from, i, name); err != nil {
					return nil, fmt.Errorf("failed to link shard %d -> %d: %w", from, i, err)
				}
			case !ok && !constants[name]:
				sg.ExternalInputs[i] = append(sg.ExternalInputs[i], name)
			}
		}
		sort.Strings(sg.ExternalInputs[i])
	}

	for i, b := range boundaries {
		for _, name := range b.Outputs {
			if !consumed[name] {
				sg.Terminal[i] = append(sg.Terminal[i], name)
			}
		}
		sort.Strings(sg.Terminal[i])
	}

	return sg, nil
}

// Root returns the unique shard without incoming edges.
func (s *ShardGraph) Root() (int, error) {
	roots := s.Roots()
	switch len(roots) {
	case 0:
		return -1, fmt.Errorf("%w: every shard has an incoming edge", domain.ErrNoRoot)
	case 1:
		return roots[0], nil
	default:
		return -1, fmt.Errorf("%w: shards %v have no incoming edges", domain.ErrMultipleRoots, roots)
	}
}

// Validate checks that the shard graph is acyclic, has a unique root and
// that every shard is reachable from it.
func (s *ShardGraph) Validate() error {
	if s.Len() == 0 {
		return fmt.Errorf("%w: shard graph is empty", domain.ErrEmptyModel)
	}
	if err := s.DetectCycles(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCycle, err)
	}
	root, err := s.Root()
	if err != nil {
		return err
	}
	reachable := s.Reachable(root)
	for i := 0; i < s.Len(); i++ {
		if !reachable[i] {
			return fmt.Errorf("%w: shard %d is not reachable from root shard %d", domain.ErrDisconnected, i, root)
		}
	}
	return nil
}

// TerminalNames returns the sorted union of every shard's terminal outputs.
func (s *ShardGraph) TerminalNames() []string {
	var names []string
	for _, t := range s.Terminal {
		names = append(names, t...)
	}
	sort.Strings(names)
	return names
}

// ChildOutputs returns, for each downstream shard, the names shard i hands to
// it.
func (s *ShardGraph) ChildOutputs(i int) map[int][]string {
	out := make(map[int][]string)
	node := s.Node(i)
	if node == nil {
		return out
	}
	for _, e := range node.Edges() {
		out[e.To] = e.Labels
	}
	return out
}
