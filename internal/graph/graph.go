package graph

import (
	"fmt"
	"sort"
)

// Edge is a directed, multi-label edge to another node of the same graph.
type Edge struct {
	To     int
	Labels []string
}

// Node is a graph node. Its index never changes after insertion.
type Node struct {
	index   int
	edges   []Edge
	byTo    map[int]int    // target -> position in edges
	valueTo map[string]int // label -> target
}

// Index returns the stable index of the node.
func (n *Node) Index() int { return n.index }

// Edges returns the outgoing edges ordered by target index.
func (n *Node) Edges() []Edge {
	out := make([]Edge, len(n.edges))
	copy(out, n.edges)
	sort.Slice(out, func(i, j int) bool { return out[i].To < out[j].To })
	return out
}

// Successors returns the distinct downstream node indices in ascending order.
func (n *Node) Successors() []int {
	out := make([]int, 0, len(n.edges))
	for _, e := range n.edges {
		out = append(out, e.To)
	}
	sort.Ints(out)
	return out
}

// Downstream returns the node a value name flows to, if any.
func (n *Node) Downstream(label string) (int, bool) {
	to, ok := n.valueTo[label]
	return to, ok
}

// DirectedGraph is an ordered collection of nodes. Indices are dense 0..n-1.
type DirectedGraph struct {
	nodes []*Node
}

// New creates a graph with n unconnected nodes.
func New(n int) *DirectedGraph {
	g := &DirectedGraph{}
	for i := 0; i < n; i++ {
		g.AddNode()
	}
	return g
}

// AddNode appends a node and returns its index.
func (g *DirectedGraph) AddNode() int {
	idx := len(g.nodes)
	g.nodes = append(g.nodes, &Node{
		index:   idx,
		byTo:    make(map[int]int),
		valueTo: make(map[string]int),
	})
	return idx
}

// Len returns the number of nodes.
func (g *DirectedGraph) Len() int { return len(g.nodes) }

// Node returns the node at index i.
func (g *DirectedGraph) Node(i int) *Node {
	if i < 0 || i >= len(g.nodes) {
		return nil
	}
	return g.nodes[i]
}

// AddEdge records that label flows from node `from` to node `to`. Labels
// between the same pair accumulate on one edge.
func (g *DirectedGraph) AddEdge(from, to int, label string) error {
	if from == to {
		return fmt.Errorf("self-referential edge not allowed: %d -> %d", from, to)
	}
	src := g.Node(from)
	if src == nil {
		return fmt.Errorf("source node not found: %d", from)
	}
	if g.Node(to) == nil {
		return fmt.Errorf("destination node not found: %d", to)
	}

	pos, ok := src.byTo[to]
	if !ok {
		pos = len(src.edges)
		src.edges = append(src.edges, Edge{To: to})
		src.byTo[to] = pos
	}
	edge := &src.edges[pos]
	i := sort.SearchStrings(edge.Labels, label)
	if i == len(edge.Labels) || edge.Labels[i] != label {
		edge.Labels = append(edge.Labels, "")
		copy(edge.Labels[i+1:], edge.Labels[i:])
		edge.Labels[i] = label
	}
	src.valueTo[label] = to
	return nil
}

// Labels returns the labels on the edge from -> to.
func (g *DirectedGraph) Labels(from, to int) []string {
	src := g.Node(from)
	if src == nil {
		return nil
	}
	pos, ok := src.byTo[to]
	if !ok {
		return nil
	}
	out := make([]string, len(src.edges[pos].Labels))
	copy(out, src.edges[pos].Labels)
	return out
}

// InDegrees returns the number of incoming edges of every node.
func (g *DirectedGraph) InDegrees() []int {
	deg := make([]int, len(g.nodes))
	for _, n := range g.nodes {
		for _, e := range n.edges {
			deg[e.To]++
		}
	}
	return deg
}

// Roots returns the indices of nodes without incoming edges, ascending.
func (g *DirectedGraph) Roots() []int {
	var roots []int
	for i, d := range g.InDegrees() {
		if d == 0 {
			roots = append(roots, i)
		}
	}
	return roots
}

// Predecessors returns the nodes with an edge into i, ascending.
func (g *DirectedGraph) Predecessors(i int) []int {
	var out []int
	for _, n := range g.nodes {
		if _, ok := n.byTo[i]; ok {
			out = append(out, n.index)
		}
	}
	return out
}

// Reachable returns the set of nodes reachable from start, start included.
func (g *DirectedGraph) Reachable(start int) map[int]bool {
	seen := make(map[int]bool)
	if g.Node(start) == nil {
		return seen
	}
	stack := []int{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		for _, e := range g.nodes[cur].edges {
			if !seen[e.To] {
				stack = append(stack, e.To)
			}
		}
	}
	return seen
}

// DetectCycles returns an error naming a node on a cycle, if any.
func (g *DirectedGraph) DetectCycles() error {
	const (
		unvisited = iota
		inProgress
		done
	)
	state := make([]int, len(g.nodes))

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case inProgress:
			return fmt.Errorf("cycle detected involving node %d", i)
		}
		state[i] = inProgress
		for _, next := range g.nodes[i].Successors() {
			if err := visit(next); err != nil {
				return err
			}
		}
		state[i] = done
		return nil
	}

	for i := range g.nodes {
		if state[i] == unvisited {
			if err := visit(i); err != nil {
				return err
			}
		}
	}
	return nil
}

// TopologicalOrder returns every node index such that edges point forward.
// Among ready nodes the smallest index comes first. Nodes on a cycle are
// appended in index order.
func (g *DirectedGraph) TopologicalOrder() []int {
	deg := g.InDegrees()
	var ready []int
	for i, d := range deg {
		if d == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, len(g.nodes))
	placed := make([]bool, len(g.nodes))
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		order = append(order, cur)
		placed[cur] = true
		for _, next := range g.nodes[cur].Successors() {
			deg[next]--
			if deg[next] == 0 {
				i := sort.SearchInts(ready, next)
				ready = append(ready, 0)
				copy(ready[i+1:], ready[i:])
				ready[i] = next
			}
		}
	}

	for i, ok := range placed {
		if !ok {
			order = append(order, i)
		}
	}
	return order
}

// Undirected returns, for every node, the ascending list of nodes it shares
// an edge with in either direction.
func (g *DirectedGraph) Undirected() [][]int {
	sets := make([]map[int]bool, len(g.nodes))
	for i := range sets {
		sets[i] = make(map[int]bool)
	}
	for _, n := range g.nodes {
		for _, e := range n.edges {
			sets[n.index][e.To] = true
			sets[e.To][n.index] = true
		}
	}
	adj := make([][]int, len(g.nodes))
	for i, set := range sets {
		for j := range set {
			adj[i] = append(adj[i], j)
		}
		sort.Ints(adj[i])
	}
	return adj
}
