package partition

import (
	"fmt"
	"math"

	"github.com/aescanero/periphery/internal/graph"
	"github.com/aescanero/periphery/pkg/domain"
)

const maxRefinePasses = 16

// OperatorGraph links every producer operator to its consumers, labeled by
// the value name. An operator reading its own output gets no edge.
func OperatorGraph(ops []domain.Operator) *graph.DirectedGraph {
	g := graph.New(len(ops))
	producer := make(map[string]int)
	for i, op := range ops {
		for _, name := range op.Outputs {
			producer[name] = i
		}
	}
	for i, op := range ops {
		for _, name := range op.Inputs {
			from, ok := producer[name]
			if !ok || from == i {
				continue
			}
			if err := g.AddEdge(from, i, name); err != nil {
				panic(fmt.Sprintf("partition: operator graph: %v", err))
			}
		}
	}
	return g
}

// Structural partitions the operator graph into n balanced groups with few
// cross-group edges. Groups start as near-equal runs of a topological order
// and are refined by moving single operators to a neighbouring group while
// that cuts fewer edges. Labels never decrease along an edge, so the groups
// always form an acyclic shard graph.
func Structural(ops []domain.Operator, n int, tolerance float64) [][]int {
	total := len(ops)
	if n == 1 {
		return Contiguous(total, 1)
	}

	g := OperatorGraph(ops)
	capacity := int(math.Ceil(float64(total) / float64(n) * (1 + tolerance)))
	if even := (total + n - 1) / n; capacity < even {
		capacity = even
	}

	labels := seed(g.TopologicalOrder(), n)
	refine(g, labels, n, capacity)
	anchor(labels, 0)

	parts := make([][]int, n)
	for i, l := range labels {
		parts[l] = append(parts[l], i)
	}
	return parts
}

// seed labels the k-th operator of order with the run it falls into; runs
// differ in size by at most one.
func seed(order []int, n int) []int {
	total := len(order)
	labels := make([]int, total)
	for pos, op := range order {
		labels[op] = pos * n / total
	}
	return labels
}

// refine greedily moves single operators to the adjacent group that removes
// the most cut edges. A move to group `to` is only taken when every producer
// feeding the operator has a label <= to and every consumer a label >= to.
func refine(g *graph.DirectedGraph, labels []int, n, capacity int) {
	adj := g.Undirected()
	preds := make([][]int, len(labels))
	for i := range labels {
		for _, next := range g.Node(i).Successors() {
			preds[next] = append(preds[next], i)
		}
	}

	sizes := make([]int, n)
	for _, l := range labels {
		sizes[l]++
	}

	for pass := 0; pass < maxRefinePasses; pass++ {
		moved := false
		for i := range labels {
			from := labels[i]
			if sizes[from] <= 1 {
				continue
			}

			lo, hi := 0, n-1
			for _, p := range preds[i] {
				lo = max(lo, labels[p])
			}
			for _, s := range g.Node(i).Successors() {
				hi = min(hi, labels[s])
			}

			counts := make(map[int]int)
			for _, j := range adj[i] {
				counts[labels[j]]++
			}
			best, bestGain := -1, 0
			for to := lo; to <= hi; to++ {
				if to == from || counts[to] == 0 || sizes[to] >= capacity {
					continue
				}
				if gain := counts[to] - counts[from]; gain > bestGain {
					best, bestGain = to, gain
				}
			}
			if best == -1 {
				continue
			}
			labels[i] = best
			sizes[from]--
			sizes[best]++
			moved = true
		}
		if !moved {
			return
		}
	}
}

// anchor swaps group labels so that operator i lands in group 0.
func anchor(labels []int, i int) {
	swap := labels[i]
	if swap == 0 {
		return
	}
	for j, l := range labels {
		switch l {
		case 0:
			labels[j] = swap
		case swap:
			labels[j] = 0
		}
	}
}
