// Package partition splits an ordered operator graph into N shards.
//
// Two strategies are available:
//   - contiguous: N near-equal ranges of the operator sequence, the remainder
//     going to the last shard
//   - structural: balanced partitioning of the operator affinity graph that
//     keeps producer/consumer pairs together, with operator 0 pinned to
//     shard 0
//
// BuildShards then derives each shard's boundary: the values it consumes
// from outside, the values it hands on, and the constants it needs.
package partition
