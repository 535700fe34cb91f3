// Package orchestrator implements shard placement for a forming cluster.
//
// The orchestrator:
//   - Validates the operator model, the shard graph and the frozen roster
//   - Finds the unique entry shard and keeps it on the coordinating node
//   - Walks the shard graph depth-first, binding shards to roster entries in
//     traversal order
//   - Builds the per-node plan (artifact, children, terminal outputs) used
//     to distribute the assignment
//
// The validator ensures models are well-formed before they are partitioned.
package orchestrator
