// Package node wires the cluster registry, the orchestrator and the task
// manager of one process into a single service.
//
// The root loads the operator graph, partitions it, waits for the cluster
// to reach quorum and distributes shards and child output maps. Other nodes
// wait for the root to answer and register with it; everything after that
// arrives through the assign_shard and assign_children contracts.
package node
