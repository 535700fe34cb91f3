// Package graph provides an arena-indexed directed graph with labeled edges.
//
// Nodes live in one ordered slice and are identified by their insertion
// index; edges refer to nodes by index only. Each edge carries a set of
// labels (value names), so several values flowing between the same pair of
// nodes collapse into a single multi-label edge.
//
// The same type models operator-level graphs (one node per operator) and
// shard-level graphs (one node per shard).
package graph
