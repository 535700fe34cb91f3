// Package domain holds the types shared by every periphery component.
//
// It covers:
//   - Tensors and named tensor bundles exchanged between nodes
//   - Operator graphs as loaded from a manifest
//   - Shard artifacts routed to nodes at assignment time
//   - Request status and lifecycle events
//   - The error taxonomy used across packages
package domain
