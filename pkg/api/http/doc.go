// Package http provides the HTTP REST API of a node.
//
// The HTTP server exposes endpoints for:
//   - Cluster formation (registration, shard and child assignment)
//   - Partial input submission and output queries
//   - Final output delivery and queries
//   - Health checks and Prometheus metrics
package http
