// Package transport provides implementations of the node-to-node contracts.
//
// Implementations:
//   - http: JSON over HTTP against the gin API of a remote node
//   - memory: in-process network of nodes for single-process runs and tests
package transport
