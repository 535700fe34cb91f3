// Package ports defines the interfaces between the periphery core and its
// adapters: compute backends, the node-to-node transport, stores, the event
// bus and metrics.
package ports
