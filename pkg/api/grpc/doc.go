// Package grpc exposes the liveness probe of a node as the standard
// grpc.health.v1 service and provides the matching client.
//
// A node that is still waiting for its root can probe the root over gRPC
// instead of HTTP by setting ROOT_GRPC_ADDR.
package grpc
