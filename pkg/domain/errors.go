package domain

import "errors"

// Configuration errors. Fatal at setup.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrEmptyModel    = errors.New("empty model")
)

// Topology errors. The graph has to be re-partitioned.
var (
	ErrTopology      = errors.New("topology error")
	ErrNoRoot        = errors.New("no root shard")
	ErrMultipleRoots = errors.New("multiple root shards")
	ErrDisconnected  = errors.New("disconnected shard")
	ErrCycle         = errors.New("cycle in shard graph")
)

// Cluster errors. The cluster has to re-form.
var (
	ErrInsufficientNodes     = errors.New("insufficient nodes")
	ErrClusterClosed         = errors.New("cluster closed")
	ErrDuplicateRegistration = errors.New("duplicate registration")
	ErrMissingAddress        = errors.New("missing address")
)

// Runtime errors.
var (
	ErrTransport       = errors.New("transport error")
	ErrNotFound        = errors.New("not found")
	ErrInvalidArtifact = errors.New("invalid artifact")
	ErrInternal        = errors.New("internal error")
	ErrNotAssigned     = errors.New("no shard assigned")
)

// IsTopologyError reports whether err belongs to the topology class.
func IsTopologyError(err error) bool {
	return errors.Is(err, ErrTopology) ||
		errors.Is(err, ErrNoRoot) ||
		errors.Is(err, ErrMultipleRoots) ||
		errors.Is(err, ErrDisconnected) ||
		errors.Is(err, ErrCycle)
}

// IsClusterError reports whether err belongs to the cluster class.
func IsClusterError(err error) bool {
	return errors.Is(err, ErrInsufficientNodes) ||
		errors.Is(err, ErrClusterClosed) ||
		errors.Is(err, ErrDuplicateRegistration) ||
		errors.Is(err, ErrMissingAddress)
}
