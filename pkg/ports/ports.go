package ports

import (
	"context"
	"time"

	"github.com/aescanero/periphery/pkg/domain"
)

// ComputeUnit is the opaque compute backend of one shard.
type ComputeUnit interface {
	Infer(ctx context.Context, inputs domain.Bundle) (domain.Bundle, error)
	Inputs() []string
	Outputs() []string
}

// ComputeLoader turns a shard artifact into a runnable compute unit.
type ComputeLoader interface {
	Load(ctx context.Context, artifact *domain.ShardArtifact) (ComputeUnit, error)
}

// ShardCompiler builds the compute blob of a shard for an artifact format.
type ShardCompiler interface {
	Compile(format string, steps []domain.Operator, constants domain.Bundle) ([]byte, error)
}

// ModelSource loads an operator graph from a location such as a file path.
type ModelSource interface {
	Load(ctx context.Context, location string) (*domain.Model, error)
}

// Prober checks that a peer is alive.
type Prober interface {
	Probe(ctx context.Context, addr string) error
}

// Transport carries the node-to-node message contracts. Every method
// addresses the node listening at addr.
type Transport interface {
	Prober

	Register(ctx context.Context, addr, self string) error
	AssignShard(ctx context.Context, addr string, artifact []byte) error
	AssignChildren(ctx context.Context, addr, child string, names []string) error
	SubmitPartial(ctx context.Context, addr, inferID string, tensors domain.Bundle) error
	GetOutput(ctx context.Context, addr, inferID string) (*domain.Result, error)
	DeliverFinal(ctx context.Context, addr, inferID string, tensors domain.Bundle) error
	GetFinal(ctx context.Context, addr, inferID string) (*domain.Result, error)
}

// FinalStore keeps final outputs collected at the root.
type FinalStore interface {
	// Merge adds tensors to the stored final bundle and returns the result.
	Merge(ctx context.Context, inferID string, tensors domain.Bundle) (domain.Bundle, error)
	// Get returns the stored bundle; ok is false when nothing is stored.
	Get(ctx context.Context, inferID string) (domain.Bundle, bool, error)
	Delete(ctx context.Context, inferID string) error
	// List returns the ids with a stored bundle, sorted.
	List(ctx context.Context) ([]string, error)
}

// AssignmentStore persists the root's assignment so it can be reloaded.
type AssignmentStore interface {
	SaveAssignment(ctx context.Context, a *domain.Assignment) error
	LoadAssignment(ctx context.Context) (*domain.Assignment, error)
	Close() error
}

// EventHandler handles a single event from the bus.
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes and delivers lifecycle events.
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

// MetricsCollector records runtime metrics.
type MetricsCollector interface {
	RecordPartialReceived()
	RecordCompute(status string, duration time.Duration)
	RecordForward(target string, status string)
	RecordFinalDelivered()
	RecordDegraded()
	SetPendingRequests(n int)
	SetRosterSize(n int)
	RecordWorkerPoolStatus(idle, busy, stopped int)
	SetQueueDepth(depth int)
}

// Node is the service side of Transport: the operations a node serves to
// its peers. Transport implementations deliver calls to a remote Node.
type Node interface {
	Register(ctx context.Context, addr string) error
	AssignShard(ctx context.Context, artifact []byte) error
	AssignChildren(ctx context.Context, child string, names []string) error
	SubmitPartial(ctx context.Context, inferID string, tensors domain.Bundle) error
	GetOutput(ctx context.Context, inferID string) (*domain.Result, error)
	DeliverFinal(ctx context.Context, inferID string, tensors domain.Bundle) error
	GetFinal(ctx context.Context, inferID string) (*domain.Result, error)
}
