package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/periphery/internal/application/cluster"
	"github.com/aescanero/periphery/internal/application/orchestrator"
	"github.com/aescanero/periphery/internal/application/tasks"
	"github.com/aescanero/periphery/internal/partition"
	"github.com/aescanero/periphery/internal/topology"
	"github.com/aescanero/periphery/pkg/domain"
	"github.com/aescanero/periphery/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config configures a Coordinator.
type Config struct {
	Self   string
	IsRoot bool
	Root   string

	// Root only.
	ManifestPath string
	NumShards    int
	Partition    partition.Options
	Format       string

	ProbeInterval time.Duration
}

// Deps are the collaborators of a Coordinator. Models, Compiler and
// Assignments are only used on the root; Assignments may be nil.
type Deps struct {
	Registry     *cluster.Registry
	Tasks        *tasks.Manager
	Orchestrator *orchestrator.Orchestrator
	Validator    *orchestrator.Validator
	Models       ports.ModelSource
	Compiler     ports.ShardCompiler
	Transport    ports.Transport
	Prober       ports.Prober
	Assignments  ports.AssignmentStore
	Events       ports.EventBus
	Logger       *zap.Logger
}

// Coordinator implements ports.Node for the local process.
type Coordinator struct {
	cfg  Config
	deps Deps

	mu   sync.RWMutex
	plan *orchestrator.Plan
}

// ClusterInfo summarizes the cluster as seen by this node.
type ClusterInfo struct {
	Self           string             `json:"self"`
	IsRoot         bool               `json:"is_root"`
	Root           string             `json:"root,omitempty"`
	State          cluster.State      `json:"state"`
	Roster         []string           `json:"roster"`
	Assignment     *domain.Assignment `json:"assignment,omitempty"`
	Terminal       []string           `json:"terminal,omitempty"`
	ExternalInputs []string           `json:"external_inputs,omitempty"`
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg Config, deps Deps) *Coordinator {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = time.Second
	}
	return &Coordinator{cfg: cfg, deps: deps}
}

// Form brings the node into the cluster. On the root it blocks until the
// plan has been distributed; elsewhere until the root accepted the
// registration.
func (c *Coordinator) Form(ctx context.Context) error {
	if !c.cfg.IsRoot {
		return c.deps.Registry.WaitForRoot(ctx, c.cfg.Root, c.deps.Prober, c.deps.Transport, c.cfg.ProbeInterval)
	}

	model, err := c.deps.Models.Load(ctx, c.cfg.ManifestPath)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	if err := c.deps.Validator.ValidateModel(model); err != nil {
		return fmt.Errorf("invalid model: %w", err)
	}

	sg, artifacts, err := c.prepare(model)
	if err != nil {
		return err
	}

	if err := c.deps.Registry.WaitForQuorum(ctx, sg.Len()); err != nil {
		return err
	}
	roster := c.deps.Registry.Freeze()

	plan, err := c.deps.Orchestrator.Plan(sg, artifacts, roster, c.cfg.Self)
	if err != nil {
		return fmt.Errorf("failed to plan assignment: %w", err)
	}

	if c.deps.Assignments != nil {
		if err := c.deps.Assignments.SaveAssignment(ctx, plan.Assignment); err != nil {
			c.deps.Logger.Warn("failed to persist assignment", zap.Error(err))
		}
	}

	c.deps.Tasks.SetFinalNames(plan.Terminal)
	if err := c.distribute(ctx, plan); err != nil {
		return err
	}

	c.mu.Lock()
	c.plan = plan
	c.mu.Unlock()

	c.deps.Logger.Info("cluster formed",
		zap.Int("shards", len(plan.Shards)),
		zap.Strings("peers", plan.Assignment.Peers()),
		zap.Strings("external_inputs", plan.ExternalInputs),
		zap.Strings("terminal", plan.Terminal))
	return nil
}

// prepare partitions the model and builds one artifact per shard.
func (c *Coordinator) prepare(model *domain.Model) (*topology.ShardGraph, []*domain.ShardArtifact, error) {
	parts, err := partition.Partition(model.Operators, c.cfg.NumShards, c.cfg.Partition)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to partition model: %w", err)
	}
	shards := partition.BuildShards(model, parts)

	boundaries := make([]topology.Boundary, len(shards))
	artifacts := make([]*domain.ShardArtifact, len(shards))
	for i, s := range shards {
		boundaries[i] = topology.Boundary{Inputs: s.Inputs, Outputs: s.Outputs}

		constants := make(domain.Bundle, len(s.Constants))
		for _, name := range s.Constants {
			if t, ok := model.Constants[name]; ok {
				constants[name] = t
			}
		}
		blob, err := c.deps.Compiler.Compile(c.cfg.Format, s.Steps, constants)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to compile shard %d: %w", i, err)
		}
		artifacts[i] = &domain.ShardArtifact{
			ShardID: s.ID,
			Format:  c.cfg.Format,
			Inputs:  s.Inputs,
			Outputs: s.Outputs,
			Blob:    blob,
		}
	}

	sg, err := topology.Build(boundaries, model.ConstantSet())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build shard graph: %w", err)
	}

	c.deps.Logger.Info("model partitioned",
		zap.String("model", model.Name),
		zap.String("strategy", string(c.cfg.Partition.Strategy)),
		zap.Int("operators", len(model.Operators)),
		zap.Int("shards", len(shards)))
	return sg, artifacts, nil
}

// distribute ships every shard artifact, children included, the root's own
// locally. The first failure cancels the remaining deliveries.
func (c *Coordinator) distribute(ctx context.Context, plan *orchestrator.Plan) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, sp := range plan.Shards {
		g.Go(func() error {
			data, err := domain.EncodeArtifact(sp.Artifact)
			if err != nil {
				return err
			}

			if sp.Address == c.cfg.Self {
				if err := c.deps.Tasks.AssignShard(ctx, data); err != nil {
					return fmt.Errorf("failed to install own shard %d: %w", sp.ShardID, err)
				}
				return nil
			}

			if err := c.deps.Transport.AssignShard(ctx, sp.Address, data); err != nil {
				return fmt.Errorf("failed to assign shard %d to %s: %w", sp.ShardID, sp.Address, err)
			}
			c.deps.Logger.Debug("shard distributed",
				zap.Int("shard_id", sp.ShardID),
				zap.String("addr", sp.Address),
				zap.Int("children", len(sp.Children)))
			return nil
		})
	}

	return g.Wait()
}

// Info returns the cluster as seen by this node. On the root the last
// persisted assignment is reported until a new plan exists.
func (c *Coordinator) Info(ctx context.Context) ClusterInfo {
	info := ClusterInfo{
		Self:   c.cfg.Self,
		IsRoot: c.cfg.IsRoot,
		Root:   c.cfg.Root,
		State:  c.deps.Registry.State(),
		Roster: c.deps.Registry.Roster(),
	}

	c.mu.RLock()
	plan := c.plan
	c.mu.RUnlock()

	switch {
	case plan != nil:
		info.Assignment = plan.Assignment
		info.Terminal = plan.Terminal
		info.ExternalInputs = plan.ExternalInputs
	case c.deps.Assignments != nil:
		a, err := c.deps.Assignments.LoadAssignment(ctx)
		if err == nil {
			info.Assignment = a
		} else if !errors.Is(err, domain.ErrNotFound) {
			c.deps.Logger.Warn("failed to load assignment", zap.Error(err))
		}
	}
	return info
}

// Register adds a node to the roster (ports.Node interface)
func (c *Coordinator) Register(ctx context.Context, addr string) error {
	if !c.cfg.IsRoot {
		return fmt.Errorf("%w: %s is not the root", domain.ErrInvalidConfig, c.cfg.Self)
	}
	if err := c.deps.Registry.Register(addr); err != nil {
		return err
	}
	c.publish(ctx, domain.EventTypeNodeRegistered, map[string]interface{}{"addr": addr})
	return nil
}

// AssignShard installs the own shard (ports.Node interface)
func (c *Coordinator) AssignShard(ctx context.Context, artifact []byte) error {
	return c.deps.Tasks.AssignShard(ctx, artifact)
}

// AssignChildren records a child of the own shard (ports.Node interface)
func (c *Coordinator) AssignChildren(ctx context.Context, child string, names []string) error {
	return c.deps.Tasks.AssignChildren(ctx, child, names)
}

// SubmitPartial accepts partial inputs of a request (ports.Node interface)
func (c *Coordinator) SubmitPartial(ctx context.Context, inferID string, tensors domain.Bundle) error {
	return c.deps.Tasks.SubmitPartial(ctx, inferID, tensors)
}

// GetOutput returns the local outputs of a request (ports.Node interface)
func (c *Coordinator) GetOutput(ctx context.Context, inferID string) (*domain.Result, error) {
	return c.deps.Tasks.GetOutput(ctx, inferID)
}

// DeliverFinal stores terminal outputs (ports.Node interface)
func (c *Coordinator) DeliverFinal(ctx context.Context, inferID string, tensors domain.Bundle) error {
	return c.deps.Tasks.DeliverFinal(ctx, inferID, tensors)
}

// GetFinal returns the final outputs of a request (ports.Node interface)
func (c *Coordinator) GetFinal(ctx context.Context, inferID string) (*domain.Result, error) {
	return c.deps.Tasks.GetFinal(ctx, inferID)
}

func (c *Coordinator) publish(ctx context.Context, eventType domain.EventType, data map[string]interface{}) {
	if c.deps.Events == nil {
		return
	}
	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Node:      c.cfg.Self,
		Timestamp: time.Now(),
		Data:      data,
	}
	if err := c.deps.Events.Publish(ctx, domain.TopicCluster, event); err != nil {
		c.deps.Logger.Warn("failed to publish event", zap.String("type", string(eventType)), zap.Error(err))
	}
}
