package orchestrator

import (
	"fmt"
	"sort"

	"github.com/aescanero/periphery/internal/topology"
	"github.com/aescanero/periphery/pkg/domain"
	"go.uber.org/zap"
)

// Orchestrator assigns the shards of a shard graph to cluster nodes
type Orchestrator struct {
	validator *Validator
	logger    *zap.Logger
}

// ShardPlan is everything one node needs to run its shard
type ShardPlan struct {
	ShardID  int
	Address  string
	Artifact *domain.ShardArtifact
	// Children maps a child address to the output names forwarded to it
	Children map[string][]string
}

// Plan is the full distribution plan computed by the root
type Plan struct {
	Assignment *domain.Assignment
	// Shards is indexed by shard id
	Shards []ShardPlan
	// Terminal is the designated set of final output names
	Terminal []string
	// ExternalInputs are the names callers submit to the root
	ExternalInputs []string
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(validator *Validator, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		validator: validator,
		logger:    logger,
	}
}

// Assign binds the entry shard to the local node and every other shard to
// the next roster entry in depth-first order. Roster entries beyond the
// shard count stay unused.
func (o *Orchestrator) Assign(sg *topology.ShardGraph, roster []string) (*domain.Assignment, error) {
	if sg == nil || sg.Len() == 0 {
		return nil, fmt.Errorf("%w: no shards to assign", domain.ErrEmptyModel)
	}
	if err := o.validator.ValidateRoster(roster); err != nil {
		return nil, err
	}

	root, err := sg.Root()
	if err != nil {
		return nil, err
	}

	if sg.Len() > len(roster)+1 {
		return nil, fmt.Errorf("%w: %d shards but only %d nodes (roster %d + root)",
			domain.ErrInsufficientNodes, sg.Len(), len(roster)+1, len(roster))
	}

	assignment := &domain.Assignment{
		OwnShard:    root,
		PeerToShard: make(map[string]int),
		ShardToPeer: make(map[int]string),
		Roster:      append([]string(nil), roster...),
	}

	visited := make(map[int]bool, sg.Len())
	next := 0
	stack := []int{root}
	for len(stack) > 0 {
		shard := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[shard] {
			continue
		}
		visited[shard] = true

		if shard != root {
			peer := roster[next]
			next++
			assignment.PeerToShard[peer] = shard
			assignment.ShardToPeer[shard] = peer
		}

		// Push in descending order so the lowest index is explored first.
		successors := sg.Node(shard).Successors()
		for i := len(successors) - 1; i >= 0; i-- {
			if !visited[successors[i]] {
				stack = append(stack, successors[i])
			}
		}
	}

	if len(visited) != sg.Len() {
		for i := 0; i < sg.Len(); i++ {
			if !visited[i] {
				return nil, fmt.Errorf("%w: shard %d is not reachable from root shard %d", domain.ErrDisconnected, i, root)
			}
		}
	}

	o.logger.Info("shards assigned",
		zap.Int("own_shard", root),
		zap.Int("shards", sg.Len()),
		zap.Int("roster", len(roster)),
		zap.Int("unused_nodes", len(roster)-next))

	return assignment, nil
}

// Plan validates the shard graph, assigns it and derives, for every shard,
// the artifact to ship and the outputs each child expects. artifacts is
// indexed by shard id; self is the address of the local node.
func (o *Orchestrator) Plan(sg *topology.ShardGraph, artifacts []*domain.ShardArtifact, roster []string, self string) (*Plan, error) {
	if err := o.validator.ValidateShardGraph(sg); err != nil {
		return nil, fmt.Errorf("invalid shard graph: %w", err)
	}
	if len(artifacts) != sg.Len() {
		return nil, fmt.Errorf("%w: %d artifacts for %d shards", domain.ErrInvalidConfig, len(artifacts), sg.Len())
	}

	assignment, err := o.Assign(sg, roster)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Assignment:     assignment,
		Shards:         make([]ShardPlan, sg.Len()),
		Terminal:       sg.TerminalNames(),
		ExternalInputs: mergeNames(nil, sg.ExternalInputs[assignment.OwnShard]),
	}

	for id := 0; id < sg.Len(); id++ {
		addr, _ := assignment.AddressOf(id, self)

		artifact := *artifacts[id]
		artifact.ShardID = id
		artifact.Terminal = append([]string(nil), sg.Terminal[id]...)

		children := make(map[string][]string)
		for child, names := range sg.ChildOutputs(id) {
			childAddr, _ := assignment.AddressOf(child, self)
			children[childAddr] = mergeNames(children[childAddr], names)
		}

		plan.Shards[id] = ShardPlan{
			ShardID:  id,
			Address:  addr,
			Artifact: &artifact,
			Children: children,
		}
	}

	// Callers submit every external input to the root. Inputs needed by a
	// deeper shard are passed through by the root alongside its outputs.
	own := &plan.Shards[assignment.OwnShard]
	for id, names := range sg.ExternalInputs {
		if id == assignment.OwnShard || len(names) == 0 {
			continue
		}
		addr := plan.Shards[id].Address
		own.Children[addr] = mergeNames(own.Children[addr], names)
		plan.ExternalInputs = mergeNames(plan.ExternalInputs, names)
	}

	// Children travel inside the artifact so a node installs its unit and
	// its fanout targets in one step.
	for i := range plan.Shards {
		if len(plan.Shards[i].Children) > 0 {
			plan.Shards[i].Artifact.Children = plan.Shards[i].Children
		}
	}

	return plan, nil
}

func mergeNames(a, b []string) []string {
	set := make(map[string]bool, len(a)+len(b))
	for _, n := range a {
		set[n] = true
	}
	for _, n := range b {
		set[n] = true
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
