package node

import (
	"context"
	"testing"
	"time"

	"github.com/aescanero/periphery/internal/application/cluster"
	"github.com/aescanero/periphery/internal/application/orchestrator"
	"github.com/aescanero/periphery/internal/application/tasks"
	"github.com/aescanero/periphery/internal/application/workers"
	"github.com/aescanero/periphery/internal/partition"
	"github.com/aescanero/periphery/pkg/adapters/compute"
	"github.com/aescanero/periphery/pkg/adapters/compute/reference"
	events "github.com/aescanero/periphery/pkg/adapters/events/memory"
	"github.com/aescanero/periphery/pkg/adapters/metrics/noop"
	"github.com/aescanero/periphery/pkg/adapters/storage/badger"
	storage "github.com/aescanero/periphery/pkg/adapters/storage/memory"
	"github.com/aescanero/periphery/pkg/adapters/transport/memory"
	"github.com/aescanero/periphery/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const rootAddr = "root:8080"

type staticModel struct {
	model *domain.Model
}

func (s staticModel) Load(ctx context.Context, location string) (*domain.Model, error) {
	return s.model, nil
}

func chainModel() *domain.Model {
	return &domain.Model{
		Name: "chain",
		Operators: []domain.Operator{
			{Name: "op0", Type: reference.OpIdentity, Inputs: []string{"x"}, Outputs: []string{"h0"}},
			{Name: "op1", Type: reference.OpConcat, Inputs: []string{"h0", "x"}, Outputs: []string{"h1"}},
			{Name: "op2", Type: reference.OpIdentity, Inputs: []string{"h1"}, Outputs: []string{"h2"}},
			{Name: "op3", Type: reference.OpConcat, Inputs: []string{"h2", "b"}, Outputs: []string{"h3"}},
			{Name: "op4", Type: reference.OpIdentity, Inputs: []string{"h3"}, Outputs: []string{"h4"}},
			{Name: "op5", Type: reference.OpConcat, Inputs: []string{"h4", "h4"}, Outputs: []string{"y"}},
		},
		Constants: map[string]domain.Tensor{
			"b": {DType: "uint8", Shape: []int64{1}, Data: []byte("+")},
		},
	}
}

type testNode struct {
	coord    *Coordinator
	tasks    *tasks.Manager
	registry *cluster.Registry
}

func newTestNode(t *testing.T, network *memory.Network, addr string, numShards int) *testNode {
	t.Helper()
	logger := zap.NewNop()
	isRoot := addr == rootAddr
	transport := network.Transport()
	loader := compute.NewLoader(logger)

	cfg := tasks.Config{Self: addr, IsRoot: isRoot, QueueSize: 64}
	if !isRoot {
		cfg.Root = rootAddr
	}
	manager := tasks.NewManager(cfg, tasks.Deps{
		Loader:    loader,
		Transport: transport,
		Finals:    storage.NewFinalStore(),
		Events:    events.NewInMemoryEventBus(),
		Metrics:   noop.Collector{},
		Logger:    logger,
	})

	pool := workers.NewPool(2, manager.Queue(), manager, noop.Collector{}, logger, time.Hour)
	require.NoError(t, pool.Start())
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })

	var assignments *badger.AssignmentStore
	if isRoot {
		store, err := badger.Open(badger.Config{InMemory: true}, logger)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		assignments = store
	}

	validator := orchestrator.NewValidator()
	registry := cluster.NewRegistry(addr, noop.Collector{}, logger)
	deps := Deps{
		Registry:     registry,
		Tasks:        manager,
		Orchestrator: orchestrator.NewOrchestrator(validator, logger),
		Validator:    validator,
		Models:       staticModel{model: chainModel()},
		Compiler:     loader,
		Transport:    transport,
		Prober:       transport,
		Events:       events.NewInMemoryEventBus(),
		Logger:       logger,
	}
	if assignments != nil {
		deps.Assignments = assignments
	}
	coord := NewCoordinator(Config{
		Self:          addr,
		IsRoot:        isRoot,
		Root:          rootAddr,
		NumShards:     numShards,
		Partition:     partition.Options{Strategy: partition.StrategyContiguous},
		Format:        reference.Format,
		ProbeInterval: time.Millisecond,
	}, deps)

	network.Attach(addr, coord)
	return &testNode{coord: coord, tasks: manager, registry: registry}
}

func form(t *testing.T, nodes ...*testNode) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Peers register one after another so the roster order is fixed.
	for _, n := range nodes[1:] {
		require.NoError(t, n.coord.Form(ctx))
	}
	require.NoError(t, nodes[0].coord.Form(ctx))
}

func TestChainEndToEnd(t *testing.T) {
	network := memory.NewNetwork()
	root := newTestNode(t, network, rootAddr, 3)
	a := newTestNode(t, network, "a:8080", 3)
	b := newTestNode(t, network, "b:8080", 3)
	form(t, root, a, b)

	ctx := context.Background()
	info := root.coord.Info(ctx)
	require.NotNil(t, info.Assignment)
	assert.Equal(t, 0, info.Assignment.OwnShard)
	assert.Equal(t, map[int]string{1: "a:8080", 2: "b:8080"}, info.Assignment.ShardToPeer)
	assert.Equal(t, []string{"y"}, info.Terminal)
	assert.Equal(t, []string{"x"}, info.ExternalInputs)
	assert.Equal(t, cluster.StateClosed, info.State)

	inputs, outputs, ok := a.tasks.Shard()
	require.True(t, ok)
	assert.Equal(t, []string{"h1"}, inputs)
	assert.Equal(t, []string{"h3"}, outputs)

	require.NoError(t, root.coord.SubmitPartial(ctx, "req-1", domain.Bundle{
		"x": {DType: "uint8", Shape: []int64{1}, Data: []byte("a")},
	}))

	var final *domain.Result
	require.Eventually(t, func() bool {
		res, err := root.coord.GetFinal(ctx, "req-1")
		if err != nil || res.Status != domain.StatusSuccess {
			return false
		}
		final = res
		return true
	}, 10*time.Second, 5*time.Millisecond)

	assert.Equal(t, "aa+aa+", string(final.Outputs["y"].Data))
	assert.Equal(t, 1, network.Calls("submit_partial", "a:8080"))
	assert.Equal(t, 1, network.Calls("submit_partial", "b:8080"))
	assert.Equal(t, 1, network.Calls("deliver_final", rootAddr))

	t.Run("non-root forwards get_final", func(t *testing.T) {
		res, err := a.coord.GetFinal(ctx, "req-1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSuccess, res.Status)
		assert.Equal(t, final.Outputs, res.Outputs)

		_, err = b.coord.GetFinal(ctx, "unknown")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("leaf keeps its outputs", func(t *testing.T) {
		res, err := b.coord.GetOutput(ctx, "req-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"y"}, res.Outputs.Names())
	})

	t.Run("late registration is rejected", func(t *testing.T) {
		err := root.coord.Register(ctx, "late:8080")
		assert.ErrorIs(t, err, domain.ErrClusterClosed)
	})
}

func TestExtraNodeStaysUnused(t *testing.T) {
	network := memory.NewNetwork()
	root := newTestNode(t, network, rootAddr, 3)
	a := newTestNode(t, network, "a:8080", 3)
	b := newTestNode(t, network, "b:8080", 3)
	c := newTestNode(t, network, "c:8080", 3)
	form(t, root, a, b, c)

	info := root.coord.Info(context.Background())
	assert.Equal(t, []string{"a:8080", "b:8080", "c:8080"}, info.Roster)
	assert.Equal(t, map[string]int{"a:8080": 1, "b:8080": 2}, info.Assignment.PeerToShard)
	assert.Equal(t, 0, network.Calls("assign_shard", "c:8080"))

	_, _, ok := c.tasks.Shard()
	assert.False(t, ok)
}

func TestAssignmentIsPersisted(t *testing.T) {
	network := memory.NewNetwork()
	root := newTestNode(t, network, rootAddr, 2)
	a := newTestNode(t, network, "a:8080", 2)
	form(t, root, a)

	stored, err := root.coord.deps.Assignments.LoadAssignment(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[int]string{1: "a:8080"}, stored.ShardToPeer)
}

func TestSingleNodeCluster(t *testing.T) {
	network := memory.NewNetwork()
	root := newTestNode(t, network, rootAddr, 1)
	form(t, root)

	ctx := context.Background()
	require.NoError(t, root.coord.SubmitPartial(ctx, "req-1", domain.Bundle{
		"x": {DType: "uint8", Data: []byte("z")},
	}))
	require.Eventually(t, func() bool {
		res, err := root.coord.GetFinal(ctx, "req-1")
		return err == nil && res.Status == domain.StatusSuccess
	}, 10*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, network.Calls("deliver_final", rootAddr))
}

func TestNonRootRejectsRegistration(t *testing.T) {
	network := memory.NewNetwork()
	a := newTestNode(t, network, "a:8080", 2)
	assert.ErrorIs(t, a.coord.Register(context.Background(), "b:8080"), domain.ErrInvalidConfig)
}
