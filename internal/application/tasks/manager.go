package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aescanero/periphery/pkg/domain"
	"github.com/aescanero/periphery/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config configures a Manager.
type Config struct {
	// Self is the address of the local node.
	Self string
	// Root is the address of the root node. Empty on the root itself.
	Root string
	// IsRoot marks the node that collects final outputs.
	IsRoot bool
	// QueueSize bounds the task queue feeding the worker pool.
	QueueSize int
	// Retry bounds transport retries during fanout.
	Retry RetryPolicy
}

// Deps are the collaborators of a Manager. Finals is only used on the root.
type Deps struct {
	Loader    ports.ComputeLoader
	Transport ports.Transport
	Finals    ports.FinalStore
	Events    ports.EventBus
	Metrics   ports.MetricsCollector
	Logger    *zap.Logger
}

type request struct {
	tensors   domain.Bundle
	createdAt time.Time
}

// Manager owns the request state of one node.
type Manager struct {
	self        string
	root        string
	isRoot      bool
	retryPolicy RetryPolicy

	loader    ports.ComputeLoader
	transport ports.Transport
	finals    ports.FinalStore
	events    ports.EventBus
	metrics   ports.MetricsCollector
	logger    *zap.Logger

	queue chan string

	// mu guards the assignment and the pending set.
	mu        sync.Mutex
	unit      ports.ComputeUnit
	artifact  *domain.ShardArtifact
	children  map[string][]string
	required  []string
	terminal  []string
	pending   map[string]*request
	started   map[string]bool
	finalKeys []string

	// resMu guards computed results.
	resMu     sync.RWMutex
	completed map[string]domain.Bundle
	failed    map[string]error
	degraded  map[string]bool
	delivered map[string]bool
}

// NewManager creates a manager with no shard assigned.
func NewManager(cfg Config, deps Deps) *Manager {
	size := cfg.QueueSize
	if size <= 0 {
		size = 1
	}
	return &Manager{
		self:        cfg.Self,
		root:        cfg.Root,
		isRoot:      cfg.IsRoot,
		retryPolicy: cfg.Retry.withDefaults(),
		loader:      deps.Loader,
		transport:   deps.Transport,
		finals:      deps.Finals,
		events:      deps.Events,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		queue:       make(chan string, size),
		children:    make(map[string][]string),
		pending:     make(map[string]*request),
		started:     make(map[string]bool),
		completed:   make(map[string]domain.Bundle),
		failed:      make(map[string]error),
		degraded:    make(map[string]bool),
		delivered:   make(map[string]bool),
	}
}

// Queue returns the task queue of request ids awaiting a completeness check.
func (m *Manager) Queue() <-chan string {
	return m.queue
}

// IsRoot reports whether the node collects final outputs.
func (m *Manager) IsRoot() bool {
	return m.isRoot
}

// SubmitPartial merges tensors into the request's partial inputs and
// schedules a completeness check.
func (m *Manager) SubmitPartial(ctx context.Context, inferID string, tensors domain.Bundle) error {
	if inferID == "" {
		return fmt.Errorf("%w: empty infer id", domain.ErrInvalidConfig)
	}

	m.mu.Lock()
	if m.started[inferID] {
		m.mu.Unlock()
		m.logger.Warn("ignoring partial for a request that already ran",
			zap.String("infer_id", inferID),
			zap.Strings("names", tensors.Names()))
		return nil
	}
	req, ok := m.pending[inferID]
	if !ok {
		req = &request{tensors: make(domain.Bundle), createdAt: time.Now()}
		m.pending[inferID] = req
	}
	req.tensors.Merge(tensors)
	pending := len(m.pending)
	m.mu.Unlock()

	m.metrics.RecordPartialReceived()
	m.metrics.SetPendingRequests(pending)
	m.logger.Debug("partial received",
		zap.String("infer_id", inferID),
		zap.Strings("names", tensors.Names()))
	m.publish(ctx, domain.EventTypePartialReceived, inferID, map[string]interface{}{
		"names": tensors.Names(),
	})

	return m.enqueue(ctx, inferID)
}

func (m *Manager) enqueue(ctx context.Context, inferID string) error {
	select {
	case m.queue <- inferID:
		m.metrics.SetQueueDepth(len(m.queue))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to enqueue %s: %w", inferID, ctx.Err())
	}
}

// CheckAndRun computes the request if every required input is present. Only
// one caller per request ever proceeds past the check.
func (m *Manager) CheckAndRun(ctx context.Context, inferID string) error {
	m.mu.Lock()
	req, ok := m.pending[inferID]
	if !ok || m.unit == nil || !req.tensors.HasAll(m.required) {
		m.mu.Unlock()
		return nil
	}
	delete(m.pending, inferID)
	m.started[inferID] = true
	unit := m.unit
	children := copyChildren(m.children)
	terminal := append([]string(nil), m.terminal...)
	pending := len(m.pending)
	m.mu.Unlock()

	m.metrics.SetPendingRequests(pending)

	start := time.Now()
	outputs, err := unit.Infer(ctx, req.tensors)
	duration := time.Since(start)
	if err != nil {
		m.metrics.RecordCompute("failed", duration)
		m.resMu.Lock()
		m.failed[inferID] = err
		m.resMu.Unlock()

		m.logger.Error("compute failed",
			zap.String("infer_id", inferID),
			zap.Duration("duration", duration),
			zap.Error(err))
		m.publish(ctx, domain.EventTypeFailed, inferID, map[string]interface{}{
			"error": err.Error(),
		})
		return fmt.Errorf("%w: compute %s: %v", domain.ErrInternal, inferID, err)
	}

	m.metrics.RecordCompute("success", duration)
	m.resMu.Lock()
	m.completed[inferID] = outputs
	m.resMu.Unlock()

	m.logger.Info("request computed",
		zap.String("infer_id", inferID),
		zap.Duration("duration", duration),
		zap.Strings("outputs", outputs.Names()))
	m.publish(ctx, domain.EventTypeComputed, inferID, map[string]interface{}{
		"outputs":     outputs.Names(),
		"duration_ms": duration.Milliseconds(),
	})

	available := req.tensors.Clone()
	available.Merge(outputs)
	m.fanout(ctx, inferID, available, children, outputs.Subset(terminal))
	return nil
}

// fanout forwards reduced bundles to every child and terminal outputs to
// the root. A failing target never blocks delivery to the others.
func (m *Manager) fanout(ctx context.Context, inferID string, available domain.Bundle, children map[string][]string, finals domain.Bundle) {
	var g errgroup.Group

	for child, names := range children {
		bundle := available.Subset(names)
		g.Go(func() error {
			err := m.retry(ctx, "submit_partial", child, func(ctx context.Context) error {
				return m.transport.SubmitPartial(ctx, child, inferID, bundle)
			})
			if err != nil {
				m.metrics.RecordForward(child, "failed")
				m.markDegraded(ctx, inferID, child, err)
				return err
			}
			m.metrics.RecordForward(child, "success")
			m.publish(ctx, domain.EventTypeForwarded, inferID, map[string]interface{}{
				"target": child,
				"names":  bundle.Names(),
			})
			return nil
		})
	}

	if len(finals) > 0 {
		g.Go(func() error {
			if m.isRoot {
				return m.DeliverFinal(ctx, inferID, finals)
			}
			err := m.retry(ctx, "deliver_final", m.root, func(ctx context.Context) error {
				return m.transport.DeliverFinal(ctx, m.root, inferID, finals)
			})
			if err != nil {
				m.metrics.RecordForward(m.root, "failed")
				m.markDegraded(ctx, inferID, m.root, err)
				return err
			}
			m.metrics.RecordForward(m.root, "success")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		m.logger.Warn("fanout incomplete", zap.String("infer_id", inferID), zap.Error(err))
	}
}

func (m *Manager) markDegraded(ctx context.Context, inferID, target string, err error) {
	m.resMu.Lock()
	m.degraded[inferID] = true
	m.resMu.Unlock()

	m.metrics.RecordDegraded()
	m.logger.Error("dropping outputs after retries",
		zap.String("infer_id", inferID),
		zap.String("target", target),
		zap.Error(err))
	m.publish(ctx, domain.EventTypeDegraded, inferID, map[string]interface{}{
		"target": target,
		"error":  err.Error(),
	})
}

// GetOutput returns the local outputs of a request.
func (m *Manager) GetOutput(_ context.Context, inferID string) (*domain.Result, error) {
	m.resMu.RLock()
	outputs, done := m.completed[inferID]
	failure := m.failed[inferID]
	m.resMu.RUnlock()

	switch {
	case done:
		return &domain.Result{InferID: inferID, Status: domain.StatusSuccess, Outputs: outputs}, nil
	case failure != nil:
		return nil, fmt.Errorf("%w: %v", domain.ErrInternal, failure)
	}

	m.mu.Lock()
	_, waiting := m.pending[inferID]
	running := m.started[inferID]
	m.mu.Unlock()

	if waiting || running {
		return &domain.Result{InferID: inferID, Status: domain.StatusPending}, nil
	}
	return nil, fmt.Errorf("%w: request %s", domain.ErrNotFound, inferID)
}

// DeliverFinal stores terminal outputs on the root. Non-root nodes forward
// the delivery to the root.
func (m *Manager) DeliverFinal(ctx context.Context, inferID string, tensors domain.Bundle) error {
	if !m.isRoot {
		return m.transport.DeliverFinal(ctx, m.root, inferID, tensors)
	}

	merged, err := m.finals.Merge(ctx, inferID, tensors)
	if err != nil {
		return fmt.Errorf("failed to store final outputs for %s: %w", inferID, err)
	}

	m.mu.Lock()
	keys := m.finalKeys
	m.mu.Unlock()

	if !merged.HasAll(keys) {
		m.logger.Debug("final outputs partially delivered",
			zap.String("infer_id", inferID),
			zap.Strings("present", merged.Names()))
		return nil
	}

	m.resMu.Lock()
	first := !m.delivered[inferID]
	m.delivered[inferID] = true
	m.resMu.Unlock()

	if first {
		m.metrics.RecordFinalDelivered()
		m.logger.Info("final outputs complete", zap.String("infer_id", inferID))
		m.publish(ctx, domain.EventTypeFinalDelivered, inferID, map[string]interface{}{
			"outputs": merged.Names(),
		})
	}
	return nil
}

// GetFinal returns the final outputs of a request. On a non-root node the
// query is forwarded to the root and its answer returned unchanged.
func (m *Manager) GetFinal(ctx context.Context, inferID string) (*domain.Result, error) {
	if !m.isRoot {
		return m.transport.GetFinal(ctx, m.root, inferID)
	}

	stored, ok, err := m.finals.Get(ctx, inferID)
	if err != nil {
		return nil, fmt.Errorf("failed to read final outputs for %s: %w", inferID, err)
	}

	m.mu.Lock()
	keys := m.finalKeys
	_, waiting := m.pending[inferID]
	running := m.started[inferID]
	m.mu.Unlock()

	if ok && stored.HasAll(keys) {
		return &domain.Result{InferID: inferID, Status: domain.StatusSuccess, Outputs: stored.Subset(keys)}, nil
	}

	m.resMu.RLock()
	failure := m.failed[inferID]
	m.resMu.RUnlock()
	if failure != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInternal, failure)
	}

	if ok || waiting || running {
		return &domain.Result{InferID: inferID, Status: domain.StatusPending}, nil
	}
	return nil, fmt.Errorf("%w: request %s", domain.ErrNotFound, inferID)
}

// Finals lists the requests whose final outputs are stored on the root.
func (m *Manager) Finals(ctx context.Context) ([]string, error) {
	if !m.isRoot {
		return nil, fmt.Errorf("%w: %s does not collect final outputs", domain.ErrInvalidConfig, m.self)
	}

	ids, err := m.finals.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list final outputs: %w", err)
	}
	return ids, nil
}

// Release forgets a request on this node: pending inputs, local results
// and, on the root, stored final outputs. The id may be reused afterwards.
func (m *Manager) Release(ctx context.Context, inferID string) error {
	m.mu.Lock()
	_, waiting := m.pending[inferID]
	running := m.started[inferID]
	delete(m.pending, inferID)
	delete(m.started, inferID)
	pending := len(m.pending)
	m.mu.Unlock()

	m.resMu.Lock()
	_, done := m.completed[inferID]
	_, failed := m.failed[inferID]
	delete(m.completed, inferID)
	delete(m.failed, inferID)
	delete(m.degraded, inferID)
	delete(m.delivered, inferID)
	m.resMu.Unlock()

	stored := false
	if m.isRoot {
		_, ok, err := m.finals.Get(ctx, inferID)
		if err != nil {
			return fmt.Errorf("failed to read final outputs for %s: %w", inferID, err)
		}
		if ok {
			if err := m.finals.Delete(ctx, inferID); err != nil {
				return fmt.Errorf("failed to delete final outputs for %s: %w", inferID, err)
			}
			stored = true
		}
	}

	if !waiting && !running && !done && !failed && !stored {
		return fmt.Errorf("%w: request %s", domain.ErrNotFound, inferID)
	}

	m.metrics.SetPendingRequests(pending)
	m.logger.Info("request released",
		zap.String("infer_id", inferID),
		zap.Bool("was_pending", waiting),
		zap.Bool("had_finals", stored))
	return nil
}

// AssignShard installs the compute unit described by an encoded artifact
// together with its child output map, then re-checks requests that arrived
// before it. Unit and children become visible to CheckAndRun at once.
func (m *Manager) AssignShard(ctx context.Context, data []byte) error {
	artifact, err := domain.DecodeArtifact(data)
	if err != nil {
		return err
	}

	unit, err := m.loader.Load(ctx, artifact)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArtifact) {
			return err
		}
		return fmt.Errorf("%w: shard %d: %v", domain.ErrInvalidArtifact, artifact.ShardID, err)
	}

	m.mu.Lock()
	m.unit = unit
	m.artifact = artifact
	m.children = copyChildren(artifact.Children)
	m.terminal = append([]string(nil), artifact.Terminal...)
	m.required = m.requiredLocked()
	waiting := make([]string, 0, len(m.pending))
	for id := range m.pending {
		waiting = append(waiting, id)
	}
	m.mu.Unlock()

	sort.Strings(waiting)

	m.logger.Info("shard assigned",
		zap.Int("shard_id", artifact.ShardID),
		zap.Strings("inputs", unit.Inputs()),
		zap.Strings("outputs", unit.Outputs()),
		zap.Int("children", len(artifact.Children)),
		zap.Int("waiting", len(waiting)))
	m.publish(ctx, domain.EventTypeShardAssigned, "", map[string]interface{}{
		"shard_id": artifact.ShardID,
	})

	for _, id := range waiting {
		if err := m.enqueue(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// AssignChildren records that child receives names after every computation.
func (m *Manager) AssignChildren(ctx context.Context, child string, names []string) error {
	if child == "" {
		return domain.ErrMissingAddress
	}

	m.mu.Lock()
	m.children[child] = mergeNames(m.children[child], names)
	m.required = m.requiredLocked()
	waiting := make([]string, 0, len(m.pending))
	for id := range m.pending {
		waiting = append(waiting, id)
	}
	m.mu.Unlock()

	m.logger.Info("children assigned", zap.String("child", child), zap.Strings("names", names))

	sort.Strings(waiting)
	for _, id := range waiting {
		if err := m.enqueue(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// SetFinalNames sets the names that make up a complete final result. Only
// meaningful on the root.
func (m *Manager) SetFinalNames(names []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.finalKeys = append([]string(nil), names...)
}

// Shard returns the declared inputs and outputs of the own shard; ok is
// false before assignment.
func (m *Manager) Shard() (inputs, outputs []string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unit == nil {
		return nil, nil, false
	}
	return m.unit.Inputs(), m.unit.Outputs(), true
}

// Children returns a copy of the child output map.
func (m *Manager) Children() map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return copyChildren(m.children)
}

// Degraded reports whether some outputs of the request were dropped.
func (m *Manager) Degraded(inferID string) bool {
	m.resMu.RLock()
	defer m.resMu.RUnlock()

	return m.degraded[inferID]
}

// Pending lists requests still waiting for inputs, oldest first.
func (m *Manager) Pending() []domain.RequestInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]domain.RequestInfo, 0, len(m.pending))
	for id, req := range m.pending {
		info := domain.RequestInfo{
			InferID:   id,
			Present:   req.tensors.Names(),
			CreatedAt: req.createdAt,
		}
		for _, name := range m.required {
			if _, ok := req.tensors[name]; !ok {
				info.Missing = append(info.Missing, name)
			}
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].InferID < infos[j].InferID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// requiredLocked returns the declared inputs of the unit plus every name a
// child expects that the unit does not produce. m.mu must be held.
func (m *Manager) requiredLocked() []string {
	if m.unit == nil {
		return nil
	}
	produced := make(map[string]bool)
	for _, name := range m.unit.Outputs() {
		produced[name] = true
	}

	required := append([]string(nil), m.unit.Inputs()...)
	for _, names := range m.children {
		for _, name := range names {
			if !produced[name] {
				required = mergeNames(required, []string{name})
			}
		}
	}
	return required
}

func (m *Manager) publish(ctx context.Context, eventType domain.EventType, inferID string, data map[string]interface{}) {
	if m.events == nil {
		return
	}
	topic := domain.TopicRequests
	if inferID == "" {
		topic = domain.TopicCluster
	}
	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		InferID:   inferID,
		Node:      m.self,
		Timestamp: time.Now(),
		Data:      data,
	}
	if err := m.events.Publish(ctx, topic, event); err != nil {
		m.logger.Warn("failed to publish event",
			zap.String("type", string(eventType)),
			zap.String("infer_id", inferID),
			zap.Error(err))
	}
}

func copyChildren(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for child, names := range in {
		out[child] = append([]string(nil), names...)
	}
	return out
}

func mergeNames(dst, src []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, name := range dst {
		seen[name] = true
	}
	for _, name := range src {
		if !seen[name] {
			seen[name] = true
			dst = append(dst, name)
		}
	}
	return dst
}
