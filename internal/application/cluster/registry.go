// Package cluster tracks cluster formation: the root collects
// registrations until quorum, other nodes wait for the root and register.
package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/periphery/pkg/domain"
	"github.com/aescanero/periphery/pkg/ports"
	"go.uber.org/zap"
)

// State is the formation state of the local node.
type State string

const (
	StateForming State = "forming"
	StateReady   State = "ready"
	// StateClosed means assignment has started; the roster is frozen.
	StateClosed State = "closed"
)

// Registry holds the roster of a forming cluster. All methods are safe for
// concurrent use.
type Registry struct {
	self    string
	metrics ports.MetricsCollector
	logger  *zap.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	state  State
	roster []string
	index  map[string]bool
}

// NewRegistry creates a registry for the node listening at self.
func NewRegistry(self string, metrics ports.MetricsCollector, logger *zap.Logger) *Registry {
	r := &Registry{
		self:    self,
		metrics: metrics,
		logger:  logger,
		state:   StateForming,
		index:   make(map[string]bool),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Register appends addr to the roster and wakes quorum waiters.
func (r *Registry) Register(addr string) error {
	if addr == "" {
		return domain.ErrMissingAddress
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateClosed {
		return fmt.Errorf("%w: rejecting %s", domain.ErrClusterClosed, addr)
	}
	if addr == r.self || r.index[addr] {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateRegistration, addr)
	}

	r.roster = append(r.roster, addr)
	r.index[addr] = true
	r.metrics.SetRosterSize(len(r.roster))
	r.cond.Broadcast()

	r.logger.Info("node registered",
		zap.String("addr", addr),
		zap.Int("roster_size", len(r.roster)))
	return nil
}

// WaitForQuorum blocks until the cluster, root included, has target nodes.
func (r *Registry) WaitForQuorum(ctx context.Context, target int) error {
	stop := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer stop()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Info("waiting for quorum",
		zap.Int("target", target),
		zap.Int("current", len(r.roster)+1))

	for len(r.roster)+1 < target {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("waiting for quorum of %d: %w", target, err)
		}
		r.cond.Wait()
	}
	if r.state == StateForming {
		r.state = StateReady
	}
	r.logger.Info("quorum reached", zap.Int("cluster_size", len(r.roster)+1))
	return nil
}

// WaitForRoot polls the root until it answers, then registers with it once.
func (r *Registry) WaitForRoot(ctx context.Context, root string, prober ports.Prober, transport ports.Transport, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		err := prober.Probe(ctx, root)
		if err == nil {
			break
		}
		r.logger.Debug("root not reachable yet", zap.String("root", root), zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for root %s: %w", root, ctx.Err())
		case <-ticker.C:
		}
	}

	if err := transport.Register(ctx, root, r.self); err != nil {
		return fmt.Errorf("failed to register with root %s: %w", root, err)
	}

	r.mu.Lock()
	r.state = StateReady
	r.mu.Unlock()

	r.logger.Info("registered with root", zap.String("root", root), zap.String("self", r.self))
	return nil
}

// Freeze closes the registry to new registrations and returns the roster.
func (r *Registry) Freeze() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = StateClosed
	return append([]string(nil), r.roster...)
}

// Roster returns a snapshot of the registered addresses in order.
func (r *Registry) Roster() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.roster...)
}

// State returns the current formation state.
func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state
}
