// Package memory connects nodes living in the same process.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aescanero/periphery/pkg/domain"
	"github.com/aescanero/periphery/pkg/ports"
)

// Network routes calls to the nodes attached to it by address.
type Network struct {
	mu       sync.RWMutex
	nodes    map[string]ports.Node
	failures map[string]int
	calls    map[string]int
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{
		nodes:    make(map[string]ports.Node),
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
}

// Attach makes node reachable at addr.
func (n *Network) Attach(addr string, node ports.Node) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nodes[addr] = node
}

// Detach makes addr unreachable.
func (n *Network) Detach(addr string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.nodes, addr)
}

// FailNext makes the next count calls to addr fail with a transport error.
func (n *Network) FailNext(addr string, count int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.failures[addr] += count
}

// Calls returns how many calls of op reached addr.
func (n *Network) Calls(op, addr string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.calls[op+" "+addr]
}

// Transport returns a client of the network.
func (n *Network) Transport() *Transport {
	return &Transport{network: n}
}

func (n *Network) lookup(op, addr string) (ports.Node, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.failures[addr] > 0 {
		n.failures[addr]--
		return nil, fmt.Errorf("%w: %s to %s: injected failure", domain.ErrTransport, op, addr)
	}
	node, ok := n.nodes[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s to %s: unreachable", domain.ErrTransport, op, addr)
	}
	n.calls[op+" "+addr]++
	return node, nil
}

// Transport implements ports.Transport over a Network. Bundles are copied
// on every hop so callers never share maps.
type Transport struct {
	network *Network
}

func (t *Transport) Probe(ctx context.Context, addr string) error {
	_, err := t.network.lookup("probe", addr)
	return err
}

func (t *Transport) Register(ctx context.Context, addr, self string) error {
	node, err := t.network.lookup("register", addr)
	if err != nil {
		return err
	}
	return node.Register(ctx, self)
}

func (t *Transport) AssignShard(ctx context.Context, addr string, artifact []byte) error {
	node, err := t.network.lookup("assign_shard", addr)
	if err != nil {
		return err
	}
	return node.AssignShard(ctx, append([]byte(nil), artifact...))
}

func (t *Transport) AssignChildren(ctx context.Context, addr, child string, names []string) error {
	node, err := t.network.lookup("assign_children", addr)
	if err != nil {
		return err
	}
	return node.AssignChildren(ctx, child, append([]string(nil), names...))
}

func (t *Transport) SubmitPartial(ctx context.Context, addr, inferID string, tensors domain.Bundle) error {
	node, err := t.network.lookup("submit_partial", addr)
	if err != nil {
		return err
	}
	return node.SubmitPartial(ctx, inferID, tensors.Clone())
}

func (t *Transport) GetOutput(ctx context.Context, addr, inferID string) (*domain.Result, error) {
	node, err := t.network.lookup("get_output", addr)
	if err != nil {
		return nil, err
	}
	return node.GetOutput(ctx, inferID)
}

func (t *Transport) DeliverFinal(ctx context.Context, addr, inferID string, tensors domain.Bundle) error {
	node, err := t.network.lookup("deliver_final", addr)
	if err != nil {
		return err
	}
	return node.DeliverFinal(ctx, inferID, tensors.Clone())
}

func (t *Transport) GetFinal(ctx context.Context, addr, inferID string) (*domain.Result, error) {
	node, err := t.network.lookup("get_final", addr)
	if err != nil {
		return nil, err
	}
	return node.GetFinal(ctx, inferID)
}
