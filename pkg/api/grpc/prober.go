package grpc

import (
	"context"
	"fmt"
	"time"

	"github.com/aescanero/periphery/pkg/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthProber probes nodes through grpc.health.v1. It implements
// ports.Prober.
type HealthProber struct {
	targets map[string]string
	timeout time.Duration
	opts    []grpc.DialOption
}

// NewHealthProber creates a prober. targets maps node addresses to their
// gRPC addresses; unmapped addresses are dialed as given.
func NewHealthProber(targets map[string]string, timeout time.Duration, opts ...grpc.DialOption) *HealthProber {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	return &HealthProber{
		targets: targets,
		timeout: timeout,
		opts:    opts,
	}
}

// Probe succeeds when the node service at addr reports SERVING
func (p *HealthProber) Probe(ctx context.Context, addr string) error {
	target := addr
	if t, ok := p.targets[addr]; ok {
		target = t
	}

	conn, err := grpc.NewClient(target, p.opts...)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", domain.ErrTransport, target, err)
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return fmt.Errorf("%w: probe %s: %v", domain.ErrTransport, target, err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s is %s", domain.ErrTransport, target, resp.GetStatus())
	}

	return nil
}
