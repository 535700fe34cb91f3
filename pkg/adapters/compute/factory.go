// Package compute selects the compute backend of a shard artifact.
//
// The loader dispatches on the artifact format. Currently supports:
//   - reference: byte-level evaluation of identity and concat steps
package compute

import (
	"context"
	"fmt"

	"github.com/aescanero/periphery/pkg/adapters/compute/reference"
	"github.com/aescanero/periphery/pkg/domain"
	"github.com/aescanero/periphery/pkg/ports"
	"go.uber.org/zap"
)

// Loader implements ports.ComputeLoader for every known format
type Loader struct {
	logger *zap.Logger
}

// NewLoader creates a new compute loader
func NewLoader(logger *zap.Logger) *Loader {
	return &Loader{logger: logger}
}

// Load creates the compute unit for an artifact based on its format
func (l *Loader) Load(ctx context.Context, artifact *domain.ShardArtifact) (ports.ComputeUnit, error) {
	switch artifact.Format {
	case reference.Format:
		unit, err := reference.Load(artifact)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("compute unit loaded",
			zap.String("format", artifact.Format),
			zap.Int("shard_id", artifact.ShardID))
		return unit, nil
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", domain.ErrInvalidArtifact, artifact.Format)
	}
}

// Compile builds the blob of a shard for the given format
func (l *Loader) Compile(format string, steps []domain.Operator, constants domain.Bundle) ([]byte, error) {
	switch format {
	case reference.Format:
		return reference.Compile(steps, constants)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", domain.ErrInvalidConfig, format)
	}
}
