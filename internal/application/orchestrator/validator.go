package orchestrator

import (
	"fmt"

	"github.com/aescanero/periphery/internal/topology"
	"github.com/aescanero/periphery/pkg/domain"
)

// Validator validates models, shard graphs and rosters
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateModel validates an operator model before partitioning
func (v *Validator) ValidateModel(m *domain.Model) error {
	if m == nil {
		return fmt.Errorf("%w: model is nil", domain.ErrInvalidConfig)
	}

	if len(m.Operators) == 0 {
		return fmt.Errorf("%w: model must have at least one operator", domain.ErrEmptyModel)
	}

	// Validate operators
	constants := m.ConstantSet()
	producers := make(map[string]int)
	for i, op := range m.Operators {
		if err := v.validateOperator(op); err != nil {
			return fmt.Errorf("invalid operator %d (%s): %w", i, op.Name, err)
		}

		for _, name := range op.Outputs {
			// Check for values produced twice
			if prev, ok := producers[name]; ok {
				return fmt.Errorf("%w: value %q produced by operators %d and %d", domain.ErrInvalidConfig, name, prev, i)
			}
			if constants[name] {
				return fmt.Errorf("%w: value %q is both a constant and an operator output", domain.ErrInvalidConfig, name)
			}
			producers[name] = i
		}
	}

	return nil
}

// validateOperator validates a single operator
func (v *Validator) validateOperator(op domain.Operator) error {
	if len(op.Outputs) == 0 {
		return fmt.Errorf("%w: operator has no outputs", domain.ErrInvalidConfig)
	}

	for _, name := range op.Outputs {
		if name == "" {
			return fmt.Errorf("%w: empty output name", domain.ErrInvalidConfig)
		}
	}
	for _, name := range op.Inputs {
		if name == "" {
			return fmt.Errorf("%w: empty input name", domain.ErrInvalidConfig)
		}
	}

	return nil
}

// ValidateShardGraph validates the shard graph topology
func (v *Validator) ValidateShardGraph(sg *topology.ShardGraph) error {
	if sg == nil || sg.Len() == 0 {
		return fmt.Errorf("%w: no shards", domain.ErrEmptyModel)
	}
	return sg.Validate()
}

// ValidateRoster validates the registered peer addresses
func (v *Validator) ValidateRoster(roster []string) error {
	seen := make(map[string]bool, len(roster))
	for i, addr := range roster {
		if addr == "" {
			return fmt.Errorf("%w: roster entry %d", domain.ErrMissingAddress, i)
		}
		if seen[addr] {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateRegistration, addr)
		}
		seen[addr] = true
	}
	return nil
}
