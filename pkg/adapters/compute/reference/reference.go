// Package reference is a small compute backend that evaluates a shard's
// operator steps directly over tensor bytes. It supports the identity and
// concat operator types and is used for smoke runs and tests.
package reference

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aescanero/periphery/pkg/domain"
)

// Format is the artifact format handled by this backend.
const Format = "reference"

// Operator types understood by the backend.
const (
	OpIdentity = "identity"
	OpConcat   = "concat"
)

// Program is the blob of a reference artifact.
type Program struct {
	Steps     []domain.Operator `json:"steps"`
	Constants domain.Bundle     `json:"constants,omitempty"`
}

// Compile encodes the steps of a shard and the constants they read.
func Compile(steps []domain.Operator, constants domain.Bundle) ([]byte, error) {
	for _, step := range steps {
		if err := checkStep(step); err != nil {
			return nil, err
		}
	}
	data, err := json.Marshal(Program{Steps: steps, Constants: constants})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal program: %w", err)
	}
	return data, nil
}

// Unit runs a compiled program.
type Unit struct {
	program Program
	inputs  []string
	outputs []string
}

// Load parses the blob of an artifact into a runnable unit.
func Load(artifact *domain.ShardArtifact) (*Unit, error) {
	if artifact.Format != Format {
		return nil, fmt.Errorf("%w: format %q is not %q", domain.ErrInvalidArtifact, artifact.Format, Format)
	}
	var program Program
	if err := json.Unmarshal(artifact.Blob, &program); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArtifact, err)
	}
	if len(program.Steps) == 0 {
		return nil, fmt.Errorf("%w: shard %d has no steps", domain.ErrInvalidArtifact, artifact.ShardID)
	}
	for _, step := range program.Steps {
		if err := checkStep(step); err != nil {
			return nil, err
		}
	}
	return &Unit{
		program: program,
		inputs:  append([]string(nil), artifact.Inputs...),
		outputs: append([]string(nil), artifact.Outputs...),
	}, nil
}

func (u *Unit) Inputs() []string { return append([]string(nil), u.inputs...) }
func (u *Unit) Outputs() []string { return append([]string(nil), u.outputs...) }

// Infer evaluates the steps in order and returns the declared outputs.
func (u *Unit) Infer(ctx context.Context, inputs domain.Bundle) (domain.Bundle, error) {
	env := inputs.Clone()
	env.Merge(u.program.Constants)

	for _, step := range u.program.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		args := make([]domain.Tensor, len(step.Inputs))
		for i, name := range step.Inputs {
			t, ok := env[name]
			if !ok {
				return nil, fmt.Errorf("step %s: missing input %q", step.Name, name)
			}
			args[i] = t
		}
		results := eval(step, args)
		for i, name := range step.Outputs {
			env[name] = results[i]
		}
	}

	if !env.HasAll(u.outputs) {
		return nil, fmt.Errorf("program did not produce all of %v", u.outputs)
	}
	return env.Subset(u.outputs), nil
}

func checkStep(step domain.Operator) error {
	switch step.Type {
	case OpIdentity:
		if len(step.Inputs) != 1 && len(step.Inputs) != len(step.Outputs) {
			return fmt.Errorf("%w: identity step %s needs one input or one input per output",
				domain.ErrInvalidArtifact, step.Name)
		}
	case OpConcat:
		if len(step.Outputs) != 1 || len(step.Inputs) == 0 {
			return fmt.Errorf("%w: concat step %s needs inputs and exactly one output",
				domain.ErrInvalidArtifact, step.Name)
		}
	default:
		return fmt.Errorf("%w: unsupported operator type %q in step %s",
			domain.ErrInvalidArtifact, step.Type, step.Name)
	}
	return nil
}

func eval(step domain.Operator, args []domain.Tensor) []domain.Tensor {
	out := make([]domain.Tensor, len(step.Outputs))
	switch step.Type {
	case OpIdentity:
		for i := range out {
			if len(args) == 1 {
				out[i] = args[0]
			} else {
				out[i] = args[i]
			}
		}
	case OpConcat:
		var data []byte
		for _, t := range args {
			data = append(data, t.Data...)
		}
		out[0] = domain.Tensor{
			DType: args[0].DType,
			Shape: []int64{int64(len(data))},
			Data:  data,
		}
	}
	return out
}
