package domain

import (
	"encoding/json"
	"fmt"
)

// ShardArtifact is what a node receives through assign_shard: an opaque
// compute blob, the names it consumes and produces, and the outputs each
// child expects. Only the backend selected by Format looks inside Blob.
type ShardArtifact struct {
	ShardID  int                 `json:"shard_id"`
	Format   string              `json:"format"`
	Inputs   []string            `json:"inputs"`
	Outputs  []string            `json:"outputs"`
	Terminal []string            `json:"terminal,omitempty"`
	Children map[string][]string `json:"children,omitempty"`
	Blob     []byte              `json:"blob"`
}

// Validate checks the structural fields of the artifact.
func (a *ShardArtifact) Validate() error {
	if a.ShardID < 0 {
		return fmt.Errorf("%w: negative shard id %d", ErrInvalidArtifact, a.ShardID)
	}
	if a.Format == "" {
		return fmt.Errorf("%w: format is required", ErrInvalidArtifact)
	}
	if len(a.Outputs) == 0 {
		return fmt.Errorf("%w: shard %d declares no outputs", ErrInvalidArtifact, a.ShardID)
	}
	outputs := make(map[string]bool, len(a.Outputs))
	for _, name := range a.Outputs {
		outputs[name] = true
	}
	for _, name := range a.Inputs {
		if outputs[name] {
			return fmt.Errorf("%w: %q is both input and output of shard %d", ErrInvalidArtifact, name, a.ShardID)
		}
	}
	for _, name := range a.Terminal {
		if !outputs[name] {
			return fmt.Errorf("%w: terminal %q is not an output of shard %d", ErrInvalidArtifact, name, a.ShardID)
		}
	}
	for child, names := range a.Children {
		if child == "" {
			return fmt.Errorf("%w: child without address in shard %d", ErrInvalidArtifact, a.ShardID)
		}
		if len(names) == 0 {
			return fmt.Errorf("%w: child %s of shard %d expects no names", ErrInvalidArtifact, child, a.ShardID)
		}
	}
	return nil
}

// EncodeArtifact serializes an artifact for the wire.
func EncodeArtifact(a *ShardArtifact) ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal artifact: %w", err)
	}
	return data, nil
}

// DecodeArtifact parses and validates wire bytes produced by EncodeArtifact.
func DecodeArtifact(data []byte) (*ShardArtifact, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidArtifact)
	}
	var a ShardArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}
