package reference

import (
	"context"
	"testing"

	"github.com/aescanero/periphery/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bytesTensor(s string) domain.Tensor {
	return domain.Tensor{DType: "uint8", Shape: []int64{int64(len(s))}, Data: []byte(s)}
}

func artifactFor(t *testing.T, steps []domain.Operator, constants domain.Bundle, inputs, outputs []string) *domain.ShardArtifact {
	t.Helper()
	blob, err := Compile(steps, constants)
	require.NoError(t, err)
	return &domain.ShardArtifact{Format: Format, Inputs: inputs, Outputs: outputs, Blob: blob}
}

func TestInfer(t *testing.T) {
	steps := []domain.Operator{
		{Name: "copy", Type: OpIdentity, Inputs: []string{"x"}, Outputs: []string{"a"}},
		{Name: "join", Type: OpConcat, Inputs: []string{"a", "w", "x"}, Outputs: []string{"y"}},
	}
	constants := domain.Bundle{"w": bytesTensor("-")}

	unit, err := Load(artifactFor(t, steps, constants, []string{"x"}, []string{"y"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, unit.Inputs())
	assert.Equal(t, []string{"y"}, unit.Outputs())

	out, err := unit.Infer(context.Background(), domain.Bundle{"x": bytesTensor("ab")})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ab-ab", string(out["y"].Data))
	assert.Equal(t, []int64{5}, out["y"].Shape)
}

func TestInferMissingInput(t *testing.T) {
	steps := []domain.Operator{{Name: "copy", Type: OpIdentity, Inputs: []string{"x"}, Outputs: []string{"y"}}}
	unit, err := Load(artifactFor(t, steps, nil, []string{"x"}, []string{"y"}))
	require.NoError(t, err)

	_, err = unit.Infer(context.Background(), domain.Bundle{})
	assert.Error(t, err)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name     string
		artifact *domain.ShardArtifact
	}{
		{
			name:     "wrong format",
			artifact: &domain.ShardArtifact{Format: "onnx", Outputs: []string{"y"}, Blob: []byte(`{}`)},
		},
		{
			name:     "bad blob",
			artifact: &domain.ShardArtifact{Format: Format, Outputs: []string{"y"}, Blob: []byte(`{`)},
		},
		{
			name:     "no steps",
			artifact: &domain.ShardArtifact{Format: Format, Outputs: []string{"y"}, Blob: []byte(`{"steps":[]}`)},
		},
		{
			name: "unknown operator",
			artifact: &domain.ShardArtifact{Format: Format, Outputs: []string{"y"},
				Blob: []byte(`{"steps":[{"name":"m","type":"matmul","inputs":["x"],"outputs":["y"]}]}`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.artifact)
			assert.ErrorIs(t, err, domain.ErrInvalidArtifact)
		})
	}
}

func TestCompileRejectsBadConcat(t *testing.T) {
	_, err := Compile([]domain.Operator{{Name: "c", Type: OpConcat, Inputs: []string{"a"}, Outputs: []string{"b", "c"}}}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArtifact)
}
