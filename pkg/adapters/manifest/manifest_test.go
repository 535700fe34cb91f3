package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aescanero/periphery/pkg/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const chain = `
name: chain
operators:
  - name: step0
    type: identity
    inputs: [x]
    outputs: [h0]
  - name: step1
    type: concat
    inputs: [h0, bias]
    outputs: [y]
constants: [bias]
values:
  bias: {dtype: uint8, text: "+"}
`

func TestParse(t *testing.T) {
	model, err := Parse([]byte(chain))
	require.NoError(t, err)

	assert.Equal(t, "chain", model.Name)
	require.Len(t, model.Operators, 2)
	assert.Equal(t, []string{"h0", "bias"}, model.Operators[1].Inputs)
	assert.Equal(t, map[string]bool{"bias": true}, model.ConstantSet())
	assert.Equal(t, domain.Tensor{DType: "uint8", Shape: []int64{1}, Data: []byte("+")}, model.Constants["bias"])
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "not yaml", input: "operators: [", wantErr: domain.ErrInvalidConfig},
		{name: "no operators", input: "name: empty\n", wantErr: domain.ErrEmptyModel},
		{
			name:    "bad base64",
			input:   "operators: [{name: a, type: identity, inputs: [x], outputs: [y]}]\nvalues:\n  w: {dtype: f32, base64: '!!'}\n",
			wantErr: domain.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	model, err := Parse([]byte(chain))
	require.NoError(t, err)

	data, err := Marshal(model)
	require.NoError(t, err)

	again, err := Parse(data)
	require.NoError(t, err)
	if diff := cmp.Diff(model, again); diff != "" {
		t.Errorf("model mismatch (-want +got):\n%s", diff)
	}
}

func TestLoaderReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(chain), 0o600))

	model, err := NewLoader(zap.NewNop()).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, model.Operators, 2)

	_, err = NewLoader(zap.NewNop()).Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSplitGCSURL(t *testing.T) {
	bucket, object, err := splitGCSURL("gs://models/graphs/chain.yaml")
	require.NoError(t, err)
	assert.Equal(t, "models", bucket)
	assert.Equal(t, "graphs/chain.yaml", object)

	for _, bad := range []string{"gs://", "gs://bucket", "gs:///object"} {
		_, _, err := splitGCSURL(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidConfig, bad)
	}
}
