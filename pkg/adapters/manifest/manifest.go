// Package manifest loads operator graphs from YAML manifests stored on the
// local filesystem or in Google Cloud Storage.
//
// A manifest lists the operators in execution order and the constant values
// they read:
//
//	name: chain
//	operators:
//	  - name: step0
//	    type: identity
//	    inputs: [x]
//	    outputs: [h0]
//	constants: [bias]
//	values:
//	  bias: {dtype: uint8, text: "+"}
package manifest

import (
	"encoding/base64"
	"fmt"

	"github.com/aescanero/periphery/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Value is an inline constant payload. Exactly one of Text and Base64 is
// set.
type Value struct {
	DType  string  `yaml:"dtype"`
	Shape  []int64 `yaml:"shape,omitempty"`
	Text   string  `yaml:"text,omitempty"`
	Base64 string  `yaml:"base64,omitempty"`
}

// Manifest is the on-disk form of a model.
type Manifest struct {
	domain.Model `yaml:",inline"`
	Values       map[string]Value `yaml:"values,omitempty"`
}

// Parse decodes a YAML manifest into a model.
func Parse(data []byte) (*domain.Model, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: failed to parse manifest: %v", domain.ErrInvalidConfig, err)
	}
	if len(m.Operators) == 0 {
		return nil, fmt.Errorf("%w: manifest %q has no operators", domain.ErrEmptyModel, m.Name)
	}

	model := m.Model
	if len(m.Values) > 0 {
		model.Constants = make(map[string]domain.Tensor, len(m.Values))
	}
	for name, v := range m.Values {
		t, err := v.tensor()
		if err != nil {
			return nil, fmt.Errorf("%w: constant %q: %v", domain.ErrInvalidConfig, name, err)
		}
		model.Constants[name] = t
	}
	return &model, nil
}

// Marshal encodes a model as a YAML manifest. Constant payloads are written
// base64 encoded.
func Marshal(model *domain.Model) ([]byte, error) {
	m := Manifest{Model: *model}
	if len(model.Constants) > 0 {
		m.Values = make(map[string]Value, len(model.Constants))
		for name, t := range model.Constants {
			m.Values[name] = Value{
				DType:  t.DType,
				Shape:  t.Shape,
				Base64: base64.StdEncoding.EncodeToString(t.Data),
			}
		}
	}
	data, err := yaml.Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return data, nil
}

func (v Value) tensor() (domain.Tensor, error) {
	if v.Text != "" && v.Base64 != "" {
		return domain.Tensor{}, fmt.Errorf("both text and base64 set")
	}
	data := []byte(v.Text)
	if v.Base64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(v.Base64)
		if err != nil {
			return domain.Tensor{}, err
		}
		data = decoded
	}
	shape := v.Shape
	if len(shape) == 0 {
		shape = []int64{int64(len(data))}
	}
	return domain.Tensor{DType: v.DType, Shape: shape, Data: data}, nil
}
