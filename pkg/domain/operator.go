package domain

// Operator is a single step of an operator-level graph.
type Operator struct {
	Name    string            `json:"name" yaml:"name"`
	Type    string            `json:"type" yaml:"type"`
	Inputs  []string          `json:"inputs" yaml:"inputs"`
	Outputs []string          `json:"outputs" yaml:"outputs"`
	Attrs   map[string]string `json:"attrs,omitempty" yaml:"attrs,omitempty"`
}

// Model is an ordered operator graph together with its constant
// (initializer) value names.
type Model struct {
	Name      string            `json:"name" yaml:"name"`
	Operators []Operator        `json:"operators" yaml:"operators"`
	Constants map[string]Tensor `json:"constants,omitempty" yaml:"-"`
	// ConstantNames lists constants whose payload lives outside the
	// manifest. Merged with the keys of Constants by ConstantSet.
	ConstantNames []string `json:"constant_names,omitempty" yaml:"constants,omitempty"`
}

// ConstantSet returns every constant name known to the model.
func (m *Model) ConstantSet() map[string]bool {
	set := make(map[string]bool, len(m.Constants)+len(m.ConstantNames))
	for name := range m.Constants {
		set[name] = true
	}
	for _, name := range m.ConstantNames {
		set[name] = true
	}
	return set
}
