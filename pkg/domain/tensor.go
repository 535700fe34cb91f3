package domain

import "sort"

// Tensor is an opaque tensor payload. Periphery never interprets Data; it
// only routes it between the compute units of different shards.
type Tensor struct {
	DType string  `json:"dtype"`
	Shape []int64 `json:"shape,omitempty"`
	Data  []byte  `json:"data"`
}

// Bundle maps value names to tensors.
type Bundle map[string]Tensor

// Clone returns a shallow copy of the bundle. Tensor data is shared.
func (b Bundle) Clone() Bundle {
	out := make(Bundle, len(b))
	for name, t := range b {
		out[name] = t
	}
	return out
}

// Merge copies every tensor of other into b, replacing tensors with the
// same name.
func (b Bundle) Merge(other Bundle) {
	for name, t := range other {
		b[name] = t
	}
}

// Subset returns the tensors of b whose names are listed. Missing names are
// skipped.
func (b Bundle) Subset(names []string) Bundle {
	out := make(Bundle, len(names))
	for _, name := range names {
		if t, ok := b[name]; ok {
			out[name] = t
		}
	}
	return out
}

// HasAll reports whether every listed name is present.
func (b Bundle) HasAll(names []string) bool {
	for _, name := range names {
		if _, ok := b[name]; !ok {
			return false
		}
	}
	return true
}

// Names returns the sorted value names of the bundle.
func (b Bundle) Names() []string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
