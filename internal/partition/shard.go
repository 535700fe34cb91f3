package partition

import (
	"github.com/aescanero/periphery/pkg/domain"
)

// Shard is an induced subgraph of the operator graph.
type Shard struct {
	ID    int
	Steps []domain.Operator
	// Inputs are consumed by the shard but neither produced inside it nor
	// constants.
	Inputs []string
	// Outputs are produced by the shard and consumed by another shard or by
	// nobody.
	Outputs []string
	// Constants are the initializer values the shard consumes.
	Constants []string
}

// BuildShards derives the boundary sets of every partition. Name order
// follows first appearance in the steps.
func BuildShards(model *domain.Model, parts [][]int) []Shard {
	constants := model.ConstantSet()

	owner := make([]int, len(model.Operators))
	for p, members := range parts {
		for _, i := range members {
			owner[i] = p
		}
	}
	consumers := make(map[string][]int)
	for i, op := range model.Operators {
		for _, name := range op.Inputs {
			consumers[name] = append(consumers[name], i)
		}
	}

	shards := make([]Shard, len(parts))
	for p, members := range parts {
		s := Shard{ID: p}
		produced := make(map[string]bool)
		for _, i := range members {
			for _, name := range model.Operators[i].Outputs {
				produced[name] = true
			}
		}

		seen := make(map[string]bool)
		for _, i := range members {
			op := model.Operators[i]
			s.Steps = append(s.Steps, op)
			for _, name := range op.Inputs {
				if seen[name] {
					continue
				}
				seen[name] = true
				switch {
				case constants[name]:
					s.Constants = append(s.Constants, name)
				case !produced[name]:
					s.Inputs = append(s.Inputs, name)
				}
			}
		}

		emitted := make(map[string]bool)
		for _, i := range members {
			for _, name := range model.Operators[i].Outputs {
				if !emitted[name] && exported(name, p, owner, consumers) {
					s.Outputs = append(s.Outputs, name)
					emitted[name] = true
				}
			}
		}
		shards[p] = s
	}
	return shards
}

// exported reports whether a value produced in partition p leaves it: some
// consumer lives elsewhere, or nothing consumes it at all.
func exported(name string, p int, owner []int, consumers map[string][]int) bool {
	users := consumers[name]
	if len(users) == 0 {
		return true
	}
	for _, i := range users {
		if owner[i] != p {
			return true
		}
	}
	return false
}
