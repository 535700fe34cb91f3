package partition

import (
	"fmt"

	"github.com/aescanero/periphery/pkg/domain"
)

// Strategy selects the partitioning algorithm.
type Strategy string

const (
	StrategyContiguous Strategy = "contiguous"
	StrategyStructural Strategy = "structural"
)

// DefaultTolerance is the relative size slack allowed by the structural
// strategy.
const DefaultTolerance = 0.1

// Options configures Partition.
type Options struct {
	Strategy  Strategy
	Tolerance float64
}

// Partition splits ops into n non-empty, disjoint groups of operator
// indices that together cover every operator. Indices inside a group keep
// their original order.
func Partition(ops []domain.Operator, n int, opts Options) ([][]int, error) {
	if len(ops) == 0 {
		return nil, fmt.Errorf("%w: model has no operators", domain.ErrEmptyModel)
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: shard count must be at least 1, got %d", domain.ErrInvalidConfig, n)
	}
	if n > len(ops) {
		return nil, fmt.Errorf("%w: shard count %d exceeds operator count %d", domain.ErrInvalidConfig, n, len(ops))
	}

	switch opts.Strategy {
	case "", StrategyContiguous:
		return Contiguous(len(ops), n), nil
	case StrategyStructural:
		tol := opts.Tolerance
		if tol <= 0 {
			tol = DefaultTolerance
		}
		return Structural(ops, n, tol), nil
	default:
		return nil, fmt.Errorf("%w: unknown partition strategy %q", domain.ErrInvalidConfig, opts.Strategy)
	}
}

// Contiguous divides 0..total-1 into n ranges of floor(total/n) operators,
// appending the remainder to the last range. Callers guarantee
// 1 <= n <= total.
func Contiguous(total, n int) [][]int {
	size := total / n
	parts := make([][]int, n)
	for p := 0; p < n; p++ {
		end := (p + 1) * size
		if p == n-1 {
			end = total
		}
		for i := p * size; i < end; i++ {
			parts[p] = append(parts[p], i)
		}
	}
	return parts
}
