package engine

import (
	"fmt"

	"github.com/samber/lo"
)

const DefaultBatchSize = 50

// Batches splits items into consecutive groups of at most size elements,
// preserving order. The last group holds the remainder.
func Batches[T any](items []T, size int) ([][]T, error) {
	if size <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", size)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return lo.Chunk(items, size), nil
}
