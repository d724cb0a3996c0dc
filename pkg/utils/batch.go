package utils

import (
	"fmt"
	"iter"
)

// Split partitions items into consecutive chunks of at most size elements.
// The chunks are sub-slices of items; concatenating them in order yields items.
// An empty input produces no chunks.
func Split[T any](items []T, size int) (iter.Seq[[]T], error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	return func(yield func([]T) bool) {
		for i := 0; i < len(items); i += size {
			end := min(i+size, len(items))
			if !yield(items[i:end:end]) {
				return
			}
		}
	}, nil
}
