package liveness

import "sort"

type scored[T any] struct {
	item  T
	score float64
}

// RetentionBuffer keeps the K highest scoring items offered to it, ordered
// by score descending. An item never displaces one with an equal score.
type RetentionBuffer[T any] struct {
	capacity int
	items    []scored[T]
	offered  uint64
}

func NewRetentionBuffer[T any](capacity int) *RetentionBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RetentionBuffer[T]{
		capacity: capacity,
		items:    make([]scored[T], 0, capacity),
	}
}

// Offer inserts item and reports whether it was retained.
func (b *RetentionBuffer[T]) Offer(item T, score float64) bool {
	b.offered++

	idx := sort.Search(len(b.items), func(i int) bool {
		return b.items[i].score < score
	})
	if idx >= b.capacity {
		return false
	}

	if len(b.items) < b.capacity {
		b.items = append(b.items, scored[T]{})
	}
	copy(b.items[idx+1:], b.items[idx:])
	b.items[idx] = scored[T]{item: item, score: score}
	return true
}

func (b *RetentionBuffer[T]) Best() (T, float64, bool) {
	if len(b.items) == 0 {
		var zero T
		return zero, 0, false
	}
	return b.items[0].item, b.items[0].score, true
}

// All returns a copy of the retained items, best first.
func (b *RetentionBuffer[T]) All() []T {
	out := make([]T, len(b.items))
	for i, it := range b.items {
		out[i] = it.item
	}
	return out
}

func (b *RetentionBuffer[T]) Scores() []float64 {
	out := make([]float64, len(b.items))
	for i, it := range b.items {
		out[i] = it.score
	}
	return out
}

func (b *RetentionBuffer[T]) Len() int {
	return len(b.items)
}

func (b *RetentionBuffer[T]) Cap() int {
	return b.capacity
}

func (b *RetentionBuffer[T]) Offered() uint64 {
	return b.offered
}

func (b *RetentionBuffer[T]) Clear() {
	clear(b.items)
	b.items = b.items[:0]
}
