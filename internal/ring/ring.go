// Package ring provides a fixed-capacity FIFO that evicts its oldest entry
// on overflow and counts evictions.
package ring

// Ring is not safe for concurrent use.
type Ring[T any] struct {
	limit   int
	items   []T
	dropped int
}

// New returns an empty ring holding at most limit items. limit < 1 is treated as 1.
func New[T any](limit int) *Ring[T] {
	if limit < 1 {
		limit = 1
	}
	return &Ring[T]{limit: limit, items: make([]T, 0, limit)}
}

func (r *Ring[T]) trim(size int) {
	for len(r.items) > size {
		var zero T
		r.items[0] = zero
		r.items = r.items[1:]
		r.dropped++
	}
}

// Append adds v at the back, evicting from the front first so Len never exceeds the limit.
func (r *Ring[T]) Append(v T) {
	r.trim(r.limit - 1)
	r.items = append(r.items, v)
}

// Extend appends every item in order.
func (r *Ring[T]) Extend(vs ...T) {
	for _, v := range vs {
		r.Append(v)
	}
}

// Flush drains the ring and resets the drop counter.
func (r *Ring[T]) Flush() []T {
	out := r.items
	r.items = make([]T, 0, r.limit)
	r.dropped = 0
	return out
}

// Pop removes and returns the most recently appended item.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	if len(r.items) == 0 {
		return zero, false
	}
	last := len(r.items) - 1
	v := r.items[last]
	r.items[last] = zero
	r.items = r.items[:last]
	return v, true
}

// Front returns the oldest item without removing it.
func (r *Ring[T]) Front() (T, bool) {
	if len(r.items) == 0 {
		var zero T
		return zero, false
	}
	return r.items[0], true
}

// Items returns a copy of the buffered items, oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

func (r *Ring[T]) Len() int     { return len(r.items) }
func (r *Ring[T]) Cap() int     { return r.limit }
func (r *Ring[T]) Dropped() int { return r.dropped }
func (r *Ring[T]) IsFull() bool { return len(r.items) == r.limit }
