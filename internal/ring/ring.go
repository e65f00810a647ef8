// Package ring provides a fixed-capacity circular buffer with
// oldest-overwrite semantics. It is the sample store underneath the
// metrics collector and error occurrence history.
package ring

import "sync"

// Buffer is a generic fixed-capacity ring. Once full, each push evicts
// the oldest element. All methods are safe for concurrent use.
type Buffer[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int   // index of the next write
	total int64 // monotonic count of all pushes ever
	cap   int
}

// New creates a ring buffer with the given capacity.
// Capacity below 1 is treated as 1.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{
		items: make([]T, 0, capacity),
		cap:   capacity,
	}
}

// Push appends one item, overwriting the oldest when full.
func (b *Buffer[T]) Push(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) < b.cap {
		b.items = append(b.items, item)
	} else {
		b.items[b.head] = item
	}
	b.head = (b.head + 1) % b.cap
	b.total++
}

// Items returns a snapshot of the buffer contents, oldest first.
func (b *Buffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked()
}

// Last returns a snapshot of the most recent n items, oldest first.
// If fewer than n items are held, all of them are returned.
func (b *Buffer[T]) Last(n int) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	all := b.snapshotLocked()
	if n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// snapshotLocked copies items into chronological order. Caller holds mu.
func (b *Buffer[T]) snapshotLocked() []T {
	n := len(b.items)
	if n == 0 {
		return nil
	}
	out := make([]T, 0, n)
	if n < b.cap {
		// Not yet wrapped: items are already in insertion order.
		return append(out, b.items...)
	}
	out = append(out, b.items[b.head:]...)
	out = append(out, b.items[:b.head]...)
	return out
}

// Len returns the number of items currently held.
func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int {
	return b.cap
}

// Total returns the monotonic count of items ever pushed,
// including those already evicted.
func (b *Buffer[T]) Total() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.total
}

// Clear drops all items. Capacity is unchanged.
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = b.items[:0]
	b.head = 0
}
