// Package ring implements a fixed-capacity, power-of-two, lock-free
// SPSC (single-producer/single-consumer) queue.
//
// The head/tail cursors sit on separate cache lines so that producer
// stores and consumer stores never invalidate the same line.
package ring

import "sync/atomic"

const cacheLinePad = 64 - 8 // one uint64 already occupies 8 bytes

// Ring is a wait-free SPSC queue of T. Exactly one goroutine may call
// TryPush over the Ring's lifetime, and exactly one (possibly
// different) goroutine may call TryPop.
type Ring[T any] struct {
	// producer-owned cursor: next slot to write
	head    atomic.Uint64
	_       [cacheLinePad]byte
	cHead   uint64 // consumer's cached view of head, refreshed on demand
	_       [cacheLinePad - 8]byte

	// consumer-owned cursor: next slot to read
	tail    atomic.Uint64
	_       [cacheLinePad]byte
	cTail   uint64 // producer's cached view of tail, refreshed on demand
	_       [cacheLinePad - 8]byte

	buf  []T
	mask uint64
}

// New allocates a ring with the given power-of-two capacity.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("ring: capacity must be a power of two")
	}
	return &Ring[T]{
		buf:  make([]T, capacity),
		mask: uint64(capacity - 1),
	}
}

// Capacity returns the fixed slot count.
func (r *Ring[T]) Capacity() int { return len(r.buf) }

// TryPush publishes value if there is room, returning false if the
// ring is full. Producer-only.
func (r *Ring[T]) TryPush(value T) bool {
	h := r.head.Load()
	if h-r.cTail == uint64(len(r.buf)) {
		r.cTail = r.tail.Load()
		if h-r.cTail == uint64(len(r.buf)) {
			return false
		}
	}
	r.buf[h&r.mask] = value
	r.head.Store(h + 1)
	return true
}

// TryPop removes and returns the oldest value, or (zero, false) if
// the ring is empty. Consumer-only.
func (r *Ring[T]) TryPop() (T, bool) {
	t := r.tail.Load()
	if t == r.cHead {
		r.cHead = r.head.Load()
		if t == r.cHead {
			var zero T
			return zero, false
		}
	}
	v := r.buf[t&r.mask]
	var zero T
	r.buf[t&r.mask] = zero // drop the reference so a pointer payload can be GC'd
	r.tail.Store(t + 1)
	return v, true
}

// Len returns an approximate occupancy; only exact when called from
// either the producer or consumer goroutine about its own side.
func (r *Ring[T]) Len() int {
	return int(r.head.Load() - r.tail.Load())
}
