// Package spscring implements the per-connection inbound ring: a bounded
// single-producer single-consumer queue with a snapshot-based drain
// discipline so the consumer never chases a moving producer mid-cycle.
package spscring

import (
	"code.hybscloud.com/atomix"
)

type pad [64]byte

// Ring is a bounded SPSC ring of T, sized to a power of two.
//
// Producer and consumer indices sit on disjoint cache lines. The producer
// caches its own view of head and refreshes it from the consumer's atomic
// only when its cached view says the ring is full. The consumer keeps no
// cache: it reads tail once per cycle through SnapshotTail.
type Ring[T any] struct {
	_          pad
	tail       atomix.Uint64 // producer writes here
	_          pad
	cachedHead uint64 // producer's cached view of head
	_          pad
	head       atomix.Uint64 // consumer writes here
	_          pad
	buffer     []T
	mask       uint64
}

// New creates a ring with the given capacity, rounded up to a power of two.
// Panics if capacity is less than 2.
func New[T any](capacity int) *Ring[T] {
	if capacity < 2 {
		panic("spscring: capacity must be >= 2")
	}
	n := roundToPow2(capacity)
	return &Ring[T]{
		buffer: make([]T, n),
		mask:   uint64(n) - 1,
	}
}

// Cap returns the ring's capacity.
func (r *Ring[T]) Cap() int {
	return int(r.mask + 1)
}

// TryEnqueue publishes an item (producer only). Returns false when the ring
// is at capacity (tail - head >= capacity); the caller treats this as fatal
// for the owning connection, per the engine's ring-full policy.
func (r *Ring[T]) TryEnqueue(item T) bool {
	tail := r.tail.LoadRelaxed()
	if tail-r.cachedHead >= uint64(len(r.buffer)) {
		r.cachedHead = r.head.LoadAcquire()
		if tail-r.cachedHead >= uint64(len(r.buffer)) {
			return false
		}
	}
	r.buffer[tail&r.mask] = item
	r.tail.StoreRelease(tail + 1)
	return true
}

// SnapshotTail captures the current tail position (consumer only). Items
// enqueued strictly before this snapshot are drainable this cycle; items
// enqueued at or after it belong to the next cycle.
func (r *Ring[T]) SnapshotTail() uint64 {
	return r.tail.LoadAcquire()
}

// TryDequeueUntil removes and returns the next item if head is strictly
// below snapshot (consumer only). Returns the zero value and false once
// head reaches the snapshot, regardless of whether the producer has since
// published further items.
func (r *Ring[T]) TryDequeueUntil(snapshot uint64) (T, bool) {
	head := r.head.LoadRelaxed()
	if head >= snapshot {
		var zero T
		return zero, false
	}
	item := r.buffer[head&r.mask]
	var zero T
	r.buffer[head&r.mask] = zero
	r.head.StoreRelease(head + 1)
	return item, true
}

// IsEmpty reports whether the ring has nothing left to drain relative to
// the given snapshot.
func (r *Ring[T]) IsEmpty(snapshot uint64) bool {
	return r.head.LoadRelaxed() >= snapshot
}

// Clear resets the ring to empty and zeroes its contents. Used on the
// connection pooling path between reuses; only safe when no concurrent
// producer or consumer is active.
func (r *Ring[T]) Clear() {
	r.head.StoreRelaxed(0)
	r.tail.StoreRelaxed(0)
	r.cachedHead = 0
	var zero T
	for i := range r.buffer {
		r.buffer[i] = zero
	}
}

func roundToPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
