// Package bufqueue implements the pending-buffer FIFO shared between the
// control path and the frame-done interrupt path.
//
// The queue does not own its lock: it is constructed over the engine's
// buffer lock, which also guards the hardware slot table and the
// buffer-address registers. Mutating any of those for one frame transition
// must be a single atomic unit, so the interrupt path takes the lock once
// and uses the *Locked variants.
package bufqueue

import "sync"

// Queue is a FIFO of pending handles. Insertion order is preserved;
// ownership of a handle moves with it (a popped handle is no longer
// referenced by the queue).
type Queue[T any] struct {
	mu    *sync.Mutex
	items []T
}

// New creates a queue guarded by the shared buffer lock.
func New[T any](mu *sync.Mutex) *Queue[T] {
	return &Queue[T]{mu: mu}
}

// Push appends v at the tail. Callable from any context except the
// interrupt path (which must already hold the lock and use the Locked
// variants instead).
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
}

// Len reports the current queue depth.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// PopFrontLocked removes and returns the head. The caller must hold the
// shared lock.
func (q *Queue[T]) PopFrontLocked() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero // release the reference
	q.items = q.items[1:]
	return v, true
}

// LenLocked reports the queue depth. The caller must hold the shared lock.
func (q *Queue[T]) LenLocked() int {
	return len(q.items)
}

// DrainLocked empties the queue and returns the removed handles in FIFO
// order. The caller must hold the shared lock and deliver the handles to
// their owner only after releasing it.
func (q *Queue[T]) DrainLocked() []T {
	drained := q.items
	q.items = nil
	return drained
}
