// Package deque implements the per-worker ready deque (spec §3 "Ready
// deque", §4.1 "THE protocol"): the owner pushes and pops from the bottom
// without synchronization in the common case, while thieves contend for
// the top. Races between an owner's pop and a thief's steal landing on the
// same last element are resolved by a mutex-guarded slow path, the Go
// analogue of the THE protocol's tail/head/exc index dance (the original
// uses a lock-free CAS there; this implementation uses
// internal/syncx.TryMutex instead, since Go cannot portably express the
// fully lock-free variant without unsafe pointer tricks the rest of this
// codebase deliberately avoids -- see DESIGN.md).
package deque

import (
	"sync/atomic"

	"github.com/cilkgo/cilk/internal/closure"
	"github.com/cilkgo/cilk/internal/syncx"
)

const defaultCapacity = 32

// Deque is a single worker's ready deque of closure ids. The zero value is
// not ready for use; call New.
type Deque struct {
	mu    syncx.TryMutex
	slots []closure.ID

	// tail is the owner-exclusive bottom index; head is contested by
	// thieves stealing from the top. Both count upward from zero, never
	// wrapping, matching the logical "infinite array" the THE protocol
	// assumes (spec §4.1).
	tail atomic.Int64
	head atomic.Int64
}

// New creates an empty deque with room for capacity entries before the
// first grow.
func New(capacity int) *Deque {
	if capacity < 1 {
		capacity = defaultCapacity
	}
	return &Deque{slots: make([]closure.ID, capacity)}
}

// Size reports the number of closures currently queued. It is advisory
// only when called by anyone but the owner: a concurrent steal can shrink
// it at any time.
func (d *Deque) Size() int {
	t := d.tail.Load()
	h := d.head.Load()
	if t <= h {
		return 0
	}
	return int(t - h)
}

// IsEmpty reports whether the deque currently holds no closures.
func (d *Deque) IsEmpty() bool { return d.Size() <= 0 }

// PushBottom adds id to the bottom of the deque. Only the owning worker
// may call this.
func (d *Deque) PushBottom(id closure.ID) {
	tail := d.tail.Load()
	if int(tail) >= len(d.slots) {
		d.mu.Lock()
		d.grow()
		d.mu.Unlock()
	}
	d.slots[tail] = id
	d.tail.Store(tail + 1)
}

// grow doubles the backing array. Caller must hold mu.
func (d *Deque) grow() {
	bigger := make([]closure.ID, len(d.slots)*2)
	copy(bigger, d.slots)
	d.slots = bigger
}

// PopBottom removes and returns the closure at the bottom of the deque.
// Only the owning worker may call this. It implements the THE protocol's
// owner-pop path (spec §4.1): decrement tail optimistically, then check
// whether a thief has already taken the last remaining element.
func (d *Deque) PopBottom() (closure.ID, bool) {
	tail := d.tail.Load()
	if tail == 0 {
		return closure.NilID, false
	}
	tail--
	d.tail.Store(tail)

	head := d.head.Load()
	if tail > head {
		return d.slots[tail], true
	}
	if tail < head {
		// Already stolen out from under us; restore tail to the
		// canonical empty position.
		d.tail.Store(head)
		return closure.NilID, false
	}

	// tail == head: exactly one element remained and a thief may be
	// racing for it. Use the mutex-guarded slow path to decide the
	// winner, mirroring the THE protocol's "exc" tie-break.
	d.mu.Lock()
	defer d.mu.Unlock()
	head = d.head.Load()
	if tail == head {
		d.head.Store(head + 1)
		d.tail.Store(head + 1)
		return d.slots[tail], true
	}
	d.tail.Store(head)
	return closure.NilID, false
}

// StealTop removes and returns the closure at the top of the deque, for
// use by any worker other than the owner. Reports false if the deque
// appeared empty or if a thief lost the race for the mutex to another
// thief or to the owner's own tie-break slow path: spec §4.1 step 2 is
// "try_lock(victim.deque); on failure abandon and resample" -- a thief
// never blocks waiting for a contended victim, it just treats the steal
// as failed and the caller resamples a (possibly different) victim.
func (d *Deque) StealTop() (closure.ID, bool) {
	if !d.mu.TryLock() {
		return closure.NilID, false
	}
	defer d.mu.Unlock()

	head := d.head.Load()
	tail := d.tail.Load()
	if head >= tail {
		return closure.NilID, false
	}
	id := d.slots[head]
	d.head.Store(head + 1)
	return id, true
}
