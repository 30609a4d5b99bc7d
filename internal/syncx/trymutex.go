// Package syncx provides the non-blocking mutex primitive the THE-protocol
// steal path needs: a thief must be able to *abort* a lock attempt instead
// of blocking (spec §4.1 step 2: "try_lock(victim.deque); on failure
// abandon and resample"). sync.Mutex exposes no TryLock on older Go
// versions and, more importantly, the promote path later needs a mutex
// primitive whose ownership can be asserted and whose state is inspectable
// by a party other than the locker (spec §9 Design Notes) -- properties a
// vanilla sync.Mutex deliberately does not provide.
package syncx

import "sync/atomic"

// TryMutex is a CAS-based mutual exclusion lock that supports a
// non-blocking TryLock in addition to a blocking Lock.
type TryMutex struct {
	state atomic.Bool
}

// TryLock attempts to acquire the lock without blocking. It reports
// whether the lock was acquired.
func (m *TryMutex) TryLock() bool {
	return m.state.CompareAndSwap(false, true)
}

// Lock blocks (via a tight CAS retry with backoff) until the lock is
// acquired. Callers are a deque's owner (to grow the deque or settle a
// pop race) and any worker taking a closure's mutex; both hold the lock
// only briefly.
func (m *TryMutex) Lock() {
	for i := 0; ; i++ {
		if m.state.CompareAndSwap(false, true) {
			return
		}
		spinBackoff(i)
	}
}

// Unlock releases the lock. Unlock by a non-owner is a programmer error
// the caller is responsible for avoiding; unlike sync.Mutex, the zero
// value does not track an owner goroutine, so no runtime check is made.
func (m *TryMutex) Unlock() {
	m.state.Store(false)
}

// Locked reports whether the mutex is currently held. Intended for debug
// assertions only.
func (m *TryMutex) Locked() bool {
	return m.state.Load()
}

func spinBackoff(attempt int) {
	n := attempt
	if n > 6 {
		n = 6
	}
	for i := 0; i < (1 << n); i++ {
		// busy-wait; procyield is not exported outside the runtime package,
		// so a plain empty loop is the portable equivalent.
	}
}
