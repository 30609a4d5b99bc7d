// Package fiber models the cactus-stack segments closures run on (spec
// §4.3). Go gives every goroutine its own growable stack already, so a
// fiber here is not a raw mmap'd region; it is a reusable execution slot
// -- an owning-worker id plus the currently-running frame -- recycled
// through a per-worker pool exactly as spec.md prescribes, with transfer
// between workers modeled as a direct rebind-and-call on whichever
// goroutine is driving the closure rather than a stack-pointer swap (see
// DESIGN.md for the full rationale). "Guard pages" become a bounded
// recursion-depth counter that panics with ErrStackExhausted when a
// fiber's synchronous call nesting exceeds the depth implied by
// CILK_STACKSIZE, which is the closest Go-native analogue of a guard-page
// fault: a hard, recoverable-by-framework overrun signal rather than a
// silent resource leak.
package fiber

import (
	"errors"
	"sync"
)

// ErrStackExhausted reports a fiber whose nested synchronous call depth
// exceeded its configured budget, analogous to a guard-page fault.
var ErrStackExhausted = errors.New("fiber: stack exhausted")

// Header is the per-fiber recovered state: which worker currently owns
// this fiber and which frame is running on it. In the C original this is
// recovered by masking an interior stack pointer; here it is carried
// explicitly on the Fiber value itself and threaded through calls,
// because Go exposes no portable stack-address arithmetic.
type Header struct {
	Worker int
	Frame  any // *closure.Frame; any to avoid an import cycle with closure
}

// Fiber is a reusable execution context. A Fiber is never run by two
// goroutines concurrently; Transfer below is the only transfer mechanism.
type Fiber struct {
	Header
	depth      int
	maxDepth   int
	generation uint64
}

// newFiber allocates a fresh fiber sized for maxDepth nested synchronous
// spawns before ErrStackExhausted triggers.
func newFiber(maxDepth int) *Fiber {
	return &Fiber{maxDepth: maxDepth}
}

// Enter increments the nesting depth, panicking with ErrStackExhausted if
// the fiber's budget is exceeded. Callers must defer Leave.
func (f *Fiber) Enter() {
	f.depth++
	if f.depth > f.maxDepth {
		panic(ErrStackExhausted)
	}
}

// Leave decrements the nesting depth recorded by Enter.
func (f *Fiber) Leave() {
	f.depth--
}

// Reset reinitializes a fiber's header as if freshly allocated, bumping
// its generation counter so stale references (e.g. a debug-mode registry
// entry) can detect reuse.
func (f *Fiber) Reset(worker int) {
	f.Header = Header{Worker: worker}
	f.depth = 0
	f.generation++
}

// Pool is a per-worker stack of recyclable fibers with a bounded capacity;
// excess fibers are migrated to a shared Global pool in batches (spec
// §4.3: GLOBAL_POOL_RATIO / BATCH_FRACTION).
type Pool struct {
	mu       sync.Mutex
	free     []*Fiber
	cap      int
	maxDepth int
	global   *Global
}

// Global is the process-wide overflow pool fibers rebalance into.
type Global struct {
	mu   sync.Mutex
	free []*Fiber
}

// NewGlobal creates an empty shared overflow pool.
func NewGlobal() *Global { return &Global{} }

const (
	globalPoolRatio = 4   // local cap : global migration chunk ratio
	batchFractionNum = 1
	batchFractionDen = 4
)

// NewPool creates a per-worker fiber pool. Once more than
// cap*globalPoolRatio idle fibers are held locally, a batch is migrated
// to global.
func NewPool(cap, maxDepth int, global *Global) *Pool {
	if cap < 1 {
		cap = 1
	}
	return &Pool{cap: cap, maxDepth: maxDepth, global: global}
}

// Get acquires a fiber from the local pool, the global pool, or allocates
// a fresh one, in that order (spec §4.3: "On cache miss the pool requests
// from the global pool; on global miss it mmap's a region").
func (p *Pool) Get(worker int) *Fiber {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		f := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		f.Reset(worker)
		return f
	}
	p.mu.Unlock()

	if p.global != nil {
		if f := p.global.take(); f != nil {
			f.Reset(worker)
			return f
		}
	}

	f := newFiber(p.maxDepth)
	f.Reset(worker)
	return f
}

// Put returns a fiber to the pool, migrating a batch to the global pool
// when the local pool overflows its capacity.
func (p *Pool) Put(f *Fiber) {
	p.mu.Lock()
	p.free = append(p.free, f)
	if len(p.free) > p.cap*globalPoolRatio && p.global != nil {
		batch := len(p.free) * batchFractionNum / batchFractionDen
		if batch < 1 {
			batch = 1
		}
		migrating := p.free[:batch]
		p.free = p.free[batch:]
		p.mu.Unlock()
		p.global.give(migrating)
		return
	}
	p.mu.Unlock()
}

func (g *Global) take() *Fiber {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := len(g.free)
	if n == 0 {
		return nil
	}
	f := g.free[n-1]
	g.free = g.free[:n-1]
	return f
}

func (g *Global) give(fibers []*Fiber) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.free = append(g.free, fibers...)
}

// Transfer rebinds f's owning worker to newWorker and runs continuation,
// which is the body that actually executes on f (spec §4.3: "transfer
// happens at the same four points" -- here, every point a closure's
// continuation runs, whether on the worker that created it or a thief).
// The contract (spec §9 Design Notes): no in-flight deferred cleanup may
// straddle the transfer, and no references to the old continuation's
// locals survive it except through the closure's own fields -- the
// continuation closure is expected to only close over heap state
// reachable from the closure tree.
func Transfer(f *Fiber, newWorker int, continuation func()) {
	f.Header.Worker = newWorker
	continuation()
}
