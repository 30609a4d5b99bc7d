// Package cilk is the public fork/join API (spec §6): Do opens a region,
// Context.Spawn offers work that may run concurrently with the caller,
// and Context.Sync waits for everything spawned since the last sync to
// finish. The worker pool that actually executes spawned work is
// bootstrapped lazily, on first use, exactly once per process.
package cilk

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/cilkgo/cilk/internal/closure"
	"github.com/cilkgo/cilk/internal/config"
	"github.com/cilkgo/cilk/internal/hypertable"
	"github.com/cilkgo/cilk/internal/rtlog"
	"github.com/cilkgo/cilk/internal/scheduler"
)

// ErrTooManyCallbacks is returned by AtInit/AtExit once config.MaxCallbacks
// registrations already exist.
var ErrTooManyCallbacks = errors.New("cilk: too many AtInit/AtExit callbacks registered")

// ErrAlreadyInitialized is returned by SetNumWorkers once the worker pool
// has already started.
var ErrAlreadyInitialized = errors.New("cilk: runtime already initialized; SetNumWorkers must be called before the first Do")

// Context is the handle a spawned (or root) strand uses to spawn further
// work, sync, register reducer views, and run parallel loops. A Context
// is only valid for the duration of the call it was handed to; do not
// retain one past the body it was passed into.
type Context struct {
	w    *scheduler.Worker
	self *closure.Closure
}

// ReducerView implements reducer.Strand.
func (c *Context) ReducerView(key uintptr) (any, bool) {
	c.self.Lock(c.w.ID())
	defer c.self.Unlock()
	if c.self.UserHT == nil {
		return nil, false
	}
	v, ok := c.self.UserHT.Lookup(key)
	if !ok {
		return nil, false
	}
	return v.Value, true
}

// SetReducerView implements reducer.Strand.
func (c *Context) SetReducerView(key uintptr, value any, reduce hypertable.ReduceFunc) {
	c.self.Lock(c.w.ID())
	defer c.self.Unlock()
	if c.self.UserHT == nil {
		c.self.UserHT = hypertable.New()
	}
	c.self.UserHT.Insert(key, &hypertable.View{Value: value, Reduce: reduce})
}

// DeleteReducerView implements reducer.Strand.
func (c *Context) DeleteReducerView(key uintptr) {
	c.self.Lock(c.w.ID())
	defer c.self.Unlock()
	if c.self.UserHT != nil {
		c.self.UserHT.Remove(key)
	}
}

// Spawn offers fn as work that may run concurrently with the caller's
// continuation (spec §6). fn is given a Context bound to whichever worker
// ends up executing it.
func (c *Context) Spawn(fn func(c *Context)) {
	c.w.Spawn(c.self, func(w *scheduler.Worker, child *closure.Closure) {
		fn(&Context{w: w, self: child})
	})
}

// Sync blocks until every strand spawned by c since the last Sync has
// completed (spec §6).
func (c *Context) Sync() {
	c.w.Sync(c.self)
}

// For runs body(c, i) for each i in [lo, hi) as a divide-and-conquer
// parallel loop, splitting down to chunks of at most grain iterations
// (spec §10: cilk_for parity reinstated from original_source, dropped
// from the distilled spec's operation list but present throughout
// bench/*.c).
func (c *Context) For(lo, hi, grain int, body func(c *Context, i int)) {
	if grain < 1 {
		grain = 1
	}
	var rec func(c *Context, lo, hi int)
	rec = func(c *Context, lo, hi int) {
		if hi-lo <= grain {
			for i := lo; i < hi; i++ {
				body(c, i)
			}
			return
		}
		mid := lo + (hi-lo)/2
		c.Spawn(func(c *Context) { rec(c, lo, mid) })
		rec(c, mid, hi)
		c.Sync()
	}
	rec(c, lo, hi)
}

var (
	globalOnce      sync.Once
	global          *scheduler.Global
	initialized     atomic.Bool
	pendingNWorkers atomic.Int32

	callbackMu sync.Mutex
	initCbs    []func()
	exitCbs    []func()
)

func bootstrap() {
	cfg := config.FromEnvironment()
	if n := pendingNWorkers.Load(); n > 0 {
		cfg.NWorkers = int(n)
	}
	log := rtlog.New(cfg.Alert)
	g := scheduler.New(cfg, log)
	g.Start()
	global = g
	initialized.Store(true)
}

// Do runs fn as the body of a fresh cilk region (spec §4.7
// invoke_cilkified_root/exit_cilkified_root), blocking until fn and
// everything it spawned have completed, including an implicit final sync.
// Any exception raised anywhere in the spawn tree, once merged back to
// the root in leftmost-strand order, is re-raised from Do as a panic.
func Do(fn func(c *Context)) {
	globalOnce.Do(bootstrap)
	runCallbacksForward(initCbs)
	global.RunRoot(func(w *scheduler.Worker, self *closure.Closure) {
		fn(&Context{w: w, self: self})
	})
	runCallbacksReverse(exitCbs)
}

// runCallbacksForward runs AtInit callbacks in registration order (spec
// §6: atinit callbacks run in the order registered).
func runCallbacksForward(cbs []func()) {
	snapshot := snapshotCallbacks(cbs)
	for _, cb := range snapshot {
		cb()
	}
}

// runCallbacksReverse runs AtExit callbacks in reverse registration order,
// matching C's atexit semantics (spec.md/SPEC_FULL.md §6: "exit in
// reverse").
func runCallbacksReverse(cbs []func()) {
	snapshot := snapshotCallbacks(cbs)
	for i := len(snapshot) - 1; i >= 0; i-- {
		snapshot[i]()
	}
}

func snapshotCallbacks(cbs []func()) []func() {
	callbackMu.Lock()
	defer callbackMu.Unlock()
	return append([]func(){}, cbs...)
}

// AtInit registers a callback run, in registration order, at the start of
// every Do region (spec §6).
func AtInit(cb func()) error {
	callbackMu.Lock()
	defer callbackMu.Unlock()
	if len(initCbs) >= config.MaxCallbacks {
		return ErrTooManyCallbacks
	}
	initCbs = append(initCbs, cb)
	return nil
}

// AtExit registers a callback run, in reverse registration order, at the
// end of every Do region (spec §6).
func AtExit(cb func()) error {
	callbackMu.Lock()
	defer callbackMu.Unlock()
	if len(exitCbs) >= config.MaxCallbacks {
		return ErrTooManyCallbacks
	}
	exitCbs = append(exitCbs, cb)
	return nil
}

// SetNumWorkers overrides the worker count the runtime will use, but only
// before the first Do call bootstraps it; afterwards it returns
// ErrAlreadyInitialized (spec §6, matching CILK_NWORKERS being read once
// at startup).
func SetNumWorkers(n int) error {
	if n < 1 {
		return errors.New("cilk: n must be >= 1")
	}
	if IsInitialized() {
		return ErrAlreadyInitialized
	}
	pendingNWorkers.Store(int32(n))
	return nil
}

// NumWorkers reports how many workers the runtime is configured with,
// bootstrapping it on first call if necessary (spec §6).
func NumWorkers() int {
	globalOnce.Do(bootstrap)
	return global.NumWorkers()
}

// IsInitialized reports whether the worker pool has started.
func IsInitialized() bool {
	return initialized.Load()
}

// RunningOnWorkers reports whether c is bound to a live worker -- true for
// every Context reachable from inside a Do region.
func RunningOnWorkers(c *Context) bool {
	return c != nil && c.w != nil
}
