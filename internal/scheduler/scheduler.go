// Package scheduler runs the worker loop, the steal protocol, and the
// spawn/sync/return accounting (spec §4.4 scheduling loop, §4.5 hypertable
// merge-on-return, §4.6 coordination escalation). It wires together
// internal/closure, internal/deque, internal/fiber, internal/hypertable,
// internal/exception, and internal/coordination, which is why this file is
// the busiest one in the module.
//
// The scheduling discipline is help-first fork/join rather than literal
// continuation-stealing: Spawn pushes the child closure onto the caller's
// deque and the caller's goroutine keeps running past the spawn point
// immediately, the way java.util.concurrent.ForkJoinPool's fork() does.
// Sync then either finds its own child still sitting in the deque (pops
// and runs it inline, the cheap common case) or discovers it has already
// been stolen, in which case it steals other ready work while steals
// succeed and otherwise blocks until the child's subtree reports
// completion. This keeps every data structure
// spec.md requires -- the THE-protocol deque, parent/child/sibling
// closure links, join counters, hypertable merge-on-return -- on the hot
// path while staying expressible with ordinary Go calls and goroutines.
package scheduler

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cilkgo/cilk/internal/affinity"
	"github.com/cilkgo/cilk/internal/closure"
	"github.com/cilkgo/cilk/internal/config"
	"github.com/cilkgo/cilk/internal/coordination"
	"github.com/cilkgo/cilk/internal/deque"
	"github.com/cilkgo/cilk/internal/exception"
	"github.com/cilkgo/cilk/internal/ext"
	"github.com/cilkgo/cilk/internal/fiber"
	"github.com/cilkgo/cilk/internal/hypertable"
	"github.com/cilkgo/cilk/internal/rtlog"
	"github.com/cilkgo/cilk/internal/xrand"
)

// exceptionKey is the reserved hypertable key an in-flight user exception
// is stashed under, riding the same merge-on-return machinery real
// reducers use (spec §7: exception propagation is itself a reducer).
// Real reducer keys are pointer-identity addresses from user code; this
// sentinel is chosen far from any plausible heap address.
const exceptionKey uintptr = ^uintptr(0)

// Worker is one scheduling participant: one goroutine running Loop, one
// ready deque, one fiber pool, one RNG stream for victim selection.
type Worker struct {
	id     int
	global *Global
	deque  *deque.Deque
	fibers *fiber.Pool
	rng    *xrand.State
}

// ID returns the worker's index, stable for the process lifetime.
func (w *Worker) ID() int { return w.id }

// Global is the process-wide scheduler state: the closure arena, every
// worker, and the shared coordination/fiber/logging singletons.
type Global struct {
	cfg      config.Options
	arena    *closure.Arena
	workers  []*Worker
	coord    *coordination.State
	fibersG  *fiber.Global
	plan     *affinity.Plan
	log      *rtlog.Log
	active   atomic.Int32

	stopCh chan struct{}
	wg     sync.WaitGroup

	doneMu sync.Mutex
	done   map[closure.ID]chan *hypertable.Table
}

// New builds a Global and its workers from cfg but does not start them;
// call Start to launch the scheduling loops.
func New(cfg config.Options, log *rtlog.Log) *Global {
	n := cfg.NWorkers
	if n < 1 {
		n = 1
	}
	g := &Global{
		cfg:     cfg,
		arena:   closure.NewArena(),
		coord:   coordination.New(),
		fibersG: fiber.NewGlobal(),
		plan:    affinity.NewPlan(cfg.Pin, n),
		log:     log,
		stopCh:  make(chan struct{}),
		done:    make(map[closure.ID]chan *hypertable.Table),
	}
	g.workers = make([]*Worker, n)
	for i := 0; i < n; i++ {
		g.workers[i] = &Worker{
			id:     i,
			global: g,
			deque:  deque.New(cfg.DeqDepth),
			fibers: fiber.NewPool(cfg.FiberPool, cfg.StackSize/4096, g.fibersG),
			rng:    xrand.New(i, false),
		}
	}
	return g
}

// NumWorkers reports how many workers this Global was built with.
func (g *Global) NumWorkers() int { return len(g.workers) }

// Start launches one goroutine per worker, each running Loop until Stop.
func (g *Global) Start() {
	for _, w := range g.workers {
		g.wg.Add(1)
		go func(w *Worker) {
			defer g.wg.Done()
			affinity.Apply(g.plan, w.id)
			w.Loop(g.stopCh)
		}(w)
	}
}

// Stop signals every worker loop to exit and waits for them to do so.
func (g *Global) Stop() {
	close(g.stopCh)
	g.coord.WakeAll()
	g.wg.Wait()
}

func (g *Global) registerRoot(id closure.ID) chan *hypertable.Table {
	ch := make(chan *hypertable.Table, 1)
	g.doneMu.Lock()
	g.done[id] = ch
	g.doneMu.Unlock()
	return ch
}

func (g *Global) finalizeRoot(id closure.ID, combined *hypertable.Table) {
	g.doneMu.Lock()
	ch, ok := g.done[id]
	if ok {
		delete(g.done, id)
	}
	g.doneMu.Unlock()
	if ok {
		ch <- combined
	}
}

// RunRoot enqueues fn as a fresh root closure (spec §4.7
// invoke_cilkified_root) and blocks until its entire spawn tree has
// completed and returned its merged reducer views, which RunRoot returns
// to the caller (exit_cilkified_root). Any exception raised anywhere in
// the tree, once merged to this root, is re-raised here via panic.
func (g *Global) RunRoot(fn func(w *Worker, self *closure.Closure)) *hypertable.Table {
	root := g.arena.Alloc()
	root.Frame = closure.NewFrame(closure.NilID, 0)
	root.Status = closure.Ready
	ch := g.registerRoot(root.ID())

	root.Frame.Continuation = func(workerID int) {
		actual := g.workers[workerID]
		exc := exception.Capture(root.ID(), func() { fn(actual, root) })
		actual.Sync(root)
		actual.finish(root, exc)
	}
	g.workers[0].deque.PushBottom(root.ID())

	combined := <-ch
	if holder := extractException(combined); holder != nil {
		holder.Repanic()
	}
	return combined
}

// Loop is a worker's main scheduling cycle (spec §4.4): try local work
// first, then attempt a random steal, back off to sentinel mode after
// config.SentinelThreshold consecutive empty attempts, and actually park
// itself (spec §4.6 "putting thieves to sleep") once it has been sentinel
// for config.DisengageThreshold further attempts with nothing to do,
// rather than spinning on runtime.Gosched forever.
func (w *Worker) Loop(stop <-chan struct{}) {
	w.global.active.Add(1)
	defer w.global.active.Add(-1)

	failedSteals := 0
	isSentinel := false
	for {
		select {
		case <-stop:
			return
		default:
		}

		if id, ok := w.deque.PopBottom(); ok {
			w.run(id)
			failedSteals = 0
			if isSentinel {
				w.global.coord.ClearSentinel()
				isSentinel = false
			}
			w.global.coord.RecordTick(true)
			continue
		}

		if w.stealOnce() {
			failedSteals = 0
			if isSentinel {
				w.global.coord.ClearSentinel()
				isSentinel = false
			}
			w.global.coord.RecordTick(true)
			continue
		}

		w.global.coord.RecordTick(false)
		failedSteals++
		if failedSteals >= config.SentinelThreshold {
			if !isSentinel {
				w.global.coord.MarkSentinel()
				isSentinel = true
				w.global.log.Alert(config.AlertDisengage, "worker %d entering sentinel mode", w.id)
			}
			if w.global.coord.ShouldRequestReengage(int(w.global.active.Load())) {
				// Recent history (or too few active workers relative to
				// sentinels) says there is work a disengaged worker
				// could help with; wake anyone actually asleep.
				w.global.coord.WakeAll()
			}
			if failedSteals >= config.SentinelThreshold+config.DisengageThreshold {
				w.global.coord.ClearSentinel()
				isSentinel = false
				w.global.coord.Disengage()
				w.global.log.Alert(config.AlertDisengage, "worker %d disengaging", w.id)
				w.global.active.Add(-1)
				w.global.coord.Sleep()
				w.global.active.Add(1)
				w.global.coord.Reengage()
				w.global.log.Alert(config.AlertDisengage, "worker %d reengaging", w.id)
				failedSteals = 0
				continue
			}
		}
		runtime.Gosched()
	}
}

// stealOnce attempts one steal from a random victim other than w.
func (w *Worker) stealOnce() bool {
	n := len(w.global.workers)
	if n <= 1 {
		return false
	}
	victim := w.global.workers[w.rng.VictimOtherThan(w.id, n)]
	if victim == w {
		return false
	}
	id, ok := victim.deque.StealTop()
	if !ok {
		return false
	}
	w.global.log.Alert(config.AlertSteal, "worker %d stole closure %d from worker %d", w.id, id, victim.id)
	w.run(id)
	return true
}

// run executes the continuation stored in a ready closure's frame. It is
// the common entry point whether the closure was popped locally or stolen,
// which makes it the single place a closure's fiber is actually bound to
// the worker driving it (spec §4.3: "transfer happens" at initial resume
// of a stolen closure as much as at a worker's own local pop).
func (w *Worker) run(id closure.ID) {
	c := w.global.arena.Get(id)
	if c == nil {
		return
	}

	f := w.fibers.Get(w.id)
	if parent := w.global.arena.Get(c.SpawnParent); parent != nil {
		parent.Lock(w.id)
		parent.AssertOwner(w.id)
		parent.ChildFiber = f
		parent.Unlock()
	}

	fiber.Transfer(f, w.id, func() {
		f.Enter()
		defer f.Leave()

		c.Lock(w.id)
		c.AssertOwner(w.id)
		c.Status = closure.Running
		c.Frame.Worker = w.id
		c.Fiber = f
		cont := c.Frame.Continuation
		c.Unlock()

		if cont != nil {
			cont(w.id)
		}
	})
}

// Spawn creates a child closure for body, links it under self, and makes
// it stealable by pushing it onto w's own deque (spec §4.2). The caller's
// goroutine continues running immediately after Spawn returns; it is
// Sync, not Spawn, that blocks. body receives whichever worker ends up
// executing it -- w itself if nobody steals it first, or a thief's worker
// otherwise -- since that worker is the one whose deque any further
// nested spawns must land on.
func (w *Worker) Spawn(self *closure.Closure, body func(w *Worker, child *closure.Closure)) *closure.Closure {
	child := w.global.arena.Alloc()
	child.Frame = closure.NewFrame(self.ID(), w.id)
	child.Status = closure.Ready
	child.Frame.Ext = ext.ExtendSpawn(self.Frame.Ext)

	closure.AddChild(self, child, w.id, w.global.arena.Get)
	self.IncrementJoin()

	g := w.global
	child.Frame.Continuation = func(workerID int) {
		actual := g.workers[workerID]
		exc := exception.Capture(child.ID(), func() { body(actual, child) })
		ext.ExtendReturnFromSpawn(child.Frame.Ext)
		actual.finish(child, exc)
	}
	w.deque.PushBottom(child.ID())
	return child
}

// Sync blocks until every child spawned from self has completed (spec
// §4.2): it keeps running closures popped from its own deque (the common
// case, where no thief has touched anything yet) or stolen from a random
// victim, and the first time both the pop and the steal attempt come up
// empty it parks on self's join counter until the count reaches zero.
func (w *Worker) Sync(self *closure.Closure) {
	for self.JoinCount() > 0 {
		if id, ok := w.deque.PopBottom(); ok {
			w.run(id)
			continue
		}
		if w.stealOnce() {
			continue
		}
		if self.JoinCount() > 0 {
			self.WaitForJoin()
		}
		break
	}

	// Every child has now propagated its combined views into self's
	// ChildHT (or, transitively, arrived there via a sibling's RightHT
	// before this point). Fold them into UserHT so that any further
	// reducer View taken by self after this sync sees the up-to-date
	// merged value, matching the real runtime's do_sync behavior.
	self.Lock(w.id)
	self.AssertOwner(w.id)
	self.UserHT = hypertable.Merge(self.UserHT, self.ChildHT)
	self.ChildHT = nil
	self.Unlock()
	ext.ExtendSync(self.Frame.Ext)
}

// finish runs the return protocol for a completed closure (spec §4.5,
// §4.6 "provably-good steal"): fold its own views and its children's
// merged views together, propagate the result to its parent (or, for the
// root, to RunRoot's waiter), decrement the parent's join counter, and
// recycle the closure's id.
func (w *Worker) finish(c *closure.Closure, exc *exception.Holder) {
	c.Lock(w.id)
	c.AssertOwner(w.id)
	c.UserHT = attachException(c.UserHT, exc)
	c.Status = closure.Returning
	userHT, childHT, rightHT := c.UserHT, c.ChildHT, c.RightHT
	c.UserHT, c.ChildHT, c.RightHT = nil, nil, nil
	f := c.Fiber
	c.Fiber = nil
	c.Unlock()

	if f != nil {
		w.fibers.Put(f)
	}

	combined := hypertable.Merge(hypertable.Merge(userHT, childHT), rightHT)
	w.propagate(c, combined)

	parentID := c.SpawnParent
	if parent := w.global.arena.Get(parentID); parent != nil {
		parent.Lock(w.id)
		parent.AssertOwner(w.id)
		if parent.ChildFiber == f {
			parent.ChildFiber = nil
		}
		parent.Unlock()

		c.Lock(w.id)
		closure.RemoveChild(parent, c, w.id, w.global.arena.Get)
		c.Unlock()
	}

	c.Lock(w.id)
	c.AssertOwner(w.id)
	c.Status = closure.PostInvalid
	c.Unlock()
	w.global.arena.Free(c.ID())

	if parent := w.global.arena.Get(parentID); parent != nil {
		parent.DecrementJoin()
	}
}

// propagate delivers a finished closure's combined reducer views upward:
// into the parent's ChildHT if no left sibling remains outstanding, or
// else into the left sibling's RightHT to await that sibling's own
// return, which preserves strict left-to-right reduction order regardless
// of completion order (spec §4.5, §4.6).
func (w *Worker) propagate(c *closure.Closure, combined *hypertable.Table) {
	if c.SpawnParent == closure.NilID {
		w.global.finalizeRoot(c.ID(), combined)
		return
	}
	parent := w.global.arena.Get(c.SpawnParent)
	if parent == nil {
		return
	}

	if left := w.global.arena.Get(c.LeftSib); left != nil && left.Status != closure.PostInvalid {
		left.Lock(w.id)
		left.AssertOwner(w.id)
		left.RightHT = hypertable.Merge(left.RightHT, combined)
		left.Unlock()
		return
	}

	parent.Lock(w.id)
	parent.AssertOwner(w.id)
	parent.ChildHT = hypertable.Merge(parent.ChildHT, combined)
	parent.Unlock()
}

func attachException(t *hypertable.Table, h *exception.Holder) *hypertable.Table {
	if !h.Pending() {
		return t
	}
	if t == nil {
		t = hypertable.New()
	}
	if v, ok := t.Lookup(exceptionKey); ok {
		// An exception merged in from an already-synced child is serially
		// earlier than this closure's own, so it stays the leftmost.
		exception.Reduce(v.Value, h)
		return t
	}
	t.Insert(exceptionKey, &hypertable.View{Value: h, Reduce: exception.Reduce})
	return t
}

func extractException(t *hypertable.Table) *exception.Holder {
	if t == nil {
		return nil
	}
	v, ok := t.Lookup(exceptionKey)
	if !ok {
		return nil
	}
	return v.Value.(*exception.Holder)
}
