// Package closure implements the scheduler's view of a suspended or
// runnable task (spec §3 "Closure", §4.2 lifecycle) and the compiler-facing
// stack frame it corresponds to (spec §3 "StackFrame"). Closures live in a
// dense arena indexed by ID rather than as a web of owning pointers, per
// spec §9 Design Notes ("pointer graph with cycles... implement as an
// arena of closures indexed by a dense id; sibling/parent/child are ids,
// not owning pointers").
package closure

import (
	"sync"
	"sync/atomic"

	"github.com/cilkgo/cilk/internal/debugrt"
	"github.com/cilkgo/cilk/internal/ext"
	"github.com/cilkgo/cilk/internal/fiber"
	"github.com/cilkgo/cilk/internal/hypertable"
	"github.com/cilkgo/cilk/internal/syncx"
)

// ID is a dense, arena-relative closure identifier. The zero value NilID
// never denotes a live closure.
type ID uint32

// NilID is the "no closure" sentinel, matching a null pointer in the
// original graph representation.
const NilID ID = 0

// Status is the closure's lifecycle state; spec §4.2 state machine.
type Status int32

const (
	PreInvalid Status = iota
	Ready
	Running
	Suspended
	Returning
	PostInvalid
)

func (s Status) String() string {
	switch s {
	case PreInvalid:
		return "PRE_INVALID"
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Suspended:
		return "SUSPENDED"
	case Returning:
		return "RETURNING"
	case PostInvalid:
		return "POST_INVALID"
	default:
		return "UNKNOWN"
	}
}

// Flags is the StackFrame bitfield; layout must stay bit-exact (spec §6).
type Flags uint32

const (
	Stolen Flags = 1 << iota
	Detached
	Unsynched
	ExceptionPending
	Last
	Throwing
)

// MagicVersion tags the ABI version (high 16 bits) and a structural hash
// of the Frame layout (low 16 bits), verified on entry (spec §6).
const MagicVersion uint32 = 0x0001<<16 | 0x43c7

// Frame is the compiler-emitted record for a spawning function (spec §3).
type Frame struct {
	Flags      Flags
	Magic      uint32
	CallParent ID
	Worker     int
	// Continuation stands in for the jump buffer: it is the Go closure
	// that resumes execution exactly where a real jmpbuf would have
	// restored FP/PC/SP/MXCSR (spec §3, §9 Design Notes). It takes the id
	// of whichever worker goroutine is actually invoking it -- the owner
	// at spawn time and the thief after a steal are not the same worker,
	// so the executing worker's identity can only be bound at call time.
	Continuation func(workerID int)
	Ext          *ext.Frame
}

// NewFrame allocates a correctly tagged frame.
func NewFrame(callParent ID, worker int) *Frame {
	return &Frame{Magic: MagicVersion, CallParent: callParent, Worker: worker}
}

// VerifyMagic checks the ABI/layout tag, matching the fatal-on-corruption
// contract of spec §4.1 ("A malformed... or corrupted magic frame is
// fatal").
func VerifyMagic(f *Frame) bool {
	return f != nil && f.Magic == MagicVersion
}

// NoWorker is the sentinel stored in mutexOwner when a closure's mutex is
// unheld.
const NoWorker int32 = -1

// Closure is the scheduler's task descriptor (spec §3 "Closure").
type Closure struct {
	id ID

	mu         syncx.TryMutex
	mutexOwner atomic.Int32

	Status Status
	Frame  *Frame

	Fiber      *fiber.Fiber
	ChildFiber *fiber.Fiber

	HasCilkCallee    bool
	SimulatedStolen  bool
	ExceptionPending bool

	JoinCounter int32

	// OrigContinuation is restored on a successful sync, the Go analogue
	// of orig_rsp (spec §3).
	OrigContinuation func()

	Callee     ID
	CallParent ID
	SpawnParent ID
	LeftSib    ID
	RightSib   ID
	RightmostChild ID

	NextReady ID
	PrevReady ID

	UserHT  *hypertable.Table
	ChildHT *hypertable.Table
	RightHT *hypertable.Table

	OwnerReadyDeque int

	joinMu   sync.Mutex
	joinCond *sync.Cond
}

func newClosure(id ID) *Closure {
	c := &Closure{id: id, Status: PreInvalid, CallParent: NilID, SpawnParent: NilID, LeftSib: NilID, RightSib: NilID, RightmostChild: NilID}
	c.mutexOwner.Store(NoWorker)
	c.joinCond = sync.NewCond(&c.joinMu)
	return c
}

// ID returns the closure's dense arena id.
func (c *Closure) ID() ID { return c.id }

// Lock acquires the closure's mutex on behalf of worker. Closure mutexes
// are always acquired parent-before-child (spec §5) and never held across
// a fiber transfer.
func (c *Closure) Lock(worker int) {
	c.mu.Lock()
	c.mutexOwner.Store(int32(worker))
}

// Unlock releases the closure's mutex.
func (c *Closure) Unlock() {
	c.mutexOwner.Store(NoWorker)
	c.mu.Unlock()
}

// AssertOwner panics (via debugrt.Bug) if worker does not hold the
// closure's mutex -- the owner assertion the spec's debug subsystem makes
// before any mutation.
func (c *Closure) AssertOwner(worker int) {
	debugrt.Assert(c.mutexOwner.Load() == int32(worker), "closure",
		"closure %d mutated by worker %d without holding its mutex (owner=%d)", c.id, worker, c.mutexOwner.Load())
}

// WaitForJoin blocks until JoinCounter reaches zero. It is the Go-native
// realization of a closure transitioning to SUSPENDED at a failed sync and
// later being resumed by the provably-good steal rule (spec §4.2): since
// Go goroutines already have their own stack, "suspension" here is simply
// this goroutine blocking on joinCond rather than a fiber/stack swap.
func (c *Closure) WaitForJoin() {
	c.joinMu.Lock()
	defer c.joinMu.Unlock()
	for atomic.LoadInt32(&c.JoinCounter) > 0 {
		c.joinCond.Wait()
	}
}

// DecrementJoin atomically decrements JoinCounter and, if it reaches
// zero, wakes any goroutine blocked in WaitForJoin -- the provably-good
// steal signal (spec §4.2, §4.6).
func (c *Closure) DecrementJoin() int32 {
	c.joinMu.Lock()
	defer c.joinMu.Unlock()
	c.JoinCounter--
	n := c.JoinCounter
	if n <= 0 {
		c.joinCond.Broadcast()
	}
	return n
}

// IncrementJoin atomically increments JoinCounter; called by Spawn before
// a child closure is made stealable (spec §4.2 invariant: join_counter
// equals the number of outstanding children).
func (c *Closure) IncrementJoin() int32 {
	c.joinMu.Lock()
	defer c.joinMu.Unlock()
	c.JoinCounter++
	return c.JoinCounter
}

// JoinCount safely reads the current join counter; JoinCounter itself must
// never be read or written outside joinMu since multiple finishing
// children decrement it concurrently.
func (c *Closure) JoinCount() int32 {
	c.joinMu.Lock()
	defer c.joinMu.Unlock()
	return c.JoinCounter
}

// AddChild links child onto the doubly-linked sibling list headed by
// RightmostChild (spec §3 invariant: "RightmostChild is the tail of the
// doubly-linked list formed by LeftSib/RightSib among spawned children").
// lookup resolves the previous rightmost child (if any) so its RightSib
// can be fixed up to point at the newly spawned child, the same
// arena-aware pattern RemoveChild uses below. worker is used to acquire
// the previous rightmost child's own mutex before mutating its RightSib,
// since that closure may belong to a different worker's deque entirely
// and must not be touched without holding its lock.
func AddChild(parent, child *Closure, worker int, lookup func(ID) *Closure) {
	parent.Lock(worker)
	child.SpawnParent = parent.id
	child.LeftSib = parent.RightmostChild
	prevID := parent.RightmostChild
	parent.RightmostChild = child.id
	parent.Unlock()
	child.RightSib = NilID

	if prevID != NilID {
		if prev := lookup(prevID); prev != nil {
			prev.Lock(worker)
			prev.RightSib = child.id
			prev.Unlock()
		}
	}
}

// RemoveChild unlinks child from its sibling list, restoring the parent's
// RightmostChild to the prior sibling when child was the tail (spec §8
// round-trip property: AddChild;RemoveChild restores RightmostChild).
// worker is used to acquire each touched closure's own mutex in turn
// (never nested) before mutating it, since parent/left/right may each
// belong to a different worker's deque. Callers must already hold
// child's own mutex.
func RemoveChild(parent *Closure, child *Closure, worker int, lookup func(ID) *Closure) {
	child.AssertOwner(worker)
	parent.Lock(worker)
	if parent.RightmostChild == child.id {
		parent.RightmostChild = child.LeftSib
	}
	parent.Unlock()
	if child.LeftSib != NilID {
		if left := lookup(child.LeftSib); left != nil {
			left.Lock(worker)
			left.RightSib = child.RightSib
			left.Unlock()
		}
	}
	if child.RightSib != NilID {
		if right := lookup(child.RightSib); right != nil {
			right.Lock(worker)
			right.LeftSib = child.LeftSib
			right.Unlock()
		}
	}
	child.LeftSib = NilID
	child.RightSib = NilID
	child.SpawnParent = NilID
}

// Arena allocates closures by dense id and recycles freed ids, per spec §9
// Design Notes.
type Arena struct {
	mu    sync.Mutex
	slots []*Closure
	free  []ID
}

// NewArena creates an empty arena. Id 0 (NilID) is never issued.
func NewArena() *Arena {
	return &Arena{slots: make([]*Closure, 1)} // index 0 reserved as NilID
}

// Alloc returns a fresh or recycled closure, transitioning it to
// PreInvalid->Ready is the caller's responsibility once it is fully
// initialized.
func (a *Arena) Alloc() *Closure {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.free); n > 0 {
		id := a.free[n-1]
		a.free = a.free[:n-1]
		c := a.slots[id]
		*c = *newClosure(id)
		return c
	}

	id := ID(len(a.slots))
	c := newClosure(id)
	a.slots = append(a.slots, c)
	return c
}

// Get looks up a closure by id. Returns nil for NilID or an out-of-range id.
func (a *Arena) Get(id ID) *Closure {
	if id == NilID {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(id) >= len(a.slots) {
		return nil
	}
	return a.slots[id]
}

// Free returns id to the free list after marking the closure POST_INVALID.
func (a *Arena) Free(id ID) {
	if id == NilID {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(id) >= len(a.slots) {
		return
	}
	a.slots[id].Status = PostInvalid
	a.free = append(a.free, id)
}
