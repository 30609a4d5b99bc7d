// Package exception models a pending user exception as an ordinary
// reducer value (spec §7): identity is "nothing thrown", and merging two
// views keeps whichever is leftmost in strand order, discarding the other.
// Go's panic/recover stands in for the personality-routine unwind the
// original runtime performs; Capture is the boundary every spawn helper
// wraps its child invocation in.
package exception

import (
	"github.com/cilkgo/cilk/internal/closure"
	"github.com/cilkgo/cilk/internal/debugrt"
)

// Exception records a single recovered panic value and the closure it
// originated on, kept only for diagnostics.
type Exception struct {
	Value  any
	Origin closure.ID
}

// Holder is the per-strand reducer view threaded through the hypertable
// merge machinery. A nil Exc is the identity element.
type Holder struct {
	Exc *Exception
}

// NewHolder returns the identity value: no exception pending.
func NewHolder() *Holder { return &Holder{} }

// Reduce merges src into dst, keeping dst's exception if it already has
// one (dst is always the left/earlier strand in the caller's merge
// order) and discarding src's, per spec §7's leftmost-wins rule. The
// discarded exception is dropped so nothing downstream observes or
// re-panics on it.
func Reduce(dst, src any) {
	d := dst.(*Holder)
	s := src.(*Holder)
	if d.Exc == nil {
		d.Exc = s.Exc
	}
	s.Exc = nil
}

// Capture runs fn, recovering any user panic into the returned Holder
// instead of letting it propagate past the spawn boundary; a
// debugrt.BugError is re-raised rather than held. Use Repanic once all
// sibling views have been merged to restore the original panic semantics
// exactly once, at the sync point.
func Capture(origin closure.ID, fn func()) (holder *Holder) {
	holder = NewHolder()
	defer func() {
		if r := recover(); r != nil {
			if debugrt.IsBug(r) {
				panic(r)
			}
			holder.Exc = &Exception{Value: r, Origin: origin}
		}
	}()
	fn()
	return holder
}

// Repanic re-raises the held exception, if any. Called after a sync has
// merged every child's view into the parent's, so at most one exception
// survives to be re-raised (spec §7).
func (h *Holder) Repanic() {
	if h != nil && h.Exc != nil {
		panic(h.Exc.Value)
	}
}

// Pending reports whether an exception is currently held.
func (h *Holder) Pending() bool {
	return h != nil && h.Exc != nil
}
