// Package reducer is the public hyperobject API (spec §6): a reducer lets
// concurrently spawned strands each accumulate into their own private
// view of a value, merged together in strict left-to-right spawn order
// whenever two strands sync, without forcing them to serialize on a
// shared mutable variable. Internally each registered Hyperobject is just
// a reserved key into the hypertable of the closure the current strand
// runs in (internal/hypertable); this package only adds the typed, identity- and
// reduce-function-carrying facade over that untyped storage.
package reducer

import (
	"unsafe"

	"github.com/cilkgo/cilk/internal/hypertable"
)

// ReduceFunc merges src into dst in place. Called at most once per pair of
// sibling strand views, in strict left-to-right order.
type ReduceFunc[V any] func(dst, src *V)

// Strand is the minimal view of "the currently executing spawn tree
// position" a Hyperobject needs in order to read or create its
// per-strand view. cilk.Context implements this; it is expressed as an
// interface here, rather than importing the cilk package directly, to
// avoid an import cycle (cilk imports reducer, not the reverse).
type Strand interface {
	ReducerView(key uintptr) (any, bool)
	SetReducerView(key uintptr, value any, reduce hypertable.ReduceFunc)
	DeleteReducerView(key uintptr)
}

// Hyperobject is a registered reducer identity (spec §6 Register). Its
// key is its own heap address, mirroring the pointer-identity reducer
// handles the underlying hypertable already assumes. The zero value is
// not usable; construct with Register.
type Hyperobject[V any] struct {
	identity func() V
	reduce   ReduceFunc[V]
}

// Register creates a new reducer identity. identity produces the
// per-strand zero/neutral element on first access; reduce folds a
// later-spawned strand's view into an earlier one.
func Register[V any](identity func() V, reduce ReduceFunc[V]) *Hyperobject[V] {
	return &Hyperobject[V]{identity: identity, reduce: reduce}
}

func (h *Hyperobject[V]) key() uintptr {
	return uintptr(unsafe.Pointer(h))
}

// View returns the calling strand's current value for h, lazily creating
// it from identity() on first access within that strand (spec §6).
func (h *Hyperobject[V]) View(s Strand) *V {
	if v, ok := s.ReducerView(h.key()); ok {
		return v.(*V)
	}
	val := h.identity()
	ptr := &val
	s.SetReducerView(h.key(), ptr, func(dst, src any) {
		h.reduce(dst.(*V), src.(*V))
	})
	return ptr
}

// Unregister drops the calling strand's binding to h. A reducer
// registered inside a spawned strand and unregistered before that
// strand's sync does not survive into the parent's view after the sync
// (spec §9 Open Question decision).
func (h *Hyperobject[V]) Unregister(s Strand) {
	s.DeleteReducerView(h.key())
}

// Numeric is the constraint accepted by NewSum.
type Numeric interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// NewSum builds a reducer that accumulates additions across strands,
// grounded on the original runtime's opadd_reducer/intsum benchmark: every
// strand keeps a private running total, folded by addition at each sync.
func NewSum[T Numeric]() *Hyperobject[T] {
	return Register(
		func() T { var zero T; return zero },
		func(dst, src *T) { *dst += *src },
	)
}

// NewList builds a reducer that accumulates appended elements across
// strands in left-to-right spawn order, grounded on the original
// runtime's intlist reducer benchmark.
func NewList[T any]() *Hyperobject[[]T] {
	return Register(
		func() []T { return nil },
		func(dst, src *[]T) { *dst = append(*dst, *src...) },
	)
}
