package reducer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cilkgo/cilk/internal/hypertable"
)

// fakeStrand is a minimal Strand backed directly by a hypertable.Table,
// standing in for cilk.Context in these unit tests.
type fakeStrand struct {
	tbl *hypertable.Table
}

func newFakeStrand() *fakeStrand { return &fakeStrand{tbl: hypertable.New()} }

func (f *fakeStrand) ReducerView(key uintptr) (any, bool) {
	v, ok := f.tbl.Lookup(key)
	if !ok {
		return nil, false
	}
	return v.Value, true
}

func (f *fakeStrand) SetReducerView(key uintptr, value any, reduce hypertable.ReduceFunc) {
	f.tbl.Insert(key, &hypertable.View{Value: value, Reduce: reduce})
}

func (f *fakeStrand) DeleteReducerView(key uintptr) {
	f.tbl.Remove(key)
}

func TestSumReducerViewAccumulates(t *testing.T) {
	sum := NewSum[int]()
	s := newFakeStrand()

	*sum.View(s) += 5
	*sum.View(s) += 7
	require.Equal(t, 12, *sum.View(s))
}

func TestListReducerViewAppends(t *testing.T) {
	list := NewList[string]()
	s := newFakeStrand()

	*list.View(s) = append(*list.View(s), "a")
	*list.View(s) = append(*list.View(s), "b")
	require.Equal(t, []string{"a", "b"}, *list.View(s))
}

func TestMergeAcrossStrandsLeftToRight(t *testing.T) {
	sum := NewSum[int]()
	left := newFakeStrand()
	right := newFakeStrand()

	*sum.View(left) = 3
	*sum.View(right) = 4

	merged := hypertable.Merge(left.tbl, right.tbl)
	v, ok := merged.Lookup(sum.key())
	require.True(t, ok)
	require.Equal(t, 7, *v.Value.(*int))

	// A list reducer is not commutative, so it shows the merge order.
	list := NewList[string]()
	left2 := newFakeStrand()
	right2 := newFakeStrand()
	*list.View(left2) = append(*list.View(left2), "a")
	*list.View(right2) = append(*list.View(right2), "b")
	v, ok = hypertable.Merge(left2.tbl, right2.tbl).Lookup(list.key())
	require.True(t, ok)
	require.Equal(t, []string{"a", "b"}, *v.Value.(*[]string))
}

func TestUnregisterDropsBinding(t *testing.T) {
	sum := NewSum[int]()
	s := newFakeStrand()

	*sum.View(s) = 9
	sum.Unregister(s)

	_, ok := s.ReducerView(sum.key())
	require.False(t, ok)

	require.Equal(t, 0, *sum.View(s), "a fresh View after Unregister starts from identity again")
}
