package hypertable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sumReduce(dst, src any) {
	d := dst.(*int)
	s := src.(*int)
	*d += *s
}

func view(v int) *View {
	val := v
	return &View{Value: &val, Reduce: sumReduce}
}

func TestInsertLookupRemoveRoundTrip(t *testing.T) {
	tb := New()
	tb.Insert(1, view(10))
	v, ok := tb.Lookup(1)
	require.True(t, ok)
	require.Equal(t, 10, *v.Value.(*int))

	require.True(t, tb.Remove(1))
	_, ok = tb.Lookup(1)
	require.False(t, ok)
}

func TestLinearToHashedPromotion(t *testing.T) {
	tb := New()
	for i := uintptr(1); i <= 2*MinHTCapacity; i++ {
		tb.Insert(i, view(int(i)))
	}
	require.True(t, tb.isHashed())
	require.Equal(t, 2*MinHTCapacity, tb.Len())
	for i := uintptr(1); i <= 2*MinHTCapacity; i++ {
		v, ok := tb.Lookup(i)
		require.True(t, ok)
		require.Equal(t, int(i), *v.Value.(*int))
	}
}

func TestCapacityBoundaries(t *testing.T) {
	tb := New()
	for i := uintptr(1); i <= MinCapacity; i++ {
		tb.Insert(i, view(1))
	}
	// still linear below MinHTCapacity
	require.False(t, tb.isHashed())

	for i := uintptr(MinCapacity + 1); i <= MinHTCapacity; i++ {
		tb.Insert(i, view(1))
	}
	require.True(t, tb.isHashed())
	require.Equal(t, MinHTCapacity, tb.Len())
}

func TestMergeEmptyIsIdentity(t *testing.T) {
	tb := New()
	tb.Insert(1, view(5))
	empty := New()

	merged := Merge(tb, empty)
	require.Same(t, tb, merged)
	v, ok := merged.Lookup(1)
	require.True(t, ok)
	require.Equal(t, 5, *v.Value.(*int))

	merged2 := Merge(empty, tb)
	require.Same(t, tb, merged2)
}

func TestMergeLeftToRightOrder(t *testing.T) {
	left := New()
	left.Insert(1, view(3))
	right := New()
	right.Insert(1, view(4))

	merged := Merge(left, right)
	v, ok := merged.Lookup(1)
	require.True(t, ok)
	require.Equal(t, 7, *v.Value.(*int))

	// A non-commutative reduce shows which view came first.
	concat := func(dst, src any) { *dst.(*string) += *src.(*string) }
	l, r := "L", "R"
	left2 := New()
	left2.Insert(2, &View{Value: &l, Reduce: concat})
	right2 := New()
	right2.Insert(2, &View{Value: &r, Reduce: concat})
	v, ok = Merge(left2, right2).Lookup(2)
	require.True(t, ok)
	require.Equal(t, "LR", *v.Value.(*string))
}

func TestMergeDisjointKeys(t *testing.T) {
	left := New()
	for i := uintptr(1); i <= 20; i++ {
		left.Insert(i, view(int(i)))
	}
	right := New()
	for i := uintptr(21); i <= 25; i++ {
		right.Insert(i, view(int(i)))
	}
	merged := Merge(left, right)
	require.Equal(t, 25, merged.Len())
	for i := uintptr(1); i <= 25; i++ {
		v, ok := merged.Lookup(i)
		require.True(t, ok)
		require.Equal(t, int(i), *v.Value.(*int))
	}
}

func TestRebuildUnderLoad(t *testing.T) {
	tb := New()
	const n = 64
	for i := uintptr(1); i <= n; i++ {
		tb.Insert(i, view(int(i)))
	}
	for i := uintptr(1); i <= n-4; i++ {
		require.True(t, tb.Remove(i))
	}
	require.Equal(t, 4, tb.Len())
	for i := uintptr(n - 3); i <= n; i++ {
		v, ok := tb.Lookup(i)
		require.True(t, ok)
		require.Equal(t, int(i), *v.Value.(*int))
	}
}
