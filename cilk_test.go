package cilk_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cilkgo/cilk"
	"github.com/cilkgo/cilk/reducer"
)

func fib(c *cilk.Context, n int, result *int) {
	if n < 2 {
		*result = n
		return
	}
	var a, b int
	c.Spawn(func(c *cilk.Context) { fib(c, n-1, &a) })
	fib(c, n-2, &b)
	c.Sync()
	*result = a + b
}

func TestFibonacciSpawnSync(t *testing.T) {
	var result int
	cilk.Do(func(c *cilk.Context) {
		fib(c, 20, &result)
	})
	require.Equal(t, 6765, result)
}

func TestSumReducerAcrossParallelFor(t *testing.T) {
	sum := reducer.NewSum[int]()
	var total int

	cilk.Do(func(c *cilk.Context) {
		c.For(0, 1000, 16, func(c *cilk.Context, i int) {
			*sum.View(c) += i
		})
		total = *sum.View(c)
	})

	require.Equal(t, (999*1000)/2, total)
}

func TestListReducerPreservesOrderWithinASerialRegion(t *testing.T) {
	list := reducer.NewList[int]()
	var collected []int

	cilk.Do(func(c *cilk.Context) {
		for i := 0; i < 8; i++ {
			*list.View(c) = append(*list.View(c), i)
		}
		collected = *list.View(c)
	})

	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, collected)
}

func TestPanicInSpawnedStrandPropagates(t *testing.T) {
	require.PanicsWithValue(t, "deliberate", func() {
		cilk.Do(func(c *cilk.Context) {
			c.Spawn(func(c *cilk.Context) { panic("deliberate") })
			c.Sync()
		})
	})
}

func TestAtInitAtExitRunInOrder(t *testing.T) {
	var order []string
	require.NoError(t, cilk.AtInit(func() { order = append(order, "init") }))
	require.NoError(t, cilk.AtExit(func() { order = append(order, "exit") }))

	cilk.Do(func(c *cilk.Context) {
		order = append(order, "body")
	})

	require.Contains(t, order, "init")
	require.Contains(t, order, "body")
	require.Contains(t, order, "exit")
	require.Equal(t, []string{"init", "body", "exit"}, order)
}

func TestAtInitRunsForwardAtExitRunsReverse(t *testing.T) {
	var order []string
	require.NoError(t, cilk.AtInit(func() { order = append(order, "init-A") }))
	require.NoError(t, cilk.AtInit(func() { order = append(order, "init-B") }))
	require.NoError(t, cilk.AtExit(func() { order = append(order, "exit-A") }))
	require.NoError(t, cilk.AtExit(func() { order = append(order, "exit-B") }))

	cilk.Do(func(c *cilk.Context) {})

	indexOf := func(s string) int {
		for i, v := range order {
			if v == s {
				return i
			}
		}
		t.Fatalf("%q not found in %v", s, order)
		return -1
	}

	// AtInit callbacks registered A then B must run A before B.
	require.Less(t, indexOf("init-A"), indexOf("init-B"))
	// AtExit callbacks registered A then B must run B before A (spec.md
	// §6 "exit in reverse", matching C's atexit semantics).
	require.Less(t, indexOf("exit-B"), indexOf("exit-A"))
}
