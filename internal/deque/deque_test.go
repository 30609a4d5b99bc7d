package deque

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cilkgo/cilk/internal/closure"
)

func TestPushPopLIFOOrder(t *testing.T) {
	d := New(4)
	d.PushBottom(closure.ID(1))
	d.PushBottom(closure.ID(2))
	d.PushBottom(closure.ID(3))

	id, ok := d.PopBottom()
	require.True(t, ok)
	require.Equal(t, closure.ID(3), id)

	id, ok = d.PopBottom()
	require.True(t, ok)
	require.Equal(t, closure.ID(2), id)
}

func TestPopEmptyReturnsFalse(t *testing.T) {
	d := New(4)
	_, ok := d.PopBottom()
	require.False(t, ok)
}

func TestStealTakesFromTop(t *testing.T) {
	d := New(4)
	d.PushBottom(closure.ID(1))
	d.PushBottom(closure.ID(2))
	d.PushBottom(closure.ID(3))

	id, ok := d.StealTop()
	require.True(t, ok)
	require.Equal(t, closure.ID(1), id)
	require.Equal(t, 2, d.Size())
}

func TestStealEmptyReturnsFalse(t *testing.T) {
	d := New(4)
	_, ok := d.StealTop()
	require.False(t, ok)
}

func TestGrowPreservesOrder(t *testing.T) {
	d := New(2)
	for i := 1; i <= 10; i++ {
		d.PushBottom(closure.ID(i))
	}
	require.Equal(t, 10, d.Size())
	for i := 10; i >= 1; i-- {
		id, ok := d.PopBottom()
		require.True(t, ok)
		require.Equal(t, closure.ID(i), id)
	}
}

func TestConcurrentStealsNeverDuplicate(t *testing.T) {
	d := New(8)
	const n = 200
	for i := 1; i <= n; i++ {
		d.PushBottom(closure.ID(i))
	}

	var mu sync.Mutex
	seen := make(map[closure.ID]bool)
	var wg sync.WaitGroup
	record := func(id closure.ID) {
		mu.Lock()
		defer mu.Unlock()
		require.False(t, seen[id], "closure %d stolen/popped more than once", id)
		seen[id] = true
	}

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				id, ok := d.StealTop()
				if !ok {
					return
				}
				record(id)
			}
		}()
	}

	for {
		id, ok := d.PopBottom()
		if !ok {
			break
		}
		record(id)
	}
	wg.Wait()
	require.Equal(t, n, len(seen))
}
