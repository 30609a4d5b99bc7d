package fiber

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetPutReinitializesHeader(t *testing.T) {
	pool := NewPool(2, 64, NewGlobal())

	f := pool.Get(0)
	f.Header.Frame = "frame-a"
	gen := f.generation
	pool.Put(f)

	f2 := pool.Get(1)
	require.Same(t, f, f2, "expected the single pooled fiber to be reused")
	require.Nil(t, f2.Header.Frame, "reused fiber must have a reinitialized header")
	require.Equal(t, 1, f2.Header.Worker)
	require.Greater(t, f2.generation, gen)
}

func TestStackExhaustionPanics(t *testing.T) {
	pool := NewPool(1, 2, NewGlobal())
	f := pool.Get(0)

	require.NotPanics(t, func() {
		f.Enter()
		defer f.Leave()
		f.Enter()
		defer f.Leave()
	})

	require.Panics(t, func() {
		f.Enter()
		defer f.Leave()
		f.Enter()
		defer f.Leave()
		f.Enter()
		defer f.Leave()
	})
}

func TestGlobalPoolMigration(t *testing.T) {
	global := NewGlobal()
	pool := NewPool(1, 8, global)

	fibers := make([]*Fiber, 10)
	for i := range fibers {
		fibers[i] = pool.Get(0)
	}
	for _, f := range fibers {
		pool.Put(f)
	}

	// Some fibers should have migrated to the global pool once local
	// capacity*ratio was exceeded.
	f := global.take()
	require.NotNil(t, f, "expected overflow fibers to have migrated to the global pool")
}
