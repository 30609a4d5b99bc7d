package closure

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArenaAllocReusesFreedIDs(t *testing.T) {
	a := NewArena()
	c1 := a.Alloc()
	id1 := c1.ID()
	require.NotEqual(t, NilID, id1)

	a.Free(id1)
	c2 := a.Alloc()
	require.Equal(t, id1, c2.ID(), "freed id should be recycled before a new one is minted")
	require.Equal(t, PreInvalid, c2.Status)
}

func TestArenaGetNilIDIsNil(t *testing.T) {
	a := NewArena()
	require.Nil(t, a.Get(NilID))
}

func TestAddRemoveChildRestoresRightmostChild(t *testing.T) {
	a := NewArena()
	parent := a.Alloc()
	child1 := a.Alloc()
	child2 := a.Alloc()
	lookup := func(id ID) *Closure { return a.Get(id) }
	const worker = 0

	AddChild(parent, child1, worker, lookup)
	require.Equal(t, child1.ID(), parent.RightmostChild)
	require.Equal(t, NilID, child1.RightSib)

	AddChild(parent, child2, worker, lookup)
	require.Equal(t, child2.ID(), parent.RightmostChild)
	require.Equal(t, child2.ID(), child1.RightSib, "AddChild must link the prior rightmost child's RightSib itself")
	require.Equal(t, child1.ID(), child2.LeftSib)

	child2.Lock(worker)
	RemoveChild(parent, child2, worker, lookup)
	child2.Unlock()
	require.Equal(t, child1.ID(), parent.RightmostChild)
	require.Equal(t, NilID, child1.RightSib)

	child1.Lock(worker)
	RemoveChild(parent, child1, worker, lookup)
	child1.Unlock()
	require.Equal(t, NilID, parent.RightmostChild)
}

func TestJoinCounterWaitWakesOnZero(t *testing.T) {
	a := NewArena()
	parent := a.Alloc()
	parent.IncrementJoin()
	parent.IncrementJoin()

	var wg sync.WaitGroup
	wg.Add(1)
	done := make(chan struct{})
	go func() {
		defer wg.Done()
		parent.WaitForJoin()
		close(done)
	}()

	parent.DecrementJoin()
	select {
	case <-done:
		t.Fatal("WaitForJoin returned before join counter reached zero")
	default:
	}

	parent.DecrementJoin()
	wg.Wait()
}

func TestLockUnlockTracksOwner(t *testing.T) {
	a := NewArena()
	c := a.Alloc()

	c.Lock(3)
	require.NotPanics(t, func() { c.AssertOwner(3) })
	c.Unlock()
}

func TestVerifyMagicRejectsCorruption(t *testing.T) {
	f := NewFrame(NilID, 0)
	require.True(t, VerifyMagic(f))
	f.Magic ^= 0xff
	require.False(t, VerifyMagic(f))
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "RUNNING", Running.String())
	require.Equal(t, "POST_INVALID", PostInvalid.String())
}
