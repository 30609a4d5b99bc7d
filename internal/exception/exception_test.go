package exception

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cilkgo/cilk/internal/closure"
)

func TestCaptureNoPanicIsIdentity(t *testing.T) {
	h := Capture(closure.ID(1), func() {})
	require.False(t, h.Pending())
	require.NotPanics(t, h.Repanic)
}

func TestCapturePanicIsHeld(t *testing.T) {
	h := Capture(closure.ID(1), func() { panic("boom") })
	require.True(t, h.Pending())
	require.PanicsWithValue(t, "boom", h.Repanic)
}

func TestReduceLeftmostWins(t *testing.T) {
	left := Capture(closure.ID(1), func() { panic("left") })
	right := Capture(closure.ID(2), func() { panic("right") })

	Reduce(left, right)
	require.True(t, left.Pending())
	require.Equal(t, "left", left.Exc.Value)
	require.False(t, right.Pending(), "discarded exception must be dropped")
}

func TestReduceAdoptsRightWhenLeftEmpty(t *testing.T) {
	left := NewHolder()
	right := Capture(closure.ID(2), func() { panic("right") })

	Reduce(left, right)
	require.True(t, left.Pending())
	require.Equal(t, "right", left.Exc.Value)
}
