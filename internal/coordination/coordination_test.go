package coordination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cilkgo/cilk/internal/config"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	word := pack(3, 5)
	d, s := unpack(word)
	require.Equal(t, int32(3), d)
	require.Equal(t, int32(5), s)
}

func TestDisengageReengage(t *testing.T) {
	s := New()
	d, sent := s.Disengage()
	require.Equal(t, int32(1), d)
	require.Equal(t, int32(0), sent)

	d, sent = s.Reengage()
	require.Equal(t, int32(0), d)
	require.Equal(t, int32(0), sent)
}

func TestSentinelMarkClear(t *testing.T) {
	s := New()
	_, sent := s.MarkSentinel()
	require.Equal(t, int32(1), sent)
	_, sent = s.ClearSentinel()
	require.Equal(t, int32(0), sent)
}

func TestShouldRequestReengageOnAbundantHistory(t *testing.T) {
	s := New()
	for i := 0; i < config.HistoryThreshold; i++ {
		s.RecordTick(true)
	}
	require.True(t, s.ShouldRequestReengage(4))
}

func TestShouldRequestReengageFalseWhenIdle(t *testing.T) {
	s := New()
	for i := 0; i < config.HistoryLength; i++ {
		s.RecordTick(false)
	}
	require.False(t, s.ShouldRequestReengage(4))
}

func TestShouldRequestReengageOnLowActiveRatio(t *testing.T) {
	s := New()
	for i := 0; i < 4; i++ {
		s.MarkSentinel()
	}
	require.True(t, s.ShouldRequestReengage(1))
}

func TestSleepWake(t *testing.T) {
	s := New()
	woke := make(chan struct{})
	go func() {
		s.Sleep()
		close(woke)
	}()

	time.Sleep(10 * time.Millisecond)
	s.WakeAll()

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("Sleep did not wake within timeout")
	}
}
