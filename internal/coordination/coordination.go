// Package coordination implements the disengaged/sentinel worker
// escalation protocol (spec §4.6): when too many workers sit idle, some
// are put fully to sleep ("disengaged") rather than spinning, and a
// rolling history of recent steal attempts decides when to wake one back
// up. The pair of counts the protocol tracks is packed into a single
// 64-bit word so the common-path read (checked on every failed steal) is a
// single atomic load rather than two.
package coordination

import (
	"sync"
	"sync/atomic"

	"github.com/cilkgo/cilk/internal/config"
)

// pack combines a disengaged-worker count and a sentinel-worker count into
// one word: disengaged in the high 32 bits, sentinel in the low 32.
func pack(disengaged, sentinel int32) int64 {
	return int64(uint64(uint32(disengaged))<<32 | uint64(uint32(sentinel)))
}

func unpack(word int64) (disengaged, sentinel int32) {
	disengaged = int32(int64(word) >> 32)
	sentinel = int32(int64(word) & 0xffffffff)
	return
}

// State tracks the process-wide disengaged/sentinel counts plus a rolling
// efficiency history used to decide when a disengaged worker should be
// reengaged (spec §4.6, tunables in internal/config).
type State struct {
	word atomic.Int64

	mu       sync.Mutex
	cond     *sync.Cond
	history  [config.HistoryLength]bool
	histPos  int
	histFill int
}

// New creates a coordination state with no disengaged or sentinel
// workers and an empty efficiency history.
func New() *State {
	s := &State{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Counts returns the current (disengaged, sentinel) pair.
func (s *State) Counts() (disengaged, sentinel int32) {
	return unpack(s.word.Load())
}

// casAdjust atomically applies delta to either the disengaged or sentinel
// count, retrying on contention, and returns the resulting pair.
func (s *State) casAdjust(disengagedDelta, sentinelDelta int32) (int32, int32) {
	for {
		old := s.word.Load()
		d, sNum := unpack(old)
		nd, ns := d+disengagedDelta, sNum+sentinelDelta
		next := pack(nd, ns)
		if s.word.CompareAndSwap(old, next) {
			return nd, ns
		}
	}
}

// Disengage records one more worker going to sleep.
func (s *State) Disengage() (disengaged, sentinel int32) {
	return s.casAdjust(1, 0)
}

// Reengage records one fewer disengaged worker (it has been woken).
func (s *State) Reengage() (disengaged, sentinel int32) {
	return s.casAdjust(-1, 0)
}

// MarkSentinel records one more worker entering sentinel mode -- a worker
// that has failed config.SentinelThreshold consecutive steal attempts and
// has backed off to slower polling rather than spinning.
func (s *State) MarkSentinel() (disengaged, sentinel int32) {
	return s.casAdjust(0, 1)
}

// ClearSentinel records a sentinel worker finding work and resuming
// normal scheduling.
func (s *State) ClearSentinel() (disengaged, sentinel int32) {
	return s.casAdjust(0, -1)
}

// RecordTick appends one outcome (found work or not) to the rolling
// history window of length config.HistoryLength.
func (s *State) RecordTick(efficient bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[s.histPos] = efficient
	s.histPos = (s.histPos + 1) % config.HistoryLength
	if s.histFill < config.HistoryLength {
		s.histFill++
	}
}

func (s *State) efficientCountLocked() int {
	n := 0
	for i := 0; i < s.histFill; i++ {
		if s.history[i] {
			n++
		}
	}
	return n
}

// ShouldRequestReengage reports whether a disengaged worker should be
// woken: either the recent history shows abundant work
// (config.HistoryThreshold-worth of efficient ticks in the window) or the
// active-to-sentinel ratio has fallen below config.ASRatioNum/ASRatioDen,
// meaning too few workers remain actively scheduling.
func (s *State) ShouldRequestReengage(activeWorkers int) bool {
	s.mu.Lock()
	efficient := s.efficientCountLocked()
	s.mu.Unlock()

	if efficient >= config.HistoryThreshold {
		return true
	}

	_, sentinel := s.Counts()
	if sentinel <= 0 {
		return false
	}
	return int64(activeWorkers)*int64(config.ASRatioDen) < int64(sentinel)*int64(config.ASRatioNum)
}

// Sleep parks the calling goroutine until the next WakeAll, the Go-native
// stand-in for a disengaged worker blocking on a futex/condvar.
func (s *State) Sleep() {
	s.mu.Lock()
	s.cond.Wait()
	s.mu.Unlock()
}

// WakeAll wakes every goroutine blocked in Sleep.
func (s *State) WakeAll() {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}
