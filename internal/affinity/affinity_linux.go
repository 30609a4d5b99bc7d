//go:build linux

package affinity

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// applyPlatform pins the current OS thread to cpu using sched_setaffinity.
// The caller's goroutine is locked to its OS thread first, matching the
// spec's "one OS thread per worker" concurrency model (spec §5); callers
// that later unlock should call runtime.UnlockOSThread themselves on
// worker shutdown.
func applyPlatform(cpu int) bool {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return false
	}
	return true
}
