// Package affinity implements the CILK_PIN worker-to-CPU pinning
// strategies (spec §6). Pinning is best-effort: a failure to pin never
// fails worker startup, it only forgoes the locality benefit.
package affinity

import (
	"runtime"

	"github.com/cilkgo/cilk/internal/config"
)

// Plan maps worker ids to CPU ids according to the requested PinMode.
// When fewer cores than workers are available, the Open Question in
// spec.md §9 is resolved here as round-robin assignment rather than
// disabling pinning outright (see DESIGN.md).
type Plan struct {
	mode    config.PinMode
	ncpu    int
	nworker int
}

// NewPlan builds a pinning plan for nworker workers on a machine with
// runtime.NumCPU() logical CPUs.
func NewPlan(mode config.PinMode, nworker int) *Plan {
	ncpu := runtime.NumCPU()
	if ncpu < 1 {
		ncpu = 1
	}
	return &Plan{mode: mode, ncpu: ncpu, nworker: nworker}
}

// CPUFor returns the CPU id a given worker should be pinned to.
func (p *Plan) CPUFor(workerID int) int {
	if p.mode == config.PinDisabled || p.ncpu <= 0 {
		return -1
	}
	switch p.mode {
	case config.PinGrouped:
		// Grouped pairs: workers 0,1 -> cpu 0,1; workers 2,3 -> cpu 2,3; ...
		return workerID % p.ncpu
	case config.PinHyperSplit:
		// Hyperthread-split pairs: even workers take the low half of the
		// CPU range, odd workers take the high half, pairing sibling
		// hyperthreads across the split rather than adjacently.
		half := p.ncpu / 2
		if half == 0 {
			return workerID % p.ncpu
		}
		if workerID%2 == 0 {
			return (workerID / 2) % half
		}
		return half + (workerID/2)%(p.ncpu-half)
	case config.PinReserved:
		return workerID % p.ncpu
	default:
		return workerID % p.ncpu
	}
}

// Apply pins the calling goroutine's OS thread to the CPU assigned to
// workerID. It is a no-op (returning false) whenever pinning is disabled,
// unsupported on the platform, or the underlying syscall fails -- pinning
// failures are never fatal (spec §7: resource exhaustion/capability gaps
// degrade gracefully outside the fatal taxonomy for this concern).
func Apply(p *Plan, workerID int) bool {
	cpu := p.CPUFor(workerID)
	if cpu < 0 {
		return false
	}
	return applyPlatform(cpu)
}
