// Package config ingests the CILK_* environment variables once at process
// init and exposes them as an immutable-after-init Options value. Nothing
// here parses CLI flags; flag/option parsing is treated as an external
// collaborator (see spec §1).
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
)

// PinMode selects a worker-to-CPU pinning strategy for CILK_PIN.
type PinMode int

const (
	PinDisabled PinMode = iota
	PinGrouped          // CILK_PIN=1: grouped pairs
	PinHyperSplit       // CILK_PIN=2: hyperthread-split pairs
	PinReserved         // CILK_PIN=3: reserved/round-robin fallback
)

// Alert and debug bitmask subsystems (CILK_ALERT / CILK_DEBUG).
const (
	AlertSched     = 1 << iota // scheduler loop decisions
	AlertSteal                 // steal attempts/results
	AlertReturn                // return protocol / provably-good steal
	AlertSync                  // sync suspend/resume
	AlertReducer               // hypertable operations
	AlertDisengage             // coordination sleep/wake
)

const (
	MinStackSize = 16 * 1024
	MaxStackSize = 100 * 1024 * 1024

	MinDeqDepth = 1
	MaxDeqDepth = 99999

	MinFiberPool = 8

	// MaxCallbacks bounds the number of AtInit/AtExit callbacks (spec §6).
	MaxCallbacks = 16

	// Worker coordination constants (spec §4.6), not independently
	// configurable via environment in the original and carried as
	// internal tuning constants here too.
	SentinelThreshold = 8
	// DisengageThreshold is how many further consecutive failed steals a
	// sentinel worker tolerates before actually parking itself (spec
	// §4.6: "putting thieves to sleep" rather than leaving them spinning
	// indefinitely once backed off).
	DisengageThreshold = SentinelThreshold * 4
	HistoryLength      = 32
	HistoryThreshold   = 24
	// ASRatio compares sentinel count against active count; expressed as
	// a ratio numerator/denominator to avoid floating point in the hot path.
	ASRatioNum = 1
	ASRatioDen = 2
)

// Options holds the immutable-after-init configuration for the runtime.
type Options struct {
	NWorkers   int
	StackSize  int
	DeqDepth   int
	FiberPool  int
	Pin        PinMode
	Alert      int
	Debug      int
}

// FromEnvironment reads CILK_* variables, falling back to documented
// defaults, and validates bounds. A missing, malformed or out-of-range
// value is ignored and the default is kept; nothing is reported, and
// process init is never aborted over it.
func FromEnvironment() Options {
	opts := Options{
		NWorkers:  detectNWorkers(),
		StackSize: 8 * 1024 * 1024,
		DeqDepth:  2048,
		FiberPool: 32,
		Pin:       PinDisabled,
		Alert:     0,
		Debug:     0,
	}

	if v, ok := lookupInt("CILK_NWORKERS"); ok {
		if v > 0 {
			opts.NWorkers = v
		}
	}
	if v, ok := lookupInt("CILK_STACKSIZE"); ok {
		if v >= MinStackSize && v <= MaxStackSize {
			opts.StackSize = v
		}
	}
	if v, ok := lookupInt("CILK_DEQDEPTH"); ok {
		if v >= MinDeqDepth && v <= MaxDeqDepth {
			opts.DeqDepth = v
		}
	}
	if v, ok := lookupInt("CILK_FIBER_POOL"); ok {
		if v >= MinFiberPool {
			opts.FiberPool = v
		}
	}
	if v, ok := lookupInt("CILK_PIN"); ok {
		switch v {
		case 0, 1, 2, 3:
			opts.Pin = PinMode(v)
		}
	}
	if v, ok := lookupInt("CILK_ALERT"); ok {
		opts.Alert = v
	}
	if v, ok := lookupInt("CILK_DEBUG"); ok {
		opts.Debug = v
	}

	return opts
}

func detectNWorkers() int {
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	return n
}

func lookupInt(name string) (int, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

// String renders a PinMode for diagnostics.
func (p PinMode) String() string {
	switch p {
	case PinDisabled:
		return "disabled"
	case PinGrouped:
		return "grouped"
	case PinHyperSplit:
		return "hyperthread-split"
	case PinReserved:
		return "round-robin"
	default:
		return fmt.Sprintf("PinMode(%d)", int(p))
	}
}
