// Package debugrt implements the fatal-invariant-violation path (spec §7):
// corrupted frame magic, wrong mutex owner, closure-status mismatch, and
// deque-ownership violations all funnel through Bug, which flushes the
// alert log and panics with a BugError that the top level deliberately
// does not recover (only user exceptions are caught, via
// internal/exception).
package debugrt

import (
	"fmt"

	"github.com/cilkgo/cilk/internal/rtlog"
)

// BugError marks a fatal runtime invariant violation. It is distinct from
// ordinary user errors so that cilk.Do's recover path can tell them apart
// and let it crash the process instead of folding it into the exception
// reducer.
type BugError struct {
	Subsystem string
	Message   string
}

func (e *BugError) Error() string {
	return fmt.Sprintf("cilk: bug in %s: %s", e.Subsystem, e.Message)
}

var log = rtlog.New(^0)

// SetLog redirects the batched alert log used for fatal flushes. Nothing
// in the runtime calls it, so by default Bug flushes through this
// package's own log with every subsystem bit enabled.
func SetLog(l *rtlog.Log) { log = l }

// Bug panics with a BugError after eagerly flushing the alert log. It is
// the runtime's only abort path; callers never attempt to recover from it.
func Bug(subsystem, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.FatalFlush("BUG[%s]: %s", subsystem, msg)
	panic(&BugError{Subsystem: subsystem, Message: msg})
}

// Assert panics via Bug when cond is false. Owner assertions throughout
// internal/deque, internal/closure and internal/scheduler use this.
func Assert(cond bool, subsystem, format string, args ...any) {
	if !cond {
		Bug(subsystem, format, args...)
	}
}

// IsBug reports whether err (or a panic value recovered as err) originated
// from Bug, as opposed to a user exception.
func IsBug(v any) bool {
	_, ok := v.(*BugError)
	return ok
}
