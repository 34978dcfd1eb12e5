package agent

import (
	"github.com/rlmkit/rlm/internal/rlm/interp"
)

// errPrefixLen bounds how much of an error message is compared when
// deciding whether two iterations hit "the same" error.
const errPrefixLen = 80

// tracker implements spec SPEC_FULL.md §4.4's supplemental
// early-termination heuristics, adapted from the teacher's
// TerminationTracker: stop the loop before max_iterations when the
// non-empty REPL output has stabilized across two consecutive turns with no
// FINAL yet, or when the same error kind+prefix has recurred three
// turns running.
type tracker struct {
	lastOutput   string
	haveOutput   bool
	stableStreak int

	lastErrKind   interp.ErrorKind
	lastErrPrefix string
	errStreak     int
}

func newTracker() *tracker { return &tracker{} }

// observeOutput records one turn's successful REPL output. It returns
// true once the same non-empty output has been seen on two consecutive
// turns; an empty output resets the stability streak.
func (t *tracker) observeOutput(output string) bool {
	t.errStreak = 0
	if output == "" {
		t.stableStreak = 0
		t.haveOutput = false
		return false
	}
	if t.haveOutput && output == t.lastOutput {
		t.stableStreak++
	} else {
		t.stableStreak = 1
	}
	t.lastOutput = output
	t.haveOutput = true
	return t.stableStreak >= 2
}

// observeError records one turn's execution failure. It returns true
// once the same error kind and message prefix has recurred three turns
// running.
func (t *tracker) observeError(err *interp.ExecError) bool {
	t.stableStreak = 0
	t.haveOutput = false

	prefix := err.Message
	if len(prefix) > errPrefixLen {
		prefix = prefix[:errPrefixLen]
	}
	if err.Kind == t.lastErrKind && prefix == t.lastErrPrefix {
		t.errStreak++
	} else {
		t.lastErrKind = err.Kind
		t.lastErrPrefix = prefix
		t.errStreak = 1
	}
	return t.errStreak >= 3
}
