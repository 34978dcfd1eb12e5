package agent

import (
	"testing"

	"github.com/rlmkit/rlm/internal/rlm/interp"
)

func TestTrackerObserveOutputRequiresTwoConsecutiveMatches(t *testing.T) {
	trk := newTracker()
	if trk.observeOutput("42") {
		t.Fatal("first observation should never trigger stability")
	}
	if !trk.observeOutput("42") {
		t.Fatal("expected stability after two consecutive identical outputs")
	}
}

func TestTrackerObserveOutputResetsOnChange(t *testing.T) {
	trk := newTracker()
	trk.observeOutput("42")
	if trk.observeOutput("43") {
		t.Fatal("differing output should reset the stability streak")
	}
	if !trk.observeOutput("43") {
		t.Fatal("expected stability after the streak restarts")
	}
}

func TestTrackerObserveErrorRequiresThreeConsecutiveMatches(t *testing.T) {
	trk := newTracker()
	err := &interp.ExecError{Kind: interp.KindNameError, Message: "name 'x' is not defined"}
	if trk.observeError(err) {
		t.Fatal("first error should not trigger the loop heuristic")
	}
	if trk.observeError(err) {
		t.Fatal("second error should not trigger the loop heuristic")
	}
	if !trk.observeError(err) {
		t.Fatal("expected the loop heuristic to trigger on the third matching error")
	}
}

func TestTrackerObserveErrorResetsOnDifferentKind(t *testing.T) {
	trk := newTracker()
	err1 := &interp.ExecError{Kind: interp.KindNameError, Message: "name 'x' is not defined"}
	err2 := &interp.ExecError{Kind: interp.KindTypeError, Message: "unsupported operand type"}
	trk.observeError(err1)
	trk.observeError(err1)
	if trk.observeError(err2) {
		t.Fatal("differing error kind should reset the streak")
	}
}

func TestTrackerObserveErrorComparesOnlyMessagePrefix(t *testing.T) {
	trk := newTracker()
	longPrefix := make([]byte, errPrefixLen)
	for i := range longPrefix {
		longPrefix[i] = 'a'
	}
	msg1 := string(longPrefix) + " first tail"
	msg2 := string(longPrefix) + " second tail"
	err1 := &interp.ExecError{Kind: interp.KindValueError, Message: msg1}
	err2 := &interp.ExecError{Kind: interp.KindValueError, Message: msg2}
	trk.observeError(err1)
	trk.observeError(err2)
	if !trk.observeError(err1) {
		t.Fatal("messages sharing an 80-char prefix should count as the same error")
	}
}

func TestTrackerOutputResetsErrorStreak(t *testing.T) {
	trk := newTracker()
	err := &interp.ExecError{Kind: interp.KindKeyError, Message: "missing key"}
	trk.observeError(err)
	if trk.observeOutput("ok") {
		t.Fatal("a single output after an error streak should not itself be stable")
	}
	if trk.observeError(err) {
		t.Fatal("observing output should have reset the error streak")
	}
}
