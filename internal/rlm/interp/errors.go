package interp

import (
	"fmt"

	"github.com/rlmkit/rlm/internal/rlm/value"
)

// ErrorKind enumerates the taxonomy spec.md's error-handling design
// names: each sandboxed execution failure is tagged with exactly one of
// these so callers (the agent loop, the transcript writer) can react
// without string-matching messages.
type ErrorKind string

const (
	KindSyntaxError       ErrorKind = "SyntaxError"
	KindNameError         ErrorKind = "NameError"
	KindTypeError         ErrorKind = "TypeError"
	KindValueError        ErrorKind = "ValueError"
	KindKeyError          ErrorKind = "KeyError"
	KindIndexError        ErrorKind = "IndexError"
	KindZeroDivisionError ErrorKind = "ZeroDivisionError"
	KindAttributeError    ErrorKind = "AttributeError"
	KindImportForbidden   ErrorKind = "ImportForbidden"
	KindExecutionTimeout  ErrorKind = "ExecutionTimeout"
	KindStepLimitExceeded ErrorKind = "StepLimitExceeded"
	KindRecursionLimit    ErrorKind = "RecursionLimit"
	KindMemoryLimit       ErrorKind = "MemoryLimit"
	KindOther             ErrorKind = "Other"
)

// ExecError is the error type every evaluator failure is reported as.
// Class carries the literal raised class name ("ValueError",
// "RuntimeError", ...) used to match `except ClassName:` clauses; it is
// distinct from Kind because RuntimeError has no ErrorKind member of
// its own (it collapses to KindOther for taxonomy purposes).
type ExecError struct {
	Kind    ErrorKind
	Class   string
	Message string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newErr(kind ErrorKind, format string, args ...any) *ExecError {
	return &ExecError{Kind: kind, Class: string(kind), Message: fmt.Sprintf(format, args...)}
}

// raiseClasses is the whitelisted set of error classes a `raise
// Err("msg")` statement may name.
var raiseClasses = map[string]ErrorKind{
	"ValueError":   KindValueError,
	"TypeError":    KindTypeError,
	"KeyError":     KindKeyError,
	"IndexError":   KindIndexError,
	"RuntimeError": KindOther,
}

// newRaise builds the ExecError for a user `raise class(msg)` statement.
// An unrecognized class name is itself a TypeError, matching the
// interpreter's behavior for any other unsupported construct.
func newRaise(class, msg string) *ExecError {
	kind, ok := raiseClasses[class]
	if !ok {
		return &ExecError{Kind: KindTypeError, Class: "TypeError", Message: fmt.Sprintf("unsupported error class %q", class)}
	}
	return &ExecError{Kind: kind, Class: class, Message: msg}
}

// controlSignal is used internally to unwind return/break/continue
// through the statement-execution recursion; it is never exposed
// outside the eval package.
type controlSignal struct {
	kind  ctrlKind
	value value.Value
}

type ctrlKind int

const (
	ctrlNone ctrlKind = iota
	ctrlReturn
	ctrlBreak
	ctrlContinue
)
