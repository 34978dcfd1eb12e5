package agent

import (
	"context"
	"fmt"

	"github.com/rlmkit/rlm/internal/rlm/value"
)

// pool bounds how many recursive_llm child loops may run concurrently,
// grounded on the teacher's internal/rlm/async.Executor semaphore
// pattern (ExecuteParallel's `sem := make(chan struct{}, parallelism)`),
// trimmed from a dependency-aware multi-operation executor down to the
// single bounded run-one-closure-and-wait shape spec.md §9's "dedicated
// worker with its own scheduler" describes for the recursion bridge.
type pool struct {
	sem chan struct{}
}

func newPool(maxConcurrent int) *pool {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &pool{sem: make(chan struct{}, maxConcurrent)}
}

// run executes fn on a worker goroutine, blocking the caller until it
// finishes, ctx is cancelled, or fn panics (recovered and turned into
// an error so a defect several recursion levels down can never crash
// the root task).
func (p *pool) run(ctx context.Context, fn func() (string, error)) (string, error) {
	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	type outcome struct {
		result string
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				out = outcome{err: fmt.Errorf("recursive_llm child panicked: %v", r)}
			}
			done <- out
		}()
		out.result, out.err = fn()
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// childRunner runs one complete child task loop at depth+1 and returns
// its final answer string (or an error).
type childRunner func(ctx context.Context, subQuery, subContext string, depth int) (string, error)

// recursiveBuiltin builds the `recursive_llm` value.Builtin bound into
// a session's environment (spec.md §4.5). At depth+1 >= maxDepth it
// returns the fixed observable-contract string without spawning a
// child at all. Recursion errors never escape as an exception — per
// spec.md §7's propagation policy they become the child's answer
// string, so the parent's `execute` always sees a Str result.
func recursiveBuiltin(ctx context.Context, p *pool, depth, maxDepth int, run childRunner) value.Builtin {
	return func(args []value.Value) (value.Value, error) {
		if len(args) != 2 {
			return value.Value{}, fmt.Errorf("recursive_llm() takes exactly 2 arguments (%d given)", len(args))
		}
		subQuery := args[0].Str2()
		subContext := args[1].Str2()

		if depth+1 >= maxDepth {
			return value.Str(fmt.Sprintf("Max recursion depth (%d) reached", maxDepth)), nil
		}

		result, err := p.run(ctx, func() (string, error) {
			return run(ctx, subQuery, subContext, depth+1)
		})
		if err != nil {
			return value.Str(err.Error()), nil
		}
		return value.Str(result), nil
	}
}
