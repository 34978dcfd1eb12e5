package agent

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rlmkit/rlm/internal/rlm/value"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	const maxConcurrent = 2
	p := newPool(maxConcurrent)

	var inFlight, maxSeen int32

	done := make(chan struct{}, 6)
	for i := 0; i < 6; i++ {
		go func() {
			_, _ = p.run(context.Background(), func() (string, error) {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					cur := atomic.LoadInt32(&maxSeen)
					if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return "ok", nil
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 6; i++ {
		<-done
	}
	if maxSeen > maxConcurrent {
		t.Fatalf("observed %d concurrent runs, want at most %d", maxSeen, maxConcurrent)
	}
}

func TestPoolRecoversPanic(t *testing.T) {
	p := newPool(1)
	_, err := p.run(context.Background(), func() (string, error) {
		panic("boom")
	})
	if err == nil {
		t.Fatal("expected an error from a panicking task")
	}
}

func TestPoolRespectsContextCancellation(t *testing.T) {
	p := newPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.run(ctx, func() (string, error) {
		return "unreachable", nil
	})
	if err == nil {
		t.Fatal("expected an error once the context is already cancelled")
	}
}

func TestRecursiveBuiltinMaxDepthReturnsFixedString(t *testing.T) {
	p := newPool(1)
	called := false
	run := func(ctx context.Context, subQuery, subContext string, depth int) (string, error) {
		called = true
		return "should not run", nil
	}
	builtin := recursiveBuiltin(context.Background(), p, 2, 3, run)

	result, err := builtin([]value.Value{value.Str("q"), value.Str("c")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatal("expected no child run at max depth")
	}
	if result.Str2() != "Max recursion depth (3) reached" {
		t.Fatalf("unexpected result: %q", result.Str2())
	}
}

func TestRecursiveBuiltinSpawnsChildBelowMaxDepth(t *testing.T) {
	p := newPool(1)
	run := func(ctx context.Context, subQuery, subContext string, depth int) (string, error) {
		return fmt.Sprintf("answer at depth %d for %s", depth, subQuery), nil
	}
	builtin := recursiveBuiltin(context.Background(), p, 0, 3, run)

	result, err := builtin([]value.Value{value.Str("sub question"), value.Str("sub context")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Str2() != "answer at depth 1 for sub question" {
		t.Fatalf("unexpected result: %q", result.Str2())
	}
}

func TestRecursiveBuiltinChildErrorBecomesAnswerString(t *testing.T) {
	p := newPool(1)
	run := func(ctx context.Context, subQuery, subContext string, depth int) (string, error) {
		return "", fmt.Errorf("child task failed: boom")
	}
	builtin := recursiveBuiltin(context.Background(), p, 0, 3, run)

	result, err := builtin([]value.Value{value.Str("q"), value.Str("c")})
	if err != nil {
		t.Fatalf("recursion errors must not propagate as Go errors, got: %v", err)
	}
	if result.Str2() != "child task failed: boom" {
		t.Fatalf("unexpected result: %q", result.Str2())
	}
}

func TestRecursiveBuiltinRejectsWrongArgCount(t *testing.T) {
	p := newPool(1)
	run := func(ctx context.Context, subQuery, subContext string, depth int) (string, error) {
		return "unreachable", nil
	}
	builtin := recursiveBuiltin(context.Background(), p, 0, 3, run)

	_, err := builtin([]value.Value{value.Str("only one arg")})
	if err == nil {
		t.Fatal("expected an error for the wrong argument count")
	}
}
