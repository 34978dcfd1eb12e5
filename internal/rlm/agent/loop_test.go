package agent

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/rlmkit/rlm/internal/rlm/capability"
	"github.com/rlmkit/rlm/internal/rlm/meta"
	"github.com/rlmkit/rlm/internal/rlm/transcript"
	"github.com/rlmkit/rlm/internal/rlm/transport"
)

// fakeClient replays a scripted sequence of assistant responses,
// regardless of which model or message history it is called with.
type fakeClient struct {
	responses []string
	calls     int
}

func (f *fakeClient) Complete(ctx context.Context, model string, messages []transport.Message, maxTokens int, temperature float64) (string, error) {
	if f.calls >= len(f.responses) {
		return "", fmt.Errorf("fakeClient: no more scripted responses (call %d)", f.calls)
	}
	r := f.responses[f.calls]
	f.calls++
	return r, nil
}

func newTestLoop(t *testing.T, responses []string, cfg Config) (*Loop, *bytes.Buffer) {
	t.Helper()
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = 10
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = 3
	}
	if cfg.MaxOutputChars == 0 {
		cfg.MaxOutputChars = 4096
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = 100000
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 1 << 20
	}
	if cfg.MaxStackDepth == 0 {
		cfg.MaxStackDepth = 64
	}
	if cfg.MaxConcurrentRecursion == 0 {
		cfg.MaxConcurrentRecursion = 2
	}
	cfg.Capability = capability.DefaultConfig()

	var buf bytes.Buffer
	tw := transcript.NewWriter(&buf)
	models := meta.NewSelector(meta.Config{Root: "root-model", Sub: "sub-model"})
	client := &fakeClient{responses: responses}
	return New(cfg, client, models, tw, nil), &buf
}

func TestLoopImmediateFinal(t *testing.T) {
	loop, _ := newTestLoop(t, []string{`FINAL("42")`}, Config{})
	result, err := loop.Run(context.Background(), "test", "task-1", "what is the answer", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK || result.Answer != "42" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestLoopCodeThenFinalVar(t *testing.T) {
	loop, _ := newTestLoop(t, []string{
		"x = 40 + 2",
		"FINAL_VAR(x)",
	}, Config{})
	result, err := loop.Run(context.Background(), "test", "task-2", "compute something", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK || result.Answer != "42" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestLoopStateIsPersistedAcrossTurns(t *testing.T) {
	loop, _ := newTestLoop(t, []string{
		"total = 0",
		"total = total + 10",
		"FINAL(str(total))",
	}, Config{})
	result, err := loop.Run(context.Background(), "test", "task-3", "accumulate", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK || result.Answer != "10" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestLoopMaxIterationsExhaustedIsSoftFailure(t *testing.T) {
	responses := []string{"print(1)", "print(2)", "print(3)"}
	loop, _ := newTestLoop(t, responses, Config{MaxIterations: 3})
	result, err := loop.Run(context.Background(), "test", "task-4", "never finishes", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OK {
		t.Fatalf("expected a soft failure when max_iterations is exhausted without FINAL, got %+v", result)
	}
}

func TestLoopStabilizedOutputEndsEarlyAsSoftSuccess(t *testing.T) {
	responses := []string{"print('same')", "print('same')", "print('should not run')"}
	loop, _ := newTestLoop(t, responses, Config{MaxIterations: 10})
	result, err := loop.Run(context.Background(), "test", "task-5", "stabilizes", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK {
		t.Fatalf("expected stabilized output to count as a soft success, got %+v", result)
	}
	if result.Answer != "same\n" {
		t.Fatalf("unexpected answer: %q", result.Answer)
	}
}

func TestLoopRepeatedErrorEndsEarlyAsSoftFailure(t *testing.T) {
	responses := []string{"1/0", "1/0", "1/0", "print('should not run')"}
	loop, _ := newTestLoop(t, responses, Config{MaxIterations: 10})
	result, err := loop.Run(context.Background(), "test", "task-6", "keeps failing", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OK {
		t.Fatalf("expected a soft failure once the same error recurs three times, got %+v", result)
	}
}

func TestLoopMalformedFinalExpressionIsFedBackAndRetried(t *testing.T) {
	responses := []string{
		`FINAL(undefined_name)`,
		`FINAL("recovered")`,
	}
	loop, _ := newTestLoop(t, responses, Config{})
	result, err := loop.Run(context.Background(), "test", "task-7", "recovers from a bad FINAL", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK || result.Answer != "recovered" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestLoopRecursiveLLMDelegatesToChildLoop(t *testing.T) {
	responses := []string{
		`r = recursive_llm("sub question", "sub context")`,
		`FINAL("child answer")`,
		`FINAL_VAR(r)`,
	}
	loop, _ := newTestLoop(t, responses, Config{MaxDepth: 2})
	result, err := loop.Run(context.Background(), "test", "task-8", "delegates", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK || result.Answer != "child answer" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestTruncateContext(t *testing.T) {
	if got := truncateContext("hello world", 5); got != "hello" {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if got := truncateContext("short", 0); got != "short" {
		t.Fatalf("zero max should mean no truncation, got %q", got)
	}
}

func TestFirstUserMessageQuotesShortContextInFull(t *testing.T) {
	msg := firstUserMessage("q", "short context")
	if !bytes.Contains([]byte(msg), []byte("short context")) {
		t.Fatalf("expected short context to be quoted in full, got %q", msg)
	}
}

func TestFirstUserMessageSummarizesLongContext(t *testing.T) {
	long := bytes.Repeat([]byte("a"), contextSnippetChars+500)
	msg := firstUserMessage("q", string(long))
	if !bytes.Contains([]byte(msg), []byte(fmt.Sprintf("%d characters", contextSnippetChars+500))) {
		t.Fatalf("expected a length summary for long context, got %q", msg)
	}
}
