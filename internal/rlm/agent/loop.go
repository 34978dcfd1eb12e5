package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rlmkit/rlm/internal/rlm/capability"
	"github.com/rlmkit/rlm/internal/rlm/checkpoint"
	"github.com/rlmkit/rlm/internal/rlm/interp"
	"github.com/rlmkit/rlm/internal/rlm/limits"
	"github.com/rlmkit/rlm/internal/rlm/meta"
	"github.com/rlmkit/rlm/internal/rlm/repl"
	"github.com/rlmkit/rlm/internal/rlm/transcript"
	"github.com/rlmkit/rlm/internal/rlm/transport"
)

// contextSnippetChars bounds how much of `context` is quoted verbatim
// in the first user message; beyond this the loop sends a length
// summary instead (spec §4.4 step 2), since `context` itself is always
// reachable in full from inside the sandbox via the bound variable.
const contextSnippetChars = 2000

// Config holds spec §6's per-task configuration options that the loop
// itself consumes (transport retry/backoff lives in transport.Client;
// capability toggles live in capability.Config).
type Config struct {
	MaxIterations int
	MaxDepth      int

	LLMTimeout  time.Duration
	MaxTokens   int
	Temperature float64

	MaxContextChars int
	MaxOutputChars  int
	StrictCode      bool

	ExecuteTimeout         time.Duration
	MaxSteps               int
	MaxBytes               int
	MaxStackDepth          int
	MaxConcurrentRecursion int

	Capability capability.Config
}

// Loop is the per-task driver spec.md §4.4 names: it owns the message
// history, calls the LLM transport, runs model output through a
// repl.Session, and detects the final-answer sentinel.
type Loop struct {
	cfg        Config
	transport  transport.Client
	models     *meta.Selector
	tw         *transcript.Writer
	checkpoint *checkpoint.Store // optional; nil disables durable checkpointing
	pool       *pool
}

// New builds a Loop. cp may be nil to disable durable checkpointing.
func New(cfg Config, tr transport.Client, models *meta.Selector, tw *transcript.Writer, cp *checkpoint.Store) *Loop {
	return &Loop{
		cfg:        cfg,
		transport:  tr,
		models:     models,
		tw:         tw,
		checkpoint: cp,
		pool:       newPool(cfg.MaxConcurrentRecursion),
	}
}

// Result is a task's outcome per spec.md §7's "{ ok, answer?, error? }".
type Result struct {
	OK     bool
	Answer string
	Err    error
}

// Run drives one task to completion: build the system prompt, seed
// message history, and iterate up to MaxIterations calling the LLM and
// executing its output, per spec.md §4.4.
func (l *Loop) Run(ctx context.Context, dataset, taskID, query, contextText string, depth int) (Result, error) {
	contextText = truncateContext(contextText, l.cfg.MaxContextChars)

	modelID, _ := l.models.SelectModel(depth)
	recModelID, _ := l.models.SelectModel(depth + 1)

	l.tw.Write(transcript.TaskStart(dataset, taskID, query, len(contextText), modelID, recModelID))

	sess := repl.New(repl.Config{
		Context:        contextText,
		Query:          query,
		MaxOutputChars: l.cfg.MaxOutputChars,
		Capability:     l.cfg.Capability,
		Limits:         limits.Config{MaxSteps: l.cfg.MaxSteps, MaxBytes: l.cfg.MaxBytes, MaxStackDepth: l.cfg.MaxStackDepth},
		ExecuteTimeout: l.cfg.ExecuteTimeout,
		Depth:          depth,
		RecursiveLLM:   recursiveBuiltin(ctx, l.pool, depth, l.cfg.MaxDepth, l.runChildFor(dataset)),
	})

	messages := []transport.Message{
		{Role: "system", Content: l.systemPrompt(depth, recModelID)},
		{Role: "user", Content: firstUserMessage(query, contextText)},
	}

	trk := newTracker()
	var lastOutput string

	for i := 0; i < l.cfg.MaxIterations; i++ {
		content, err := l.callLLM(ctx, modelID, messages, dataset, taskID, depth, i)
		if err != nil {
			l.tw.Write(transcript.TaskEnd(dataset, taskID, false, err))
			return Result{OK: false, Err: err}, nil
		}
		messages = append(messages, transport.Message{Role: "assistant", Content: content})

		parsed := Classify(content)
		switch parsed.Kind {
		case KindFinal, KindFinalVar:
			answer, ok, evalErr := l.evalFinal(sess, parsed)
			if !ok {
				messages = append(messages, transport.Message{Role: "user", Content: evalErr.Error()})
				continue
			}
			l.tw.Write(transcript.FinalParsed(dataset, taskID, answer))
			l.tw.Write(transcript.TaskEnd(dataset, taskID, true, nil))
			l.saveCheckpoint(ctx, taskID, sess)
			return Result{OK: true, Answer: answer}, nil

		default:
			code := parsed.Code
			l.tw.Write(transcript.REPLInput(dataset, taskID, code))
			output, execErr := sess.Execute(code)
			if execErr != nil {
				l.tw.Write(transcript.REPLError(dataset, taskID, execErr))
				messages = append(messages, transport.Message{Role: "user", Content: execErr.Error()})

				var ee *interp.ExecError
				if errors.As(execErr, &ee) && trk.observeError(ee) {
					l.tw.Write(transcript.TaskEnd(dataset, taskID, false, fmt.Errorf("stuck in an error loop: %w", ee)))
					return Result{OK: false, Answer: lastOutput, Err: ee}, nil
				}
				continue
			}

			l.tw.Write(transcript.REPLOutput(dataset, taskID, output))
			lastOutput = output
			messages = append(messages, transport.Message{Role: "user", Content: output})

			if trk.observeOutput(output) {
				l.tw.Write(transcript.TaskEnd(dataset, taskID, true, nil))
				l.saveCheckpoint(ctx, taskID, sess)
				return Result{OK: true, Answer: output}, nil
			}
		}
	}

	l.tw.Write(transcript.TaskEnd(dataset, taskID, false, nil))
	l.saveCheckpoint(ctx, taskID, sess)
	return Result{OK: false, Answer: lastOutput}, nil
}

// callLLM wraps one transport.Complete call with its own timeout and
// the llm_response/llm_error transcript events.
func (l *Loop) callLLM(ctx context.Context, model string, messages []transport.Message, dataset, taskID string, depth, iteration int) (string, error) {
	callCtx := ctx
	if l.cfg.LLMTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, l.cfg.LLMTimeout)
		defer cancel()
	}

	start := time.Now()
	content, err := l.transport.Complete(callCtx, model, messages, l.cfg.MaxTokens, l.cfg.Temperature)
	elapsed := time.Since(start)
	if err != nil {
		l.tw.Write(transcript.LLMError(dataset, taskID, depth, iteration, elapsed, err))
		return "", err
	}
	l.tw.Write(transcript.LLMResponse(dataset, taskID, depth, iteration, model, elapsed, content))
	return content, nil
}

// evalFinal evaluates a FINAL(expr)/FINAL_VAR(name) sentinel against
// the session's live environment (spec §4.6). ok is false when the
// expression fails to parse/evaluate or the named variable is unbound;
// the caller should feed the error back as the next user message and
// keep iterating rather than fail the task outright, since a malformed
// FINAL is an assistant mistake, not a fatal condition.
func (l *Loop) evalFinal(sess *repl.Session, parsed Parsed) (answer string, ok bool, err error) {
	it := sess.Interp()
	budget := limits.New(limits.Config{MaxSteps: l.cfg.MaxSteps, MaxBytes: l.cfg.MaxBytes, MaxStackDepth: l.cfg.MaxStackDepth, Deadline: time.Now().Add(2 * time.Second)})

	if parsed.Kind == KindFinalVar {
		v, found := it.Env.Get(parsed.Expr)
		if !found {
			return "", false, fmt.Errorf("NameError: name %q is not defined", parsed.Expr)
		}
		return v.Str2(), true, nil
	}

	v, execErr := it.EvalExpr(parsed.Expr, budget)
	if execErr != nil {
		return "", false, execErr
	}
	return v.Str2(), true, nil
}

// runChildFor binds a childRunner to dataset, the parent task's own
// dataset ID, so a recursive_llm call attributes its child task's
// transcript events to the same dataset as its parent.
func (l *Loop) runChildFor(dataset string) childRunner {
	return func(ctx context.Context, subQuery, subContext string, depth int) (string, error) {
		childTaskID := fmt.Sprintf("recursive-%d-%p", depth, &subQuery)
		result, err := l.Run(ctx, dataset, childTaskID, subQuery, subContext, depth)
		if err != nil {
			return "", err
		}
		if !result.OK && result.Err != nil {
			return "", result.Err
		}
		return result.Answer, nil
	}
}

func (l *Loop) saveCheckpoint(ctx context.Context, taskID string, sess *repl.Session) {
	if l.checkpoint == nil {
		return
	}
	snap, err := sess.Snapshot()
	if err != nil {
		return
	}
	_ = l.checkpoint.Save(ctx, taskID, snap)
}

// truncateContext applies spec §6's max_context_chars cap before
// context ever enters the sandbox.
func truncateContext(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}

// firstUserMessage builds the first turn's user content: the query
// plus either the full context (when short enough to be worth quoting)
// or a length summary, per spec §4.4 step 2. The `context` variable
// itself is always bound in full (up to max_context_chars) regardless
// of what is echoed here.
func firstUserMessage(query, contextText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "query: %s\n\n", query)
	if len(contextText) <= contextSnippetChars {
		fmt.Fprintf(&b, "context (%d chars, bound to `context`):\n%s\n", len(contextText), contextText)
	} else {
		fmt.Fprintf(&b, "context is %d characters, bound to `context`; first %d characters:\n%s\n",
			len(contextText), contextSnippetChars, contextText[:contextSnippetChars])
	}
	return b.String()
}

// systemPrompt builds spec §4.4 step 1's system prompt.
func (l *Loop) systemPrompt(depth int, recModelID string) string {
	var b strings.Builder
	b.WriteString("You are driving a stateful Python-subset REPL to answer a query over a large context.\n\n")
	b.WriteString("Bound names: context, query, print, len, range, enumerate, zip, map, filter, sorted, ")
	b.WriteString("reversed, sum, min, max, abs, round, any, all, bool, int, float, str, bytes, list, tuple, ")
	b.WriteString("dict, set, frozenset, isinstance, repr, hash, ord, chr, hex, bin, oct, divmod, pow, iter, next.\n")
	b.WriteString("Pre-bound modules (do not import them): re, json, base64, binascii, zlib.\n\n")
	b.WriteString("The REPL is stateful: variables you assign persist across turns.\n\n")
	if l.cfg.StrictCode {
		b.WriteString("Reply with Python code only: no markdown fences, no commentary, ASCII only.\n")
	}
	b.WriteString("Finish by emitting FINAL(\"...\") or FINAL_VAR(name) on its own line when you have the answer.\n\n")
	if depth+1 < l.cfg.MaxDepth {
		fmt.Fprintf(&b, "recursive_llm(sub_query: str, sub_context: str) -> str spawns a child task (model %s) ", recModelID)
		b.WriteString("over a smaller sub-context and returns its final answer as a string.\n")
	}
	return b.String()
}
