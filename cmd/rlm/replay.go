package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rlmkit/rlm/internal/rlm/capability"
	"github.com/rlmkit/rlm/internal/rlm/limits"
	"github.com/rlmkit/rlm/internal/rlm/repl"
	"github.com/rlmkit/rlm/internal/rlm/transcript"
)

var (
	replayStep       bool
	replayTranscript string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay REPL steps deterministically",
	Long: `Replay drives the sandboxed interpreter without an LLM in the loop,
either as a per-step JSON protocol server on stdio (--step, spec.md §6's
"Per-step JSON protocol") or by re-executing a recorded transcript's
repl_input events and verifying each one reproduces its recorded
repl_output (--transcript).`,
	Example: `
  rlm replay --step < requests.jsonl > responses.jsonl
  rlm replay --transcript transcript.jsonl
`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&replayStep, "step", false, "speak the per-step JSON protocol on stdin/stdout")
	replayCmd.Flags().StringVar(&replayTranscript, "transcript", "", "path to a recorded transcript JSONL file to re-execute and verify")
}

func runReplay(cmd *cobra.Command, args []string) error {
	switch {
	case replayStep:
		return replayStepProtocol(os.Stdin, os.Stdout)
	case replayTranscript != "":
		return replayFromTranscript(replayTranscript)
	default:
		return &cliError{code: 2, err: fmt.Errorf("replay requires either --step or --transcript")}
	}
}

// replayStepProtocol reads repl.Request lines from r and writes one
// repl.Response line per request to w, driving a fresh in-process
// repl.Session per request's state (rather than the teacher's
// subprocess-per-session model): each request carries its own `state`,
// so the session is rebuilt from it on every line instead of persisting
// across lines in this process.
func replayStepProtocol(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := executeStep(line)
		out, err := repl.EncodeResponse(resp)
		if err != nil {
			return &cliError{code: 2, err: fmt.Errorf("encode response: %w", err)}
		}
		bw.Write(out)
		bw.WriteByte('\n')
		if err := bw.Flush(); err != nil {
			return &cliError{code: 2, err: fmt.Errorf("write response: %w", err)}
		}
	}
	if err := scanner.Err(); err != nil {
		return &cliError{code: 2, err: fmt.Errorf("read request: %w", err)}
	}
	return nil
}

func executeStep(line []byte) *repl.Response {
	req, err := repl.DecodeRequest(line)
	if err != nil {
		msg := err.Error()
		return &repl.Response{OK: false, Error: &msg}
	}

	maxOutputChars := req.MaxOutputChars
	if maxOutputChars <= 0 {
		maxOutputChars = 8_000
	}

	sess := repl.New(repl.Config{
		Context:        req.Context,
		Query:          req.Query,
		MaxOutputChars: maxOutputChars,
		Capability:     capability.Config{},
		Limits:         limits.Config{MaxSteps: 200_000, MaxBytes: 64 << 20, MaxStackDepth: 64},
	})
	if err := sess.Restore(req.State); err != nil {
		msg := err.Error()
		return &repl.Response{OK: false, Error: &msg}
	}

	output, execErr := sess.Execute(req.Code)
	state, snapErr := sess.Snapshot()
	if snapErr != nil {
		msg := snapErr.Error()
		return &repl.Response{OK: false, Error: &msg}
	}
	if execErr != nil {
		msg := execErr.Error()
		return &repl.Response{OK: false, Output: output, Error: &msg, State: state}
	}
	return &repl.Response{OK: true, Output: output, State: state}
}

// replayFromTranscript re-executes a recorded transcript's repl_input
// events in task order against a fresh session seeded from that task's
// task_start event, and verifies each one reproduces its recorded
// repl_output exactly. Any divergence is spec.md §6's "mismatch in
// replay mode", reported with exit code 1.
func replayFromTranscript(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &cliError{code: 2, err: fmt.Errorf("open transcript: %w", err)}
	}
	defer f.Close()

	events, err := decodeTranscript(f)
	if err != nil {
		return &cliError{code: 2, err: err}
	}

	sessions := map[string]*repl.Session{}
	pendingCode := map[string]string{}
	mismatches := 0
	checked := 0

	for _, ev := range events {
		switch ev.Type {
		case transcript.EventTaskStart:
			// task_start only records context_len, not the context text
			// itself (spec §6's transcript schema), so a replayed session
			// starts with an empty `context` binding; steps whose code
			// reads `context` will legitimately diverge unless the caller
			// also supplies the original context out of band.
			sessions[ev.TaskID] = repl.New(repl.Config{
				Context:        "",
				Query:          ev.Query,
				MaxOutputChars: 8_000,
				Capability:     capability.Config{},
				Limits:         limits.Config{MaxSteps: 200_000, MaxBytes: 64 << 20, MaxStackDepth: 64},
			})

		case transcript.EventREPLInput:
			pendingCode[ev.TaskID] = ev.Code

		case transcript.EventREPLOutput:
			sess := sessions[ev.TaskID]
			code, hasCode := pendingCode[ev.TaskID]
			if sess == nil || !hasCode {
				continue
			}
			delete(pendingCode, ev.TaskID)
			checked++
			got, execErr := sess.Execute(code)
			if execErr != nil || got != ev.Output {
				mismatches++
			}

		case transcript.EventREPLError:
			delete(pendingCode, ev.TaskID)
		}
	}

	if mismatches > 0 {
		return replayMismatch(fmt.Errorf("%d of %d replayed steps diverged from the recorded transcript", mismatches, checked))
	}
	fmt.Printf("replayed %d steps from %s, no divergence\n", checked, path)
	return nil
}

func decodeTranscript(r io.Reader) ([]transcript.Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var events []transcript.Event
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev transcript.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("parse transcript line: %w", err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	return events, nil
}
