// Package transcript writes the append-only JSONL event log spec §6
// names: one object per line, flushed immediately after every write so
// a crash never loses an already-recorded event (spec §5's "transcript
// writer is the only shared sink ... flushes after every event for
// crash-consistency").
package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the transcript event schema from spec §6.
type EventType string

const (
	EventTaskStart   EventType = "task_start"
	EventLLMResponse EventType = "llm_response"
	EventLLMError    EventType = "llm_error"
	EventREPLInput   EventType = "repl_input"
	EventREPLOutput  EventType = "repl_output"
	EventREPLError   EventType = "repl_error"
	EventFinalParsed EventType = "final_parsed"
	EventTaskEnd     EventType = "task_end"
)

// Event is the union of every event type's fields. Each builder
// populates only the fields its Type carries. id, type, timestamp,
// dataset, task_id and ok are written on every event; every other field
// is dropped by `omitempty` when zero, so a depth or iteration of 0 is
// not written.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Dataset        string `json:"dataset"`
	TaskID         string `json:"task_id"`
	Query          string `json:"query,omitempty"`
	QueryLen       int    `json:"query_len,omitempty"`
	ContextLen     int    `json:"context_len,omitempty"`
	Model          string `json:"model,omitempty"`
	RecursiveModel string `json:"recursive_model,omitempty"`

	Depth         int    `json:"depth,omitempty"`
	Iteration     int    `json:"iteration,omitempty"`
	ModelSelected string `json:"model_selected,omitempty"`
	ElapsedMs     int64  `json:"elapsed_ms,omitempty"`
	Content       string `json:"content,omitempty"`

	Code   string `json:"code,omitempty"`
	Output string `json:"output,omitempty"`
	Answer string `json:"answer,omitempty"`

	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// TaskStart builds the task_start event (spec §6 required fields:
// dataset, task_id, query, query_len, context_len, model,
// recursive_model).
func TaskStart(dataset, taskID, query string, contextLen int, model, recursiveModel string) Event {
	return Event{
		ID: uuid.NewString(), Type: EventTaskStart, Timestamp: now(),
		Dataset: dataset, TaskID: taskID, Query: query, QueryLen: len(query),
		ContextLen: contextLen, Model: model, RecursiveModel: recursiveModel,
	}
}

// LLMResponse builds the llm_response event.
func LLMResponse(dataset, taskID string, depth, iteration int, modelSelected string, elapsed time.Duration, content string) Event {
	return Event{
		ID: uuid.NewString(), Type: EventLLMResponse, Timestamp: now(),
		Dataset: dataset, TaskID: taskID, Depth: depth, Iteration: iteration,
		ModelSelected: modelSelected, ElapsedMs: elapsed.Milliseconds(), Content: content,
	}
}

// LLMError builds the llm_error event.
func LLMError(dataset, taskID string, depth, iteration int, elapsed time.Duration, err error) Event {
	return Event{
		ID: uuid.NewString(), Type: EventLLMError, Timestamp: now(),
		Dataset: dataset, TaskID: taskID, Depth: depth, Iteration: iteration,
		ElapsedMs: elapsed.Milliseconds(), Error: err.Error(),
	}
}

// REPLInput builds the repl_input event.
func REPLInput(dataset, taskID, code string) Event {
	return Event{ID: uuid.NewString(), Type: EventREPLInput, Timestamp: now(), Dataset: dataset, TaskID: taskID, Code: code}
}

// REPLOutput builds the repl_output event.
func REPLOutput(dataset, taskID, output string) Event {
	return Event{ID: uuid.NewString(), Type: EventREPLOutput, Timestamp: now(), Dataset: dataset, TaskID: taskID, Output: output}
}

// REPLError builds the repl_error event.
func REPLError(dataset, taskID string, err error) Event {
	return Event{ID: uuid.NewString(), Type: EventREPLError, Timestamp: now(), Dataset: dataset, TaskID: taskID, Error: err.Error()}
}

// FinalParsed builds the final_parsed event.
func FinalParsed(dataset, taskID, answer string) Event {
	return Event{ID: uuid.NewString(), Type: EventFinalParsed, Timestamp: now(), Dataset: dataset, TaskID: taskID, Answer: answer}
}

// TaskEnd builds the task_end event. err may be nil on success.
func TaskEnd(dataset, taskID string, ok bool, err error) Event {
	e := Event{ID: uuid.NewString(), Type: EventTaskEnd, Timestamp: now(), Dataset: dataset, TaskID: taskID, OK: ok}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// now is a var so tests can pin a deterministic clock.
var now = time.Now

// Writer serializes Event writes under a mutex and syncs the
// underlying sink after every line when it implements Sync, mirroring
// `observability.EventLogger`'s single-writer-behind-a-mutex shape.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
	enc *json.Encoder
}

// flusher is implemented by *os.File; lumberjack.Logger has no Sync
// method, so a Writer over one hands each line to the file without a sync.
type flusher interface {
	Sync() error
}

// NewWriter wraps any io.Writer (typically a *lumberjack.Logger for
// on-disk rotation) as a transcript sink.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out, enc: json.NewEncoder(out)}
}

// Write appends one event as a single JSON line and flushes.
func (w *Writer) Write(e Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(e); err != nil {
		return fmt.Errorf("write transcript event: %w", err)
	}
	if f, ok := w.out.(flusher); ok {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("flush transcript: %w", err)
		}
	}
	return nil
}
