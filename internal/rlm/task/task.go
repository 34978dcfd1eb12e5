// Package task defines the unit of work spec.md §3's DATA MODEL names
// and a JSONL dataset loader for the `rlm run` batch CLI form.
package task

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Task is spec.md §3's `(dataset_id, task_id, query, context)` tuple.
// Context may reach hundreds of thousands of characters; callers should
// hold it by reference and never copy it beyond what the agent loop's
// own truncation/snapshot logic already does.
type Task struct {
	DatasetID string `json:"dataset_id"`
	TaskID    string `json:"task_id"`
	Query     string `json:"query"`
	Context   string `json:"context"`
}

// LoadJSONL reads one Task per non-blank line from r, the dataset
// format the `rlm run` batch form consumes. A line missing task_id is
// rejected rather than silently assigned one, since task IDs key the
// transcript and checkpoint store.
func LoadJSONL(r io.Reader) ([]Task, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var tasks []Task
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var t Task
		if err := json.Unmarshal(line, &t); err != nil {
			return nil, fmt.Errorf("line %d: parse task: %w", lineNo, err)
		}
		if t.TaskID == "" {
			return nil, fmt.Errorf("line %d: task missing task_id", lineNo)
		}
		tasks = append(tasks, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return tasks, nil
}
