package task

import (
	"strings"
	"testing"
)

func TestLoadJSONLParsesEachLine(t *testing.T) {
	data := `{"dataset_id":"needle","task_id":"t1","query":"find x","context":"..."}
{"dataset_id":"needle","task_id":"t2","query":"find y","context":"..."}
`
	tasks, err := LoadJSONL(strings.NewReader(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].TaskID != "t1" || tasks[1].TaskID != "t2" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
}

func TestLoadJSONLSkipsBlankLines(t *testing.T) {
	data := "{\"task_id\":\"t1\",\"query\":\"q\",\"context\":\"c\"}\n\n   \n{\"task_id\":\"t2\",\"query\":\"q2\",\"context\":\"c2\"}\n"
	tasks, err := LoadJSONL(strings.NewReader(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
}

func TestLoadJSONLRejectsMissingTaskID(t *testing.T) {
	data := `{"query":"q","context":"c"}`
	_, err := LoadJSONL(strings.NewReader(data))
	if err == nil {
		t.Fatal("expected an error for a task missing task_id")
	}
}

func TestLoadJSONLRejectsMalformedLine(t *testing.T) {
	data := `not json`
	_, err := LoadJSONL(strings.NewReader(data))
	if err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}
