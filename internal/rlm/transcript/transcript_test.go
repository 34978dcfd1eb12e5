package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriterAppendsOneJSONLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Write(TaskStart("needle", "task-1", "what is the number?", 1024, "root-model", "sub-model")))
	require.NoError(t, w.Write(REPLInput("needle", "task-1", "print(1)")))
	require.NoError(t, w.Write(TaskEnd("needle", "task-1", true, nil)))

	scanner := bufio.NewScanner(&buf)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 3)

	var first Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, EventTaskStart, first.Type)
	require.Equal(t, 19, first.QueryLen)
	require.Equal(t, 1024, first.ContextLen)
}

func TestTaskEndCarriesErrorOnFailure(t *testing.T) {
	e := TaskEnd("needle", "task-1", false, errors.New("boom"))
	require.False(t, e.OK)
	require.Equal(t, "boom", e.Error)
}

func TestLLMResponseElapsedRoundTrips(t *testing.T) {
	e := LLMResponse("needle", "task-1", 1, 0, "sub-model", 150*time.Millisecond, "print(1)")
	require.Equal(t, int64(150), e.ElapsedMs)
	require.Equal(t, 1, e.Depth)
}
