package checkpoint

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	state := ReplState(`{"vars":{"x":{"kind":"int","int":7}},"iteration":2,"depth":0}`)
	require.NoError(t, s.Save(ctx, "task-1", state))

	got, ok, err := s.Load(ctx, "task-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, string(state), string(got))
}

func TestLoadMissingTaskReturnsFalse(t *testing.T) {
	s := openTestStore(t)
	got, ok, err := s.Load(context.Background(), "no-such-task")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, got)
}

func TestSaveOverwritesPriorCheckpoint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "task-1", ReplState(`{"iteration":1}`)))
	require.NoError(t, s.Save(ctx, "task-1", ReplState(`{"iteration":5}`)))

	got, ok, err := s.Load(ctx, "task-1")
	require.NoError(t, err)
	require.True(t, ok)

	var decoded struct {
		Iteration int `json:"iteration"`
	}
	require.NoError(t, json.Unmarshal(got, &decoded))
	require.Equal(t, 5, decoded.Iteration)
}

func TestDeleteRemovesCheckpoint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "task-1", ReplState(`{}`)))
	require.NoError(t, s.Delete(ctx, "task-1"))

	_, ok, err := s.Load(ctx, "task-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteMissingTaskIsNotAnError(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Delete(context.Background(), "never-saved"))
}

func TestDistinctTasksDoNotClobberEachOther(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "task-a", ReplState(`{"iteration":1}`)))
	require.NoError(t, s.Save(ctx, "task-b", ReplState(`{"iteration":2}`)))

	a, _, err := s.Load(ctx, "task-a")
	require.NoError(t, err)
	b, _, err := s.Load(ctx, "task-b")
	require.NoError(t, err)
	require.JSONEq(t, `{"iteration":1}`, string(a))
	require.JSONEq(t, `{"iteration":2}`, string(b))
}

// TestProperty_SaveLoadRoundtrip verifies arbitrary JSON states survive a
// save/load cycle unchanged, keyed by task ID.
func TestProperty_SaveLoadRoundtrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rapid.Check(t, func(t *rapid.T) {
		taskID := rapid.StringMatching(`[a-zA-Z0-9_-]{1,20}`).Draw(t, "task_id")
		iteration := rapid.IntRange(0, 1000).Draw(t, "iteration")
		depth := rapid.IntRange(0, 10).Draw(t, "depth")

		state, err := json.Marshal(map[string]any{"iteration": iteration, "depth": depth})
		require.NoError(t, err)

		require.NoError(t, s.Save(ctx, taskID, state))

		got, ok, err := s.Load(ctx, taskID)
		require.NoError(t, err)
		require.True(t, ok)
		require.JSONEq(t, string(state), string(got))
	})
}
