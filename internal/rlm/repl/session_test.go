package repl

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rlmkit/rlm/internal/rlm/capability"
	"github.com/rlmkit/rlm/internal/rlm/limits"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	return New(Config{
		Context:        "the context",
		Query:          "the query",
		MaxOutputChars: 2000,
		Capability:     capability.DefaultConfig(),
		Limits:         limits.Config{MaxSteps: 1_000_000, MaxStackDepth: 64, MaxBytes: 64 << 20, Deadline: time.Now().Add(2 * time.Second)},
	})
}

func TestSessionPersistsStateAcrossTurns(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Execute("x = 1")
	require.NoError(t, err)
	out, err := s.Execute("x += 1\nprint(x)")
	require.NoError(t, err)
	require.Equal(t, "2\n", out)
}

func TestSessionRollsBackOnFailure(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Execute("x = 1")
	require.NoError(t, err)
	_, err = s.Execute("x = 2\nraise_undefined_name_error_trigger")
	require.Error(t, err)
	out, err := s.Execute("print(x)")
	require.NoError(t, err)
	require.Equal(t, "1\n", out)
}

func TestSessionImportForbidden(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Execute("import re\nprint(re.findall(r'\\d+', context)[:3])")
	require.Error(t, err)
	require.Contains(t, err.Error(), "__import__ not found")
}

func TestSessionTruncatesOutput(t *testing.T) {
	s := newTestSession(t)
	out, err := s.Execute("print('x' * 10000)")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(out, "\n\n[truncated 10001 chars -> 2000]"))
}

func TestSessionSnapshotRestoreRoundTrip(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Execute("answer = 42\nname = 'roger'")
	require.NoError(t, err)
	snap, err := s.Snapshot()
	require.NoError(t, err)

	s2 := newTestSession(t)
	require.NoError(t, s2.Restore(snap))
	out, err := s2.Execute("print(answer, name)")
	require.NoError(t, err)
	require.Equal(t, "42 roger\n", out)
}
