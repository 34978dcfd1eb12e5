package interp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rlmkit/rlm/internal/rlm/capability"
	"github.com/rlmkit/rlm/internal/rlm/limits"
)

func runSrc(t *testing.T, src string) (string, *ExecError) {
	t.Helper()
	env := NewEnv()
	env.Promote()
	it := New(env, capability.DefaultConfig())
	var out []byte
	it.Output = func(s string) { out = append(out, s...) }
	budget := limits.New(limits.Config{MaxSteps: 100000, MaxStackDepth: 64, MaxBytes: 1 << 20, Deadline: time.Now().Add(2 * time.Second)})
	_, err := it.Run(src, budget)
	return string(out), err
}

func TestTryExceptCatchesNamedError(t *testing.T) {
	out, err := runSrc(t, `
try:
    raise ValueError("bad input")
except ValueError as e:
    print("caught:", e)
`)
	require.Nil(t, err)
	require.Equal(t, "caught: bad input\n", out)
}

func TestTryExceptBareCatchesAnything(t *testing.T) {
	out, err := runSrc(t, `
try:
    raise RuntimeError("boom")
except:
    print("handled")
`)
	require.Nil(t, err)
	require.Equal(t, "handled\n", out)
}

func TestTryExceptWrongTypePropagates(t *testing.T) {
	_, err := runSrc(t, `
try:
    raise KeyError("missing")
except ValueError:
    print("wrong handler")
`)
	require.NotNil(t, err)
	require.Equal(t, KindKeyError, err.Kind)
}

func TestFinallyRunsOnSuccessAndFailure(t *testing.T) {
	out, err := runSrc(t, `
try:
    x = 1
finally:
    print("cleanup")
`)
	require.Nil(t, err)
	require.Equal(t, "cleanup\n", out)

	out, err = runSrc(t, `
try:
    raise TypeError("nope")
finally:
    print("cleanup")
`)
	require.NotNil(t, err)
	require.Equal(t, "cleanup\n", out)
}
