package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	calls   int
	failN   int
	failErr error
}

func (f *fakeClient) Complete(ctx context.Context, model string, messages []Message, maxTokens int, temperature float64) (string, error) {
	f.calls++
	if f.calls <= f.failN {
		return "", f.failErr
	}
	return "ok", nil
}

func TestRetryingClientRetriesTransientError(t *testing.T) {
	fc := &fakeClient{failN: 2, failErr: &net.DNSError{IsTimeout: true}}
	rc := NewRetryingClient(fc, RetryConfig{Retries: 5, BackoffBase: time.Millisecond})
	out, err := rc.Complete(context.Background(), "test-model", []Message{{Role: "user", Content: "hi"}}, 100, 0.0)
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, 3, fc.calls)
}

func TestRetryingClientGivesUpOnNonTransientError(t *testing.T) {
	fc := &fakeClient{failN: 99, failErr: errors.New("bad request")}
	rc := NewRetryingClient(fc, RetryConfig{Retries: 5, BackoffBase: time.Millisecond})
	_, err := rc.Complete(context.Background(), "test-model", []Message{{Role: "user", Content: "hi"}}, 100, 0.0)
	require.Error(t, err)
	require.Equal(t, 1, fc.calls)
}

func TestRetryingClientExhaustsRetryBudget(t *testing.T) {
	fc := &fakeClient{failN: 99, failErr: &net.DNSError{IsTimeout: true}}
	rc := NewRetryingClient(fc, RetryConfig{Retries: 3, BackoffBase: time.Millisecond})
	_, err := rc.Complete(context.Background(), "test-model", []Message{{Role: "user", Content: "hi"}}, 100, 0.0)
	require.Error(t, err)
	require.Equal(t, 3, fc.calls)
}
