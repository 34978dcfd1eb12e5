package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/rlmkit/rlm/internal/rlm/resilience"
)

// RetryConfig is spec §6's `retries` / `retry_backoff_s` configuration
// options: up to Retries attempts with exponential backoff starting at
// BackoffBase on transient errors (§4.4 step 3a).
type RetryConfig struct {
	Retries     int
	BackoffBase time.Duration
}

// RetryingClient wraps a Client with exponential-backoff retries on
// transient errors and a per-model circuit breaker, so a model stuck
// failing doesn't burn the configured retry budget on every call.
type RetryingClient struct {
	inner    Client
	cfg      RetryConfig
	breakers *resilience.BreakerRegistry
}

// NewRetryingClient wraps inner with the given retry policy.
func NewRetryingClient(inner Client, cfg RetryConfig) *RetryingClient {
	if cfg.Retries <= 0 {
		cfg.Retries = 1
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	return &RetryingClient{inner: inner, cfg: cfg, breakers: resilience.DefaultRegistry()}
}

// Complete calls the wrapped client, retrying transient failures with
// exponential backoff, gated by a circuit breaker keyed on model so a
// persistently failing model fails fast instead of exhausting retries
// on every single call.
func (c *RetryingClient) Complete(ctx context.Context, model string, messages []Message, maxTokens int, temperature float64) (string, error) {
	breaker := c.breakers.GetOrCreate(model, resilience.DefaultBreakerConfig())

	backoff, err := retry.NewExponential(c.cfg.BackoffBase)
	if err != nil {
		return "", fmt.Errorf("build backoff policy: %w", err)
	}
	backoff = retry.WithMaxRetries(uint64(c.cfg.Retries-1), backoff)

	var result string
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, callErr := breaker.CallWithResult(func() (any, error) {
			return c.inner.Complete(ctx, model, messages, maxTokens, temperature)
		})
		if callErr != nil {
			if errors.Is(callErr, resilience.ErrCircuitOpen) {
				return callErr
			}
			if isTransient(callErr) {
				return retry.RetryableError(callErr)
			}
			return callErr
		}
		result = res.(string)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("llm call failed after retries: %w", err)
	}
	return result, nil
}

// isTransient classifies network-level and common 5xx-style failures as
// retryable; anything else (bad request, auth failure) is not, matching
// spec §4.4's "exponential backoff on transient errors" (retrying a
// malformed request would never succeed).
func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
