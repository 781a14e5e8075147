package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/solenne/hearth/internal/observability"
)

const (
	// DefaultMaxAttempts is the total attempt budget per completion call,
	// including the first try.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the backoff before the second attempt; the delay
	// doubles per subsequent attempt.
	DefaultBaseDelay = 500 * time.Millisecond
)

// Error is the terminal failure surfaced after the attempt budget is
// exhausted. It wraps the error from the last attempt.
type Error struct {
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Invoker calls a Provider with bounded retries and exponential backoff.
// Retry is an explicit loop here so the rest of the relay never sees
// transient upstream failures.
type Invoker struct {
	provider    Provider
	maxAttempts int
	baseDelay   time.Duration
	logger      zerolog.Logger
}

// NewInvoker wraps provider with the retry policy. Non-positive arguments
// fall back to the defaults.
func NewInvoker(provider Provider, maxAttempts int, baseDelay time.Duration, logger zerolog.Logger) *Invoker {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Invoker{
		provider:    provider,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		logger:      logger,
	}
}

// Invoke performs the completion call, retrying transient failures with
// delays of baseDelay * 2^attempt. The error from the final attempt is
// wrapped in *Error; context cancellation stops the loop early.
func (inv *Invoker) Invoke(ctx context.Context, req Request) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt < inv.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Join(lastErr, err)
		}

		start := time.Now()
		resp, err := inv.provider.Complete(ctx, req)
		observability.RecordUpstreamDuration(time.Since(start))
		if err == nil {
			observability.RecordUpstreamAttempt(inv.provider.Name(), "ok")
			return resp, nil
		}
		observability.RecordUpstreamAttempt(inv.provider.Name(), "error")
		lastErr = err

		if attempt < inv.maxAttempts-1 {
			delay := inv.baseDelay << attempt
			inv.logger.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Int("max_attempts", inv.maxAttempts).
				Dur("backoff", delay).
				Msg("Upstream attempt failed, retrying")

			select {
			case <-ctx.Done():
				return nil, errors.Join(lastErr, ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return nil, &Error{Attempts: inv.maxAttempts, Err: lastErr}
}
