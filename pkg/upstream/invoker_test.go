package upstream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider fails failures times before succeeding, recording the
// timestamps of every attempt.
type stubProvider struct {
	mu       sync.Mutex
	failures int
	calls    []time.Time
	reply    string
}

func (s *stubProvider) Complete(_ context.Context, _ Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, time.Now())
	if len(s.calls) <= s.failures {
		return nil, errors.New("boom")
	}
	return &Response{Content: s.reply}, nil
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestInvoker_Invoke(t *testing.T) {
	t.Run("should return on first success", func(t *testing.T) {
		provider := &stubProvider{reply: "hi there"}
		inv := NewInvoker(provider, 3, time.Millisecond, zerolog.Nop())

		resp, err := inv.Invoke(context.Background(), Request{})
		require.NoError(t, err)
		assert.Equal(t, "hi there", resp.Content)
		assert.Equal(t, 1, provider.callCount())
	})

	t.Run("should retry transient failures", func(t *testing.T) {
		provider := &stubProvider{failures: 2, reply: "eventually"}
		inv := NewInvoker(provider, 3, time.Millisecond, zerolog.Nop())

		resp, err := inv.Invoke(context.Background(), Request{})
		require.NoError(t, err)
		assert.Equal(t, "eventually", resp.Content)
		assert.Equal(t, 3, provider.callCount())
	})

	t.Run("should make exactly maxAttempts calls then surface the failure", func(t *testing.T) {
		provider := &stubProvider{failures: 100}
		inv := NewInvoker(provider, 3, time.Millisecond, zerolog.Nop())

		_, err := inv.Invoke(context.Background(), Request{})
		require.Error(t, err)
		assert.Equal(t, 3, provider.callCount())

		var upErr *Error
		require.ErrorAs(t, err, &upErr)
		assert.Equal(t, 3, upErr.Attempts)
		assert.EqualError(t, upErr.Unwrap(), "boom")
	})

	t.Run("should back off exponentially between attempts", func(t *testing.T) {
		provider := &stubProvider{failures: 100}
		base := 30 * time.Millisecond
		inv := NewInvoker(provider, 3, base, zerolog.Nop())

		_, err := inv.Invoke(context.Background(), Request{})
		require.Error(t, err)
		require.Equal(t, 3, provider.callCount())

		// Delays approximate base, then 2*base.
		gap1 := provider.calls[1].Sub(provider.calls[0])
		gap2 := provider.calls[2].Sub(provider.calls[1])
		assert.GreaterOrEqual(t, gap1, base)
		assert.GreaterOrEqual(t, gap2, 2*base)
		assert.Less(t, gap2, 8*base)
	})

	t.Run("should stop when the context is cancelled", func(t *testing.T) {
		provider := &stubProvider{failures: 100}
		inv := NewInvoker(provider, 3, time.Minute, zerolog.Nop())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := inv.Invoke(ctx, Request{})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 3*time.Second)
		assert.Equal(t, 1, provider.callCount())
	})
}

func TestNewInvoker_Defaults(t *testing.T) {
	inv := NewInvoker(&stubProvider{}, 0, 0, zerolog.Nop())
	assert.Equal(t, DefaultMaxAttempts, inv.maxAttempts)
	assert.Equal(t, DefaultBaseDelay, inv.baseDelay)
}

func TestNewProvider(t *testing.T) {
	t.Run("should build openai", func(t *testing.T) {
		p, err := NewProvider("openai", "key")
		require.NoError(t, err)
		assert.Equal(t, "openai", p.Name())
	})

	t.Run("should build anthropic", func(t *testing.T) {
		p, err := NewProvider("anthropic", "key")
		require.NoError(t, err)
		assert.Equal(t, "anthropic", p.Name())
	})

	t.Run("should reject unknown vendors", func(t *testing.T) {
		_, err := NewProvider("mystery", "key")
		assert.Error(t, err)
	})
}
