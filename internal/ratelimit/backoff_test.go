package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

// flaggedError carries an explicit retryable flag.
type flaggedError struct {
	retryable bool
}

func (e *flaggedError) Error() string     { return "flagged failure" }
func (e *flaggedError) IsRetryable() bool { return e.retryable }

func newTestBackoff(maxRetries int) *Backoff {
	b := NewBackoff(maxRetries, arbor.NewLogger())
	b.Base = time.Millisecond
	b.Max = 4 * time.Millisecond
	b.jitter = func() float64 { return 1.0 }
	return b
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&flaggedError{retryable: true}))
	assert.False(t, IsRetryable(&flaggedError{retryable: false}))
	assert.False(t, IsRetryable(errors.New("plain error")))
	assert.False(t, IsRetryable(nil))

	// Wrapped retryable errors still qualify.
	wrapped := errors.Join(errors.New("outer"), &flaggedError{retryable: true})
	assert.True(t, IsRetryable(wrapped))
}

func TestDelay_ExponentialGrowthWithCap(t *testing.T) {
	b := newTestBackoff(5)

	assert.Equal(t, 1*time.Millisecond, b.Delay(0))
	assert.Equal(t, 2*time.Millisecond, b.Delay(1))
	assert.Equal(t, 4*time.Millisecond, b.Delay(2))
	// Capped at Max from here on.
	assert.Equal(t, 4*time.Millisecond, b.Delay(3))
	assert.Equal(t, 4*time.Millisecond, b.Delay(10))
}

func TestDelay_JitterApplied(t *testing.T) {
	b := newTestBackoff(3)
	b.jitter = func() float64 { return 0.5 }

	assert.Equal(t, 500*time.Microsecond, b.Delay(0))
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	b := newTestBackoff(3)

	calls := 0
	err := b.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesRetryableErrors(t *testing.T) {
	b := newTestBackoff(3)

	calls := 0
	err := b.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &flaggedError{retryable: true}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetryableSurfacesImmediately(t *testing.T) {
	b := newTestBackoff(3)

	calls := 0
	err := b.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &flaggedError{retryable: false}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	b := newTestBackoff(2)

	calls := 0
	err := b.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &flaggedError{retryable: true}
	})

	require.Error(t, err)
	// Initial attempt plus two retries.
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelsWait(t *testing.T) {
	b := newTestBackoff(3)
	b.Base = time.Second
	b.Max = time.Second

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := b.Do(ctx, func(ctx context.Context) error {
		calls++
		return &flaggedError{retryable: true}
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
