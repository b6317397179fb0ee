package ratelimit

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/ternarybob/arbor"
)

// Backoff parameters for retryable provider and DMS failures.
const (
	DefaultBaseDelay  = 2 * time.Second
	DefaultMaxDelay   = 90 * time.Second
	DefaultMaxRetries = 3
)

// retryableError is implemented by error types that carry an explicit
// retryable flag (provider rate-limit/network failures, transient DMS
// transport failures).
type retryableError interface {
	IsRetryable() bool
}

// IsRetryable reports whether an error is worth retrying: only errors
// explicitly flagged retryable qualify. Everything else surfaces
// immediately.
func IsRetryable(err error) bool {
	var re retryableError
	if errors.As(err, &re) {
		return re.IsRetryable()
	}
	return false
}

// Backoff executes a fallible operation up to maxAttempts times, waiting
// base*2^attempt (capped at max, multiplied by uniform jitter in
// [0.1, 2.0]) between attempts. Only retryable errors are retried; the
// final attempt's failure is returned.
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	MaxRetries int
	logger     arbor.ILogger

	// jitter is overridable for deterministic tests.
	jitter func() float64
}

// NewBackoff creates a backoff policy with the given attempt cap.
func NewBackoff(maxRetries int, logger arbor.ILogger) *Backoff {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Backoff{
		Base:       DefaultBaseDelay,
		Max:        DefaultMaxDelay,
		MaxRetries: maxRetries,
		logger:     logger,
		jitter: func() float64 {
			return 0.1 + rand.Float64()*1.9
		},
	}
}

// Delay computes the wait before retrying the given attempt (0-based).
func (b *Backoff) Delay(attempt int) time.Duration {
	delay := b.Base << uint(attempt)
	if delay > b.Max || delay <= 0 {
		delay = b.Max
	}
	return time.Duration(float64(delay) * b.jitter())
}

// Do runs op with retries. The context cancels waits between attempts.
func (b *Backoff) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= b.MaxRetries; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt == b.MaxRetries {
			return err
		}

		delay := b.Delay(attempt)
		if b.logger != nil {
			b.logger.Warn().
				Int("attempt", attempt+1).
				Dur("backoff", delay).
				Err(err).
				Msg("Retrying after retryable failure")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
