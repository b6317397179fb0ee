package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTryAcquire_BurstThenDenied(t *testing.T) {
	// 1 request/minute refills far too slowly to matter inside a test.
	limiter := NewLimiter(1, 5)

	for i := 0; i < 5; i++ {
		assert.True(t, limiter.TryAcquire(), "burst acquisition %d", i+1)
	}
	assert.False(t, limiter.TryAcquire(), "bucket should be empty after the burst")
}

func TestTryAcquire_NeverBlocks(t *testing.T) {
	limiter := NewLimiter(1, 1)

	assert.True(t, limiter.TryAcquire())
	// Denied immediately rather than waiting for a refill.
	assert.False(t, limiter.TryAcquire())
}

func TestStats_CountsGrantedRequests(t *testing.T) {
	limiter := NewLimiter(60, 10)

	for i := 0; i < 3; i++ {
		limiter.TryAcquire()
	}

	stats := limiter.Stats()
	assert.Equal(t, 3, stats.RequestsLastMinute)
	assert.Equal(t, 60, stats.RequestsPerMinute)
	assert.Equal(t, 10, stats.BurstLimit)
}

func TestNewLimiter_ClampsInvalidParameters(t *testing.T) {
	limiter := NewLimiter(0, -3)

	stats := limiter.Stats()
	assert.Equal(t, 1, stats.RequestsPerMinute)
	assert.Equal(t, 1, stats.BurstLimit)
}
