// -----------------------------------------------------------------------
// Token-bucket admission control for LLM provider calls
// -----------------------------------------------------------------------

package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Stats is a point-in-time view of limiter state.
type Stats struct {
	RequestsLastMinute int     `json:"requests_last_minute"`
	TokensRemaining    float64 `json:"tokens_remaining"`
	RequestsPerMinute  int     `json:"requests_per_minute"`
	BurstLimit         int     `json:"burst_limit"`
}

// Limiter is a token-bucket admission controller. The bucket starts full
// at burstLimit tokens and refills at requestsPerMinute. TryAcquire is the
// only admission form; callers decide how to wait when denied.
type Limiter struct {
	limiter           *rate.Limiter
	requestsPerMinute int
	burstLimit        int

	mu      sync.Mutex
	granted []time.Time // admission timestamps within the trailing minute
}

// NewLimiter creates a limiter with the given steady rate and burst size.
// Non-positive parameters fall back to 1.
func NewLimiter(requestsPerMinute, burstLimit int) *Limiter {
	if requestsPerMinute < 1 {
		requestsPerMinute = 1
	}
	if burstLimit < 1 {
		burstLimit = 1
	}
	return &Limiter{
		limiter:           rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burstLimit),
		requestsPerMinute: requestsPerMinute,
		burstLimit:        burstLimit,
	}
}

// TryAcquire takes one token if available. It never blocks.
func (l *Limiter) TryAcquire() bool {
	if !l.limiter.Allow() {
		return false
	}

	l.mu.Lock()
	l.prune(time.Now())
	l.granted = append(l.granted, time.Now())
	l.mu.Unlock()
	return true
}

// Stats returns current limiter observations.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	l.prune(time.Now())
	observed := len(l.granted)
	l.mu.Unlock()

	return Stats{
		RequestsLastMinute: observed,
		TokensRemaining:    l.limiter.Tokens(),
		RequestsPerMinute:  l.requestsPerMinute,
		BurstLimit:         l.burstLimit,
	}
}

// prune drops admission records older than one minute. Caller holds mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-time.Minute)
	idx := 0
	for idx < len(l.granted) && l.granted[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		l.granted = append(l.granted[:0], l.granted[idx:]...)
	}
}
