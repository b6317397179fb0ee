package llm

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/madeinoz67/bank-statement-separator/internal/interfaces"
)

// errEmptyReply marks an API response that carried no text content.
var errEmptyReply = errors.New("empty reply")

// isRateLimitError matches transport-level rate-limit and quota failures
// across providers (HTTP 429, Gemini RESOURCE_EXHAUSTED, Claude overload).
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "overloaded")
}

// isTransientNetworkError matches failures worth retrying at the backoff
// layer: timeouts, refused connections, resets.
func isTransientNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "EOF")
}

// wrapTransportError maps an API call failure to the contract error type.
// Rate-limit and transient-network failures are marked retryable so the
// backoff layer can distinguish them; everything else surfaces as-is.
func wrapTransportError(provider string, err error) *interfaces.ProviderError {
	switch {
	case isRateLimitError(err):
		return interfaces.NewRateLimitError(provider, err)
	case isTransientNetworkError(err):
		return &interfaces.ProviderError{Provider: provider, Reason: "network", Retryable: true, Err: err}
	default:
		return &interfaces.ProviderError{Provider: provider, Reason: "request failed", Retryable: false, Err: err}
	}
}
