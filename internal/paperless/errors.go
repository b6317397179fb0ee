package paperless

import (
	"fmt"
	"net/http"
)

// DmsError is the failure type for document management service calls.
// Transport failures and 5xx/429 responses are retryable; auth and client
// errors are not.
type DmsError struct {
	Op         string
	StatusCode int
	Message    string
	Retryable  bool
	Err        error
}

func (e *DmsError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("paperless %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("paperless %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("paperless %s: %s", e.Op, e.Message)
	}
}

func (e *DmsError) Unwrap() error { return e.Err }

// IsRetryable reports whether the backoff layer may retry this failure.
func (e *DmsError) IsRetryable() bool { return e.Retryable }

// newStatusError classifies an unexpected HTTP status.
func newStatusError(op string, statusCode int, body string) *DmsError {
	return &DmsError{
		Op:         op,
		StatusCode: statusCode,
		Message:    body,
		Retryable:  statusCode == http.StatusTooManyRequests || statusCode >= 500,
	}
}

// newTransportError wraps a network-level failure, always retryable.
func newTransportError(op string, err error) *DmsError {
	return &DmsError{Op: op, Err: err, Retryable: true}
}

// newResponseError wraps an unusable response body, never retryable.
func newResponseError(op string, err error) *DmsError {
	return &DmsError{Op: op, Err: err, Retryable: false}
}
