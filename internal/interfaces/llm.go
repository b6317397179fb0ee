// -----------------------------------------------------------------------
// LLM Provider Interface - boundary analysis and metadata extraction
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"fmt"

	"github.com/madeinoz67/bank-statement-separator/internal/models"
)

// BoundaryResult is a provider's answer to a boundary analysis request.
type BoundaryResult struct {
	Boundaries []models.Boundary `json:"boundaries"`
	TotalPages int               `json:"total_pages"`
	Confidence float64           `json:"confidence"`
	Analysis   string            `json:"analysis,omitempty"`
	Provider   string            `json:"provider"`
}

// MetadataResult is a provider's answer to a metadata extraction request.
type MetadataResult struct {
	Metadata   models.StatementMetadata `json:"metadata"`
	Confidence float64                  `json:"confidence"`
	Provider   string                   `json:"provider"`
}

// ProviderInfo describes a provider variant for logging and reports.
type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Kind  string `json:"kind"` // "cloud" or "local"
}

// Provider is the uniform capability contract over LLM variants.
// Implementations never retry internally; retries belong to the rate
// limiter and backoff layer.
type Provider interface {
	// IsAvailable is a cheap probe (trivial prompt or health endpoint).
	IsAvailable(ctx context.Context) bool

	// AnalyzeBoundaries detects statement boundaries in page-joined text.
	AnalyzeBoundaries(ctx context.Context, text string, totalPages int) (*BoundaryResult, error)

	// ExtractMetadata extracts statement metadata from one segment's text.
	ExtractMetadata(ctx context.Context, text string, startPage, endPage int) (*MetadataResult, error)

	// Info identifies the provider variant.
	Info() ProviderInfo
}

// ProviderError is the contract-level failure type for Provider calls.
// Retryable errors (rate limit, transient network) may be retried by the
// backoff layer; malformed responses must not be.
type ProviderError struct {
	Provider  string
	Reason    string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Reason)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether the backoff layer may retry this failure.
func (e *ProviderError) IsRetryable() bool { return e.Retryable }

// NewRateLimitError wraps a transport-level rate-limit or quota failure.
func NewRateLimitError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Reason: "rate limit", Retryable: true, Err: err}
}

// NewInvalidResponseError wraps an unparseable or structurally invalid
// model reply.
func NewInvalidResponseError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Reason: "invalid response", Retryable: false, Err: err}
}
