package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/madeinoz67/bank-statement-separator/internal/interfaces"
	"github.com/madeinoz67/bank-statement-separator/internal/models"
)

// boundaryPayload mirrors the JSON reply expected from boundary analysis.
// Page fields are pointers so missing values can be told apart from zero.
type boundaryPayload struct {
	Boundaries []struct {
		StartPage     *int    `json:"start_page"`
		EndPage       *int    `json:"end_page"`
		AccountNumber string  `json:"account_number"`
		BankName      string  `json:"bank_name"`
		Confidence    float64 `json:"confidence"`
		Reasoning     string  `json:"reasoning"`
	} `json:"boundaries"`
	TotalStatements int     `json:"total_statements"`
	Confidence      float64 `json:"confidence"`
	Analysis        string  `json:"analysis"`
}

// metadataPayload mirrors the JSON reply expected from metadata extraction.
type metadataPayload struct {
	BankName        string  `json:"bank_name"`
	AccountNumber   string  `json:"account_number"`
	StatementPeriod string  `json:"statement_period"`
	StatementDate   string  `json:"statement_date"`
	CustomerName    string  `json:"customer_name"`
	Confidence      float64 `json:"confidence"`
}

// stripCodeFences unwraps a reply wrapped in markdown code fences, with or
// without a language tag. Replies without fences pass through unchanged.
func stripCodeFences(reply string) string {
	s := strings.TrimSpace(reply)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line ("json", "JSON", or empty).
		first := strings.TrimSpace(s[:idx])
		if len(first) <= 8 && !strings.ContainsAny(first, "{}[]") {
			s = s[idx+1:]
		}
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// parseBoundaryReply decodes and validates a provider boundary reply.
// Malformed payloads and boundaries without integer page fields are
// rejected with a non-retryable "invalid response" error.
func parseBoundaryReply(provider, reply string, totalPages int) (*interfaces.BoundaryResult, error) {
	var payload boundaryPayload
	if err := json.Unmarshal([]byte(stripCodeFences(reply)), &payload); err != nil {
		return nil, interfaces.NewInvalidResponseError(provider, fmt.Errorf("unmarshal boundary reply: %w", err))
	}

	boundaries := make([]models.Boundary, 0, len(payload.Boundaries))
	for i, b := range payload.Boundaries {
		if b.StartPage == nil || b.EndPage == nil {
			return nil, interfaces.NewInvalidResponseError(provider,
				fmt.Errorf("boundary %d is missing start_page or end_page", i))
		}
		boundaries = append(boundaries, models.Boundary{
			StartPage:     *b.StartPage,
			EndPage:       *b.EndPage,
			AccountNumber: strings.TrimSpace(b.AccountNumber),
			BankName:      strings.TrimSpace(b.BankName),
			Confidence:    clampConfidence(b.Confidence),
			Reasoning:     b.Reasoning,
		})
	}

	return &interfaces.BoundaryResult{
		Boundaries: boundaries,
		TotalPages: totalPages,
		Confidence: clampConfidence(payload.Confidence),
		Analysis:   payload.Analysis,
		Provider:   provider,
	}, nil
}

// parseMetadataReply decodes and validates a provider metadata reply.
func parseMetadataReply(provider, reply string) (*interfaces.MetadataResult, error) {
	var payload metadataPayload
	if err := json.Unmarshal([]byte(stripCodeFences(reply)), &payload); err != nil {
		return nil, interfaces.NewInvalidResponseError(provider, fmt.Errorf("unmarshal metadata reply: %w", err))
	}

	return &interfaces.MetadataResult{
		Metadata: models.StatementMetadata{
			BankName:        strings.TrimSpace(payload.BankName),
			AccountNumber:   strings.TrimSpace(payload.AccountNumber),
			StatementPeriod: strings.TrimSpace(payload.StatementPeriod),
			StatementDate:   strings.TrimSpace(payload.StatementDate),
			CustomerName:    strings.TrimSpace(payload.CustomerName),
			Confidence:      clampConfidence(payload.Confidence),
		},
		Confidence: clampConfidence(payload.Confidence),
		Provider:   provider,
	}, nil
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
