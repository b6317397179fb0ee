// -----------------------------------------------------------------------
// Metadata Extractor - per-statement metadata with pattern fallback
// -----------------------------------------------------------------------

package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/madeinoz67/bank-statement-separator/internal/bankdata"
	"github.com/madeinoz67/bank-statement-separator/internal/common"
	"github.com/madeinoz67/bank-statement-separator/internal/hallucination"
	"github.com/madeinoz67/bank-statement-separator/internal/interfaces"
	"github.com/madeinoz67/bank-statement-separator/internal/models"
	"github.com/madeinoz67/bank-statement-separator/internal/pdf"
	"github.com/madeinoz67/bank-statement-separator/internal/ratelimit"
)

// minMetadataAccountDigits is the normalized length a pattern-extracted
// account must reach before the fallback accepts it.
const minMetadataAccountDigits = 6

// MetadataExtractor derives per-boundary statement metadata, preferring
// the provider and degrading to pattern extraction when the provider is
// absent, fails, or its response is rejected.
type MetadataExtractor struct {
	provider interfaces.Provider // nil runs patterns only
	limiter  *ratelimit.Limiter
	backoff  *ratelimit.Backoff
	detector *hallucination.Detector
	cfg      *common.Config
	logger   arbor.ILogger
}

// NewMetadataExtractor creates the extractor. The limiter and backoff are
// shared with the boundary analyzer.
func NewMetadataExtractor(provider interfaces.Provider, limiter *ratelimit.Limiter, backoff *ratelimit.Backoff, detector *hallucination.Detector, cfg *common.Config, logger arbor.ILogger) *MetadataExtractor {
	return &MetadataExtractor{
		provider: provider,
		limiter:  limiter,
		backoff:  backoff,
		detector: detector,
		cfg:      cfg,
		logger:   logger,
	}
}

// Extract derives metadata for one boundary from its pages. It never
// returns an error for extraction trouble; missing fields carry the
// documented defaults instead.
func (m *MetadataExtractor) Extract(ctx context.Context, pages []models.PageText, boundary models.Boundary) (models.StatementMetadata, bool) {
	text := pdf.SlicePages(pages, boundary.StartPage, boundary.EndPage)

	if m.provider != nil {
		metadata, err := m.extractWithProvider(ctx, text, boundary)
		if err == nil {
			return Finalize(metadata, boundary), false
		}
		m.logger.Warn().Err(err).
			Int("start_page", boundary.StartPage).
			Int("end_page", boundary.EndPage).
			Msg("Provider metadata extraction failed, using pattern fallback")
	}

	return Finalize(m.patternMetadata(text, boundary), boundary), true
}

// extractWithProvider calls the provider under the rate limiter and
// backoff and screens the reply through the hallucination detector.
func (m *MetadataExtractor) extractWithProvider(ctx context.Context, text string, boundary models.Boundary) (models.StatementMetadata, error) {
	if err := m.acquire(ctx); err != nil {
		return models.StatementMetadata{}, err
	}

	if m.cfg.Pipeline.ChunkSize > 0 && len(text) > m.cfg.Pipeline.ChunkSize {
		text = text[:m.cfg.Pipeline.ChunkSize]
	}

	var result *interfaces.MetadataResult
	err := m.backoff.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeoutDuration())
		defer cancel()
		var callErr error
		result, callErr = m.provider.ExtractMetadata(callCtx, text, boundary.StartPage, boundary.EndPage)
		return callErr
	})
	if err != nil {
		return models.StatementMetadata{}, err
	}

	alerts := m.detector.ValidateMetadata(result.Metadata, text, boundary.StartPage, boundary.EndPage)
	if m.detector.ShouldReject(alerts) {
		return models.StatementMetadata{}, &hallucination.RejectedError{Alerts: alerts}
	}

	metadata := result.Metadata
	metadata.Confidence = result.Confidence
	return metadata, nil
}

// patternMetadata extracts what it can from the segment text with the
// shared institution, account, and date patterns.
func (m *MetadataExtractor) patternMetadata(text string, boundary models.Boundary) models.StatementMetadata {
	metadata := models.StatementMetadata{
		BankName:      boundary.BankName,
		AccountNumber: boundary.AccountNumber,
		Confidence:    HeuristicConfidence,
	}

	if metadata.BankName == "" {
		metadata.BankName = bankdata.FindInstitution(text)
	}
	if metadata.AccountNumber == "" {
		if matches := bankdata.FindAccountNumbers(text, minMetadataAccountDigits); len(matches) > 0 {
			metadata.AccountNumber = matches[0].Number
		}
	}

	if dates := bankdata.FindDates(text); len(dates) > 0 {
		metadata.StatementDate = dates[len(dates)-1]
		if len(dates) >= 2 {
			start, _ := bankdata.ParseDate(dates[0])
			end, _ := bankdata.ParseDate(dates[len(dates)-1])
			if end.After(start) {
				metadata.StatementPeriod = dates[0] + "_" + dates[len(dates)-1]
			}
		}
	}

	return metadata
}

// Finalize applies the documented defaults and derives AccountLast4 so
// downstream consumers never see empty fields.
func Finalize(metadata models.StatementMetadata, boundary models.Boundary) models.StatementMetadata {
	if strings.TrimSpace(metadata.BankName) == "" {
		metadata.BankName = models.UnknownBank
	}
	metadata.AccountLast4 = Last4(metadata.AccountNumber)
	if strings.TrimSpace(metadata.StatementDate) == "" {
		if end, ok := bankdata.PeriodEnd(metadata.StatementPeriod); ok {
			metadata.StatementDate = end
		} else {
			metadata.StatementDate = models.UnknownDate
		}
	}
	if metadata.StatementPeriod == "" && metadata.StatementDate != models.UnknownDate {
		metadata.StatementPeriod = metadata.StatementDate
	}
	return metadata
}

// Last4 returns the last four digits of an account number, or the unknown
// default when fewer than four digits are present.
func Last4(account string) string {
	digits := bankdata.NormalizeAccountNumber(account)
	if len(digits) < 4 {
		return models.UnknownLast4
	}
	return digits[len(digits)-4:]
}

func (m *MetadataExtractor) acquire(ctx context.Context) error {
	for {
		if m.limiter.TryAcquire() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(limiterPollInterval):
		}
	}
}
