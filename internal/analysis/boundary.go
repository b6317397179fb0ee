// -----------------------------------------------------------------------
// Boundary Analyzer - statement boundary detection with heuristic fallback
// -----------------------------------------------------------------------

package analysis

import (
	"context"
	"sort"
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

// HeuristicConfidence is assigned to fallback boundaries. It sits below
// the default confidence threshold so heuristic results always read as
// lower-certainty than accepted provider results.
const HeuristicConfidence = 0.3

// minFallbackAccountDigits is the normalized length an account match must
// reach before the heuristic treats it as a boundary signal.
const minFallbackAccountDigits = 8

// limiterPollInterval is how often a waiting caller re-polls admission.
const limiterPollInterval = 250 * time.Millisecond

// BoundaryAnalysis is the outcome of boundary detection for one document.
type BoundaryAnalysis struct {
	Boundaries       []models.Boundary
	SkippedFragments int
	UsedFallback     bool
	ProviderFailed   bool
	Confidence       float64
}

// BoundaryAnalyzer orchestrates provider calls under rate limiting and
// hallucination screening, degrading to heuristic segmentation when the
// provider is unavailable or its response is rejected.
type BoundaryAnalyzer struct {
	provider interfaces.Provider // nil runs heuristics only
	limiter  *ratelimit.Limiter
	backoff  *ratelimit.Backoff
	detector *hallucination.Detector
	cfg      *common.Config
	logger   arbor.ILogger
}

// NewBoundaryAnalyzer creates the analyzer. The limiter and backoff are
// shared process-wide; provider may be nil.
func NewBoundaryAnalyzer(provider interfaces.Provider, limiter *ratelimit.Limiter, backoff *ratelimit.Backoff, detector *hallucination.Detector, cfg *common.Config, logger arbor.ILogger) *BoundaryAnalyzer {
	return &BoundaryAnalyzer{
		provider: provider,
		limiter:  limiter,
		backoff:  backoff,
		detector: detector,
		cfg:      cfg,
		logger:   logger,
	}
}

// Analyze detects statement boundaries in the extracted pages.
func (a *BoundaryAnalyzer) Analyze(ctx context.Context, pages []models.PageText) (*BoundaryAnalysis, error) {
	totalPages := len(pages)
	text := pdf.JoinPages(pages)

	analysis := &BoundaryAnalysis{}

	if a.provider != nil && a.provider.IsAvailable(ctx) {
		boundaries, confidence, err := a.analyzeWithProvider(ctx, text, totalPages)
		switch {
		case err == nil:
			analysis.Boundaries = boundaries
			analysis.Confidence = confidence
		default:
			a.logger.Warn().Err(err).Msg("Provider boundary analysis failed, using heuristic fallback")
			analysis.ProviderFailed = true
		}
	} else if a.provider != nil {
		a.logger.Warn().Str("provider", a.provider.Info().Name).Msg("Provider unavailable, using heuristic fallback")
		analysis.ProviderFailed = true
	}

	if analysis.Boundaries == nil {
		analysis.Boundaries = a.heuristicBoundaries(text, totalPages)
		analysis.UsedFallback = true
		analysis.Confidence = HeuristicConfidence
	}

	boundaries, skipped := a.postProcess(analysis.Boundaries, totalPages)
	analysis.Boundaries = boundaries
	analysis.SkippedFragments = skipped

	a.logger.Info().
		Int("boundaries", len(analysis.Boundaries)).
		Int("skipped_fragments", analysis.SkippedFragments).
		Bool("fallback", analysis.UsedFallback).
		Msg("Boundary analysis complete")

	return analysis, nil
}

// analyzeWithProvider submits chunked text to the provider under the rate
// limiter and backoff, screens the merged reply through the hallucination
// detector, and returns the accepted boundaries.
func (a *BoundaryAnalyzer) analyzeWithProvider(ctx context.Context, text string, totalPages int) ([]models.Boundary, float64, error) {
	chunks := ChunkText(text, a.cfg.Pipeline.ChunkSize, a.cfg.Pipeline.ChunkOverlap)

	var merged []models.Boundary
	var confidence float64

	for _, chunk := range chunks {
		if err := a.acquire(ctx); err != nil {
			return nil, 0, err
		}

		var result *interfaces.BoundaryResult
		err := a.backoff.Do(ctx, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeoutDuration())
			defer cancel()
			var callErr error
			result, callErr = a.provider.AnalyzeBoundaries(callCtx, chunk, totalPages)
			return callErr
		})
		if err != nil {
			return nil, 0, err
		}

		for _, b := range result.Boundaries {
			if !containsRange(merged, b) {
				merged = append(merged, b)
			}
		}
		if result.Confidence > confidence {
			confidence = result.Confidence
		}
	}

	alerts := a.detector.ValidateBoundaries(merged, totalPages, text)
	if a.detector.ShouldReject(alerts) {
		return nil, 0, &hallucination.RejectedError{Alerts: alerts}
	}

	return merged, confidence, nil
}

// heuristicBoundaries performs deterministic segmentation: account-number
// signals mark statement starts; without signals the whole document is a
// single statement. Page indices are estimated by character-proportional
// position.
func (a *BoundaryAnalyzer) heuristicBoundaries(text string, totalPages int) []models.Boundary {
	matches := bankdata.FindAccountNumbers(text, minFallbackAccountDigits)
	matches = a.dedupeByPosition(matches, len(text))

	if len(matches) <= 1 {
		b := models.Boundary{StartPage: 1, EndPage: totalPages, Confidence: HeuristicConfidence}
		if len(matches) == 1 {
			b.AccountNumber = matches[0].Number
		}
		if name := bankdata.FindInstitution(text); name != "" {
			b.BankName = name
		}
		return []models.Boundary{b}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Position < matches[j].Position })

	boundaries := make([]models.Boundary, 0, len(matches))
	for i, m := range matches {
		start := estimatePage(m.Position, len(text), totalPages)
		if i == 0 {
			start = 1
		}
		end := totalPages
		if i+1 < len(matches) {
			next := estimatePage(matches[i+1].Position, len(text), totalPages)
			if next > start {
				end = next - 1
			} else {
				end = start
			}
		}
		boundaries = append(boundaries, models.Boundary{
			StartPage:     start,
			EndPage:       end,
			AccountNumber: m.Number,
			Confidence:    HeuristicConfidence,
		})
	}

	return boundaries
}

// dedupeByPosition drops account matches whose character positions fall
// within the configured window of an earlier match with the same number.
func (a *BoundaryAnalyzer) dedupeByPosition(matches []bankdata.AccountMatch, textLen int) []bankdata.AccountMatch {
	if textLen == 0 {
		return nil
	}
	window := int(a.cfg.Pipeline.FallbackDedupWindow * float64(textLen))

	var kept []bankdata.AccountMatch
	for _, m := range matches {
		duplicate := false
		for _, k := range kept {
			if m.Number == k.Number && abs(m.Position-k.Position) <= window {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, m)
		}
	}
	return kept
}

// postProcess sorts boundaries, coalesces indistinct fragments into their
// predecessor, and attaches any page gaps to the preceding boundary so no
// page goes unaccounted for.
func (a *BoundaryAnalyzer) postProcess(boundaries []models.Boundary, totalPages int) ([]models.Boundary, int) {
	if len(boundaries) == 0 {
		return boundaries, 0
	}

	sort.SliceStable(boundaries, func(i, j int) bool {
		return boundaries[i].StartPage < boundaries[j].StartPage
	})

	skipped := 0
	result := []models.Boundary{boundaries[0]}
	for _, b := range boundaries[1:] {
		prev := &result[len(result)-1]
		if b.PageRun() < a.cfg.Pipeline.MinFragmentPages && !distinguishable(*prev, b) {
			if b.EndPage > prev.EndPage {
				prev.EndPage = b.EndPage
			}
			skipped++
			continue
		}
		result = append(result, b)
	}

	// Close gaps and overlaps between consecutive boundaries.
	result[0].StartPage = 1
	for i := 1; i < len(result); i++ {
		result[i-1].EndPage = result[i].StartPage - 1
	}
	result[len(result)-1].EndPage = totalPages

	// Coalescing or overlap correction can empty a boundary; drop those.
	cleaned := result[:0]
	for _, b := range result {
		if b.StartPage <= b.EndPage {
			cleaned = append(cleaned, b)
		}
	}
	if len(cleaned) > 0 {
		cleaned[len(cleaned)-1].EndPage = totalPages
	}

	return cleaned, skipped
}

// distinguishable reports whether two boundaries clearly describe
// different statements (different bank or account identity).
func distinguishable(a, b models.Boundary) bool {
	if a.AccountNumber != "" && b.AccountNumber != "" && a.AccountNumber != b.AccountNumber {
		return true
	}
	if a.BankName != "" && b.BankName != "" && a.BankName != b.BankName {
		return true
	}
	return false
}

// acquire waits for limiter admission, polling until a token is granted
// or the context is cancelled.
func (a *BoundaryAnalyzer) acquire(ctx context.Context) error {
	for {
		if a.limiter.TryAcquire() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(limiterPollInterval):
		}
	}
}

func containsRange(boundaries []models.Boundary, candidate models.Boundary) bool {
	for _, b := range boundaries {
		if b.SameRange(candidate) {
			return true
		}
	}
	return false
}

func estimatePage(position, textLen, totalPages int) int {
	if textLen == 0 {
		return 1
	}
	page := 1 + (position*totalPages)/textLen
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	return page
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
