package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/madeinoz67/bank-statement-separator/internal/common"
	"github.com/madeinoz67/bank-statement-separator/internal/hallucination"
	"github.com/madeinoz67/bank-statement-separator/internal/interfaces"
	"github.com/madeinoz67/bank-statement-separator/internal/models"
	"github.com/madeinoz67/bank-statement-separator/internal/ratelimit"
)

// createTestLogger creates a logger for testing
func createTestLogger() arbor.ILogger {
	return arbor.NewLogger()
}

// fakeProvider is a scriptable Provider for analyzer tests.
type fakeProvider struct {
	available      bool
	boundaryResult *interfaces.BoundaryResult
	boundaryErr    error
	metadataResult *interfaces.MetadataResult
	metadataErr    error
	calls          int
}

func (f *fakeProvider) IsAvailable(ctx context.Context) bool { return f.available }

func (f *fakeProvider) AnalyzeBoundaries(ctx context.Context, text string, totalPages int) (*interfaces.BoundaryResult, error) {
	f.calls++
	if f.boundaryErr != nil {
		return nil, f.boundaryErr
	}
	return f.boundaryResult, nil
}

func (f *fakeProvider) ExtractMetadata(ctx context.Context, text string, startPage, endPage int) (*interfaces.MetadataResult, error) {
	f.calls++
	if f.metadataErr != nil {
		return nil, f.metadataErr
	}
	return f.metadataResult, nil
}

func (f *fakeProvider) Info() interfaces.ProviderInfo {
	return interfaces.ProviderInfo{Name: "fake", Model: "fake-1", Kind: "cloud"}
}

func newTestAnalyzer(t *testing.T, provider interfaces.Provider) *BoundaryAnalyzer {
	t.Helper()
	logger := createTestLogger()
	cfg := common.NewDefaultConfig()
	limiter := ratelimit.NewLimiter(600, 100)
	backoff := ratelimit.NewBackoff(0, logger)
	detector := hallucination.NewDetector(logger)
	return NewBoundaryAnalyzer(provider, limiter, backoff, detector, cfg, logger)
}

func makePages(texts ...string) []models.PageText {
	pages := make([]models.PageText, len(texts))
	for i, text := range texts {
		pages[i] = models.PageText{Index: i + 1, Text: text}
	}
	return pages
}

func TestAnalyze_ProviderBoundariesAccepted(t *testing.T) {
	provider := &fakeProvider{
		available: true,
		boundaryResult: &interfaces.BoundaryResult{
			Boundaries: []models.Boundary{
				{StartPage: 1, EndPage: 2, AccountNumber: "12345678", Confidence: 0.9},
				{StartPage: 3, EndPage: 4, AccountNumber: "87654321", Confidence: 0.85},
			},
			Confidence: 0.9,
		},
	}
	analyzer := newTestAnalyzer(t, provider)

	result, err := analyzer.Analyze(context.Background(), makePages("statement one text here", "more text", "statement two text here", "tail"))
	require.NoError(t, err)

	assert.False(t, result.UsedFallback)
	assert.False(t, result.ProviderFailed)
	require.Len(t, result.Boundaries, 2)
	assert.Equal(t, 1, result.Boundaries[0].StartPage)
	assert.Equal(t, 2, result.Boundaries[0].EndPage)
	assert.Equal(t, 3, result.Boundaries[1].StartPage)
	assert.Equal(t, 4, result.Boundaries[1].EndPage)
}

func TestAnalyze_NilProviderUsesHeuristics(t *testing.T) {
	analyzer := newTestAnalyzer(t, nil)

	result, err := analyzer.Analyze(context.Background(), makePages("plain text without any signals, long enough to not be empty"))
	require.NoError(t, err)

	assert.True(t, result.UsedFallback)
	assert.False(t, result.ProviderFailed)
	require.Len(t, result.Boundaries, 1)
	assert.Equal(t, 1, result.Boundaries[0].StartPage)
	assert.Equal(t, 1, result.Boundaries[0].EndPage)
	assert.InDelta(t, HeuristicConfidence, result.Confidence, 0.001)
}

func TestAnalyze_UnavailableProviderFallsBack(t *testing.T) {
	provider := &fakeProvider{available: false}
	analyzer := newTestAnalyzer(t, provider)

	result, err := analyzer.Analyze(context.Background(), makePages("some ordinary page text that carries no account numbers at all"))
	require.NoError(t, err)

	assert.True(t, result.UsedFallback)
	assert.True(t, result.ProviderFailed)
	assert.Zero(t, provider.calls)
}

func TestAnalyze_ProviderErrorFallsBack(t *testing.T) {
	provider := &fakeProvider{
		available:   true,
		boundaryErr: interfaces.NewInvalidResponseError("fake", errors.New("garbage reply")),
	}
	analyzer := newTestAnalyzer(t, provider)

	result, err := analyzer.Analyze(context.Background(), makePages("page text long enough to satisfy the content checks in place"))
	require.NoError(t, err)

	assert.True(t, result.UsedFallback)
	assert.True(t, result.ProviderFailed)
	assert.Equal(t, 1, provider.calls)
}

func TestAnalyze_RejectedResponseFallsBack(t *testing.T) {
	// A phantom boundary beyond the page count is a critical alert.
	provider := &fakeProvider{
		available: true,
		boundaryResult: &interfaces.BoundaryResult{
			Boundaries: []models.Boundary{{StartPage: 9, EndPage: 12}},
			Confidence: 0.95,
		},
	}
	analyzer := newTestAnalyzer(t, provider)

	result, err := analyzer.Analyze(context.Background(), makePages("page one text with plenty of words to pass the length check"))
	require.NoError(t, err)

	assert.True(t, result.UsedFallback)
	require.Len(t, result.Boundaries, 1)
	assert.Equal(t, 1, result.Boundaries[0].StartPage)
	assert.Equal(t, 1, result.Boundaries[0].EndPage)
}

func TestAnalyze_HeuristicSplitsOnDistinctAccounts(t *testing.T) {
	analyzer := newTestAnalyzer(t, nil)

	pageOne := "Westpac statement Account Number: 1111 2222 3333 4444 " + strings.Repeat("txn line ", 50)
	pageThree := "ANZ statement Account Number: 5555 6666 7777 8888 " + strings.Repeat("txn line ", 50)

	result, err := analyzer.Analyze(context.Background(), makePages(pageOne, strings.Repeat("filler ", 60), pageThree, strings.Repeat("filler ", 60)))
	require.NoError(t, err)

	assert.True(t, result.UsedFallback)
	require.Len(t, result.Boundaries, 2)
	assert.Equal(t, 1, result.Boundaries[0].StartPage)
	assert.Equal(t, "1111222233334444", result.Boundaries[0].AccountNumber)
	assert.Equal(t, "5555666677778888", result.Boundaries[1].AccountNumber)
	assert.Equal(t, 4, result.Boundaries[1].EndPage)

	// Every page is covered with no gaps.
	assert.Equal(t, result.Boundaries[0].EndPage+1, result.Boundaries[1].StartPage)
}

func TestAnalyze_FragmentCoalescing(t *testing.T) {
	provider := &fakeProvider{
		available: true,
		boundaryResult: &interfaces.BoundaryResult{
			Boundaries: []models.Boundary{
				{StartPage: 1, EndPage: 3, AccountNumber: "12345678", Confidence: 0.9},
				{StartPage: 4, EndPage: 4, Confidence: 0.6}, // indistinct fragment
				{StartPage: 5, EndPage: 6, AccountNumber: "87654321", Confidence: 0.9},
			},
			Confidence: 0.9,
		},
	}
	analyzer := newTestAnalyzer(t, provider)
	analyzer.cfg.Pipeline.MinFragmentPages = 2

	result, err := analyzer.Analyze(context.Background(), makePages(
		"page 1 text with enough words", "page 2", "page 3", "page 4", "page 5", "page 6"))
	require.NoError(t, err)

	require.Len(t, result.Boundaries, 2)
	assert.Equal(t, 1, result.SkippedFragments)
	assert.Equal(t, 4, result.Boundaries[0].EndPage)
	assert.Equal(t, 5, result.Boundaries[1].StartPage)
}

func TestAnalyze_GapsAttachToPrecedingBoundary(t *testing.T) {
	provider := &fakeProvider{
		available: true,
		boundaryResult: &interfaces.BoundaryResult{
			Boundaries: []models.Boundary{
				{StartPage: 1, EndPage: 2, AccountNumber: "12345678", Confidence: 0.9},
				// pages 3-4 unclaimed
				{StartPage: 5, EndPage: 6, AccountNumber: "87654321", Confidence: 0.9},
			},
			Confidence: 0.9,
		},
	}
	analyzer := newTestAnalyzer(t, provider)

	result, err := analyzer.Analyze(context.Background(), makePages(
		"page 1 content words words", "page 2", "page 3", "page 4", "page 5", "page 6"))
	require.NoError(t, err)

	require.Len(t, result.Boundaries, 2)
	assert.Equal(t, 4, result.Boundaries[0].EndPage)
	assert.Equal(t, 5, result.Boundaries[1].StartPage)
	assert.Equal(t, 6, result.Boundaries[1].EndPage)
}

func TestChunkText(t *testing.T) {
	text := strings.Repeat("a", 100)

	chunks := ChunkText(text, 40, 10)
	require.True(t, len(chunks) > 1)
	assert.Len(t, chunks[0], 40)
	// Consecutive chunks overlap by the configured amount.
	assert.Equal(t, chunks[0][30:], chunks[1][:10])

	whole := ChunkText("short", 40, 10)
	assert.Equal(t, []string{"short"}, whole)
}
