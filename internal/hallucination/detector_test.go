package hallucination

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/madeinoz67/bank-statement-separator/internal/models"
)

// createTestLogger creates a logger for testing
func createTestLogger() arbor.ILogger {
	return arbor.NewLogger()
}

func newTestDetector() *Detector {
	d := NewDetector(createTestLogger())
	d.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return d
}

const sampleText = "Westpac Banking Corporation statement for account 4293 1831 9017 2819 over the period shown"

func TestValidateBoundaries_Clean(t *testing.T) {
	d := newTestDetector()

	alerts := d.ValidateBoundaries([]models.Boundary{
		{StartPage: 1, EndPage: 3, AccountNumber: "12345678"},
		{StartPage: 4, EndPage: 5, AccountNumber: "87654321"},
	}, 5, sampleText)

	assert.Empty(t, alerts)
}

func TestValidateBoundaries_PhantomStatement(t *testing.T) {
	d := newTestDetector()

	alerts := d.ValidateBoundaries([]models.Boundary{
		{StartPage: 3, EndPage: 4},
	}, 1, sampleText)

	require.NotEmpty(t, alerts)
	types := alertTypes(alerts)
	assert.Contains(t, types, PhantomStatement)
	assert.True(t, d.ShouldReject(alerts))
}

func TestValidateBoundaries_MoreStatementsThanPages(t *testing.T) {
	d := newTestDetector()

	// Distinct accounts on in-range pages, but a 1-page document cannot
	// hold two statements.
	alerts := d.ValidateBoundaries([]models.Boundary{
		{StartPage: 1, EndPage: 1, AccountNumber: "12345678"},
		{StartPage: 1, EndPage: 1, AccountNumber: "87654321"},
	}, 1, sampleText)

	require.NotEmpty(t, alerts)
	types := alertTypes(alerts)
	assert.Contains(t, types, PhantomStatement)
	assert.True(t, d.ShouldReject(alerts))
}

func TestValidateBoundaries_InvalidRange(t *testing.T) {
	d := newTestDetector()

	alerts := d.ValidateBoundaries([]models.Boundary{
		{StartPage: 4, EndPage: 2},
	}, 5, sampleText)

	require.NotEmpty(t, alerts)
	assert.Contains(t, alertTypes(alerts), InvalidPageRange)
	assert.True(t, d.ShouldReject(alerts))
}

func TestValidateBoundaries_Duplicates(t *testing.T) {
	d := newTestDetector()

	alerts := d.ValidateBoundaries([]models.Boundary{
		{StartPage: 1, EndPage: 2, AccountNumber: "12345678"},
		{StartPage: 1, EndPage: 2, AccountNumber: "12345678"},
	}, 2, sampleText)

	require.Len(t, alerts, 1)
	assert.Equal(t, DuplicateBoundary, alerts[0].Type)
	assert.Equal(t, models.SeverityMedium, alerts[0].Severity)
	// Medium alerts never reject on their own.
	assert.False(t, d.ShouldReject(alerts))
}

func TestValidateBoundaries_MissingContent(t *testing.T) {
	d := newTestDetector()

	alerts := d.ValidateBoundaries([]models.Boundary{
		{StartPage: 1, EndPage: 1},
	}, 1, "   ")

	require.Len(t, alerts, 1)
	assert.Equal(t, MissingContent, alerts[0].Type)
}

func TestValidateMetadata_Clean(t *testing.T) {
	d := newTestDetector()

	alerts := d.ValidateMetadata(models.StatementMetadata{
		BankName:        "Westpac Banking Corporation",
		AccountNumber:   "4293 1831 9017 2819",
		StatementPeriod: "2015-04-22_2015-05-21",
		StatementDate:   "2015-05-21",
	}, sampleText, 1, 3)

	assert.Empty(t, alerts)
}

func TestValidateMetadata_FabricatedBank(t *testing.T) {
	d := newTestDetector()

	alerts := d.ValidateMetadata(models.StatementMetadata{
		BankName: "First Imaginary Trust Company",
	}, sampleText, 1, 1)

	require.Len(t, alerts, 1)
	assert.Equal(t, FabricatedBank, alerts[0].Type)
	assert.Equal(t, models.SeverityHigh, alerts[0].Severity)
}

func TestValidateMetadata_KnownInstitutionNotFlagged(t *testing.T) {
	d := newTestDetector()

	// Name absent from the text but a real institution: not a fabrication.
	alerts := d.ValidateMetadata(models.StatementMetadata{
		BankName: "Wells Fargo",
	}, sampleText, 1, 1)

	assert.Empty(t, alerts)
}

func TestValidateMetadata_PartialWordOverlapIsMedium(t *testing.T) {
	d := newTestDetector()

	text := "statement issued by the corporation office in the period shown"
	alerts := d.ValidateMetadata(models.StatementMetadata{
		BankName: "Zorblatt Corporation Holdings",
	}, text, 1, 1)

	require.Len(t, alerts, 1)
	assert.Equal(t, models.SeverityMedium, alerts[0].Severity)
}

func TestValidateMetadata_ImpossibleDates(t *testing.T) {
	d := newTestDetector()

	alerts := d.ValidateMetadata(models.StatementMetadata{
		BankName:        "Westpac",
		StatementPeriod: "2450-01-01_2450-01-31",
	}, sampleText, 1, 1)

	require.NotEmpty(t, alerts)
	for _, a := range alerts {
		assert.Equal(t, ImpossibleDates, a.Type)
		assert.Equal(t, models.SeverityHigh, a.Severity)
	}
}

func TestValidateMetadata_NonsensicalAccounts(t *testing.T) {
	d := newTestDetector()

	tests := []struct {
		name    string
		account string
	}{
		{"masked", "****1234***"},
		{"no digits", "not-a-number"},
		{"too long", strings.Repeat("1", 25)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := d.ValidateMetadata(models.StatementMetadata{
				BankName:      "Westpac",
				AccountNumber: tt.account,
			}, sampleText, 1, 1)

			require.Len(t, alerts, 1)
			assert.Equal(t, NonsensicalAccount, alerts[0].Type)
		})
	}
}

func TestShouldReject_ThresholdPolicy(t *testing.T) {
	d := newTestDetector()

	high := Alert{Severity: models.SeverityHigh}
	critical := Alert{Severity: models.SeverityCritical}
	medium := Alert{Severity: models.SeverityMedium}

	assert.False(t, d.ShouldReject(nil))
	assert.False(t, d.ShouldReject([]Alert{medium, medium, medium, medium}))
	assert.False(t, d.ShouldReject([]Alert{high, high}))
	assert.True(t, d.ShouldReject([]Alert{high, high, high}))
	assert.True(t, d.ShouldReject([]Alert{critical}))
}

func alertTypes(alerts []Alert) []AlertType {
	types := make([]AlertType, len(alerts))
	for i, a := range alerts {
		types[i] = a.Type
	}
	return types
}
