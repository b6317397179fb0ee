// -----------------------------------------------------------------------
// Hallucination Detector - reject impossible or fabricated LLM responses
// -----------------------------------------------------------------------

package hallucination

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/madeinoz67/bank-statement-separator/internal/bankdata"
	"github.com/madeinoz67/bank-statement-separator/internal/models"
)

// AlertType classifies a detected hallucination.
type AlertType string

const (
	PhantomStatement   AlertType = "phantom_statement"
	InvalidPageRange   AlertType = "invalid_page_range"
	DuplicateBoundary  AlertType = "duplicate_boundary"
	MissingContent     AlertType = "missing_content"
	FabricatedBank     AlertType = "fabricated_bank"
	ImpossibleDates    AlertType = "impossible_dates"
	NonsensicalAccount AlertType = "nonsensical_account"
)

// Alert is one detected inconsistency between an LLM response and the
// ground truth of the source document.
type Alert struct {
	Type          AlertType       `json:"type"`
	Severity      models.Severity `json:"severity"`
	Description   string          `json:"description"`
	DetectedValue string          `json:"detected_value,omitempty"`
}

// RejectedError is returned by callers that convert alerts into a hard
// rejection. It is never retryable within the same call; the workflow
// decides whether to re-prompt once or fall back to heuristics.
type RejectedError struct {
	Alerts []Alert
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("llm response rejected: %d hallucination alert(s)", len(e.Alerts))
}

// Detector validates provider responses against source document facts.
type Detector struct {
	logger arbor.ILogger

	// now is overridable for date tests.
	now func() time.Time
}

// NewDetector creates a detector.
func NewDetector(logger arbor.ILogger) *Detector {
	return &Detector{logger: logger, now: time.Now}
}

// minDocumentTextLength is the shortest joined text a non-empty document
// can plausibly have; anything shorter flags MissingContent.
const minDocumentTextLength = 50

// maxAccountLength beyond which an account number is considered invented.
const maxAccountLength = 20

// ValidateBoundaries checks a boundary response against the document's
// physical page count and text.
func (d *Detector) ValidateBoundaries(boundaries []models.Boundary, totalPages int, documentText string) []Alert {
	var alerts []Alert

	// More statements than pages cannot all be real, whatever their ranges.
	if totalPages >= 1 && len(boundaries) > totalPages {
		alerts = append(alerts, Alert{
			Type:          PhantomStatement,
			Severity:      models.SeverityCritical,
			Description:   fmt.Sprintf("response claims %d statements in a %d-page document", len(boundaries), totalPages),
			DetectedValue: fmt.Sprintf("%d statements", len(boundaries)),
		})
	}

	for i, b := range boundaries {
		if b.StartPage > totalPages {
			alerts = append(alerts, Alert{
				Type:          PhantomStatement,
				Severity:      models.SeverityCritical,
				Description:   fmt.Sprintf("boundary %d starts at page %d but the document has %d page(s)", i+1, b.StartPage, totalPages),
				DetectedValue: fmt.Sprintf("%d-%d", b.StartPage, b.EndPage),
			})
		}
		if b.StartPage > b.EndPage || b.StartPage < 1 || b.EndPage > totalPages {
			alerts = append(alerts, Alert{
				Type:          InvalidPageRange,
				Severity:      models.SeverityCritical,
				Description:   fmt.Sprintf("boundary %d has invalid page range for a %d-page document", i+1, totalPages),
				DetectedValue: fmt.Sprintf("%d-%d", b.StartPage, b.EndPage),
			})
		}
		for j := 0; j < i; j++ {
			if b.SameRange(boundaries[j]) {
				alerts = append(alerts, Alert{
					Type:          DuplicateBoundary,
					Severity:      models.SeverityMedium,
					Description:   fmt.Sprintf("boundaries %d and %d are identical", j+1, i+1),
					DetectedValue: fmt.Sprintf("%d-%d account %s", b.StartPage, b.EndPage, b.AccountNumber),
				})
			}
		}
	}

	if totalPages >= 1 && len(strings.TrimSpace(documentText)) < minDocumentTextLength {
		alerts = append(alerts, Alert{
			Type:        MissingContent,
			Severity:    models.SeverityMedium,
			Description: fmt.Sprintf("document has %d page(s) but under %d characters of text", totalPages, minDocumentTextLength),
		})
	}

	d.logAlerts(alerts)
	return alerts
}

// ValidateMetadata checks a metadata response against the segment's text.
func (d *Detector) ValidateMetadata(metadata models.StatementMetadata, documentText string, startPage, endPage int) []Alert {
	var alerts []Alert

	if alert, ok := d.checkBankName(metadata.BankName, documentText); ok {
		alerts = append(alerts, alert)
	}
	alerts = append(alerts, d.checkDates(metadata)...)
	if alert, ok := d.checkAccountNumber(metadata.AccountNumber); ok {
		alerts = append(alerts, alert)
	}

	d.logAlerts(alerts)
	return alerts
}

// ShouldReject reports whether the alerts warrant rejecting the provider
// response: any critical alert, or three or more high alerts. Lower
// severities are logged but never reject on their own.
func (d *Detector) ShouldReject(alerts []Alert) bool {
	high := 0
	for _, a := range alerts {
		switch a.Severity {
		case models.SeverityCritical:
			return true
		case models.SeverityHigh:
			high++
		}
	}
	return high >= 3
}

// checkBankName flags bank names that appear neither in the document text
// nor in the known-institutions set. A name whose words partially overlap
// the text rates medium instead of high.
func (d *Detector) checkBankName(bankName, documentText string) (Alert, bool) {
	name := strings.TrimSpace(bankName)
	if name == "" || strings.EqualFold(name, models.UnknownBank) {
		return Alert{}, false
	}

	lowerText := strings.ToLower(documentText)
	if strings.Contains(lowerText, strings.ToLower(name)) {
		return Alert{}, false
	}
	if bankdata.IsKnownInstitution(name) {
		return Alert{}, false
	}

	severity := models.SeverityHigh
	for _, word := range strings.Fields(strings.ToLower(name)) {
		if len(word) >= 4 && strings.Contains(lowerText, word) {
			severity = models.SeverityMedium
			break
		}
	}

	return Alert{
		Type:          FabricatedBank,
		Severity:      severity,
		Description:   "bank name not found in document text or known institutions",
		DetectedValue: name,
	}, true
}

// checkDates flags years outside [1900, currentYear+1].
func (d *Detector) checkDates(metadata models.StatementMetadata) []Alert {
	maxYear := d.now().Year() + 1

	var alerts []Alert
	candidates := bankdata.FindDates(metadata.StatementPeriod)
	if t, ok := bankdata.ParseDate(metadata.StatementDate); ok {
		candidates = append(candidates, t.Format("2006-01-02"))
	}

	for _, candidate := range candidates {
		t, ok := bankdata.ParseDate(candidate)
		if !ok {
			continue
		}
		if t.Year() > maxYear || t.Year() < 1900 {
			alerts = append(alerts, Alert{
				Type:          ImpossibleDates,
				Severity:      models.SeverityHigh,
				Description:   fmt.Sprintf("date year %d outside plausible range 1900-%d", t.Year(), maxYear),
				DetectedValue: candidate,
			})
		}
	}
	return alerts
}

// checkAccountNumber flags accounts that are purely non-numeric, masked,
// or implausibly long.
func (d *Detector) checkAccountNumber(account string) (Alert, bool) {
	account = strings.TrimSpace(account)
	if account == "" {
		return Alert{}, false
	}

	digits := bankdata.NormalizeAccountNumber(account)
	switch {
	case strings.Contains(account, "***"):
		return Alert{
			Type:          NonsensicalAccount,
			Severity:      models.SeverityMedium,
			Description:   "account number is masked",
			DetectedValue: account,
		}, true
	case digits == "":
		return Alert{
			Type:          NonsensicalAccount,
			Severity:      models.SeverityMedium,
			Description:   "account number contains no digits",
			DetectedValue: account,
		}, true
	case len(account) > maxAccountLength:
		return Alert{
			Type:          NonsensicalAccount,
			Severity:      models.SeverityMedium,
			Description:   fmt.Sprintf("account number longer than %d characters", maxAccountLength),
			DetectedValue: account,
		}, true
	}
	return Alert{}, false
}

func (d *Detector) logAlerts(alerts []Alert) {
	for _, a := range alerts {
		d.logger.Warn().
			Str("type", string(a.Type)).
			Str("severity", string(a.Severity)).
			Str("detected", a.DetectedValue).
			Msg(a.Description)
	}
}
