package models

import "time"

// Severity orders detected processing errors from least to most serious.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the total-order position of the severity. Unknown values
// rank below low.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether s is as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// ProcessingErrorType classifies workflow errors for tagging and reporting.
type ProcessingErrorType string

const (
	ErrLLMAnalysisFailure        ProcessingErrorType = "llm_analysis_failure"
	ErrLowConfidenceBoundaries   ProcessingErrorType = "low_confidence_boundaries"
	ErrPDFProcessingError        ProcessingErrorType = "pdf_processing_error"
	ErrMetadataExtractionFailure ProcessingErrorType = "metadata_extraction_failure"
	ErrValidationFailure         ProcessingErrorType = "validation_failure"
)

// ProcessingError is a single classified observation about a run.
type ProcessingError struct {
	Type          ProcessingErrorType `json:"type"`
	Severity      Severity            `json:"severity"`
	Description   string              `json:"description"`
	DetectedValue string              `json:"detected_value,omitempty"`
	Suggestion    string              `json:"suggestion,omitempty"`
}

// ErrorReport is written beside quarantined artifacts as error_report.json.
type ErrorReport struct {
	RunID       string            `json:"run_id"`
	InputPath   string            `json:"input_path"`
	FailedStage string            `json:"failed_stage,omitempty"`
	Message     string            `json:"message,omitempty"`
	Errors      []ProcessingError `json:"errors"`
	Attempts    int               `json:"attempts"`
	StartedAt   time.Time         `json:"started_at"`
	ReportedAt  time.Time         `json:"reported_at"`
}

// MaxSeverity returns the highest severity present in the report, or ""
// when no errors were recorded.
func (r *ErrorReport) MaxSeverity() Severity {
	var max Severity
	for _, e := range r.Errors {
		if e.Severity.Rank() > max.Rank() {
			max = e.Severity
		}
	}
	return max
}
