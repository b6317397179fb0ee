package models

// CheckResult is the outcome of a single validation tier.
type CheckResult struct {
	Name    string         `json:"name"`
	Passed  bool           `json:"passed"`
	Details map[string]any `json:"details,omitempty"`
}

// ValidationReport aggregates the four output validation tiers.
// The validator never fails hard; it always returns a report and leaves
// the quarantine decision to the workflow.
type ValidationReport struct {
	FileCount       CheckResult `json:"file_count"`
	PageCount       CheckResult `json:"page_count"`
	FileSize        CheckResult `json:"file_size"`
	ContentSampling CheckResult `json:"content_sampling"`
	IsValid         bool        `json:"is_valid"`
	Summary         string      `json:"summary"`
	Errors          []string    `json:"errors,omitempty"`
}

// Checks returns the four tiers in report order.
func (r *ValidationReport) Checks() []CheckResult {
	return []CheckResult{r.FileCount, r.PageCount, r.FileSize, r.ContentSampling}
}
