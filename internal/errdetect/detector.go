// -----------------------------------------------------------------------
// Error Detector - classify run outcomes for reporting and DMS tagging
// -----------------------------------------------------------------------

package errdetect

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/madeinoz67/bank-statement-separator/internal/common"
	"github.com/madeinoz67/bank-statement-separator/internal/models"
)

// Detector inspects a finished (or failed) run and produces classified
// processing errors. Detection itself never fails the run.
type Detector struct {
	cfg    *common.Config
	logger arbor.ILogger
}

// NewDetector creates an error detector.
func NewDetector(cfg *common.Config, logger arbor.ILogger) *Detector {
	return &Detector{cfg: cfg, logger: logger}
}

// Detect classifies the observations recorded in a workflow state. With
// detection disabled it returns nil.
func (d *Detector) Detect(state *models.WorkflowState) []models.ProcessingError {
	if !d.cfg.Errors.DetectionEnabled {
		return nil
	}

	var detected []models.ProcessingError

	if state.ProviderFailed {
		detected = append(detected, models.ProcessingError{
			Type:        models.ErrLLMAnalysisFailure,
			Severity:    models.SeverityHigh,
			Description: "boundary analysis fell back to heuristics after a provider failure",
			Suggestion:  "check provider credentials, quota and connectivity",
		})
	}

	detected = append(detected, d.detectLowConfidence(state)...)

	if state.Failed() && state.CurrentStage == models.StageWriteSegments {
		detected = append(detected, models.ProcessingError{
			Type:        models.ErrPDFProcessingError,
			Severity:    models.SeverityCritical,
			Description: "segment writing failed",
			Suggestion:  "verify the input PDF is well formed and not encrypted",
		})
	}

	detected = append(detected, d.detectMetadataGaps(state)...)

	if state.Validation != nil && !state.Validation.IsValid {
		detected = append(detected, models.ProcessingError{
			Type:          models.ErrValidationFailure,
			Severity:      models.SeverityHigh,
			Description:   "output validation failed",
			DetectedValue: state.Validation.Summary,
			Suggestion:    "inspect the quarantined outputs and the validation report",
		})
	}

	for _, e := range detected {
		d.logger.Warn().
			Str("type", string(e.Type)).
			Str("severity", string(e.Severity)).
			Msg(e.Description)
	}

	return detected
}

// detectLowConfidence flags boundaries whose confidence sits below the
// configured threshold.
func (d *Detector) detectLowConfidence(state *models.WorkflowState) []models.ProcessingError {
	threshold := d.cfg.Pipeline.ConfidenceThreshold
	low := 0
	for _, b := range state.Boundaries {
		if b.Confidence > 0 && b.Confidence < threshold {
			low++
		}
	}
	if low == 0 {
		return nil
	}
	return []models.ProcessingError{{
		Type:          models.ErrLowConfidenceBoundaries,
		Severity:      models.SeverityMedium,
		Description:   fmt.Sprintf("%d boundary(ies) below confidence threshold %.2f", low, threshold),
		DetectedValue: fmt.Sprintf("%d/%d", low, len(state.Boundaries)),
		Suggestion:    "review the split points manually",
	}}
}

// detectMetadataGaps flags statements whose metadata confidence sits below
// the configured threshold.
func (d *Detector) detectMetadataGaps(state *models.WorkflowState) []models.ProcessingError {
	threshold := d.cfg.Pipeline.ConfidenceThreshold
	gaps := 0
	for _, m := range state.Metadata {
		if m.Confidence < threshold {
			gaps++
		}
	}
	if gaps == 0 {
		return nil
	}
	return []models.ProcessingError{{
		Type:          models.ErrMetadataExtractionFailure,
		Severity:      models.SeverityMedium,
		Description:   fmt.Sprintf("%d statement(s) below metadata confidence threshold %.2f", gaps, threshold),
		DetectedValue: fmt.Sprintf("%d/%d", gaps, len(state.Metadata)),
		Suggestion:    "the statements may be image-only; consider OCR preprocessing",
	}}
}

// BuildReport assembles the error_report.json payload for a run.
func BuildReport(state *models.WorkflowState, detected []models.ProcessingError, now time.Time) *models.ErrorReport {
	return &models.ErrorReport{
		RunID:       state.RunID,
		InputPath:   state.InputPath,
		FailedStage: string(state.CurrentStage),
		Message:     state.ErrorMessage,
		Errors:      detected,
		Attempts:    1,
		StartedAt:   state.StartedAt,
		ReportedAt:  now,
	}
}
