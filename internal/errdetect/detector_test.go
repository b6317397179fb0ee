package errdetect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/madeinoz67/bank-statement-separator/internal/common"
	"github.com/madeinoz67/bank-statement-separator/internal/models"
)

func newTestDetector() *Detector {
	return NewDetector(common.NewDefaultConfig(), arbor.NewLogger())
}

func TestDetect_CleanRun(t *testing.T) {
	d := newTestDetector()

	state := &models.WorkflowState{
		Boundaries: []models.Boundary{{StartPage: 1, EndPage: 3, Confidence: 0.9}},
		Metadata: []models.StatementMetadata{{
			BankName:      "westpac",
			AccountLast4:  "2819",
			StatementDate: "2015-05-21",
			Confidence:    0.85,
		}},
		Validation: &models.ValidationReport{IsValid: true},
	}

	assert.Empty(t, d.Detect(state))
}

func TestDetect_ProviderFallback(t *testing.T) {
	d := newTestDetector()

	state := &models.WorkflowState{ProviderFailed: true}
	detected := d.Detect(state)

	require.Len(t, detected, 1)
	assert.Equal(t, models.ErrLLMAnalysisFailure, detected[0].Type)
	assert.Equal(t, models.SeverityHigh, detected[0].Severity)
}

func TestDetect_LowConfidenceBoundaries(t *testing.T) {
	d := newTestDetector()

	state := &models.WorkflowState{
		Boundaries: []models.Boundary{
			{StartPage: 1, EndPage: 2, Confidence: 0.3},
			{StartPage: 3, EndPage: 4, Confidence: 0.9},
		},
	}
	detected := d.Detect(state)

	require.Len(t, detected, 1)
	assert.Equal(t, models.ErrLowConfidenceBoundaries, detected[0].Type)
	assert.Equal(t, models.SeverityMedium, detected[0].Severity)
	assert.Equal(t, "1/2", detected[0].DetectedValue)
}

func TestDetect_PDFProcessingFailure(t *testing.T) {
	d := newTestDetector()

	state := &models.WorkflowState{
		CurrentStage: models.StageWriteSegments,
		ErrorMessage: "trim failed",
	}
	detected := d.Detect(state)

	require.NotEmpty(t, detected)
	assert.Equal(t, models.ErrPDFProcessingError, detected[0].Type)
	assert.Equal(t, models.SeverityCritical, detected[0].Severity)
}

func TestDetect_LowConfidenceMetadata(t *testing.T) {
	d := newTestDetector()

	state := &models.WorkflowState{
		Metadata: []models.StatementMetadata{
			{BankName: models.UnknownBank, AccountLast4: models.UnknownLast4, StatementDate: models.UnknownDate},
			{BankName: "westpac", AccountLast4: "2819", StatementDate: "2015-05-21", Confidence: 0.9},
		},
	}
	detected := d.Detect(state)

	require.Len(t, detected, 1)
	assert.Equal(t, models.ErrMetadataExtractionFailure, detected[0].Type)
	assert.Equal(t, "1/2", detected[0].DetectedValue)
}

func TestDetect_LowConfidenceMetadataWithPopulatedFields(t *testing.T) {
	d := newTestDetector()

	// A partially populated record still counts when its confidence is low.
	state := &models.WorkflowState{
		Metadata: []models.StatementMetadata{
			{BankName: "westpac", AccountLast4: models.UnknownLast4, StatementDate: models.UnknownDate, Confidence: 0.2},
		},
	}
	detected := d.Detect(state)

	require.Len(t, detected, 1)
	assert.Equal(t, models.ErrMetadataExtractionFailure, detected[0].Type)
	assert.Equal(t, "1/1", detected[0].DetectedValue)
}

func TestDetect_ValidationFailure(t *testing.T) {
	d := newTestDetector()

	state := &models.WorkflowState{
		Validation: &models.ValidationReport{IsValid: false, Summary: "2 of 4 checks failed"},
	}
	detected := d.Detect(state)

	require.Len(t, detected, 1)
	assert.Equal(t, models.ErrValidationFailure, detected[0].Type)
	assert.Equal(t, "2 of 4 checks failed", detected[0].DetectedValue)
}

func TestDetect_DisabledDetection(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Errors.DetectionEnabled = false
	d := NewDetector(cfg, arbor.NewLogger())

	state := &models.WorkflowState{ProviderFailed: true}
	assert.Nil(t, d.Detect(state))
}

func TestBuildReport(t *testing.T) {
	started := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	reported := started.Add(30 * time.Second)

	state := &models.WorkflowState{
		RunID:        "run-1",
		InputPath:    "/in/bundle.pdf",
		CurrentStage: models.StageFinalize,
		ErrorMessage: "output validation failed",
		StartedAt:    started,
	}
	detected := []models.ProcessingError{{Type: models.ErrValidationFailure, Severity: models.SeverityHigh}}

	report := BuildReport(state, detected, reported)

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, "/in/bundle.pdf", report.InputPath)
	assert.Equal(t, "output validation failed", report.Message)
	assert.Equal(t, detected, report.Errors)
	assert.Equal(t, models.SeverityHigh, report.MaxSeverity())
	assert.Equal(t, reported, report.ReportedAt)
}
