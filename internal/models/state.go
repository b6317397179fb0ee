package models

import "time"

// Stage names the steps of the statement separation workflow, in order.
type Stage string

const (
	StageExtractText      Stage = "extract_text"
	StageDetectBoundaries Stage = "detect_boundaries"
	StageExtractMetadata  Stage = "extract_metadata"
	StageWriteSegments    Stage = "write_segments"
	StageValidateOutputs  Stage = "validate_outputs"
	StageTagOrUpload      Stage = "tag_or_upload"
	StageFinalize         Stage = "finalize"
)

// UploadResult records the outcome of a single DMS upload. Exactly one of
// DocumentID and TaskID is set on success: paperless either indexes the
// document synchronously or queues an ingest task.
type UploadResult struct {
	Filename   string `json:"filename"`
	Title      string `json:"title"`
	DocumentID int    `json:"document_id,omitempty"`
	TaskID     string `json:"task_id,omitempty"`
	Skipped    bool   `json:"skipped,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Queued reports whether the upload was accepted as an asynchronous task.
func (u UploadResult) Queued() bool { return u.TaskID != "" }

// WorkflowState is the mutable record threaded through the workflow engine.
// The engine owns it exclusively; stage functions receive it, mutate it and
// must not retain references past their return.
type WorkflowState struct {
	RunID      string
	InputPath  string
	OutputDir  string
	InputDocID int // DMS document ID when the input was pulled from paperless, 0 otherwise

	CurrentStage Stage
	StartedAt    time.Time

	Source           *SourceDocument
	PageTexts        []PageText
	Boundaries       []Boundary
	Metadata         []StatementMetadata
	Outputs          []OutputArtifact
	Validation       *ValidationReport
	UploadResults    []UploadResult
	DetectedErrors   []ProcessingError
	ErrorReport      *ErrorReport
	ErrorMessage     string
	SkippedFragments int
	ProviderFailed   bool // boundary detection fell back after a provider error
}

// Failed reports whether a fatal error has been recorded.
func (s *WorkflowState) Failed() bool { return s.ErrorMessage != "" }
