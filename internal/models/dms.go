package models

import "time"

// DMSDocument is the document-management-service view of a stored document.
// All references (tags, correspondent, document type, storage path) are IDs.
type DMSDocument struct {
	ID            int    `json:"id"`
	Title         string `json:"title"`
	ContentType   string `json:"content_type,omitempty"`
	MimeType      string `json:"mime_type,omitempty"`
	OriginalName  string `json:"original_file_name,omitempty"`
	Tags          []int  `json:"tags,omitempty"`
	Correspondent int    `json:"correspondent,omitempty"`
	DocumentType  int    `json:"document_type,omitempty"`
	StoragePath   int    `json:"storage_path,omitempty"`
	Created       string `json:"created,omitempty"`
}

// DocumentQuery filters a DMS document listing. Results are always
// restricted to PDF documents.
type DocumentQuery struct {
	Tags          []string
	Correspondent string
	DocumentType  string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	PageSize      int
}

// QueryResult is the outcome of a document query.
type QueryResult struct {
	Count          int           `json:"count"`
	Documents      []DMSDocument `json:"documents"`
	TotalAvailable int           `json:"total_available"`
}

// UploadOutcome is the tagged result of a document upload. Paperless
// either indexes synchronously (DocumentID) or queues an ingest task
// (TaskID); exactly one side is set.
type UploadOutcome struct {
	DocumentID int    `json:"document_id,omitempty"`
	TaskID     string `json:"task_id,omitempty"`
	Title      string `json:"title"`
}

// Queued reports whether the upload was accepted asynchronously.
func (u UploadOutcome) Queued() bool { return u.TaskID != "" }

// UploadRequest names the metadata attached to an upload. All references
// are names; the client resolves them to IDs with get-or-create semantics.
type UploadRequest struct {
	Title         string
	Tags          []string
	Correspondent string
	DocumentType  string
	StoragePath   string
}

// DownloadResult records a successful single-document download.
type DownloadResult struct {
	DocumentID  int    `json:"document_id"`
	Path        string `json:"path"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentType string `json:"content_type"`
}

// BatchDownloadError records a per-document failure in a batch download.
type BatchDownloadError struct {
	DocumentID int    `json:"document_id"`
	Error      string `json:"error"`
}

// BatchDownloadResult reports a best-effort batch download. Success is
// false when any document failed; successful downloads are still listed.
type BatchDownloadResult struct {
	Success   bool                 `json:"success"`
	Downloads []DownloadResult     `json:"downloads"`
	Errors    []BatchDownloadError `json:"errors"`
}

// MarkResult reports the input post-processing tag operation.
type MarkResult struct {
	Skipped     bool     `json:"skipped"`
	AppliedTags []string `json:"applied_tags,omitempty"`
	RemovedTags []string `json:"removed_tags,omitempty"`
}
