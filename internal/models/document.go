package models

// SourceDocument describes the input PDF for a single pipeline run.
// It is immutable after ingestion.
type SourceDocument struct {
	Path      string `json:"path"`
	PageCount int    `json:"page_count"`
	SizeBytes int64  `json:"size_bytes"`
}

// PageText holds the extracted text of a single page. Text may be empty
// for image-only pages.
type PageText struct {
	Index int    `json:"index"` // 1-based
	Text  string `json:"text"`
}

// OutputArtifact is one generated per-statement PDF.
type OutputArtifact struct {
	Path      string   `json:"path"`
	Filename  string   `json:"filename"`
	Boundary  Boundary `json:"boundary"`
	SizeBytes int64    `json:"size_bytes"`
	PageCount int      `json:"page_count"`
}
