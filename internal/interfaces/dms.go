package interfaces

import (
	"context"

	"github.com/madeinoz67/bank-statement-separator/internal/models"
)

// DocumentClient is the contract the workflow holds against the document
// management service. Every call carries a per-call deadline through ctx.
type DocumentClient interface {
	// TestConnection performs an authenticated read to verify reachability.
	TestConnection(ctx context.Context) error

	// QueryDocuments lists PDF documents matching the filters.
	QueryDocuments(ctx context.Context, query models.DocumentQuery) (*models.QueryResult, error)

	// DownloadDocument streams a document to destPath, verifying the
	// response is a PDF and writing atomically.
	DownloadDocument(ctx context.Context, documentID int, destPath string) (*models.DownloadResult, error)

	// DownloadMultiple downloads a set of documents into dir, best-effort.
	DownloadMultiple(ctx context.Context, documentIDs []int, dir string) (*models.BatchDownloadResult, error)

	// UploadDocument posts the file multipart with resolved references.
	UploadDocument(ctx context.Context, path string, req models.UploadRequest) (*models.UploadOutcome, error)

	// ApplyTagsToDocument merges the named tags into the document's tag
	// set, preserving existing tags.
	ApplyTagsToDocument(ctx context.Context, documentID int, tags []string) error

	// MarkInputProcessed applies the configured post-processing tag policy
	// to an input document. Disabled configurations return a skipped result.
	MarkInputProcessed(ctx context.Context, documentID int) (*models.MarkResult, error)
}
