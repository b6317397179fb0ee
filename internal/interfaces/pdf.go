package interfaces

import (
	"context"

	"github.com/madeinoz67/bank-statement-separator/internal/models"
)

// TextExtractor produces per-page text for a source PDF. Implementations
// must not mutate the input and must be deterministic for identical inputs.
type TextExtractor interface {
	// Open validates the file and returns its immutable descriptor.
	Open(ctx context.Context, path string) (*models.SourceDocument, error)

	// ExtractPages returns one PageText per physical page, in order.
	// A page whose extraction fails yields empty text, not an error.
	ExtractPages(ctx context.Context, path string) ([]models.PageText, error)

	// PageCount returns the physical page count of the document.
	PageCount(ctx context.Context, path string) (int, error)
}

// SegmentWriter emits one PDF per boundary, preserving page content.
type SegmentWriter interface {
	// WriteSegment writes pages boundary.StartPage..EndPage of the source
	// into outputDir under filename, atomically.
	WriteSegment(ctx context.Context, source *models.SourceDocument, boundary models.Boundary, outputDir, filename string) (*models.OutputArtifact, error)
}
