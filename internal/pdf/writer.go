package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"

	"github.com/madeinoz67/bank-statement-separator/internal/interfaces"
	"github.com/madeinoz67/bank-statement-separator/internal/models"
)

// WriteError reports a segment write failure. Any single failure is fatal
// for the run; the workflow quarantines the partial output directory.
type WriteError struct {
	Source   string
	Boundary models.Boundary
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write segment %d-%d of %s: %v", e.Boundary.StartPage, e.Boundary.EndPage, e.Source, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// SegmentWriter implements interfaces.SegmentWriter using pdfcpu page
// trimming. Output files are written to a temp name and renamed into
// place so partially written PDFs are never observed.
type SegmentWriter struct {
	logger arbor.ILogger
	conf   *model.Configuration
}

var _ interfaces.SegmentWriter = (*SegmentWriter)(nil)

// NewSegmentWriter creates a segment writer.
func NewSegmentWriter(logger arbor.ILogger) *SegmentWriter {
	return &SegmentWriter{
		logger: logger,
		conf:   model.NewDefaultConfiguration(),
	}
}

// WriteSegment writes pages boundary.StartPage..EndPage of the source into
// outputDir under filename. Page content and embedded resources are
// preserved; the write is atomic within outputDir.
func (w *SegmentWriter) WriteSegment(ctx context.Context, source *models.SourceDocument, boundary models.Boundary, outputDir, filename string) (*models.OutputArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if boundary.StartPage < 1 || boundary.EndPage < boundary.StartPage || boundary.EndPage > source.PageCount {
		return nil, &WriteError{
			Source:   source.Path,
			Boundary: boundary,
			Err:      fmt.Errorf("page range outside document (1-%d)", source.PageCount),
		}
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, &WriteError{Source: source.Path, Boundary: boundary, Err: err}
	}

	tempFile, err := os.CreateTemp(outputDir, ".segment_*.pdf")
	if err != nil {
		return nil, &WriteError{Source: source.Path, Boundary: boundary, Err: err}
	}
	tempPath := tempFile.Name()
	tempFile.Close()
	defer os.Remove(tempPath)

	selection := []string{fmt.Sprintf("%d-%d", boundary.StartPage, boundary.EndPage)}
	if err := api.TrimFile(source.Path, tempPath, selection, w.conf); err != nil {
		return nil, &WriteError{Source: source.Path, Boundary: boundary, Err: err}
	}

	// Verify the trimmed output before exposing it.
	pageCount, err := api.PageCountFile(tempPath)
	if err != nil {
		return nil, &WriteError{Source: source.Path, Boundary: boundary, Err: err}
	}
	if pageCount != boundary.PageRun() {
		return nil, &WriteError{
			Source:   source.Path,
			Boundary: boundary,
			Err:      fmt.Errorf("trimmed output has %d pages, expected %d", pageCount, boundary.PageRun()),
		}
	}

	finalPath := filepath.Join(outputDir, filename)
	if err := os.Rename(tempPath, finalPath); err != nil {
		return nil, &WriteError{Source: source.Path, Boundary: boundary, Err: err}
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		return nil, &WriteError{Source: source.Path, Boundary: boundary, Err: err}
	}

	w.logger.Debug().
		Str("filename", filename).
		Int("start_page", boundary.StartPage).
		Int("end_page", boundary.EndPage).
		Int64("size_bytes", info.Size()).
		Msg("Segment written")

	return &models.OutputArtifact{
		Path:      finalPath,
		Filename:  filename,
		Boundary:  boundary,
		SizeBytes: info.Size(),
		PageCount: pageCount,
	}, nil
}
