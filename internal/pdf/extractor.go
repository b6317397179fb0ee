// -----------------------------------------------------------------------
// PDF Text Extractor - per-page text for source PDFs
// Uses pdfcpu for Go-native PDF processing
// -----------------------------------------------------------------------

package pdf

import (
	"bytes"
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

// pdfHeader is the sentinel every PDF starts with.
var pdfHeader = []byte("%PDF-")

// ExtractionError reports a whole-document extraction failure. Single-page
// failures degrade to empty page text instead.
type ExtractionError struct {
	Path          string
	Reason        string
	InvalidFormat bool
	Err           error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", e.Path, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor implements interfaces.TextExtractor using pdfcpu.
type Extractor struct {
	logger  arbor.ILogger
	tempDir string
}

var _ interfaces.TextExtractor = (*Extractor)(nil)

// NewExtractor creates a PDF text extractor with a private temp directory.
func NewExtractor(logger arbor.ILogger) *Extractor {
	tempDir := filepath.Join(os.TempDir(), "statement-separator-pdf")
	os.MkdirAll(tempDir, 0755)

	return &Extractor{
		logger:  logger,
		tempDir: tempDir,
	}
}

// Open validates the file and returns its immutable descriptor. Fails with
// ExtractionError when the file is missing, unreadable, or not a PDF.
func (e *Extractor) Open(ctx context.Context, path string) (*models.SourceDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Reason: "file not found", Err: err}
	}

	header := make([]byte, len(pdfHeader))
	f, err := os.Open(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Reason: "unreadable", Err: err}
	}
	n, _ := f.Read(header)
	f.Close()
	if n < len(pdfHeader) || !bytes.Equal(header[:len(pdfHeader)], pdfHeader) {
		return nil, &ExtractionError{Path: path, Reason: "not a PDF (missing %PDF- header)", InvalidFormat: true}
	}

	pageCount, err := e.PageCount(ctx, path)
	if err != nil {
		return nil, err
	}

	return &models.SourceDocument{
		Path:      path,
		PageCount: pageCount,
		SizeBytes: info.Size(),
	}, nil
}

// PageCount returns the physical page count. Never fabricates pages.
func (e *Extractor) PageCount(ctx context.Context, path string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count, err := api.PageCountFile(path)
	if err != nil {
		return 0, &ExtractionError{Path: path, Reason: "failed to read page count", Err: err}
	}
	return count, nil
}

// ExtractPages extracts text content by page. A page whose content cannot
// be extracted yields empty text with a logged warning; only whole-document
// failures return an error.
func (e *Extractor) ExtractPages(ctx context.Context, path string) ([]models.PageText, error) {
	if _, err := e.Open(ctx, path); err != nil {
		return nil, err
	}

	pageCount, err := e.PageCount(ctx, path)
	if err != nil {
		return nil, err
	}

	outDir, err := os.MkdirTemp(e.tempDir, "pages_")
	if err != nil {
		return nil, &ExtractionError{Path: path, Reason: "failed to create work directory", Err: err}
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(path, outDir, nil, conf); err != nil {
		e.logger.Warn().Err(err).Str("path", path).Msg("Content extraction failed, returning empty page text")
		pages := make([]models.PageText, 0, pageCount)
		for pageNum := 1; pageNum <= pageCount; pageNum++ {
			pages = append(pages, models.PageText{Index: pageNum})
		}
		return pages, nil
	}

	pageTexts := e.readExtractedContent(outDir)

	pages := make([]models.PageText, 0, pageCount)
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		text, ok := pageTexts[pageNum]
		if !ok {
			e.logger.Warn().Str("path", path).Int("page", pageNum).Msg("No text extracted for page")
		}
		pages = append(pages, models.PageText{Index: pageNum, Text: text})
	}

	return pages, nil
}

// readExtractedContent maps page numbers to the content pdfcpu wrote into
// outDir. pdfcpu names files "Content_page_<n>" or "page_<n>".
func (e *Extractor) readExtractedContent(outDir string) map[int]string {
	pageTexts := make(map[int]string)

	files, _ := os.ReadDir(outDir)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(file.Name(), "Content_page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(content)
			continue
		}
		if _, err := fmt.Sscanf(file.Name(), "page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(content)
		}
	}

	return pageTexts
}

// JoinPages concatenates page texts with page markers, the form submitted
// to providers for boundary analysis.
func JoinPages(pages []models.PageText) string {
	var buf bytes.Buffer
	for i, page := range pages {
		if i > 0 {
			fmt.Fprintf(&buf, "\n\n--- Page %d ---\n\n", page.Index)
		}
		buf.WriteString(page.Text)
	}
	return buf.String()
}

// SlicePages concatenates the text of pages start..end (1-based inclusive).
func SlicePages(pages []models.PageText, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(pages) {
		end = len(pages)
	}
	if start > end {
		return ""
	}
	return JoinPages(pages[start-1 : end])
}
