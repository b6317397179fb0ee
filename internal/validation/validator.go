// -----------------------------------------------------------------------
// Output Validator - four-tier integrity checks on generated segments
// -----------------------------------------------------------------------

package validation

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/madeinoz67/bank-statement-separator/internal/common"
	"github.com/madeinoz67/bank-statement-separator/internal/interfaces"
	"github.com/madeinoz67/bank-statement-separator/internal/models"
)

// Total output size must land within this band of the input size. Splits
// shed shared objects, so the floor is loose; the ceiling catches runaway
// duplication.
const (
	minSizeRatio = 0.5
	maxSizeRatio = 3.0
)

// sampleLength is how many characters of a sampled page are matched back
// against the source text.
const sampleLength = 120

// Validator runs the four output integrity tiers. It never returns an
// error; every failure lands in the report so the workflow can decide
// whether to quarantine.
type Validator struct {
	extractor interfaces.TextExtractor
	cfg       *common.Config
	logger    arbor.ILogger
}

// NewValidator creates an output validator. The extractor re-reads the
// generated PDFs for content sampling.
func NewValidator(extractor interfaces.TextExtractor, cfg *common.Config, logger arbor.ILogger) *Validator {
	return &Validator{extractor: extractor, cfg: cfg, logger: logger}
}

// Validate checks the generated outputs against the source document.
func (v *Validator) Validate(ctx context.Context, source *models.SourceDocument, boundaries []models.Boundary, outputs []models.OutputArtifact, pageTexts []models.PageText) *models.ValidationReport {
	report := &models.ValidationReport{}

	report.FileCount = v.checkFileCount(boundaries, outputs)
	report.PageCount = v.checkPageCount(ctx, source, outputs)
	report.FileSize = v.checkFileSize(source, outputs)
	report.ContentSampling = v.checkContentSampling(ctx, outputs, pageTexts)

	report.IsValid = true
	for _, check := range report.Checks() {
		if !check.Passed {
			report.IsValid = false
			report.Errors = append(report.Errors, fmt.Sprintf("%s check failed", check.Name))
		}
	}

	if report.IsValid {
		report.Summary = fmt.Sprintf("all checks passed for %d output file(s)", len(outputs))
	} else {
		report.Summary = fmt.Sprintf("%d of 4 checks failed", len(report.Errors))
	}

	v.logger.Info().
		Bool("valid", report.IsValid).
		Str("summary", report.Summary).
		Msg("Output validation complete")

	return report
}

// checkFileCount verifies one output file exists on disk per boundary.
func (v *Validator) checkFileCount(boundaries []models.Boundary, outputs []models.OutputArtifact) models.CheckResult {
	missing := 0
	for _, out := range outputs {
		if _, err := os.Stat(out.Path); err != nil {
			missing++
		}
	}

	passed := len(outputs) == len(boundaries) && missing == 0
	return models.CheckResult{
		Name:   "file_count",
		Passed: passed,
		Details: map[string]any{
			"expected": len(boundaries),
			"actual":   len(outputs),
			"missing":  missing,
		},
	}
}

// checkPageCount verifies the outputs' pages sum to the source page count.
func (v *Validator) checkPageCount(ctx context.Context, source *models.SourceDocument, outputs []models.OutputArtifact) models.CheckResult {
	total := 0
	for _, out := range outputs {
		pages := out.PageCount
		if pages == 0 {
			if counted, err := v.extractor.PageCount(ctx, out.Path); err == nil {
				pages = counted
			}
		}
		total += pages
	}

	return models.CheckResult{
		Name:   "page_count",
		Passed: total == source.PageCount,
		Details: map[string]any{
			"source_pages": source.PageCount,
			"output_pages": total,
		},
	}
}

// checkFileSize verifies each output clears the minimum size and the
// total output size sits within the plausibility band of the input.
func (v *Validator) checkFileSize(source *models.SourceDocument, outputs []models.OutputArtifact) models.CheckResult {
	var total int64
	undersized := 0
	minSize := v.cfg.Output.MinFileSize

	for _, out := range outputs {
		size := out.SizeBytes
		if size == 0 {
			if info, err := os.Stat(out.Path); err == nil {
				size = info.Size()
			}
		}
		if size < minSize {
			undersized++
		}
		total += size
	}

	ratio := 0.0
	if source.SizeBytes > 0 {
		ratio = float64(total) / float64(source.SizeBytes)
	}

	passed := undersized == 0 && ratio >= minSizeRatio && ratio <= maxSizeRatio
	return models.CheckResult{
		Name:   "file_size",
		Passed: passed,
		Details: map[string]any{
			"undersized":  undersized,
			"min_bytes":   minSize,
			"total_bytes": total,
			"size_ratio":  ratio,
		},
	}
}

// checkContentSampling re-extracts the first and last page of each output
// and verifies the text appears in the corresponding source pages.
func (v *Validator) checkContentSampling(ctx context.Context, outputs []models.OutputArtifact, pageTexts []models.PageText) models.CheckResult {
	sourceText := joinedText(pageTexts)
	mismatches := 0
	sampled := 0

	for _, out := range outputs {
		pages, err := v.extractor.ExtractPages(ctx, out.Path)
		if err != nil || len(pages) == 0 {
			mismatches++
			continue
		}

		for _, page := range samplePages(pages) {
			sampled++
			sample := normalizeSample(page.Text)
			if sample == "" {
				// Image-only pages carry no text to compare.
				continue
			}
			if !strings.Contains(sourceText, sample) {
				mismatches++
			}
		}
	}

	return models.CheckResult{
		Name:   "content_sampling",
		Passed: mismatches == 0,
		Details: map[string]any{
			"sampled":    sampled,
			"mismatches": mismatches,
		},
	}
}

// samplePages picks the first and last page of a segment.
func samplePages(pages []models.PageText) []models.PageText {
	if len(pages) <= 1 {
		return pages
	}
	return []models.PageText{pages[0], pages[len(pages)-1]}
}

// normalizeSample collapses whitespace and clips the sample so layout
// differences between extractions do not cause false mismatches.
func normalizeSample(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if len(collapsed) > sampleLength {
		collapsed = collapsed[:sampleLength]
	}
	return collapsed
}

func joinedText(pages []models.PageText) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, strings.Join(strings.Fields(p.Text), " "))
	}
	return strings.Join(parts, " ")
}
