// -----------------------------------------------------------------------
// Workflow Engine - staged statement separation with quarantine
// -----------------------------------------------------------------------

package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/madeinoz67/bank-statement-separator/internal/analysis"
	"github.com/madeinoz67/bank-statement-separator/internal/common"
	"github.com/madeinoz67/bank-statement-separator/internal/errdetect"
	"github.com/madeinoz67/bank-statement-separator/internal/interfaces"
	"github.com/madeinoz67/bank-statement-separator/internal/models"
	"github.com/madeinoz67/bank-statement-separator/internal/validation"
)

// cancelledMessage is recorded when the operator interrupts a run.
const cancelledMessage = "operator cancelled"

// errorReportName is written beside quarantined artifacts.
const errorReportName = "error_report.json"

// Engine drives one document through the separation stages. A fatal stage
// error skips directly to finalization, which quarantines the run. The
// engine owns each run's WorkflowState exclusively.
type Engine struct {
	extractor interfaces.TextExtractor
	analyzer  *analysis.BoundaryAnalyzer
	metadata  *analysis.MetadataExtractor
	writer    interfaces.SegmentWriter
	validator *validation.Validator
	detector  *errdetect.Detector
	tagger    *errdetect.Tagger
	dms       interfaces.DocumentClient // nil when the DMS integration is disabled
	cfg       *common.Config
	logger    arbor.ILogger

	// now is overridable for report timestamp tests.
	now func() time.Time
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Extractor interfaces.TextExtractor
	Analyzer  *analysis.BoundaryAnalyzer
	Metadata  *analysis.MetadataExtractor
	Writer    interfaces.SegmentWriter
	Validator *validation.Validator
	Detector  *errdetect.Detector
	Tagger    *errdetect.Tagger
	DMS       interfaces.DocumentClient
}

// NewEngine creates a workflow engine.
func NewEngine(deps Deps, cfg *common.Config, logger arbor.ILogger) *Engine {
	return &Engine{
		extractor: deps.Extractor,
		analyzer:  deps.Analyzer,
		metadata:  deps.Metadata,
		writer:    deps.Writer,
		validator: deps.Validator,
		detector:  deps.Detector,
		tagger:    deps.Tagger,
		dms:       deps.DMS,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// stage pairs a stage name with its implementation. Stage functions
// mutate the state they receive and must not retain it past return.
type stage struct {
	name models.Stage
	run  func(ctx context.Context, state *models.WorkflowState) error
}

// Run processes one local input PDF. The returned state always reflects
// the run outcome; callers check state.Failed() rather than the error,
// which is reserved for setup problems.
func (e *Engine) Run(ctx context.Context, inputPath, outputDir string) (*models.WorkflowState, error) {
	return e.runDocument(ctx, inputPath, outputDir, 0)
}

func (e *Engine) runDocument(ctx context.Context, inputPath, outputDir string, inputDocID int) (*models.WorkflowState, error) {
	if outputDir == "" {
		outputDir = e.cfg.Output.DefaultDir
	}

	state := &models.WorkflowState{
		RunID:      uuid.NewString(),
		InputPath:  inputPath,
		OutputDir:  outputDir,
		InputDocID: inputDocID,
		StartedAt:  e.now(),
	}

	e.logger.Info().
		Str("run_id", state.RunID).
		Str("input", inputPath).
		Msg("Starting statement separation")

	stages := []stage{
		{models.StageExtractText, e.stageExtractText},
		{models.StageDetectBoundaries, e.stageDetectBoundaries},
		{models.StageExtractMetadata, e.stageExtractMetadata},
		{models.StageWriteSegments, e.stageWriteSegments},
		{models.StageValidateOutputs, e.stageValidateOutputs},
		{models.StageTagOrUpload, e.stageTagOrUpload},
	}

	for _, s := range stages {
		if ctx.Err() != nil {
			state.ErrorMessage = cancelledMessage
			break
		}

		state.CurrentStage = s.name
		if err := s.run(ctx, state); err != nil {
			state.ErrorMessage = err.Error()
			e.logger.Error().
				Str("run_id", state.RunID).
				Str("stage", string(s.name)).
				Err(err).
				Msg("Stage failed")
			break
		}
	}

	e.finalize(ctx, state)
	return state, nil
}

func (e *Engine) stageExtractText(ctx context.Context, state *models.WorkflowState) error {
	source, err := e.extractor.Open(ctx, state.InputPath)
	if err != nil {
		return err
	}
	state.Source = source

	pages, err := e.extractor.ExtractPages(ctx, state.InputPath)
	if err != nil {
		return err
	}
	state.PageTexts = pages

	e.logger.Debug().
		Str("run_id", state.RunID).
		Int("pages", len(pages)).
		Msg("Extracted page text")
	return nil
}

func (e *Engine) stageDetectBoundaries(ctx context.Context, state *models.WorkflowState) error {
	result, err := e.analyzer.Analyze(ctx, state.PageTexts)
	if err != nil {
		return err
	}
	if len(result.Boundaries) == 0 {
		return fmt.Errorf("no statement boundaries detected")
	}

	state.Boundaries = result.Boundaries
	state.SkippedFragments = result.SkippedFragments
	state.ProviderFailed = result.ProviderFailed
	return nil
}

func (e *Engine) stageExtractMetadata(ctx context.Context, state *models.WorkflowState) error {
	state.Metadata = make([]models.StatementMetadata, 0, len(state.Boundaries))
	for _, b := range state.Boundaries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		meta, _ := e.metadata.Extract(ctx, state.PageTexts, b)
		state.Metadata = append(state.Metadata, meta)
	}
	return nil
}

func (e *Engine) stageWriteSegments(ctx context.Context, state *models.WorkflowState) error {
	if err := os.MkdirAll(state.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	used := make(map[string]bool)
	for i, b := range state.Boundaries {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		filename := analysis.BuildFilename(state.Metadata[i], b, e.cfg.Pipeline.MaxFilenameLength)
		filename = uniqueName(filename, b.StartPage, used)
		used[filename] = true

		artifact, err := e.writer.WriteSegment(ctx, state.Source, b, state.OutputDir, filename)
		if err != nil {
			return err
		}
		state.Outputs = append(state.Outputs, *artifact)
	}
	return nil
}

func (e *Engine) stageValidateOutputs(ctx context.Context, state *models.WorkflowState) error {
	report := e.validator.Validate(ctx, state.Source, state.Boundaries, state.Outputs, state.PageTexts)
	state.Validation = report
	if !report.IsValid {
		return fmt.Errorf("output validation failed: %s", report.Summary)
	}
	return nil
}

func (e *Engine) stageTagOrUpload(ctx context.Context, state *models.WorkflowState) error {
	if e.dms == nil || !e.cfg.Paperless.Enabled {
		return nil
	}

	for _, out := range state.Outputs {
		result := models.UploadResult{
			Filename: out.Filename,
			Title:    analysis.Title(out.Filename),
		}

		outcome, err := e.dms.UploadDocument(ctx, out.Path, models.UploadRequest{
			Title:         result.Title,
			Tags:          e.cfg.Paperless.Tags,
			Correspondent: e.cfg.Paperless.Correspondent,
			DocumentType:  e.cfg.Paperless.DocumentType,
			StoragePath:   e.cfg.Paperless.StoragePath,
		})
		if err != nil {
			// Per-file upload failures never destroy the local outputs.
			result.Error = err.Error()
			e.logger.Warn().
				Str("run_id", state.RunID).
				Str("file", out.Filename).
				Err(err).
				Msg("Upload failed")
		} else {
			result.DocumentID = outcome.DocumentID
			result.TaskID = outcome.TaskID
		}
		state.UploadResults = append(state.UploadResults, result)
	}

	if state.InputDocID != 0 {
		mark, err := e.dms.MarkInputProcessed(ctx, state.InputDocID)
		if err != nil {
			e.logger.Warn().
				Str("run_id", state.RunID).
				Int("document_id", state.InputDocID).
				Err(err).
				Msg("Input tag update failed")
		} else if !mark.Skipped {
			e.logger.Info().
				Str("run_id", state.RunID).
				Strs("applied", mark.AppliedTags).
				Strs("removed", mark.RemovedTags).
				Msg("Marked input processed")
		}
	}
	return nil
}

// finalize runs error detection and either quarantines a failed run or
// applies error tags for a degraded success. CurrentStage still names the
// failed stage here; it moves to finalize only once the report is built.
func (e *Engine) finalize(ctx context.Context, state *models.WorkflowState) {
	state.DetectedErrors = e.detector.Detect(state)

	if state.Failed() {
		e.quarantine(ctx, state)
		state.CurrentStage = models.StageFinalize
		return
	}
	state.CurrentStage = models.StageFinalize

	if e.tagger.ShouldTag(state.DetectedErrors) {
		// The input document leads so it stays tagged even with batch
		// tagging disabled.
		var ids []int
		if state.InputDocID != 0 {
			ids = append(ids, state.InputDocID)
		}
		for _, u := range state.UploadResults {
			if u.DocumentID != 0 {
				ids = append(ids, u.DocumentID)
			}
		}
		e.tagger.TagDocuments(ctx, ids, state.DetectedErrors)
	}

	e.logger.Info().
		Str("run_id", state.RunID).
		Int("statements", len(state.Outputs)).
		Int("skipped_fragments", state.SkippedFragments).
		Msg("Statement separation complete")
}

// quarantine moves the input and any partial outputs into a per-run
// quarantine directory and writes the error report beside them.
func (e *Engine) quarantine(ctx context.Context, state *models.WorkflowState) {
	quarantineDir := filepath.Join(e.cfg.Output.QuarantineDir, state.RunID)
	if err := os.MkdirAll(quarantineDir, 0755); err != nil {
		e.logger.Error().Err(err).Msg("Cannot create quarantine directory")
		return
	}

	for _, out := range state.Outputs {
		moveFile(out.Path, filepath.Join(quarantineDir, out.Filename))
	}
	moveFile(state.InputPath, filepath.Join(quarantineDir, filepath.Base(state.InputPath)))

	report := errdetect.BuildReport(state, state.DetectedErrors, e.now())
	state.ErrorReport = report

	reportPath := filepath.Join(quarantineDir, errorReportName)
	if dir := e.cfg.Output.ErrorReportDir; dir != "" {
		os.MkdirAll(dir, 0755)
		// Shared report directories get one report per run.
		reportPath = filepath.Join(dir, state.RunID+"_"+errorReportName)
	}
	if err := writeErrorReport(reportPath, report); err != nil {
		e.logger.Error().Err(err).Msg("Cannot write error report")
	}

	if state.InputDocID != 0 {
		_ = e.tagger.TagDocument(ctx, state.InputDocID, state.DetectedErrors)
	}

	e.logger.Warn().
		Str("run_id", state.RunID).
		Str("stage", report.FailedStage).
		Str("quarantine", quarantineDir).
		Msg("Run quarantined")
}

func writeErrorReport(path string, report *models.ErrorReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// moveFile renames when possible and falls back to copy-and-remove for
// cross-device moves.
func moveFile(src, dest string) {
	if src == "" {
		return
	}
	if err := os.Rename(src, dest); err == nil {
		return
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return
	}
	os.Remove(src)
}

// uniqueName disambiguates filename collisions within one run by forcing
// the page suffix onto later duplicates.
func uniqueName(filename string, startPage int, used map[string]bool) string {
	if !used[filename] {
		return filename
	}
	base := filename[:len(filename)-len(".pdf")]
	candidate := fmt.Sprintf("%s-p%d.pdf", base, startPage)
	for n := 2; used[candidate]; n++ {
		candidate = fmt.Sprintf("%s-p%d-%d.pdf", base, startPage, n)
	}
	return candidate
}
