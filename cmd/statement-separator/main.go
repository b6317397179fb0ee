// -----------------------------------------------------------------------
// statement-separator - split bundled bank statement PDFs
// -----------------------------------------------------------------------

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/madeinoz67/bank-statement-separator/internal/analysis"
	"github.com/madeinoz67/bank-statement-separator/internal/common"
	"github.com/madeinoz67/bank-statement-separator/internal/errdetect"
	"github.com/madeinoz67/bank-statement-separator/internal/hallucination"
	"github.com/madeinoz67/bank-statement-separator/internal/interfaces"
	"github.com/madeinoz67/bank-statement-separator/internal/llm"
	"github.com/madeinoz67/bank-statement-separator/internal/models"
	"github.com/madeinoz67/bank-statement-separator/internal/paperless"
	"github.com/madeinoz67/bank-statement-separator/internal/pdf"
	"github.com/madeinoz67/bank-statement-separator/internal/ratelimit"
	"github.com/madeinoz67/bank-statement-separator/internal/validation"
	"github.com/madeinoz67/bank-statement-separator/internal/workflow"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailed      = 1
	exitConfigError = 2
	exitDMSError    = 3
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

// tagFilters collects repeatable -tag flags for the DMS input query.
type tagFilters []string

func (t *tagFilters) String() string {
	return fmt.Sprintf("%v", *t)
}

func (t *tagFilters) Set(value string) error {
	*t = append(*t, value)
	return nil
}

var (
	// Command-line flags
	configFiles  configPaths
	queryTags    tagFilters
	outputDir    = flag.String("output", "", "Output directory (overrides config)")
	outputDirO   = flag.String("o", "", "Output directory (shorthand, overrides config)")
	fromDMS      = flag.Bool("paperless", false, "Pull input documents from paperless instead of local paths")
	createdAfter = flag.String("created-after", "", "DMS input filter: created on or after date (YYYY-MM-DD)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	// Global state
	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
	flag.Var(&queryTags, "tag", "DMS input filter: tag name (can be specified multiple times)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("statement-separator version %s\n", common.GetVersion())
		os.Exit(exitOK)
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner
	var err error

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, statErr := os.Stat("statement-separator.toml"); statErr == nil {
			configFiles = append(configFiles, "statement-separator.toml")
		}
	}

	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Error().Err(err).Msg("Failed to load configuration")
		os.Exit(exitConfigError)
	}

	finalOutput := *outputDir
	if *outputDirO != "" {
		finalOutput = *outputDirO
	}
	if finalOutput != "" {
		config.Output.DefaultDir = finalOutput
	}

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	inputs := flag.Args()
	if !*fromDMS && len(inputs) == 0 {
		logger.Error().Msg("No input files given; pass PDF paths or -paperless")
		os.Exit(exitConfigError)
	}

	// Cancel the run cleanly on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := buildEngine(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Initialization failed")
		os.Exit(initExitCode(err))
	}

	os.Exit(run(ctx, engine, inputs))
}

// buildEngine wires the pipeline from configuration.
func buildEngine(ctx context.Context) (*workflow.Engine, error) {
	provider, err := llm.NewProvider(ctx, config, logger)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.NewLimiter(config.LLM.RequestsPerMinute, config.LLM.BurstLimit)
	backoff := ratelimit.NewBackoff(config.LLM.MaxRetries, logger)
	detector := hallucination.NewDetector(logger)

	extractor := pdf.NewExtractor(logger)
	writer := pdf.NewSegmentWriter(logger)

	var dms interfaces.DocumentClient
	if config.Paperless.Enabled {
		dms = paperless.NewClient(config.Paperless.BaseURL, config.Paperless.Token,
			paperless.WithLogger(logger),
			paperless.WithTimeout(config.QueryTimeoutDuration()),
			paperless.WithMaxDocuments(config.Paperless.MaxDocuments),
			paperless.WithInputPolicy(config.Paperless.Input),
		)
		if err := dms.TestConnection(ctx); err != nil {
			return nil, err
		}
	}

	deps := workflow.Deps{
		Extractor: extractor,
		Analyzer:  analysis.NewBoundaryAnalyzer(provider, limiter, backoff, detector, config, logger),
		Metadata:  analysis.NewMetadataExtractor(provider, limiter, backoff, detector, config, logger),
		Writer:    writer,
		Validator: validation.NewValidator(extractor, config, logger),
		Detector:  errdetect.NewDetector(config, logger),
		Tagger:    errdetect.NewTagger(dms, config, logger),
		DMS:       dms,
	}
	return workflow.NewEngine(deps, config, logger), nil
}

// run executes the batch and maps the outcome to an exit code.
func run(ctx context.Context, engine *workflow.Engine, inputs []string) int {
	var result *workflow.BatchResult

	if *fromDMS {
		query := models.DocumentQuery{Tags: []string(queryTags)}
		if *createdAfter != "" {
			t, err := time.Parse("2006-01-02", *createdAfter)
			if err != nil {
				logger.Error().Str("value", *createdAfter).Msg("Invalid -created-after date")
				return exitConfigError
			}
			query.CreatedAfter = t
		}

		var err error
		result, err = engine.RunFromDMS(ctx, query, config.Output.DefaultDir)
		if err != nil {
			logger.Error().Err(err).Msg("DMS input processing failed")
			if isDMSError(err) {
				return exitDMSError
			}
			return exitFailed
		}
	} else {
		result = engine.RunBatch(ctx, inputs, config.Output.DefaultDir)
	}

	logger.Info().
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Msg("Batch complete")

	if result.Failed > 0 {
		return exitFailed
	}
	return exitOK
}

// isDMSError reports whether err originated in the paperless client.
func isDMSError(err error) bool {
	var dmsErr *paperless.DmsError
	return errors.As(err, &dmsErr)
}

// initExitCode distinguishes unreachable-DMS failures from plain
// configuration problems during startup.
func initExitCode(err error) int {
	if isDMSError(err) {
		return exitDMSError
	}
	return exitConfigError
}
