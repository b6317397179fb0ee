package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// ConfigError indicates invalid or missing configuration. It is never
// retryable; callers surface it immediately (CLI exit code 2).
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %s", e.Reason)
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Config is the application configuration. It is constructed once at
// process start and treated as immutable afterwards.
type Config struct {
	LLM       LLMConfig       `toml:"llm"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Output    OutputConfig    `toml:"output"`
	Paperless PaperlessConfig `toml:"paperless"`
	Errors    ErrorsConfig    `toml:"errors"`
	Logging   LoggingConfig   `toml:"logging"`
	Workers   WorkersConfig   `toml:"workers"`
}

// LLMConfig selects and tunes the boundary/metadata analysis provider.
type LLMConfig struct {
	Provider          string  `toml:"provider" validate:"omitempty,oneof=claude gemini ollama none"`
	Model             string  `toml:"model"`
	APIKey            string  `toml:"api_key"`
	BaseURL           string  `toml:"base_url"` // ollama only
	Temperature       float32 `toml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens         int     `toml:"max_tokens" validate:"gte=0"`
	RequestsPerMinute int     `toml:"requests_per_minute" validate:"gte=1"`
	BurstLimit        int     `toml:"burst_limit" validate:"gte=1"`
	MaxRetries        int     `toml:"max_retries" validate:"gte=0,lte=10"`
	ProbeTimeout      string  `toml:"probe_timeout"`
	RequestTimeout    string  `toml:"request_timeout"`
}

// PipelineConfig tunes segmentation behavior.
type PipelineConfig struct {
	ChunkSize           int     `toml:"chunk_size" validate:"gte=256"`
	ChunkOverlap        int     `toml:"chunk_overlap" validate:"gte=0"`
	MinFragmentPages    int     `toml:"min_fragment_pages" validate:"gte=1"`
	MaxFilenameLength   int     `toml:"max_filename_length" validate:"gte=16,lte=255"`
	ConfidenceThreshold float64 `toml:"confidence_threshold" validate:"gte=0,lte=1"`
	FallbackDedupWindow float64 `toml:"fallback_dedup_window" validate:"gt=0,lte=1"`
}

// OutputConfig names the filesystem targets.
type OutputConfig struct {
	DefaultDir     string `toml:"default_dir" validate:"required"`
	QuarantineDir  string `toml:"quarantine_dir" validate:"required"`
	ErrorReportDir string `toml:"error_report_dir"`
	MinFileSize    int64  `toml:"min_file_size"`
}

// PaperlessConfig covers the DMS transport and upload defaults.
type PaperlessConfig struct {
	Enabled       bool                 `toml:"enabled"`
	BaseURL       string               `toml:"base_url" validate:"required_if=Enabled true,omitempty,url"`
	Token         string               `toml:"token"`
	QueryTimeout  string               `toml:"query_timeout"`
	MaxDocuments  int                  `toml:"max_documents" validate:"gte=0"`
	Tags          []string             `toml:"tags"`
	Correspondent string               `toml:"correspondent"`
	DocumentType  string               `toml:"document_type"`
	StoragePath   string               `toml:"storage_path"`
	Input         PaperlessInputConfig `toml:"input"`
}

// PaperlessInputConfig is the post-processing policy for input documents
// pulled from the DMS.
type PaperlessInputConfig struct {
	TaggingEnabled       bool   `toml:"tagging_enabled"`
	ProcessedTag         string `toml:"processed_tag"`
	RemoveUnprocessedTag bool   `toml:"remove_unprocessed_tag"`
	UnprocessedTagName   string `toml:"unprocessed_tag_name"`
	ProcessingTag        string `toml:"processing_tag"`
}

// ErrorsConfig is the error detection and tagging policy.
type ErrorsConfig struct {
	DetectionEnabled bool     `toml:"detection_enabled"`
	TaggingEnabled   bool     `toml:"tagging_enabled"`
	Tags             []string `toml:"tags"`
	SeverityLevels   []string `toml:"severity_levels" validate:"dive,oneof=low medium high critical"`
	BatchTagging     bool     `toml:"batch_tagging"`
}

// LoggingConfig selects log level and writer targets.
type LoggingConfig struct {
	Level  string   `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Output []string `toml:"output" validate:"dive,oneof=stdout console file"`
}

// WorkersConfig bounds batch-mode concurrency across input documents.
type WorkersConfig struct {
	Count int `toml:"count" validate:"gte=1,lte=64"`
}

// NewDefaultConfig returns the configuration defaults applied before any
// file or environment override.
func NewDefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:          "claude",
			Temperature:       0,
			MaxTokens:         4096,
			RequestsPerMinute: 30,
			BurstLimit:        10,
			MaxRetries:        3,
			ProbeTimeout:      "5s",
			RequestTimeout:    "60s",
			BaseURL:           "http://localhost:11434",
		},
		Pipeline: PipelineConfig{
			ChunkSize:           6000,
			ChunkOverlap:        800,
			MinFragmentPages:    1,
			MaxFilenameLength:   240,
			ConfidenceThreshold: 0.5,
			FallbackDedupWindow: 0.2,
		},
		Output: OutputConfig{
			DefaultDir:     "./output",
			QuarantineDir:  "./quarantine",
			ErrorReportDir: "",
			MinFileSize:    1024,
		},
		Paperless: PaperlessConfig{
			Enabled:      false,
			QueryTimeout: "30s",
			MaxDocuments: 50,
			Input: PaperlessInputConfig{
				UnprocessedTagName: "unprocessed",
			},
		},
		Errors: ErrorsConfig{
			DetectionEnabled: true,
			TaggingEnabled:   false,
			SeverityLevels:   []string{"high", "critical"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Workers: WorkersConfig{Count: 1},
	}
}

// LoadFromFiles loads configuration in layers: defaults, then each file in
// order (later files override earlier ones), then environment variables.
// Missing files are an error; an empty path list yields defaults plus env.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("read %s: %v", path, err)}
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("parse %s: %v", path, err)}
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnvOverrides applies BSS_-prefixed environment variables over the
// loaded configuration. Only operational knobs are exposed this way;
// structural settings stay in the file.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("BSS_LLM_PROVIDER"); v != "" {
		config.LLM.Provider = v
	}
	if v := os.Getenv("BSS_LLM_MODEL"); v != "" {
		config.LLM.Model = v
	}
	if v := os.Getenv("BSS_LLM_API_KEY"); v != "" {
		config.LLM.APIKey = v
	}
	if v := os.Getenv("BSS_OLLAMA_BASE_URL"); v != "" {
		config.LLM.BaseURL = v
	}
	if v := os.Getenv("BSS_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("BSS_OUTPUT_DIR"); v != "" {
		config.Output.DefaultDir = v
	}
	if v := os.Getenv("BSS_QUARANTINE_DIR"); v != "" {
		config.Output.QuarantineDir = v
	}
	if v := os.Getenv("BSS_PAPERLESS_URL"); v != "" {
		config.Paperless.BaseURL = v
		config.Paperless.Enabled = true
	}
	if v := os.Getenv("BSS_PAPERLESS_TOKEN"); v != "" {
		config.Paperless.Token = v
	}
	if v := os.Getenv("BSS_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Workers.Count = n
		}
	}
}

var validate = validator.New()

// Validate checks struct tags plus the cross-field rules the tags cannot
// express. Returns ConfigError on the first violation.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if ok := errorsAs(err, &verrs); ok && len(verrs) > 0 {
			f := verrs[0]
			return &ConfigError{
				Field:  f.Namespace(),
				Reason: fmt.Sprintf("failed %q validation", f.Tag()),
			}
		}
		return &ConfigError{Reason: err.Error()}
	}

	if c.Pipeline.ChunkOverlap >= c.Pipeline.ChunkSize {
		return &ConfigError{
			Field:  "pipeline.chunk_overlap",
			Reason: fmt.Sprintf("overlap %d must be smaller than chunk size %d", c.Pipeline.ChunkOverlap, c.Pipeline.ChunkSize),
		}
	}
	if c.Paperless.Enabled && c.Paperless.Token == "" {
		return &ConfigError{Field: "paperless.token", Reason: "required when paperless is enabled"}
	}
	for _, field := range []struct{ name, value string }{
		{"llm.probe_timeout", c.LLM.ProbeTimeout},
		{"llm.request_timeout", c.LLM.RequestTimeout},
		{"paperless.query_timeout", c.Paperless.QueryTimeout},
	} {
		if field.value == "" {
			continue
		}
		if _, err := time.ParseDuration(field.value); err != nil {
			return &ConfigError{Field: field.name, Reason: fmt.Sprintf("invalid duration %q", field.value)}
		}
	}
	return nil
}

// ProbeTimeoutDuration returns the parsed provider health probe deadline.
func (c *Config) ProbeTimeoutDuration() time.Duration {
	return parseDurationOr(c.LLM.ProbeTimeout, 5*time.Second)
}

// RequestTimeoutDuration returns the parsed per-call provider deadline.
func (c *Config) RequestTimeoutDuration() time.Duration {
	return parseDurationOr(c.LLM.RequestTimeout, 60*time.Second)
}

// QueryTimeoutDuration returns the parsed DMS call deadline.
func (c *Config) QueryTimeoutDuration() time.Duration {
	return parseDurationOr(c.Paperless.QueryTimeout, 30*time.Second)
}

// ErrorSeverities returns the configured tagging severity allow-list.
func (c *Config) ErrorSeverities() []string {
	if len(c.Errors.SeverityLevels) == 0 {
		return []string{"high", "critical"}
	}
	return c.Errors.SeverityLevels
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// errorsAs is a local indirection so Validate reads cleanly.
func errorsAs(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

// Sanitized returns a copy safe for logging: secrets are masked.
func (c *Config) Sanitized() Config {
	out := *c
	if out.LLM.APIKey != "" {
		out.LLM.APIKey = mask(out.LLM.APIKey)
	}
	if out.Paperless.Token != "" {
		out.Paperless.Token = mask(out.Paperless.Token)
	}
	return out
}

func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
