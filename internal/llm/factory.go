package llm

import (
	"context"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/madeinoz67/bank-statement-separator/internal/common"
	"github.com/madeinoz67/bank-statement-separator/internal/interfaces"
)

// DetectProvider determines the provider variant from a model string.
// Model names carry their provider ("claude-...", "gemini-...", or a
// "provider/model" prefix); anything else falls back to the configured
// provider.
func DetectProvider(cfg *common.Config) string {
	model := strings.ToLower(cfg.LLM.Model)

	switch {
	case strings.HasPrefix(model, "claude/"), strings.HasPrefix(model, "anthropic/"), strings.HasPrefix(model, "claude-"):
		return "claude"
	case strings.HasPrefix(model, "gemini/"), strings.HasPrefix(model, "google/"), strings.HasPrefix(model, "gemini-"):
		return "gemini"
	}
	return cfg.LLM.Provider
}

// NormalizeModel removes a provider prefix from a model name if present.
func NormalizeModel(model string) string {
	for _, prefix := range []string{"claude/", "anthropic/", "gemini/", "google/", "ollama/"} {
		if strings.HasPrefix(strings.ToLower(model), prefix) {
			return model[len(prefix):]
		}
	}
	return model
}

// NewProvider creates the configured provider variant. Returns nil without
// error when the provider is "none": the workflow then runs heuristics only.
func NewProvider(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (interfaces.Provider, error) {
	provider := DetectProvider(cfg)

	logger.Info().Str("provider", provider).Str("model", cfg.LLM.Model).Msg("Initializing LLM provider")

	switch provider {
	case "claude", "anthropic":
		return NewClaudeProvider(cfg, logger)
	case "gemini", "google":
		return NewGeminiProvider(ctx, cfg, logger)
	case "ollama", "local":
		return NewOllamaProvider(cfg, logger)
	case "none", "":
		return nil, nil
	default:
		return nil, &common.ConfigError{Field: "llm.provider", Reason: "unknown provider " + provider}
	}
}
