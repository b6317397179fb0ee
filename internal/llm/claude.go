package llm

import (
	"context"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/madeinoz67/bank-statement-separator/internal/common"
	"github.com/madeinoz67/bank-statement-separator/internal/interfaces"
)

const defaultClaudeModel = "claude-sonnet-4-20250514"

// ClaudeProvider is the Anthropic cloud variant of the provider contract.
// It performs single API calls only; retries belong to the backoff layer.
type ClaudeProvider struct {
	client       anthropic.Client
	model        string
	temperature  float32
	maxTokens    int
	probeTimeout time.Duration
	logger       arbor.ILogger
}

var _ interfaces.Provider = (*ClaudeProvider)(nil)

// NewClaudeProvider creates the Claude provider from configuration.
func NewClaudeProvider(cfg *common.Config, logger arbor.ILogger) (*ClaudeProvider, error) {
	apiKey := cfg.LLM.APIKey
	if apiKey == "" {
		return nil, &common.ConfigError{Field: "llm.api_key", Reason: "required for provider claude"}
	}

	model := NormalizeModel(cfg.LLM.Model)
	if model == "" {
		model = defaultClaudeModel
	}

	maxTokens := cfg.LLM.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	logger.Debug().
		Str("model", model).
		Int("max_tokens", maxTokens).
		Msg("Claude provider initialized")

	return &ClaudeProvider{
		client:       client,
		model:        model,
		temperature:  cfg.LLM.Temperature,
		maxTokens:    maxTokens,
		probeTimeout: cfg.ProbeTimeoutDuration(),
		logger:       logger,
	}, nil
}

// Info identifies the provider variant.
func (p *ClaudeProvider) Info() interfaces.ProviderInfo {
	return interfaces.ProviderInfo{Name: "claude", Model: p.model, Kind: "cloud"}
}

// IsAvailable sends a trivial prompt under a short deadline.
func (p *ClaudeProvider) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()

	_, err := p.complete(probeCtx, "", probePrompt, 16)
	if err != nil {
		p.logger.Debug().Err(err).Msg("Claude availability probe failed")
		return false
	}
	return true
}

// AnalyzeBoundaries submits page-joined text for boundary detection.
func (p *ClaudeProvider) AnalyzeBoundaries(ctx context.Context, text string, totalPages int) (*interfaces.BoundaryResult, error) {
	reply, err := p.complete(ctx, boundarySystemPrompt, boundaryPrompt(text, totalPages), p.maxTokens)
	if err != nil {
		return nil, wrapTransportError("claude", err)
	}
	return parseBoundaryReply("claude", reply, totalPages)
}

// ExtractMetadata submits one segment's text for metadata extraction.
func (p *ClaudeProvider) ExtractMetadata(ctx context.Context, text string, startPage, endPage int) (*interfaces.MetadataResult, error) {
	reply, err := p.complete(ctx, metadataSystemPrompt, metadataPrompt(text, startPage, endPage), p.maxTokens)
	if err != nil {
		return nil, wrapTransportError("claude", err)
	}
	return parseMetadataReply("claude", reply)
}

// complete performs a single Messages.New call and concatenates the text
// blocks of the reply.
func (p *ClaudeProvider) complete(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if p.temperature > 0 {
		params.Temperature = anthropic.Float(float64(p.temperature))
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", interfaces.NewInvalidResponseError("claude", errEmptyReply)
	}
	return text.String(), nil
}
