package llm

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/madeinoz67/bank-statement-separator/internal/common"
	"github.com/madeinoz67/bank-statement-separator/internal/interfaces"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiProvider is the Google cloud variant of the provider contract.
type GeminiProvider struct {
	client       *genai.Client
	model        string
	temperature  float32
	probeTimeout time.Duration
	logger       arbor.ILogger
}

var _ interfaces.Provider = (*GeminiProvider)(nil)

// NewGeminiProvider creates the Gemini provider from configuration.
func NewGeminiProvider(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*GeminiProvider, error) {
	apiKey := cfg.LLM.APIKey
	if apiKey == "" {
		return nil, &common.ConfigError{Field: "llm.api_key", Reason: "required for provider gemini"}
	}

	model := NormalizeModel(cfg.LLM.Model)
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, wrapTransportError("gemini", err)
	}

	logger.Debug().Str("model", model).Msg("Gemini provider initialized")

	return &GeminiProvider{
		client:       client,
		model:        model,
		temperature:  cfg.LLM.Temperature,
		probeTimeout: cfg.ProbeTimeoutDuration(),
		logger:       logger,
	}, nil
}

// Info identifies the provider variant.
func (p *GeminiProvider) Info() interfaces.ProviderInfo {
	return interfaces.ProviderInfo{Name: "gemini", Model: p.model, Kind: "cloud"}
}

// IsAvailable sends a trivial prompt under a short deadline.
func (p *GeminiProvider) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()

	_, err := p.generate(probeCtx, "", probePrompt)
	if err != nil {
		p.logger.Debug().Err(err).Msg("Gemini availability probe failed")
		return false
	}
	return true
}

// AnalyzeBoundaries submits page-joined text for boundary detection.
func (p *GeminiProvider) AnalyzeBoundaries(ctx context.Context, text string, totalPages int) (*interfaces.BoundaryResult, error) {
	reply, err := p.generate(ctx, boundarySystemPrompt, boundaryPrompt(text, totalPages))
	if err != nil {
		return nil, wrapTransportError("gemini", err)
	}
	return parseBoundaryReply("gemini", reply, totalPages)
}

// ExtractMetadata submits one segment's text for metadata extraction.
func (p *GeminiProvider) ExtractMetadata(ctx context.Context, text string, startPage, endPage int) (*interfaces.MetadataResult, error) {
	reply, err := p.generate(ctx, metadataSystemPrompt, metadataPrompt(text, startPage, endPage))
	if err != nil {
		return nil, wrapTransportError("gemini", err)
	}
	return parseMetadataReply("gemini", reply)
}

// generate performs a single GenerateContent call and returns the reply
// text. JSON output is requested through the response MIME type so the
// model does not wrap replies in prose.
func (p *GeminiProvider) generate(ctx context.Context, system, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(p.temperature),
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
		config.ResponseMIMEType = "application/json"
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", interfaces.NewInvalidResponseError("gemini", errEmptyReply)
	}
	text := resp.Text()
	if text == "" {
		return "", interfaces.NewInvalidResponseError("gemini", errEmptyReply)
	}
	return text, nil
}
