package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/madeinoz67/bank-statement-separator/internal/common"
	"github.com/madeinoz67/bank-statement-separator/internal/interfaces"
)

const defaultOllamaModel = "llama3.1"

// ollamaGenerateRequest is the request body for /api/generate.
type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// ollamaGenerateResponse is the non-streaming response body.
type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// OllamaProvider is the local variant of the provider contract, speaking
// to an Ollama server over localhost HTTP.
type OllamaProvider struct {
	baseURL      string
	model        string
	temperature  float32
	httpClient   *http.Client
	probeTimeout time.Duration
	logger       arbor.ILogger
}

var _ interfaces.Provider = (*OllamaProvider)(nil)

// NewOllamaProvider creates the local provider from configuration.
func NewOllamaProvider(cfg *common.Config, logger arbor.ILogger) (*OllamaProvider, error) {
	baseURL := strings.TrimRight(cfg.LLM.BaseURL, "/")
	if baseURL == "" {
		return nil, &common.ConfigError{Field: "llm.base_url", Reason: "required for provider ollama"}
	}

	model := NormalizeModel(cfg.LLM.Model)
	if model == "" {
		model = defaultOllamaModel
	}

	logger.Debug().Str("base_url", baseURL).Str("model", model).Msg("Ollama provider initialized")

	return &OllamaProvider{
		baseURL:     baseURL,
		model:       model,
		temperature: cfg.LLM.Temperature,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeoutDuration(),
		},
		probeTimeout: cfg.ProbeTimeoutDuration(),
		logger:       logger,
	}, nil
}

// Info identifies the provider variant.
func (p *OllamaProvider) Info() interfaces.ProviderInfo {
	return interfaces.ProviderInfo{Name: "ollama", Model: p.model, Kind: "local"}
}

// IsAvailable probes the server's model listing endpoint.
func (p *OllamaProvider) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Debug().Err(err).Msg("Ollama availability probe failed")
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// AnalyzeBoundaries submits page-joined text for boundary detection.
func (p *OllamaProvider) AnalyzeBoundaries(ctx context.Context, text string, totalPages int) (*interfaces.BoundaryResult, error) {
	reply, err := p.generate(ctx, boundarySystemPrompt, boundaryPrompt(text, totalPages))
	if err != nil {
		return nil, wrapTransportError("ollama", err)
	}
	return parseBoundaryReply("ollama", reply, totalPages)
}

// ExtractMetadata submits one segment's text for metadata extraction.
func (p *OllamaProvider) ExtractMetadata(ctx context.Context, text string, startPage, endPage int) (*interfaces.MetadataResult, error) {
	reply, err := p.generate(ctx, metadataSystemPrompt, metadataPrompt(text, startPage, endPage))
	if err != nil {
		return nil, wrapTransportError("ollama", err)
	}
	return parseMetadataReply("ollama", reply)
}

// generate performs a single non-streaming /api/generate call.
func (p *OllamaProvider) generate(ctx context.Context, system, prompt string) (string, error) {
	body := ollamaGenerateRequest{
		Model:  p.model,
		Prompt: prompt,
		System: system,
		Stream: false,
		Format: "json",
		Options: map[string]any{
			"temperature": p.temperature,
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("ollama returned 429")
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", interfaces.NewInvalidResponseError("ollama", err)
	}
	if out.Response == "" {
		return "", interfaces.NewInvalidResponseError("ollama", errEmptyReply)
	}
	return out.Response, nil
}
