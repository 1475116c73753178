package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type OllamaProvider struct {
	httpClient *http.Client
	baseURL    string
	model      string
	logger     *zap.Logger
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// OllamaModel is one entry of /api/tags.
type OllamaModel struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modified_at"`
}

type ollamaTagsResponse struct {
	Models []OllamaModel `json:"models"`
}

// NewOllamaProvider has no client timeout; callers bound every call with ctx.
func NewOllamaProvider(baseURL, model string, logger *zap.Logger) *OllamaProvider {
	return &OllamaProvider{
		httpClient: &http.Client{},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		logger:     logger,
	}
}

func (o *OllamaProvider) Name() string { return "ollama" }

func (o *OllamaProvider) Model() string { return o.model }

func (o *OllamaProvider) Probe(ctx context.Context) error {
	_, err := o.ListModels(ctx)
	return err
}

// ListModels returns the models installed on the Ollama server.
func (o *OllamaProvider) ListModels(ctx context.Context) ([]OllamaModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request to Ollama: %w", err)
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama is unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama tags failed with HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to parse Ollama tags: %w", err)
	}
	return tags.Models, nil
}

func (o *OllamaProvider) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	payload := ollamaGenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: false,
	}
	if opts.Temperature != nil || opts.TopP != nil {
		payload.Options = map[string]any{}
		if opts.Temperature != nil {
			payload.Options["temperature"] = *opts.Temperature
		}
		if opts.TopP != nil {
			payload.Options["top_p"] = *opts.TopP
		}
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request to Ollama: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request to Ollama: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		o.logger.Error("Ollama API call failed", zap.String("model", o.model), zap.Error(err))
		return "", fmt.Errorf("ollama API call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body from Ollama: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		o.logger.Error("Ollama returned an error",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(respBody)))
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		// some proxies answer with plain text
		return strings.TrimSpace(string(respBody)), nil
	}
	return strings.TrimSpace(out.Response), nil
}
