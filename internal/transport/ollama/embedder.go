// Package ollama implements the wire contracts of the embedding and
// summarization collaborators: POST {model, input} -> {embeddings: [[f]]}
// for embeddings and POST {model, prompt, options, stream:false} ->
// {response} for summaries.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tanagra-labs/querent/internal/domain"
	"github.com/tanagra-labs/querent/internal/metrics"
)

// Embedder calls an embedding backend speaking the Ollama embed protocol.
type Embedder struct {
	httpClient *http.Client
	baseURL    string
	model      string
	provider   string
	logger     *zap.Logger
}

// EmbedderConfig holds the settings of one embedding backend.
type EmbedderConfig struct {
	BaseURL  string
	Model    string
	Provider string
	Timeout  time.Duration
	Logger   *zap.Logger
}

// NewEmbedder creates an Ollama-protocol embedding client.
func NewEmbedder(cfg EmbedderConfig) *Embedder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "ollama"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		provider:   provider,
		logger:     logger,
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Scope string `json:"scope,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// Embed returns the embedding vector for a text. Transport failures and
// non-success statuses surface as ErrEmbeddingUnavailable; the gateway never
// retries.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return e.embed(ctx, embedRequest{Model: e.model, Input: text})
}

// EmbedImage posts the image as base64 input, with the optional scope hint
// forwarded so the backend can pick a scope-specific visual model.
func (e *Embedder) EmbedImage(ctx context.Context, data []byte, scope string) ([]float64, error) {
	return e.embed(ctx, embedRequest{
		Model: e.model,
		Input: base64.StdEncoding.EncodeToString(data),
		Scope: scope,
	})
}

func (e *Embedder) embed(ctx context.Context, payload embedRequest) ([]float64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.countError("transport_error")
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e.countError("http_" + fmt.Sprint(resp.StatusCode))
		return nil, fmt.Errorf("%w: backend status %d", domain.ErrEmbeddingUnavailable, resp.StatusCode)
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		e.countError("decode_error")
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrEmbeddingUnavailable, err)
	}
	if len(decoded.Embeddings) == 0 || len(decoded.Embeddings[0]) == 0 {
		e.countError("empty_response")
		return nil, fmt.Errorf("%w: empty embeddings", domain.ErrEmbeddingUnavailable)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, e.model).Observe(time.Since(start).Seconds())

	return decoded.Embeddings[0], nil
}

func (e *Embedder) countError(errorType string) {
	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, "error").Inc()
	metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, e.model, errorType).Inc()
}
