package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tanagra-labs/querent/internal/domain"
	"github.com/tanagra-labs/querent/internal/metrics"
)

// Prompt placeholders replaced before each summarizer call.
const (
	promptQueryPlaceholder    = "%%query%%"
	promptFulltextPlaceholder = "%%fulltext%%"
)

// Summarizer calls the LLM summarization backend.
type Summarizer struct {
	httpClient     *http.Client
	baseURL        string
	model          string
	promptTemplate string
	logger         *zap.Logger
}

// SummarizerConfig holds the summarization backend settings.
type SummarizerConfig struct {
	BaseURL        string
	Model          string
	PromptTemplate string
	Timeout        time.Duration
	Logger         *zap.Logger
}

// NewSummarizer creates a summarization client.
func NewSummarizer(cfg SummarizerConfig) *Summarizer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        cfg.BaseURL,
		model:          cfg.Model,
		promptTemplate: cfg.PromptTemplate,
		logger:         logger,
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Options generateOptions `json:"options"`
	Stream  bool            `json:"stream"`
}

type generateOptions struct {
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"top_p"`
	TopK          int     `json:"top_k"`
	RepeatPenalty float64 `json:"repeat_penalty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Summarize renders the configured prompt with the user query and candidate
// text, and returns the model's summary.
func (s *Summarizer) Summarize(ctx context.Context, text, userQuery string) (string, error) {
	prompt := strings.ReplaceAll(s.promptTemplate, promptQueryPlaceholder, userQuery)
	prompt = strings.ReplaceAll(prompt, promptFulltextPlaceholder, text)

	payload := generateRequest{
		Model:  s.model,
		Prompt: prompt,
		Options: generateOptions{
			Temperature:   0,
			TopP:          0.9,
			TopK:          40,
			RepeatPenalty: 1.1,
		},
		Stream: false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode summarize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build summarize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		metrics.SummarizeRequestsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: %v", domain.ErrSummarizerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.SummarizeRequestsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: backend status %d", domain.ErrSummarizerUnavailable, resp.StatusCode)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		metrics.SummarizeRequestsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrSummarizerUnavailable, err)
	}

	metrics.SummarizeRequestsTotal.WithLabelValues("success").Inc()
	metrics.SummarizeRequestDuration.Observe(time.Since(start).Seconds())

	return decoded.Response, nil
}
