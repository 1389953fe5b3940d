package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tanagra-labs/querent/internal/domain"
)

func TestEmbedderEmbed(t *testing.T) {
	var got embedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float64{{0.1, 0.2, 0.3}}})
	}))
	defer srv.Close()

	e := NewEmbedder(EmbedderConfig{BaseURL: srv.URL, Model: "bge-m3"})

	vec, err := e.Embed(context.Background(), "refund policy")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("unexpected vector: %v", vec)
	}
	if got.Model != "bge-m3" || got.Input != "refund policy" {
		t.Errorf("unexpected request: %+v", got)
	}
}

func TestEmbedderNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	e := NewEmbedder(EmbedderConfig{BaseURL: srv.URL, Model: "m"})

	_, err := e.Embed(context.Background(), "q")
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("want ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestEmbedderEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{})
	}))
	defer srv.Close()

	e := NewEmbedder(EmbedderConfig{BaseURL: srv.URL, Model: "m"})

	_, err := e.Embed(context.Background(), "q")
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("want ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestEmbedderUnreachable(t *testing.T) {
	e := NewEmbedder(EmbedderConfig{BaseURL: "http://127.0.0.1:1", Model: "m"})

	_, err := e.Embed(context.Background(), "q")
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("want ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestEmbedImagePostsBase64(t *testing.T) {
	var got embedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float64{{1}}})
	}))
	defer srv.Close()

	e := NewEmbedder(EmbedderConfig{BaseURL: srv.URL, Model: "clip"})

	if _, err := e.EmbedImage(context.Background(), []byte{0xff, 0xd8}, "catalog"); err != nil {
		t.Fatalf("EmbedImage() error = %v", err)
	}
	if got.Input != "/9g=" {
		t.Errorf("input = %q, want base64 of image bytes", got.Input)
	}
	if got.Scope != "catalog" {
		t.Errorf("scope = %q, want catalog", got.Scope)
	}
}

func TestSummarizerPromptAndOptions(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "a short summary"})
	}))
	defer srv.Close()

	s := NewSummarizer(SummarizerConfig{
		BaseURL:        srv.URL,
		Model:          "llama3",
		PromptTemplate: "Summarize for %%query%%:\n%%fulltext%%",
	})

	summary, err := s.Summarize(context.Background(), "full text here", "refunds")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary != "a short summary" {
		t.Errorf("summary = %q", summary)
	}
	if !strings.Contains(got.Prompt, "refunds") || !strings.Contains(got.Prompt, "full text here") {
		t.Errorf("placeholders not substituted: %q", got.Prompt)
	}
	if got.Stream {
		t.Error("stream must be false")
	}
	if got.Options.Temperature != 0 || got.Options.TopK != 40 {
		t.Errorf("unexpected options: %+v", got.Options)
	}
}

func TestSummarizerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewSummarizer(SummarizerConfig{BaseURL: srv.URL, Model: "m", PromptTemplate: "%%fulltext%%"})

	_, err := s.Summarize(context.Background(), "t", "q")
	if !errors.Is(err, domain.ErrSummarizerUnavailable) {
		t.Fatalf("want ErrSummarizerUnavailable, got %v", err)
	}
}
