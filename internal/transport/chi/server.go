// Package chi exposes the retrieval pipeline over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tanagra-labs/querent/internal/domain"
	batchuc "github.com/tanagra-labs/querent/internal/usecase/batch"
	elementuc "github.com/tanagra-labs/querent/internal/usecase/element"
	ftelementuc "github.com/tanagra-labs/querent/internal/usecase/ftelement"
	healthuc "github.com/tanagra-labs/querent/internal/usecase/health"
	queryuc "github.com/tanagra-labs/querent/internal/usecase/query"
)

// maxImageBytes caps an uploaded search image.
const maxImageBytes = 16 << 20

// Error codes of the JSON error envelope.
const (
	codeBadRequest           = "bad_request"
	codeValidationFailed     = "validation_failed"
	codeInsufficientSamples  = "insufficient_samples"
	codeElementNotFound      = "element_not_found"
	codeScopeNotFound        = "scope_not_found"
	codeEmbeddingUnavailable = "embedding_unavailable"
	codeBackendUnavailable   = "backend_unavailable"
	codeInternalError        = "internal_error"
)

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server carries the use case services behind the HTTP API.
type Server struct {
	query         *queryuc.Service
	elements      *elementuc.Service
	ftelements    *ftelementuc.Service
	batch         *batchuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	query *queryuc.Service,
	elements *elementuc.Service,
	ftelements *ftelementuc.Service,
	batch *batchuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		query:      query,
		elements:   elements,
		ftelements: ftelements,
		batch:      batch,
		health:     health,
		logger:     logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrInsufficientSamples, http.StatusBadRequest, codeInsufficientSamples),
		sentinelHandler(domain.ErrElementNotFound, http.StatusNotFound, codeElementNotFound),
		sentinelHandler(domain.ErrScopeNotFound, http.StatusNotFound, codeScopeNotFound),
		sentinelHandler(domain.ErrEmbeddingUnavailable, http.StatusInternalServerError, codeEmbeddingUnavailable),
		sentinelHandler(domain.ErrFineTunedNotConfigured,
			http.StatusInternalServerError, codeEmbeddingUnavailable),
		sentinelHandler(domain.ErrSummarizerUnavailable,
			http.StatusInternalServerError, codeEmbeddingUnavailable),
		sentinelHandler(domain.ErrBackendUnavailable, http.StatusInternalServerError, codeBackendUnavailable),
	}
	return s
}

// Register mounts the API routes on a router. Middleware is the caller's
// concern; the composition root applies recovery, logging, auth and metrics
// before registering.
func (s *Server) Register(r chi.Router) {
	r.Route("/query", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/deepsearch", s.handleDeepSearch)
		r.Post("/deepsense", s.handleDeepsense)
		r.Post("/searchaggregate", s.handleSearchAggregate)
		r.Post("/searchimage", s.handleSearchImage)
		r.Get("/element/{id}", s.handleQueryElement)
	})

	r.Route("/elements", func(r chi.Router) {
		r.Post("/", s.handleCreateElement)
		r.Get("/", s.handleListElements)
		r.Get("/{id}", s.handleGetElement)
		r.Put("/{id}", s.handleUpdateElement)
		r.Delete("/{id}", s.handleDeleteElement)
	})

	r.Route("/ftelements", func(r chi.Router) {
		r.Post("/", s.handleCreateFTElement)
		r.Get("/", s.handleListFTElements)
		r.Post("/batch", s.handleBatchFTElements)
		r.Get("/{id}", s.handleGetFTElement)
		r.Put("/{id}", s.handleUpdateFTElement)
		r.Delete("/{id}", s.handleDeleteFTElement)
	})

	r.Post("/render", s.handleRender)
	r.Post("/embeddingbatch", s.handleReembed)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrInsufficientSamples) {
		return "Insufficient embedding vectors for PCA"
	}
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrElementNotFound,
		domain.ErrScopeNotFound,
		domain.ErrEmbeddingUnavailable,
		domain.ErrFineTunedNotConfigured,
		domain.ErrSummarizerUnavailable,
		domain.ErrBackendUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
