package chi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tanagra-labs/querent/internal/domain"
)

// handleCreateElement handles POST /elements.
func (s *Server) handleCreateElement(w http.ResponseWriter, r *http.Request) {
	var el domain.Element
	if err := json.NewDecoder(r.Body).Decode(&el); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	created, err := s.elements.Create(r.Context(), el)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleGetElement handles GET /elements/{id}.
func (s *Server) handleGetElement(w http.ResponseWriter, r *http.Request) {
	el, err := s.elements.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, el)
}

// handleListElements handles GET /elements with optional scope and
// businessId filters.
func (s *Server) handleListElements(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")
	businessID := r.URL.Query().Get("businessId")

	elements, err := s.elements.List(r.Context(), scope, businessID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, elements)
}

// handleUpdateElement handles PUT /elements/{id}.
func (s *Server) handleUpdateElement(w http.ResponseWriter, r *http.Request) {
	var el domain.Element
	if err := json.NewDecoder(r.Body).Decode(&el); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	el.ID = chi.URLParam(r, "id")

	updated, err := s.elements.Update(r.Context(), el)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteElement handles DELETE /elements/{id}.
func (s *Server) handleDeleteElement(w http.ResponseWriter, r *http.Request) {
	if err := s.elements.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReembed handles POST /embeddingbatch. The type query parameter picks
// the embedding mode, defaulting to standard.
func (s *Server) handleReembed(w http.ResponseWriter, r *http.Request) {
	mode, err := domain.ParseMode(r.URL.Query().Get("type"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	report, err := s.batch.Reembed(r.Context(), mode)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
