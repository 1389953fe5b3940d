package chi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tanagra-labs/querent/internal/domain"
	"github.com/tanagra-labs/querent/internal/livedata"
)

// batchResult reports a bulk fine-tuning insert.
type batchResult struct {
	Success  bool `json:"success"`
	Inserted int  `json:"inserted"`
}

// handleCreateFTElement handles POST /ftelements.
func (s *Server) handleCreateFTElement(w http.ResponseWriter, r *http.Request) {
	var el domain.FineTuningElement
	if err := json.NewDecoder(r.Body).Decode(&el); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	created, err := s.ftelements.Create(r.Context(), el)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleListFTElements handles GET /ftelements with optional scope and
// businessId filters.
func (s *Server) handleListFTElements(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")
	businessID := r.URL.Query().Get("businessId")

	samples, err := s.ftelements.List(r.Context(), scope, businessID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

// handleGetFTElement handles GET /ftelements/{id}.
func (s *Server) handleGetFTElement(w http.ResponseWriter, r *http.Request) {
	el, err := s.ftelements.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, el)
}

// handleUpdateFTElement handles PUT /ftelements/{id}. The body id must match
// the path.
func (s *Server) handleUpdateFTElement(w http.ResponseWriter, r *http.Request) {
	var el domain.FineTuningElement
	if err := json.NewDecoder(r.Body).Decode(&el); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	updated, err := s.ftelements.Update(r.Context(), chi.URLParam(r, "id"), el)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteFTElement handles DELETE /ftelements/{id}.
func (s *Server) handleDeleteFTElement(w http.ResponseWriter, r *http.Request) {
	if err := s.ftelements.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBatchFTElements handles POST /ftelements/batch.
func (s *Server) handleBatchFTElements(w http.ResponseWriter, r *http.Request) {
	var els []domain.FineTuningElement
	if err := json.NewDecoder(r.Body).Decode(&els); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	inserted, err := s.ftelements.CreateBatch(r.Context(), els)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchResult{Success: true, Inserted: inserted})
}

// renderRequest is the POST /render payload: a text template executed against
// an arbitrary JSON document.
type renderRequest struct {
	Template string          `json:"template"`
	Data     json.RawMessage `json:"data"`
}

// handleRender handles POST /render.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Template == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "template is required")
		return
	}

	data := req.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	value, err := livedata.ParseValue(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid data document: "+err.Error())
		return
	}

	output, err := livedata.Render(req.Template, value)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"output": output})
}
