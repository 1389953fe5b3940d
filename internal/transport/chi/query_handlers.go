package chi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tanagra-labs/querent/internal/domain"
)

// handleSearch handles POST /query/search. A negative query or the
// group-by-externalId flag switches to the collapsed branch.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req domain.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.QueryNegative != "" || req.GroupByExternalID {
		results, err := s.query.SearchCollapsed(r.Context(), req)
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, results)
		return
	}

	results, err := s.query.Search(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// handleDeepSearch handles POST /query/deepsearch. The response is one JSON
// array written incrementally; once the opening bracket is out the status is
// fixed, so pre-flight failures must surface before any body bytes.
func (s *Server) handleDeepSearch(w http.ResponseWriter, r *http.Request) {
	var req domain.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	ch, err := s.query.DeepSearch(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	if _, err := io.WriteString(w, "["); err != nil {
		return
	}

	first := true
	for res := range ch {
		payload, err := json.Marshal(res)
		if err != nil {
			s.logger.Error("marshal deep result", zap.Error(err))
			continue
		}
		if !first {
			if _, err := io.WriteString(w, ","); err != nil {
				return
			}
		}
		first = false
		if _, err := w.Write(payload); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	_, _ = io.WriteString(w, "]")
	if flusher != nil {
		flusher.Flush()
	}
}

// handleDeepsense handles POST /query/deepsense.
func (s *Server) handleDeepsense(w http.ResponseWriter, r *http.Request) {
	var req domain.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	results, err := s.query.Deepsense(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// handleSearchAggregate handles POST /query/searchaggregate.
func (s *Server) handleSearchAggregate(w http.ResponseWriter, r *http.Request) {
	var req domain.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	groups, err := s.query.Aggregate(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// handleSearchImage handles POST /query/searchimage (multipart: an "image"
// file plus businessId, userId and an optional scope field).
func (s *Server) handleSearchImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "image file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "could not read image: "+err.Error())
		return
	}

	scope := r.FormValue("scope")
	businessID := r.FormValue("businessId")
	userID := r.FormValue("userId")
	if businessID == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "businessId is required")
		return
	}
	if userID == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "userId is required")
		return
	}

	results, err := s.query.SearchImage(r.Context(), data, scope, businessID, userID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// handleQueryElement handles GET /query/element/{id} with businessId and
// userId query parameters driving enrichment auth. All three identifiers are
// required.
func (s *Server) handleQueryElement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	businessID := r.URL.Query().Get("businessId")
	userID := r.URL.Query().Get("userId")
	if id == "" || businessID == "" || userID == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "id, businessId and userId are required")
		return
	}

	result, err := s.query.GetElement(r.Context(), id, businessID, userID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
