package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-sfc/internal/catalog"
)

// handleGetServer returns the automation server configuration.
func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.catalog.GetServerConfig(r.Context())
	if err != nil {
		if errors.Is(err, catalog.ErrNoServerConfig) {
			writeNotFound(w, "no automation server configured")
			return
		}
		s.writeDomainError(w, err, "failed to get server config")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handlePutServer saves the automation server configuration.
func (s *Server) handlePutServer(w http.ResponseWriter, r *http.Request) {
	var cfg catalog.ServerConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	saved, err := s.catalog.SaveServerConfig(r.Context(), cfg)
	if err != nil {
		s.writeDomainError(w, err, "failed to save server config")
		return
	}
	s.logger.Info("automation server configured", "url", saved.URL, "prefix", saved.Prefix)
	writeJSON(w, http.StatusOK, saved)
}

// handleListVariables returns the whole variable catalog.
func (s *Server) handleListVariables(w http.ResponseWriter, r *http.Request) {
	vars, err := s.catalog.ListVariables(r.Context())
	if err != nil {
		s.writeDomainError(w, err, "failed to list variables")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"variables": vars, "count": len(vars)})
}

// replaceVariablesRequest is the body of PUT /variables.
type replaceVariablesRequest struct {
	Variables []catalog.Variable `json:"variables"`
}

// handleReplaceVariables replaces the variable catalog with a fresh browse
// result. Cached short names are dropped.
func (s *Server) handleReplaceVariables(w http.ResponseWriter, r *http.Request) {
	var req replaceVariablesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	n, err := s.catalog.ReplaceVariables(r.Context(), req.Variables)
	if err != nil {
		s.writeDomainError(w, err, "failed to replace variables")
		return
	}
	if s.names != nil {
		s.names.Flush()
	}
	s.logger.Info("variable catalog replaced", "count", n)
	writeJSON(w, http.StatusOK, map[string]any{"count": n})
}

// handleSearchVariables searches the catalog by id or browse name.
//
// Query parameters:
//   - q: substring to match
//   - limit: maximum results (default 50)
func (s *Server) handleSearchVariables(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	vars, err := s.catalog.SearchVariables(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.writeDomainError(w, err, "failed to search variables")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"variables": vars, "count": len(vars)})
}

// handleGetTracking returns the variables recorded during runs.
func (s *Server) handleGetTracking(w http.ResponseWriter, r *http.Request) {
	sel, err := s.catalog.GetTracking(r.Context())
	if err != nil {
		s.writeDomainError(w, err, "failed to get tracking config")
		return
	}
	writeJSON(w, http.StatusOK, sel)
}

// handlePutTracking replaces the tracking selection.
func (s *Server) handlePutTracking(w http.ResponseWriter, r *http.Request) {
	var sel catalog.Selection
	if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	saved, err := s.catalog.SaveTracking(r.Context(), sel)
	if err != nil {
		s.writeDomainError(w, err, "failed to save tracking config")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// handleTrackedVariables returns the tracked variables with their declared types.
func (s *Server) handleTrackedVariables(w http.ResponseWriter, r *http.Request) {
	vars, err := s.catalog.TrackedVariables(r.Context())
	if err != nil {
		s.writeDomainError(w, err, "failed to list tracked variables")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"variables": vars, "count": len(vars)})
}

// handleGetSelection returns the designer's variable selection.
func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	sel, err := s.catalog.GetSelection(r.Context())
	if err != nil {
		s.writeDomainError(w, err, "failed to get selection")
		return
	}
	writeJSON(w, http.StatusOK, sel)
}

// handlePutSelection replaces the designer's variable selection.
func (s *Server) handlePutSelection(w http.ResponseWriter, r *http.Request) {
	var sel catalog.Selection
	if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	saved, err := s.catalog.SaveSelection(r.Context(), sel)
	if err != nil {
		s.writeDomainError(w, err, "failed to save selection")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// queryInt parses an optional non-negative integer query parameter.
// Absent means 0. On a bad value it writes a 400 and returns false.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeBadRequest(w, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
