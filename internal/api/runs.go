package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-sfc/internal/recording"
)

// handleListRuns returns recorded runs, newest first.
//
// Query parameters:
//   - limit: maximum runs (default all)
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeDomainError(w, err, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// handleGetRun returns one recorded run.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.writeDomainError(w, err, "failed to get run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleRunSamples returns a run's samples in time order.
//
// Query parameters:
//   - variables: comma-separated variable ids (default all)
//   - limit: maximum samples (default all)
func (s *Server) handleRunSamples(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	variables := splitList(r.URL.Query().Get("variables"))

	if _, err := s.runs.GetRun(r.Context(), runID); err != nil {
		s.writeDomainError(w, err, "failed to get run")
		return
	}
	samples, err := s.runs.Samples(r.Context(), runID, variables, limit)
	if err != nil {
		s.writeDomainError(w, err, "failed to list samples")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "samples": samples, "count": len(samples)})
}

// handleDeleteRun deletes a finished run and its samples. A run that is
// still recording cannot be deleted.
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		s.writeDomainError(w, err, "failed to get run")
		return
	}
	if run.Status == recording.RunRunning {
		writeConflict(w, "run is still recording")
		return
	}

	if err := s.runs.DeleteRun(r.Context(), runID); err != nil {
		s.writeDomainError(w, err, "failed to delete run")
		return
	}
	s.logger.Info("run deleted", "run_id", runID)
	w.WriteHeader(http.StatusNoContent)
}

// splitList splits a comma-separated query value, dropping empty items.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
