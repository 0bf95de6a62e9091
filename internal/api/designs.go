package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-sfc/internal/broadcast"
	"github.com/nerrad567/gray-logic-sfc/internal/design"
	"github.com/nerrad567/gray-logic-sfc/internal/sfc"
)

// runControlTimeout bounds waiting for a previous run's teardown when a
// design is executed, cancelled or deleted.
const runControlTimeout = 30 * time.Second

// handleListDesigns returns design metadata, most recently updated first.
func (s *Server) handleListDesigns(w http.ResponseWriter, r *http.Request) {
	designs, err := s.designs.List(r.Context())
	if err != nil {
		s.writeDomainError(w, err, "failed to list designs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"designs": designs, "count": len(designs)})
}

// handleCreateDesign creates a design, optionally with chart data.
func (s *Server) handleCreateDesign(w http.ResponseWriter, r *http.Request) {
	var d design.Design
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	d.ID = "" // ids are always generated

	if err := s.designs.Create(r.Context(), &d); err != nil {
		s.writeDomainError(w, err, "failed to create design")
		return
	}
	s.logger.Info("design created", "design_id", d.ID, "name", d.Name)
	writeJSON(w, http.StatusCreated, d)
}

// handleGetDesign returns a design with its chart data.
func (s *Server) handleGetDesign(w http.ResponseWriter, r *http.Request) {
	d, err := s.designs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err, "failed to get design")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// updateDesignRequest is the body of PUT /designs/{id}.
type updateDesignRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// handleUpdateDesign changes a design's name and description.
func (s *Server) handleUpdateDesign(w http.ResponseWriter, r *http.Request) {
	var req updateDesignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	d, err := s.designs.UpdateMeta(r.Context(), chi.URLParam(r, "id"), req.Name, req.Description)
	if err != nil {
		s.writeDomainError(w, err, "failed to update design")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// saveChartRequest is the body of PUT /designs/{id}/chart.
type saveChartRequest struct {
	Nodes    json.RawMessage `json:"nodes"`
	Edges    json.RawMessage `json:"edges"`
	Viewport json.RawMessage `json:"viewport"`
}

// handleSaveChart replaces a design's nodes, edges and viewport.
// A live run keeps executing the chart it was started with.
func (s *Server) handleSaveChart(w http.ResponseWriter, r *http.Request) {
	var req saveChartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.designs.SaveChart(r.Context(), id, req.Nodes, req.Edges, req.Viewport); err != nil {
		s.writeDomainError(w, err, "failed to save chart")
		return
	}
	d, err := s.designs.Get(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err, "failed to get design")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleDeleteDesign cancels the design's live run, if any, and deletes it.
// Recorded runs of the design are kept.
func (s *Server) handleDeleteDesign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), runControlTimeout)
	defer cancel()
	if err := s.manager.CancelRun(ctx, id); err != nil && !errors.Is(err, sfc.ErrNoActiveRun) {
		s.writeDomainError(w, err, "failed to cancel run")
		return
	}

	if err := s.designs.Delete(r.Context(), id); err != nil {
		s.writeDomainError(w, err, "failed to delete design")
		return
	}
	s.logger.Info("design deleted", "design_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleExecute starts a run of the design's chart, replacing a live one.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), runControlTimeout)
	defer cancel()
	runID, err := s.manager.StartRun(ctx, id)
	if err != nil {
		s.writeDomainError(w, err, "failed to start run")
		return
	}

	resp := map[string]any{"run_id": runID, "design_id": id}
	if info, ok := s.manager.Active(id); ok && info.RunID == runID {
		resp["recording"] = info.Recording
		resp["started_at"] = info.StartedAt
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// handleCancel cancels the design's live run and waits for its teardown.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), runControlTimeout)
	defer cancel()
	if err := s.manager.CancelRun(ctx, id); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusGatewayTimeout, ErrCodeUnavailable, "run did not stop in time")
			return
		}
		s.writeDomainError(w, err, "failed to cancel run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"design_id": id, "status": broadcast.StatusCancelled})
}

// designStatus is the response of GET /designs/{id}/status.
type designStatus struct {
	broadcast.Snapshot
	Active bool         `json:"active"`
	Run    *sfc.RunInfo `json:"run,omitempty"`
}

// handleDesignStatus returns the latest per-node status of the design's
// most recent run, plus progress when a run is live.
func (s *Server) handleDesignStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snap, ok := s.manager.Status(id)
	if !ok {
		if _, err := s.designs.Get(r.Context(), id); err != nil {
			s.writeDomainError(w, err, "failed to get design")
			return
		}
		writeNotFound(w, "design has not been executed")
		return
	}

	resp := designStatus{Snapshot: snap}
	if info, live := s.manager.Active(id); live {
		resp.Active = true
		resp.Run = &info
	}
	writeJSON(w, http.StatusOK, resp)
}
