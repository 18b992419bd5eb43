package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/xbrowse/internal/model"
	"github.com/seantiz/xbrowse/internal/orchestrator"
	"github.com/seantiz/xbrowse/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
)

// listRunsResponse wraps the paginated list response.
type listRunsResponse struct {
	Runs   []*model.Run `json:"runs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// runDetail is the JSON response for GET /v1/runs/{id}.
type runDetail struct {
	model.Run
	Results     []model.Outcome `json:"results"`
	Diagnostics []string        `json:"diagnostics,omitempty"`
	ResultsDir  string          `json:"results_dir,omitempty"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.Request
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Concurrency < 0 {
		s.writeError(w, http.StatusBadRequest, "concurrency must not be negative")
		return
	}

	run, err := s.orch.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if run, agg, err := s.orch.Run(id); err == nil {
		outcomes := agg.Outcomes()
		if outcomes == nil {
			outcomes = []model.Outcome{}
		}
		s.writeJSON(w, http.StatusOK, runDetail{
			Run:         run,
			Results:     outcomes,
			Diagnostics: agg.Diagnostics(),
			ResultsDir:  s.orch.ResultsDir(id),
		})
		return
	}

	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run", "run_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	outcomes, err := s.store.GetOutcomes(r.Context(), id)
	if err != nil {
		s.logger.Error("get outcomes", "run_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get outcomes")
		return
	}
	if outcomes == nil {
		outcomes = []model.Outcome{}
	}

	s.writeJSON(w, http.StatusOK, runDetail{Run: *run, Results: outcomes})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	runs, total, err := s.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	if runs == nil {
		runs = []*model.Run{}
	}

	s.writeJSON(w, http.StatusOK, listRunsResponse{
		Runs:   runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.orch.Cancel(id); err != nil {
		if errors.Is(err, orchestrator.ErrRunFinished) {
			s.writeError(w, http.StatusConflict, "run is not active")
			return
		}
		if !errors.Is(err, orchestrator.ErrUnknownRun) {
			s.logger.Error("cancel run", "run_id", id, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to cancel run")
			return
		}
		if _, err := s.store.GetRun(r.Context(), id); err == nil {
			s.writeError(w, http.StatusConflict, "run is not active")
			return
		}
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}

	run, _, err := s.orch.Run(id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusAccepted, run)
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
