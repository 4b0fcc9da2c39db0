package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/lazypower/palace/internal/errs"
	"github.com/lazypower/palace/internal/search"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q required")
		return
	}

	opts := search.Options{}
	if n := r.URL.Query().Get("n"); n != "" {
		opts.Limit, _ = strconv.Atoi(n)
	}
	opts.BypassContext = r.URL.Query().Get("bypass") == "true"
	opts.IncludeSuperseded = r.URL.Query().Get("superseded") == "true"
	if chambersParam := r.URL.Query().Get("chambers"); chambersParam != "" {
		opts.Chambers = strings.Split(chambersParam, ",")
	}

	resp, err := s.pipeline.Search(r.Context(), query, opts)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errs.ErrTimeout) || errors.Is(err, errs.ErrUnavailable) {
			status = http.StatusBadGateway
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path required")
		return
	}
	start, _ := strconv.Atoi(r.URL.Query().Get("start"))
	end, _ := strconv.Atoi(r.URL.Query().Get("end"))

	score, err := s.gravity.ScoreFor(path, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	text := r.URL.Query().Get("text")
	switch {
	case path != "":
		writeJSON(w, http.StatusOK, map[string]any{
			"path":    path,
			"chamber": s.chambers.Classify(path),
		})
	case text != "":
		writeJSON(w, http.StatusOK, map[string]any{
			"context_tags": s.doors.ClassifyText(text),
		})
	default:
		writeError(w, http.StatusBadRequest, "path or text required")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	chamberStatus, err := s.chambers.Status()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	mirrorStats, err := s.mirrors.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	accesses, err := s.db.CountAccesses()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"chambers": chamberStatus,
		"mirrors":  mirrorStats,
		"accesses": accesses,
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	resolution, err := s.mirrors.Resolve(key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resolution)
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	report, err := s.maintain.Run(r.Context())
	if err != nil && report == nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// A partial report still goes back to the caller; per-step failures
	// live inside it.
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleBoost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path      string  `json:"path"`
		LineStart int     `json:"line_start"`
		LineEnd   int     `json:"line_end"`
		Amount    float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path required")
		return
	}

	err := s.gravity.Boost(req.Path, req.LineStart, req.LineEnd, req.Amount)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errs.ErrInvalidArgument) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSupersede(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPath string `json:"old_path"`
		NewPath string `json:"new_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.OldPath == "" || req.NewPath == "" {
		writeError(w, http.StatusBadRequest, "old_path and new_path required")
		return
	}

	err := s.gravity.Supersede(req.OldPath, req.NewPath)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errs.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
