// Package server exposes the palace engine surfaces over HTTP: search,
// score, classify, status, and maintenance. This is the only contract a
// CLI or dashboard may depend on.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lazypower/palace/internal/chambers"
	"github.com/lazypower/palace/internal/doors"
	"github.com/lazypower/palace/internal/gravity"
	"github.com/lazypower/palace/internal/maintain"
	"github.com/lazypower/palace/internal/mirrors"
	"github.com/lazypower/palace/internal/search"
	"github.com/lazypower/palace/internal/store"
)

// Server is the palace HTTP API server.
type Server struct {
	db       *store.DB
	gravity  *gravity.Engine
	chambers *chambers.Engine
	doors    *doors.Engine
	mirrors  *mirrors.Engine
	pipeline *search.Pipeline
	maintain *maintain.Orchestrator
	router   chi.Router
	version  string
	started  time.Time
}

// Engines bundles the constructed engines handed to the server.
type Engines struct {
	Gravity  *gravity.Engine
	Chambers *chambers.Engine
	Doors    *doors.Engine
	Mirrors  *mirrors.Engine
	Pipeline *search.Pipeline
	Maintain *maintain.Orchestrator
}

// New creates a new Server.
func New(db *store.DB, eng Engines, version string) *Server {
	s := &Server{
		db:       db,
		gravity:  eng.Gravity,
		chambers: eng.Chambers,
		doors:    eng.Doors,
		mirrors:  eng.Mirrors,
		pipeline: eng.Pipeline,
		maintain: eng.Maintain,
		version:  version,
		started:  time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/search", s.handleSearch)
		r.Get("/score", s.handleScore)
		r.Get("/classify", s.handleClassify)
		r.Get("/status", s.handleStatus)
		r.Get("/mirrors/{key}", s.handleResolve)
		r.Post("/maintenance/run", s.handleMaintenance)
		r.Post("/boost", s.handleBoost)
		r.Post("/supersede", s.handleSupersede)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
