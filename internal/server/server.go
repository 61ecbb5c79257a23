// Package server exposes recipe building, storage and replay over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwbudde/lensrecipe/internal/pipeline"
	"github.com/cwbudde/lensrecipe/internal/store"
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	recipes    *store.FSStore
	addr       string
	server     *http.Server
}

// NewServer creates a new HTTP server backed by recipes
func NewServer(addr string, recipes *store.FSStore) *Server {
	s := &Server{
		jobManager: NewJobManager(),
		recipes:    recipes,
		addr:       addr,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed API with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/recipes", s.handleRecipes)
	mux.HandleFunc("/api/v1/recipes/", s.handleRecipesWithID)
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("Starting HTTP server", "addr", s.addr, "data_dir", s.recipes.BaseDir())
	return s.server.ListenAndServe()
}

// Shutdown stops running jobs and gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server", "running_jobs", len(s.jobManager.GetRunningJobs()))
	s.jobManager.CancelAll()
	return s.server.Shutdown(ctx)
}

// handleRecipes handles /api/v1/recipes
func (s *Server) handleRecipes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateRecipe(w, r)
	case http.MethodGet:
		s.handleListRecipes(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRecipesWithID handles /api/v1/recipes/:id/*
func (s *Server) handleRecipesWithID(w http.ResponseWriter, r *http.Request) {
	id, sub, ok := splitID(r.URL.Path, "/api/v1/recipes/")
	if !ok {
		http.Error(w, "Recipe ID required", http.StatusBadRequest)
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		s.handleGetRecipe(w, r, id)
	case sub == "" && r.Method == http.MethodDelete:
		s.handleDeleteRecipe(w, r, id)
	case sub == "trace" && r.Method == http.MethodGet:
		s.handleGetTrace(w, r, id)
	case sub == "replay" && r.Method == http.MethodPost:
		s.handleReplay(w, r, id)
	case sub == "" || sub == "trace" || sub == "replay":
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	id, sub, ok := splitID(r.URL.Path, "/api/v1/jobs/")
	if !ok {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	switch {
	case (sub == "" || sub == "status") && r.Method == http.MethodGet:
		s.handleGetJob(w, r, id)
	case sub == "" && r.Method == http.MethodDelete:
		s.handleCancelJob(w, r, id)
	case sub == "stream" && r.Method == http.MethodGet:
		s.handleJobStream(w, r, id)
	case sub == "" || sub == "status" || sub == "stream":
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateRecipe handles POST /api/v1/recipes
func (s *Server) handleCreateRecipe(w http.ResponseWriter, r *http.Request) {
	var req pipeline.BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	if req.SettingsPath == "" {
		http.Error(w, "settingsPath is required", http.StatusBadRequest)
		return
	}

	rec, err := pipeline.Build(r.Context(), req)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to build recipe: %v", err), http.StatusUnprocessableEntity)
		return
	}
	if err := s.recipes.SaveRecipe(rec); err != nil {
		http.Error(w, fmt.Sprintf("Failed to save recipe: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// handleListRecipes handles GET /api/v1/recipes
func (s *Server) handleListRecipes(w http.ResponseWriter, r *http.Request) {
	infos, err := s.recipes.ListRecipes()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list recipes: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleGetRecipe handles GET /api/v1/recipes/:id
func (s *Server) handleGetRecipe(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := s.recipes.LoadRecipe(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteRecipe handles DELETE /api/v1/recipes/:id
func (s *Server) handleDeleteRecipe(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.recipes.DeleteRecipe(id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetTrace handles GET /api/v1/recipes/:id/trace
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request, id string) {
	reader, err := store.NewTraceReader(s.recipes.BaseDir(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read trace: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleReplay handles POST /api/v1/recipes/:id/replay. The body is
// optional.
func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request, id string) {
	var config ReplayConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	config.RecipeID = id

	if _, err := s.recipes.LoadRecipe(id); err != nil {
		writeStoreError(w, err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := s.jobManager.CreateJob(config, cancel)

	go func() {
		defer cancel()
		if err := runReplay(ctx, s.jobManager, s.recipes, job.ID); err != nil {
			slog.Debug("Replay job ended with error", "job_id", job.ID, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, job)
}

// handleGetJob handles GET /api/v1/jobs/:id
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request, id string) {
	job, exists := s.jobManager.GetJob(id)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	writeJSON(w, http.StatusOK, struct {
		Job
		Elapsed float64 `json:"elapsed"`
	}{job, elapsed.Seconds()})
}

// handleCancelJob handles DELETE /api/v1/jobs/:id
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, id string) {
	err := s.jobManager.CancelJob(id)
	switch {
	case errors.Is(err, ErrJobFinished):
		http.Error(w, err.Error(), http.StatusConflict)
	case err != nil:
		http.Error(w, "Job not found", http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusAccepted)
	}
}

// splitID parses "<prefix><id>[/<sub>]".
func splitID(path, prefix string) (id, sub string, ok bool) {
	parts := strings.SplitN(strings.TrimPrefix(path, prefix), "/", 2)
	if parts[0] == "" {
		return "", "", false
	}
	if len(parts) == 2 {
		sub = parts[1]
	}
	return parts[0], sub, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
