package server

import (
	"net/http"
	"strings"

	"github.com/manifeed/manifeed/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("/health/", s.handleHealthRoutes)

	// RSS catalog: feed listing, toggles, sync, check, icons
	mux.HandleFunc("/rss/", s.handleRSSRoutes)

	// Persisted articles
	mux.HandleFunc("/sources/", s.handleSourcesRoutes)

	// Scrape jobs
	mux.HandleFunc("/jobs/", s.handleJobsRoutes)

	// Internal worker API
	mux.HandleFunc("/internal/workers/token", s.app.WorkersHandler.TokenHandler)

	// 404 handler for everything else
	mux.HandleFunc("/", s.notFoundHandler)

	return mux
}

// handleHealthRoutes routes /health/ requests
func (s *Server) handleHealthRoutes(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/health/" {
		s.notFoundHandler(w, r)
		return
	}
	s.app.HealthHandler.GetHealthHandler(w, r)
}

// handleRSSRoutes routes catalog requests to the appropriate handler
func (s *Server) handleRSSRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// GET /rss/
	if path == "/rss/" {
		s.app.RSSHandler.ListFeedsHandler(w, r)
		return
	}

	// GET /rss/img/{path}
	if strings.HasPrefix(path, "/rss/img/") {
		s.app.RSSHandler.IconHandler(w, r)
		return
	}

	// POST /rss/sync
	if path == "/rss/sync" {
		s.app.RSSHandler.SyncHandler(w, r)
		return
	}

	// POST /rss/feeds/check and /rss/feeds/validate
	if path == "/rss/feeds/check" {
		s.app.RSSHandler.CheckFeedsHandler(w, r)
		return
	}
	if path == "/rss/feeds/validate" {
		s.app.RSSHandler.ValidateFeedsHandler(w, r)
		return
	}

	// PATCH /rss/feeds/{id}/enabled
	if strings.HasPrefix(path, "/rss/feeds/") && strings.HasSuffix(path, "/enabled") {
		s.app.RSSHandler.ToggleFeedHandler(w, r)
		return
	}

	// PATCH /rss/companies/{id}/enabled
	if strings.HasPrefix(path, "/rss/companies/") && strings.HasSuffix(path, "/enabled") {
		s.app.RSSHandler.ToggleCompanyHandler(w, r)
		return
	}

	s.notFoundHandler(w, r)
}

// handleSourcesRoutes routes article requests to the appropriate handler
func (s *Server) handleSourcesRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// GET /sources/
	if path == "/sources/" {
		s.app.SourcesHandler.ListSourcesHandler(w, r)
		return
	}

	// POST /sources/ingest
	if path == "/sources/ingest" {
		s.app.SourcesHandler.IngestHandler(w, r)
		return
	}

	// POST /sources/partitions/maintenance
	if path == "/sources/partitions/maintenance" {
		s.app.SourcesHandler.MaintenanceHandler(w, r)
		return
	}

	// GET /sources/feeds/{feed_id}
	if strings.HasPrefix(path, "/sources/feeds/") {
		s.app.SourcesHandler.ListSourcesByFeedHandler(w, r)
		return
	}

	// GET /sources/companies/{company_id}
	if strings.HasPrefix(path, "/sources/companies/") {
		s.app.SourcesHandler.ListSourcesByCompanyHandler(w, r)
		return
	}

	// GET /sources/{id}
	s.app.SourcesHandler.GetSourceHandler(w, r)
}

// handleJobsRoutes routes job status requests to the appropriate handler
func (s *Server) handleJobsRoutes(w http.ResponseWriter, r *http.Request) {
	pathSuffix := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if pathSuffix == "" {
		s.notFoundHandler(w, r)
		return
	}

	// GET /jobs/{job_id}/feeds
	if strings.HasSuffix(pathSuffix, "/feeds") {
		s.app.JobsHandler.GetJobFeedsHandler(w, r)
		return
	}

	// GET /jobs/{job_id}
	s.app.JobsHandler.GetJobHandler(w, r)
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	handlers.WriteMessage(w, http.StatusNotFound, "Not found")
}
