// Package api exposes the HTTP management API: launching outreach batches,
// managing sender identities and querying the send log.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mailflock/mailflock/internal/batch"
	"github.com/mailflock/mailflock/internal/config"
	"github.com/mailflock/mailflock/internal/metrics"
	"github.com/mailflock/mailflock/internal/sender"
	"github.com/mailflock/mailflock/internal/sendlog"
)

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	jobs       *batch.JobManager
	senders    *sender.Store
	sendlog    *sendlog.Repository
	config     *config.APIConfig
	logger     *slog.Logger
	startTime  time.Time
	version    string
}

// NewServer creates a new API server
func NewServer(jobs *batch.JobManager, senders *sender.Store, log *sendlog.Repository, cfg *config.APIConfig, version string, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		jobs:      jobs,
		senders:   senders,
		sendlog:   log,
		config:    cfg,
		logger:    logger,
		startTime: time.Now(),
		version:   version,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(metrics.HTTPMiddleware)
	s.router.Use(middleware.Recoverer)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/batches", s.handleCreateBatch)
		r.Get("/batches", s.handleListBatches)
		r.Get("/batches/{id}", s.handleGetBatch)

		r.Get("/senders", s.handleListSenders)
		r.Post("/senders", s.handleCreateSender)
		r.Get("/senders/{id}", s.handleGetSender)
		r.Patch("/senders/{id}", s.handleUpdateSender)
		r.Delete("/senders/{id}", s.handleDeleteSender)
		r.Post("/senders/{id}/reset", s.handleResetSender)

		r.Get("/logs", s.handleListLogs)
		r.Get("/logs/stats", s.handleLogStats)
	})
}

// Handler returns the configured router. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
