// Package server provides the HTTP API over the question-answering service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/rag"
)

// Server is the HTTP server for the kotae API.
type Server struct {
	rag      *rag.Service
	ingestor *ingest.Ingestor
	jobs     *ingest.JobTracker
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies. The job tracker
// for asynchronous ingest runs lives here; it exists only for the API's
// fire-and-poll contract.
func NewServer(svc *rag.Service, ingestor *ingest.Ingestor, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		rag:      svc,
		ingestor: ingestor,
		jobs:     ingest.NewJobTracker(),
		config:   cfg,
		logger:   logger,
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Duration(s.config.Server.RequestTimeoutSec) * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/query", s.handleQuery)
	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/ingest", s.handleIngest)
	r.Get("/api/v1/ingest/jobs/{id}", s.handleIngestJob)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/api/v1/sources", s.handleSources)
	r.Get("/api/v1/models", s.handleModels)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
