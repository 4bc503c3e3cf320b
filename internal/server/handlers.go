package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// searchPreviewChars bounds fragment content in search responses.
const searchPreviewChars = 300

type queryRequest struct {
	Question string `json:"question"`
	K        int    `json:"k,omitempty"`
}

type searchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

type searchResult struct {
	SourceID   string  `json:"source_id"`
	ChunkIndex int     `json:"chunk_index"`
	ChunkCount int     `json:"chunk_count"`
	Similarity float64 `json:"similarity"`
	Rank       int     `json:"rank"`
	Content    string  `json:"content"`
}

type ingestRequest struct {
	Directory     string `json:"directory,omitempty"`
	ClearExisting bool   `json:"clear_existing,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("query request", zap.String("question", req.Question), zap.Int("k", req.K))

	answer, err := s.rag.AnswerQuestion(r.Context(), req.Question, req.K)
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("query failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, answer)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("k", req.K))

	results, err := s.rag.Search(r.Context(), req.Query, req.K)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]searchResult, len(results))
	for i, res := range results {
		out[i] = searchResult{
			SourceID:   res.Fragment.SourceID,
			ChunkIndex: res.Fragment.ChunkIndex,
			ChunkCount: res.Fragment.ChunkCount,
			Similarity: res.Similarity,
			Rank:       res.Rank,
			Content:    utils.Truncate(res.Fragment.Content, searchPreviewChars),
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":   req.Query,
		"results": out,
		"total":   len(out),
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dir := req.Directory
	if dir == "" {
		dir = s.config.Ingest.Directory
	}
	if dir == "" {
		s.respondError(w, http.StatusBadRequest, "directory is required")
		return
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}

	job := s.jobs.Start(dir)
	s.logger.Info("ingest job started",
		zap.String("job_id", job.ID),
		zap.String("dir", dir),
		zap.Bool("clear_existing", req.ClearExisting))

	// The job outlives this request; it must not inherit its context.
	go func() {
		n, err := s.ingestor.IngestDirectory(context.Background(), dir, req.ClearExisting)
		if err != nil {
			s.logger.Error("ingest job failed", zap.String("job_id", job.ID), zap.Error(err))
			s.jobs.Fail(job.ID, err)
			return
		}
		s.logger.Info("ingest job completed",
			zap.String("job_id", job.ID),
			zap.Int("fragments", n))
		s.jobs.Complete(job.ID, n)
	}()

	s.respondJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleIngestJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := s.jobs.Get(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	s.respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.rag.Status(r.Context()))
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources := s.rag.Sources()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sources": sources,
		"total":   len(sources),
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	status := s.rag.Status(r.Context())
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"models": status.Backend.AvailableModels,
		"active": status.Backend.ActiveModel,
		"state":  status.Backend.State,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
