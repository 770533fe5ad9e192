// Package httpapi exposes the ingestion pipeline over HTTP: job submission,
// status polling, health and Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"media-ingest/internal/model"
	"media-ingest/internal/pipeline"
)

// Queue is the surface both pipeline queues expose to the API.
type Queue interface {
	Enqueue(ctx context.Context, source, owner string) (string, error)
	Status(ctx context.Context, id string) (model.Record, error)
}

// Server wires the two queues into an http.Server with graceful shutdown.
type Server struct {
	httpServer *http.Server
	transcode  Queue
	acquire    Queue
	logger     *slog.Logger
}

// New builds the server. acquire may be nil when torrent intake is disabled;
// the acquisition routes then answer 503.
func New(addr string, transcode, acquire Queue, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		transcode: transcode,
		acquire:   acquire,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(requestLogger(logger))
	r.Use(metricsMiddleware())

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/jobs", s.handleCreateJob)
		r.Post("/acquisitions", s.handleCreateAcquisition)
		r.Get("/jobs/{jobID}", s.handleJobStatus)
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Run serves until SIGINT/SIGTERM or a listener error, then drains
// in-flight requests.
func (s *Server) Run() error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

type createJobRequest struct {
	SourcePath string `json:"source_path"`
	SourceRef  string `json:"source_ref"`
	Owner      string `json:"owner"`
}

type createJobResponse struct {
	JobID string `json:"job_id"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.SourcePath == "" {
		writeError(w, http.StatusBadRequest, "source_path is required")
		return
	}
	id, err := s.transcode.Enqueue(r.Context(), req.SourcePath, req.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, createJobResponse{JobID: id})
}

func (s *Server) handleCreateAcquisition(w http.ResponseWriter, r *http.Request) {
	if s.acquire == nil {
		writeError(w, http.StatusServiceUnavailable, "torrent intake is disabled")
		return
	}
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.SourceRef == "" {
		writeError(w, http.StatusBadRequest, "source_ref is required")
		return
	}
	id, err := s.acquire.Enqueue(r.Context(), req.SourceRef, req.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, createJobResponse{JobID: id})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")

	rec, err := s.transcode.Status(r.Context(), id)
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
		return
	case err != nil:
		s.logger.Error("job status lookup", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "status lookup failed")
		return
	}

	// Acquisition jobs get the composed view that folds in their child.
	if rec.Kind == model.KindAcquisition && s.acquire != nil {
		rec, err = s.acquire.Status(r.Context(), id)
		if err != nil {
			s.logger.Error("acquisition status lookup", "job_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "status lookup failed")
			return
		}
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
