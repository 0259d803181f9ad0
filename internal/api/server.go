// Package api exposes the HTTP interface for the leadscout service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/config"
	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/metrics"
	"github.com/JakeFAU/leadscout/internal/store"
)

const maxBodyBytes = 1 << 20

// Enqueuer accepts discovery jobs for the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, item lead.QueueItem) error
}

// Deps are the collaborators the handlers need.
type Deps struct {
	Jobs     lead.JobStore
	Leads    lead.LeadStore
	Queue    Enqueuer
	Analyzer lead.Analyzer
	IDs      lead.IDGenerator
	Clock    lead.Clock
	// Progress is optional; the /api/jobs routes answer 503 without it.
	Progress store.ProgressRepository
	// Sources lists the enabled search provider names.
	Sources []string
	// Ready reports downstream health for /readyz; nil means always ready.
	Ready func(ctx context.Context) error
}

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router   chi.Router
	deps     Deps
	cfg      config.Config
	logger   *zap.Logger
	progress *ProgressHandler
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:     deps,
		cfg:      cfg,
		logger:   logger,
		progress: NewProgressHandler(deps.Progress, logger.Named("progress")),
	}

	timeout := time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(timeout))
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}

		r.Route("/v1", func(r chi.Router) {
			r.Post("/analyze", s.analyzeURL)

			r.Route("/discovery", func(r chi.Router) {
				r.With(ownerMiddleware).Post("/", s.submitDiscovery)
				r.With(ownerMiddleware).Post("/saved", s.submitSavedDiscovery)
				r.Route("/{job_id}", func(r chi.Router) {
					r.Get("/status", s.getJobStatus)
					r.Get("/result", s.getJobResult)
					r.Post("/cancel", s.cancelJob)
				})
			})

			r.Route("/leads", func(r chi.Router) {
				r.Use(ownerMiddleware)
				r.Post("/", s.createLead)
				r.Get("/", s.listLeads)
				r.Route("/{lead_id}", func(r chi.Router) {
					r.Get("/", s.getLead)
					r.Patch("/", s.updateLead)
					r.Delete("/", s.deleteLead)
					r.Post("/stage", s.moveLeadStage)
					r.Post("/analyze", s.analyzeLead)
				})
			})

			r.With(ownerMiddleware).Get("/pipeline/summary", s.pipelineSummary)
		})

		r.Route("/api/jobs", func(r chi.Router) {
			r.Get("/", s.progress.ListJobs)
			r.Get("/{job_id}", s.progress.GetJob)
			r.Get("/{job_id}/sources", s.progress.ListJobSources)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeStoreError maps store sentinels onto HTTP statuses and logs anything
// unexpected.
func (s *Server) writeStoreError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, lead.ErrNotFound), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, lead.ErrInvalidStage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, lead.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		s.logger.Error("store call failed", zap.String("resource", what), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load %s", what))
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
