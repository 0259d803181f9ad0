package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/discovery"
	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/report"
)

const enqueueTimeout = 5 * time.Second

var errEnqueue = errors.New("enqueue discovery job")

type discoveryRequest struct {
	Query           string            `json:"query"`
	Location        string            `json:"location"`
	MaxResults      *int              `json:"max_results"`
	Sources         []string          `json:"sources"`
	Analyze         *bool             `json:"analyze"`
	HeadlessAllowed *bool             `json:"headless_allowed"`
	RespectRobots   *bool             `json:"respect_robots"`
	EstimatedValue  int64             `json:"estimated_value"`
	Tags            map[string]string `json:"tags"`
}

type savedDiscoveryRequest struct {
	Name string `json:"name"`
}

func (s *Server) submitDiscovery(w http.ResponseWriter, r *http.Request) {
	var req discoveryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	params, err := s.toDiscoveryParams(ownerFrom(r.Context()), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.enqueueAndRespond(w, r, params)
}

func (s *Server) submitSavedDiscovery(w http.ResponseWriter, r *http.Request) {
	var req savedDiscoveryRequest
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "missing saved search name")
		return
	}
	template, ok := s.cfg.SavedSearches[strings.ToLower(req.Name)]
	if !ok {
		writeError(w, http.StatusNotFound, "saved search not found")
		return
	}
	params := cloneParams(template)
	params.OwnerID = ownerFrom(r.Context())
	params = s.cfg.ApplyDiscoveryDefaults(params)
	if err := s.validateSources(params.Sources); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.enqueueAndRespond(w, r, params)
}

func (s *Server) enqueueAndRespond(w http.ResponseWriter, r *http.Request, params lead.DiscoveryParams) {
	jobID, err := s.enqueueJob(r.Context(), params)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
	case errors.Is(err, lead.ErrQueueFull), errors.Is(err, lead.ErrQueueClosed):
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "discovery queue is full")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, err.Error())
	default:
		s.logger.Error("submit discovery failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to submit discovery job")
	}
}

func (s *Server) enqueueJob(ctx context.Context, params lead.DiscoveryParams) (string, error) {
	jobID, err := s.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	now := s.deps.Clock.Now()
	job := lead.Job{
		ID:         jobID,
		Status:     lead.JobStatusQueued,
		Submitted:  now,
		Parameters: params,
	}
	if err := s.deps.Jobs.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	item := lead.QueueItem{
		JobID:     jobID,
		Params:    params,
		Attempt:   1,
		Submitted: now.Unix(),
	}
	if err := s.deps.Queue.Enqueue(queueCtx, item); err != nil {
		// The job row exists; close it out so it does not linger as queued.
		if uerr := s.deps.Jobs.UpdateJobStatus(
			context.WithoutCancel(ctx), jobID, lead.JobStatusFailed, "enqueue failed: "+err.Error(), lead.JobCounters{},
		); uerr != nil {
			s.logger.Warn("mark unqueued job failed", zap.String("job_id", jobID), zap.Error(uerr))
		}
		return "", fmt.Errorf("%w: %w", errEnqueue, err)
	}
	s.logger.Info("discovery job queued",
		zap.String("job_id", jobID),
		zap.String("owner_id", params.OwnerID),
		zap.String("query", params.Query),
	)
	return jobID, nil
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Jobs.GetJob(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		s.writeStoreError(w, err, "job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) getJobResult(w http.ResponseWriter, r *http.Request) {
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := discovery.LoadResult(r.Context(), s.deps.Jobs, s.deps.Leads, chi.URLParam(r, "job_id"))
	if err != nil {
		s.writeStoreError(w, err, "job result")
		return
	}
	s.writeReport(w, format, func(out io.Writer) error { return report.JobResult(out, format, result) })
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.deps.Jobs.GetJob(r.Context(), jobID)
	if err != nil {
		s.writeStoreError(w, err, "job")
		return
	}
	if job.Status.IsTerminal() {
		writeError(w, http.StatusConflict, "job already "+string(job.Status))
		return
	}
	if err := s.deps.Jobs.UpdateJobStatus(
		r.Context(), jobID, lead.JobStatusCanceled, "canceled via API", job.Counters,
	); err != nil {
		s.writeStoreError(w, err, "job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": string(lead.JobStatusCanceled)})
}

func (s *Server) toDiscoveryParams(ownerID string, req discoveryRequest) (lead.DiscoveryParams, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return lead.DiscoveryParams{}, errors.New("query is required")
	}
	if req.MaxResults != nil && *req.MaxResults <= 0 {
		return lead.DiscoveryParams{}, errors.New("max_results must be > 0")
	}
	if req.EstimatedValue < 0 {
		return lead.DiscoveryParams{}, errors.New("estimated_value must be >= 0")
	}
	if err := s.validateSources(req.Sources); err != nil {
		return lead.DiscoveryParams{}, err
	}
	params := lead.DiscoveryParams{
		OwnerID:               ownerID,
		Query:                 query,
		Location:              strings.TrimSpace(req.Location),
		MaxResults:            valueOrDefault(req.MaxResults, 0),
		Sources:               req.Sources,
		Analyze:               valueOrDefault(req.Analyze, false),
		AnalyzeProvided:       req.Analyze != nil,
		HeadlessAllowed:       valueOrDefault(req.HeadlessAllowed, false),
		HeadlessProvided:      req.HeadlessAllowed != nil,
		RespectRobots:         valueOrDefault(req.RespectRobots, false),
		RespectRobotsProvided: req.RespectRobots != nil,
		EstimatedValue:        req.EstimatedValue,
		Tags:                  req.Tags,
	}
	return s.cfg.ApplyDiscoveryDefaults(params), nil
}

func (s *Server) validateSources(sources []string) error {
	if len(s.deps.Sources) == 0 {
		return nil
	}
	for _, src := range sources {
		if !slices.ContainsFunc(s.deps.Sources, func(known string) bool { return strings.EqualFold(known, src) }) {
			return fmt.Errorf("unknown source %q (enabled: %s)", src, strings.Join(s.deps.Sources, ", "))
		}
	}
	return nil
}

func cloneParams(src lead.DiscoveryParams) lead.DiscoveryParams {
	cp := src
	cp.Sources = slices.Clone(src.Sources)
	cp.Tags = maps.Clone(src.Tags)
	return cp
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}
