package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/analysis"
	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/metrics"
	"github.com/JakeFAU/leadscout/internal/report"
)

const (
	defaultLeadLimit = 50
	maxLeadLimit     = 500
)

type createLeadRequest struct {
	Name           string            `json:"name"`
	Website        string            `json:"website"`
	Phone          string            `json:"phone"`
	Email          string            `json:"email"`
	Address        string            `json:"address"`
	EstimatedValue int64             `json:"estimated_value"`
	Notes          string            `json:"notes"`
	Tags           map[string]string `json:"tags"`
	Source         string            `json:"source"`
}

type stageRequest struct {
	Stage string `json:"stage"`
	Note  string `json:"note"`
}

type analyzeRequest struct {
	URL string `json:"url"`
}

func (s *Server) createLead(w http.ResponseWriter, r *http.Request) {
	var req createLeadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.EstimatedValue < 0 {
		writeError(w, http.StatusBadRequest, "estimated_value must be >= 0")
		return
	}
	id, err := s.deps.IDs.NewID()
	if err != nil {
		s.logger.Error("generate lead id", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create lead")
		return
	}
	source := req.Source
	if source == "" {
		source = "manual"
	}
	now := s.deps.Clock.Now().UTC()
	l := lead.Lead{
		ID:             id,
		OwnerID:        ownerFrom(r.Context()),
		Name:           name,
		Website:        strings.TrimSpace(req.Website),
		Phone:          strings.TrimSpace(req.Phone),
		Email:          strings.TrimSpace(req.Email),
		Address:        strings.TrimSpace(req.Address),
		Stage:          lead.StageNew,
		Score:          lead.Unscored,
		EstimatedValue: req.EstimatedValue,
		Notes:          req.Notes,
		Tags:           req.Tags,
		Source:         source,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.deps.Leads.CreateLead(r.Context(), l); err != nil {
		s.writeStoreError(w, err, "lead")
		return
	}
	metrics.ObserveLeadCreated()
	writeJSON(w, http.StatusCreated, map[string]any{"lead": l})
}

func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	filter, err := parseLeadFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	leads, err := s.deps.Leads.ListLeads(r.Context(), ownerFrom(r.Context()), filter)
	if err != nil {
		s.writeStoreError(w, err, "leads")
		return
	}
	if leads == nil {
		leads = []lead.Lead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads})
}

func (s *Server) getLead(w http.ResponseWriter, r *http.Request) {
	l, err := s.deps.Leads.GetLead(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "lead_id"))
	if err != nil {
		s.writeStoreError(w, err, "lead")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lead": l})
}

func (s *Server) updateLead(w http.ResponseWriter, r *http.Request) {
	var patch lead.LeadPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		writeError(w, http.StatusBadRequest, "name cannot be empty")
		return
	}
	if patch.EstimatedValue != nil && *patch.EstimatedValue < 0 {
		writeError(w, http.StatusBadRequest, "estimated_value must be >= 0")
		return
	}
	owner := ownerFrom(r.Context())
	l, err := s.deps.Leads.GetLead(r.Context(), owner, chi.URLParam(r, "lead_id"))
	if err != nil {
		s.writeStoreError(w, err, "lead")
		return
	}
	patch.Apply(&l)
	l.UpdatedAt = s.deps.Clock.Now().UTC()
	if err := s.deps.Leads.UpdateLead(r.Context(), l); err != nil {
		s.writeStoreError(w, err, "lead")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lead": l})
}

func (s *Server) deleteLead(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Leads.DeleteLead(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "lead_id")); err != nil {
		s.writeStoreError(w, err, "lead")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) moveLeadStage(w http.ResponseWriter, r *http.Request) {
	var req stageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := lead.ParseStage(req.Stage)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	owner := ownerFrom(r.Context())
	leadID := chi.URLParam(r, "lead_id")
	current, err := s.deps.Leads.GetLead(r.Context(), owner, leadID)
	if err != nil {
		s.writeStoreError(w, err, "lead")
		return
	}
	change, err := lead.Transition(current, to, strings.TrimSpace(req.Note), s.deps.Clock)
	if err != nil {
		s.writeStoreError(w, err, "lead")
		return
	}
	updated, err := s.deps.Leads.AppendStageChange(r.Context(), owner, leadID, change)
	if err != nil {
		s.writeStoreError(w, err, "lead")
		return
	}
	metrics.ObserveStageTransition(string(to))
	writeJSON(w, http.StatusOK, map[string]any{"lead": updated})
}

// analyzeLead scores the lead's website and stores the result on the lead.
func (s *Server) analyzeLead(w http.ResponseWriter, r *http.Request) {
	if s.deps.Analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "analyzer unavailable")
		return
	}
	owner := ownerFrom(r.Context())
	l, err := s.deps.Leads.GetLead(r.Context(), owner, chi.URLParam(r, "lead_id"))
	if err != nil {
		s.writeStoreError(w, err, "lead")
		return
	}
	if l.Website == "" {
		writeError(w, http.StatusBadRequest, "lead has no website")
		return
	}
	result, _, err := s.deps.Analyzer.Analyze(r.Context(), l.Website, lead.AnalyzeOptions{AllowHeadless: s.cfg.Headless.Enabled})
	if err != nil {
		s.writeAnalyzeError(w, err)
		return
	}
	applyAnalysis(&l, result)
	l.UpdatedAt = s.deps.Clock.Now().UTC()
	if err := s.deps.Leads.UpdateLead(r.Context(), l); err != nil {
		s.writeStoreError(w, err, "lead")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lead": l})
}

// analyzeURL scores an arbitrary website without touching any lead.
func (s *Server) analyzeURL(w http.ResponseWriter, r *http.Request) {
	if s.deps.Analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "analyzer unavailable")
		return
	}
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req analyzeRequest
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	result, _, err := s.deps.Analyzer.Analyze(r.Context(), req.URL, lead.AnalyzeOptions{AllowHeadless: s.cfg.Headless.Enabled})
	if err != nil {
		s.writeAnalyzeError(w, err)
		return
	}
	s.writeReport(w, format, func(out io.Writer) error { return report.Analysis(out, format, result) })
}

func (s *Server) pipelineSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Leads.PipelineSummary(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		s.writeStoreError(w, err, "pipeline summary")
		return
	}
	var total lead.StageSummary
	for _, st := range summary {
		total.Count += st.Count
		total.Value += st.Value
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stages":      summary,
		"total_count": total.Count,
		"total_value": total.Value,
	})
}

func (s *Server) writeAnalyzeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, analysis.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, "analysis timed out")
	default:
		s.logger.Warn("analysis failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "analysis failed")
	}
}

func (s *Server) writeReport(w http.ResponseWriter, format report.Format, render func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		s.logger.Error("render report failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to render report")
		return
	}
	w.Header().Set("Content-Type", contentType(format))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Warn("write report failed", zap.Error(err))
	}
}

func contentType(format report.Format) string {
	switch format {
	case report.FormatYAML:
		return "application/yaml"
	case report.FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "application/json"
	}
}

// applyAnalysis copies the score onto the lead and fills contact gaps.
func applyAnalysis(l *lead.Lead, a lead.WebsiteAnalysis) {
	l.Analysis = &a
	l.Score = a.Score
	l.Grade = a.Grade
	if l.Email == "" && len(a.Emails) > 0 {
		l.Email = a.Emails[0]
	}
	if l.Phone == "" && len(a.Phones) > 0 {
		l.Phone = a.Phones[0]
	}
}

func parseLeadFilter(r *http.Request) (lead.LeadFilter, error) {
	q := r.URL.Query()
	var filter lead.LeadFilter
	if raw := q.Get("stage"); raw != "" {
		stage, err := lead.ParseStage(raw)
		if err != nil {
			return lead.LeadFilter{}, err
		}
		filter.Stage = stage
	}
	filter.Query = strings.TrimSpace(q.Get("q"))
	for _, bound := range []struct {
		name string
		dst  **int
	}{
		{"min_score", &filter.MinScore},
		{"max_score", &filter.MaxScore},
	} {
		raw := q.Get(bound.name)
		if raw == "" {
			continue
		}
		val, err := strconv.Atoi(raw)
		if err != nil || val < lead.Unscored || val > 100 {
			return lead.LeadFilter{}, errors.New("invalid " + bound.name)
		}
		*bound.dst = &val
	}
	limit, offset, err := parseLimitOffset(r, defaultLeadLimit, maxLeadLimit)
	if err != nil {
		return lead.LeadFilter{}, err
	}
	filter.Limit = limit
	filter.Offset = offset
	return filter, nil
}
