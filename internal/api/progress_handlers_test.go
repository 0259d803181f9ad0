package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/store"
)

func TestProgressHandlerListJobs(t *testing.T) {
	t.Parallel()

	jobID := uuid.New()
	repo := &mockProgressRepo{
		jobs: []store.JobRun{
			{
				JobID:     jobID,
				Status:    store.RunSuccess,
				StartedAt: time.Now().Add(-time.Hour),
			},
		},
	}
	handler := NewProgressHandler(repo, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/jobs?status=succeeded&limit=10", nil)
	rec := httptest.NewRecorder()

	handler.ListJobs(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, repo.lastStatus)
	require.Equal(t, store.RunSuccess, *repo.lastStatus)
	require.Equal(t, 10, repo.lastLimit)

	var body struct {
		Jobs []jobDTO `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Jobs, 1)
	require.Equal(t, jobID.String(), body.Jobs[0].JobID)
}

func TestProgressHandlerListJobsRejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	handler := NewProgressHandler(&mockProgressRepo{}, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/api/jobs?status=exploded", nil)
	rec := httptest.NewRecorder()

	handler.ListJobs(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProgressHandlerGetJobNotFound(t *testing.T) {
	t.Parallel()

	repo := &mockProgressRepo{err: store.ErrNotFound}
	handler := NewProgressHandler(repo, zap.NewNop())

	jobID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID.String(), nil)
	req = withJobIDParam(req, jobID.String())
	rec := httptest.NewRecorder()

	handler.GetJob(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProgressHandlerGetJobInvalidID(t *testing.T) {
	t.Parallel()

	handler := NewProgressHandler(&mockProgressRepo{}, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil)
	req = withJobIDParam(req, "nope")
	rec := httptest.NewRecorder()

	handler.GetJob(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProgressHandlerListJobSources(t *testing.T) {
	t.Parallel()

	jobID := uuid.New()
	repo := &mockProgressRepo{
		sources: []store.SourceStats{{
			JobID:      jobID,
			Source:     "duckduckgo",
			Results:    10,
			Analyzed:   4,
			Created:    3,
			ScoreTotal: 200,
		}},
	}
	handler := NewProgressHandler(repo, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID.String()+"/sources", nil)
	req = withJobIDParam(req, jobID.String())
	rec := httptest.NewRecorder()

	handler.ListJobSources(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sources []sourceDTO `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sources, 1)
	require.Equal(t, "duckduckgo", body.Sources[0].Source)
	require.InDelta(t, 50.0, body.Sources[0].AverageScore, 0.001)
	require.Equal(t, defaultSourceLimit, repo.lastLimit)
}

func TestProgressHandlerListJobSourcesInvalidLimit(t *testing.T) {
	t.Parallel()

	handler := NewProgressHandler(&mockProgressRepo{}, zap.NewNop())
	jobID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID.String()+"/sources?limit=-1", nil)
	req = withJobIDParam(req, jobID.String())
	rec := httptest.NewRecorder()

	handler.ListJobSources(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProgressHandlerWithoutRepo(t *testing.T) {
	t.Parallel()

	handler := NewProgressHandler(nil, nil)
	rec := httptest.NewRecorder()
	handler.ListJobs(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestParseLimitOffsetClampsToMax(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/x?limit=9000&offset=5", nil)
	limit, offset, err := parseLimitOffset(req, 10, 100)
	require.NoError(t, err)
	require.Equal(t, 100, limit)
	require.Equal(t, 5, offset)

	_, _, err = parseLimitOffset(httptest.NewRequest(http.MethodGet, "/x?offset=-2", nil), 10, 100)
	require.Error(t, err)
}

type mockProgressRepo struct {
	jobs    []store.JobRun
	sources []store.SourceStats
	err     error

	lastStatus *store.JobRunStatus
	lastLimit  int
}

func (m *mockProgressRepo) UpsertJobStart(context.Context, uuid.UUID, time.Time) error {
	return m.err
}

func (m *mockProgressRepo) CompleteJob(context.Context, uuid.UUID, time.Time, store.JobRunStatus, *string) error {
	return m.err
}

func (m *mockProgressRepo) UpsertSourceStats(context.Context, uuid.UUID, string, store.SourceDelta, time.Time) error {
	return m.err
}

func (m *mockProgressRepo) GetJob(context.Context, uuid.UUID) (store.JobRun, error) {
	if len(m.jobs) > 0 {
		return m.jobs[0], nil
	}
	return store.JobRun{}, m.err
}

func (m *mockProgressRepo) ListJobs(_ context.Context, status *store.JobRunStatus, limit, _ int) ([]store.JobRun, error) {
	m.lastStatus = status
	m.lastLimit = limit
	return m.jobs, m.err
}

func (m *mockProgressRepo) ListJobSources(_ context.Context, _ uuid.UUID, limit, _ int) ([]store.SourceStats, error) {
	m.lastLimit = limit
	return m.sources, m.err
}

func withJobIDParam(r *http.Request, jobID string) *http.Request {
	ctx := chi.NewRouteContext()
	ctx.URLParams.Add("job_id", jobID)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, ctx))
}
