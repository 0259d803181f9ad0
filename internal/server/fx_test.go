package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/config"
	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/storage/sqlite"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Port: 8080, RequestTimeoutSeconds: 5},
		Discovery: config.DiscoveryConfig{Concurrency: 2, QueueDepth: 4, BatchSize: 2, MaxResultsDefault: 5},
		Search:    config.SearchConfig{Providers: []string{"duckduckgo", "bing"}},
		Dedup:     config.DedupConfig{NameThreshold: 0.85},
		HTTP:      config.HTTPConfig{UserAgent: "leadscout-test", TimeoutSeconds: 2},
		RateLimit: config.RateLimitConfig{Enabled: true, DefaultRPS: 5, DefaultBurst: 1},
		Progress:  config.ProgressConfig{Enabled: true},
	}
}

func TestBuildMemoryBackends(t *testing.T) {
	cfg := memoryConfig()
	app, err := Build(context.Background(), cfg, BuildOptions{
		Logger:        zap.NewNop(),
		Registerer:    prometheus.NewRegistry(),
		SkipTelemetry: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	require.Equal(t, 2, app.dispatch.Size())
	require.Equal(t, []string{"duckduckgo", "bing"}, app.searcher.Sources())
	require.NotNil(t, app.Analyzer())
	require.NotNil(t, app.Pipeline())

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/discovery", bytes.NewBufferString(`{"query":"plumbers","sources":["bing"]}`))
	req.Header.Set("X-Owner-ID", "owner-1")
	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestBuildRejectsUnknownProvider(t *testing.T) {
	cfg := memoryConfig()
	cfg.Search.Providers = []string{"altavista"}
	_, err := Build(context.Background(), cfg, BuildOptions{
		Logger:        zap.NewNop(),
		Registerer:    prometheus.NewRegistry(),
		SkipTelemetry: true,
	})
	require.Error(t, err)
}

func TestBuildFailureRestoresGlobalLogger(t *testing.T) {
	before := zap.NewExample()
	restore := zap.ReplaceGlobals(before)
	t.Cleanup(restore)

	cfg := memoryConfig()
	cfg.Search.Providers = []string{"altavista"}
	_, err := Build(context.Background(), cfg, BuildOptions{
		Logger:        zap.NewNop(),
		Registerer:    prometheus.NewRegistry(),
		SkipTelemetry: true,
	})
	require.Error(t, err)
	require.Same(t, before, zap.L())
}

func TestBuildSQLiteBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.Database = config.DatabaseConfig{Backend: "sqlite", SQLitePath: t.TempDir() + "/leads.db"}
	cfg.Storage = config.StorageConfig{Backend: "local", Local: config.LocalStorageConfig{BaseDir: t.TempDir()}}
	app, err := Build(context.Background(), cfg, BuildOptions{
		Logger:        zap.NewNop(),
		Registerer:    prometheus.NewRegistry(),
		SkipTelemetry: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	_, ok := app.Leads().(*sqlite.Repository)
	require.True(t, ok)

	ctx := context.Background()
	require.NoError(t, app.Jobs().CreateJob(ctx, lead.Job{ID: "job-1", Status: lead.JobStatusQueued}))
	job, err := app.Jobs().GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, lead.JobStatusQueued, job.Status)
}
