package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadscout/internal/config"
	"github.com/JakeFAU/leadscout/internal/lead"
)

type fakeApp struct {
	analysis   lead.WebsiteAnalysis
	result     lead.JobResult
	lastParams lead.DiscoveryParams
	lastURL    string
	closed     bool
}

func (f *fakeApp) Run(context.Context) error   { return nil }
func (f *fakeApp) Close(context.Context) error { f.closed = true; return nil }
func (f *fakeApp) Analyzer() lead.Analyzer     { return f }

func (f *fakeApp) Analyze(_ context.Context, rawURL string, _ lead.AnalyzeOptions) (lead.WebsiteAnalysis, []byte, error) {
	f.lastURL = rawURL
	return f.analysis, nil, nil
}

func (f *fakeApp) Discover(_ context.Context, params lead.DiscoveryParams) (lead.JobResult, error) {
	f.lastParams = params
	res := f.result
	res.Job.Parameters = params
	return res, nil
}

func runCmd(t *testing.T, cfg config.Config, app *fakeApp, args ...string) (string, error) {
	t.Helper()
	origLoad, origApp := loadConfig, newApp
	t.Cleanup(func() { loadConfig, newApp = origLoad, origApp })
	loadConfig = func(string) (config.Config, error) { return cfg, nil }
	newApp = func(context.Context, *config.Config, bool) (App, error) { return app, nil }

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAnalyzeCommandPrintsReport(t *testing.T) {
	app := &fakeApp{analysis: lead.WebsiteAnalysis{
		URL:         "https://acme.example",
		Reachable:   true,
		Score:       42,
		Grade:       "D",
		Opportunity: lead.OpportunityHot,
	}}
	out, err := runCmd(t, config.Config{}, app, "analyze", "acme.example", "--format", "yaml")
	require.NoError(t, err)
	require.Equal(t, "acme.example", app.lastURL)
	require.Contains(t, out, "score: 42")
	require.True(t, app.closed)
}

func TestAnalyzeCommandRejectsUnknownFormat(t *testing.T) {
	_, err := runCmd(t, config.Config{}, &fakeApp{}, "analyze", "acme.example", "--format", "pdf")
	require.Error(t, err)
}

func TestDiscoverCommandAppliesDefaults(t *testing.T) {
	cfg := config.Config{Discovery: config.DiscoveryConfig{MaxResultsDefault: 7, AnalyzeDefault: true}}
	app := &fakeApp{result: lead.JobResult{Job: lead.Job{ID: "job-1", Status: lead.JobStatusSucceeded}}}

	out, err := runCmd(t, cfg, app, "discover", "--query", "roofers", "--location", "Boise", "--no-analyze")
	require.NoError(t, err)
	require.Equal(t, "roofers", app.lastParams.Query)
	require.Equal(t, "Boise", app.lastParams.Location)
	require.Equal(t, "cli", app.lastParams.OwnerID)
	require.Equal(t, 7, app.lastParams.MaxResults)
	require.False(t, app.lastParams.Analyze)
	require.Contains(t, out, "roofers")
}

func TestDiscoverCommandSavedSearch(t *testing.T) {
	cfg := config.Config{SavedSearches: map[string]lead.DiscoveryParams{
		"denver-plumbers": {Query: "plumbers", Location: "Denver, CO", MaxResults: 3},
	}}
	app := &fakeApp{result: lead.JobResult{Job: lead.Job{ID: "job-1", Status: lead.JobStatusSucceeded}}}

	_, err := runCmd(t, cfg, app, "discover", "--saved", "Denver-Plumbers", "--owner", "sam", "--format", "json")
	require.NoError(t, err)
	require.Equal(t, "plumbers", app.lastParams.Query)
	require.Equal(t, 3, app.lastParams.MaxResults)
	require.Equal(t, "sam", app.lastParams.OwnerID)

	_, err = runCmd(t, cfg, app, "discover", "--saved", "missing")
	require.ErrorContains(t, err, "not found")
}

func TestDiscoverCommandRequiresQuery(t *testing.T) {
	_, err := runCmd(t, config.Config{}, &fakeApp{}, "discover")
	require.ErrorContains(t, err, "--query")
}

func TestDiscoverCommandReportsFailedJob(t *testing.T) {
	app := &fakeApp{result: lead.JobResult{Job: lead.Job{ID: "job-9", Status: lead.JobStatusFailed, ErrorText: "search: all providers failed"}}}
	_, err := runCmd(t, config.Config{}, app, "discover", "-q", "bakers")
	require.ErrorContains(t, err, "all providers failed")
}

func TestMigrateCommandMemoryBackend(t *testing.T) {
	out, err := runCmd(t, config.Config{}, &fakeApp{}, "migrate")
	require.NoError(t, err)
	require.Contains(t, out, "no schema")
}

func TestMigrateCommandSQLite(t *testing.T) {
	path := t.TempDir() + "/leads.db"
	cfg := config.Config{Database: config.DatabaseConfig{Backend: "sqlite", SQLitePath: path}}
	out, err := runCmd(t, cfg, &fakeApp{}, "migrate")
	require.NoError(t, err)
	require.Contains(t, out, path)
}
