package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadscout/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	jobID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{JobID: jobID, TS: now, Stage: progress.StageJobStart},
		{JobID: jobID, TS: now, Stage: progress.StageSearchDone, Source: "duckduckgo", Results: 7},
		{
			JobID:       jobID,
			TS:          now.Add(10 * time.Second),
			Stage:       progress.StageAnalyzeDone,
			Source:      "duckduckgo",
			URL:         "https://acme.example",
			Bytes:       1024,
			Score:       48,
			StatusClass: progress.Status2xx,
			Dur:         200 * time.Millisecond,
		},
		{JobID: jobID, TS: now, Stage: progress.StageLeadCreated, Source: "duckduckgo", Note: "lead-1"},
		{JobID: jobID, TS: now, Stage: progress.StageDuplicateSkipped, Source: "bing", Note: "domain"},
		{JobID: jobID, TS: now.Add(15 * time.Second), Stage: progress.StageJobDone, Dur: 15 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("error")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsRunning))

	require.InDelta(t, 7.0, testutil.ToFloat64(sink.searchResults.WithLabelValues("duckduckgo")), 1e-9)
	require.InDelta(
		t,
		1.0,
		testutil.ToFloat64(sink.analyses.WithLabelValues("duckduckgo", string(progress.Status2xx))),
		1e-9,
	)
	require.InDelta(t, 1024.0, testutil.ToFloat64(sink.analysisBytes.WithLabelValues("duckduckgo")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.analysisLatency, "leadscout_progress_analysis_duration_seconds"))
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.leadsCreated.WithLabelValues("duckduckgo")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.duplicates.WithLabelValues("bing")), 1e-9)
}

func TestPrometheusSinkRunningGaugeIgnoresRepeatedStart(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	jobID := progress.UUIDToBytes(uuid.New())
	start := progress.Event{JobID: jobID, TS: time.Now(), Stage: progress.StageJobStart}
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{start, start}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsRunning))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: jobID, TS: time.Now(), Stage: progress.StageJobError, Note: "search failed"},
	}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("error")))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func TestPrometheusSinkRuntimeFromTimestamps(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	jobID := progress.UUIDToBytes(uuid.New())
	start := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: jobID, TS: start, Stage: progress.StageJobStart},
		{JobID: jobID, TS: start.Add(4 * time.Second), Stage: progress.StageJobDone},
	}))

	require.Equal(t, 1, testutil.CollectAndCount(sink.jobRuntime, "leadscout_progress_job_runtime_seconds"))

	// A completion for a job this sink never saw start has no runtime.
	other := progress.UUIDToBytes(uuid.New())
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: other, TS: start, Stage: progress.StageJobError, Note: "canceled"},
	}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("error")))
}
