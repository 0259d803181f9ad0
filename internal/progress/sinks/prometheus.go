package sinks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/leadscout/internal/progress"
)

// PrometheusSink exports discovery progress via Prometheus. It owns the
// collectors for jobs started/completed/running and per-source counters.
type PrometheusSink struct {
	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec

	searchResults   *prometheus.CounterVec
	analyses        *prometheus.CounterVec
	analysisBytes   *prometheus.CounterVec
	analysisLatency *prometheus.HistogramVec
	leadsCreated    *prometheus.CounterVec
	duplicates      *prometheus.CounterVec

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leadscout_progress_jobs_started_total",
			Help: "Total discovery jobs that have started.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadscout_progress_jobs_completed_total",
			Help: "Total discovery jobs completed partitioned by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "leadscout_progress_jobs_running",
			Help: "Current number of running discovery jobs.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leadscout_progress_job_runtime_seconds",
			Help:    "Wall time per completed discovery job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		searchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadscout_progress_search_results_total",
			Help: "Search results returned per source.",
		}, []string{"source"}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadscout_progress_analyses_total",
			Help: "Website analyses partitioned by source and status class.",
		}, []string{"source", "status_class"}),
		analysisBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadscout_progress_analysis_bytes_total",
			Help: "HTML bytes downloaded during analysis per source.",
		}, []string{"source"}),
		analysisLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leadscout_progress_analysis_duration_seconds",
			Help:    "Analysis duration partitioned by source and status class.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"source", "status_class"}),
		leadsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadscout_progress_leads_created_total",
			Help: "Leads created per source.",
		}, []string{"source"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadscout_progress_duplicates_total",
			Help: "Candidates skipped as duplicates per source.",
		}, []string{"source"}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobRuntime,
		s.searchResults,
		s.analyses,
		s.analysisBytes,
		s.analysisLatency,
		s.leadsCreated,
		s.duplicates,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	source := evt.Source
	if source == "" {
		source = unknownSource
	}
	switch evt.Stage {
	case progress.StageJobStart, progress.StageJobDone, progress.StageJobError:
		s.handleJobEvent(evt)
	case progress.StageSearchDone:
		s.searchResults.WithLabelValues(source).Add(float64(evt.Results))
	case progress.StageAnalyzeDone:
		s.handleAnalyzeEvent(source, evt)
	case progress.StageLeadCreated:
		s.leadsCreated.WithLabelValues(source).Inc()
	case progress.StageDuplicateSkipped:
		s.duplicates.WithLabelValues(source).Inc()
	}
}

func (s *PrometheusSink) handleJobEvent(evt progress.Event) {
	if evt.Stage == progress.StageJobStart {
		s.jobsStarted.Inc()
		if s.tracker.start(evt.JobID, evt.TS) {
			s.jobsRunning.Inc()
		}
		return
	}

	result := "success"
	if evt.Stage == progress.StageJobError {
		result = "error"
	}
	s.jobsCompleted.WithLabelValues(result).Inc()

	startedAt, wasRunning := s.tracker.complete(evt.JobID)
	if wasRunning {
		s.jobsRunning.Dec()
	}
	runtime := evt.Dur
	if runtime <= 0 && wasRunning && !startedAt.IsZero() && evt.TS.After(startedAt) {
		runtime = evt.TS.Sub(startedAt)
	}
	if runtime > 0 {
		s.jobRuntime.WithLabelValues(result).Observe(runtime.Seconds())
	}
}

func (s *PrometheusSink) handleAnalyzeEvent(source string, evt progress.Event) {
	statusClass := string(evt.StatusClass)
	if statusClass == "" {
		statusClass = string(progress.StatusOther)
	}
	s.analyses.WithLabelValues(source, statusClass).Inc()
	if evt.Bytes > 0 {
		s.analysisBytes.WithLabelValues(source).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.analysisLatency.WithLabelValues(source, statusClass).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// jobTracker remembers when each running job started so a repeated
// JOB_START does not inflate the running gauge.
type jobTracker struct {
	mu      sync.Mutex
	running map[[16]byte]time.Time
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[[16]byte]time.Time)}
}

func (t *jobTracker) start(id [16]byte, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = at
	return true
}

func (t *jobTracker) complete(id [16]byte) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.running[id]
	if ok {
		delete(t.running, id)
	}
	return at, ok
}
