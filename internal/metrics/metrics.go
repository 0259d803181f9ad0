// Package metrics exposes Prometheus collectors for the leadscout service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal               *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	robotsFallbacksTotal       *prometheus.CounterVec
	plainHTTPFallbacksTotal    prometheus.Counter
	jobsTotal                  *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     prometheus.Histogram
	searchResultsTotal         *prometheus.CounterVec
	searchErrorsTotal          *prometheus.CounterVec
	analysisScore              *prometheus.HistogramVec
	leadsCreatedTotal          prometheus.Counter
	duplicatesTotal            *prometheus.CounterVec
	stageTransitionsTotal      *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_fetches_total",
				Help: "Total number of website fetches, labeled by fetcher and status class.",
			},
			[]string{"fetcher", "status_class"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_fetch_bytes_total",
				Help: "Total number of bytes fetched, labeled by fetcher.",
			},
			[]string{"fetcher"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		robotsFallbacksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_robots_fallbacks_total",
				Help: "robots.txt lookups that failed and were treated as allow-all, labeled by reason.",
			},
			[]string{"reason"},
		)

		plainHTTPFallbacksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "leadscout_plain_http_fallbacks_total",
				Help: "Sites only reachable after retrying over plain http.",
			},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_jobs_total",
				Help: "Total number of discovery jobs processed, labeled by status.",
			},
			[]string{"status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadscout_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leadscout_rate_limit_delays_seconds",
				Help:    "Histogram of per-domain rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		searchResultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_search_results_total",
				Help: "Search results returned, labeled by provider.",
			},
			[]string{"provider"},
		)

		searchErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_search_errors_total",
				Help: "Search provider failures, labeled by provider.",
			},
			[]string{"provider"},
		)

		analysisScore = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadscout_analysis_score",
				Help:    "Distribution of website scores, labeled by grade.",
				Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			},
			[]string{"grade"},
		)

		leadsCreatedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "leadscout_leads_created_total",
				Help: "Leads created by discovery jobs.",
			},
		)

		duplicatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_duplicates_total",
				Help: "Candidates skipped as duplicates, labeled by match reason.",
			},
			[]string{"reason"},
		)

		stageTransitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadscout_stage_transitions_total",
				Help: "Lead stage moves, labeled by target stage.",
			},
			[]string{"stage"},
		)
	})
}

// Fetcher labels for ObserveFetch.
const (
	FetcherHTTP     = "http"
	FetcherHeadless = "headless"
)

// StatusClass buckets an HTTP status code; zero or negative means the fetch
// failed before a response arrived.
func StatusClass(code int) string {
	switch {
	case code <= 0:
		return "error"
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	case code < 600:
		return "5xx"
	default:
		return "other"
	}
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch counts one website fetch. Sites never become a label.
func ObserveFetch(fetcher string, statusCode int, bytesFetched int) {
	Init()
	fetchesTotal.WithLabelValues(fetcher, StatusClass(statusCode)).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(fetcher).Add(float64(bytesFetched))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRobotsFallback counts a robots.txt lookup treated as allow-all.
func ObserveRobotsFallback(reason string) {
	Init()
	robotsFallbacksTotal.WithLabelValues(reason).Inc()
}

// ObservePlainHTTPFallback counts a site fetched over http after https failed.
func ObservePlainHTTPFallback() {
	Init()
	plainHTTPFallbacksTotal.Inc()
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	Init()
	jobsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.Observe(duration.Seconds())
}

// ObserveSearch records the outcome of one provider query.
func ObserveSearch(provider string, results int, err error) {
	Init()
	if err != nil {
		searchErrorsTotal.WithLabelValues(provider).Inc()
		return
	}
	searchResultsTotal.WithLabelValues(provider).Add(float64(results))
}

// ObserveAnalysis records a website score.
func ObserveAnalysis(grade string, score int) {
	Init()
	analysisScore.WithLabelValues(grade).Observe(float64(score))
}

// ObserveLeadCreated increments the created leads counter.
func ObserveLeadCreated() {
	Init()
	leadsCreatedTotal.Inc()
}

// ObserveDuplicate increments the duplicate counter for a match reason.
func ObserveDuplicate(reason string) {
	Init()
	duplicatesTotal.WithLabelValues(reason).Inc()
}

// ObserveStageTransition counts a lead moving into stage.
func ObserveStageTransition(stage string) {
	Init()
	stageTransitionsTotal.WithLabelValues(stage).Inc()
}
