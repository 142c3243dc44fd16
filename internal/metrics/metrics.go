// Package metrics exposes Prometheus collectors for the toolshelf service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values shared by the counters below.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeAbsent  = "absent"
)

var (
	sourceFetchesTotal         *prometheus.CounterVec
	sourceFetchDurationSeconds *prometheus.HistogramVec
	iconResolutionsTotal       *prometheus.CounterVec
	crawlJobsTotal             *prometheus.CounterVec
	upsertsTotal               *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	staticListEntries          prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		sourceFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolshelf_source_fetches_total",
				Help: "Total number of source fetcher runs, labeled by source id and outcome.",
			},
			[]string{"source", "outcome"},
		)

		sourceFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolshelf_source_fetch_duration_seconds",
				Help:    "Histogram of source fetcher latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
			},
			[]string{"source"},
		)

		iconResolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolshelf_icon_resolutions_total",
				Help: "Total icon tier attempts, labeled by tier and outcome.",
			},
			[]string{"tier", "outcome"},
		)

		crawlJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolshelf_crawl_jobs_total",
				Help: "Total number of crawl jobs processed, labeled by status.",
			},
			[]string{"status"},
		)

		upsertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolshelf_upserts_total",
				Help: "Total tool store upserts, labeled by outcome (inserted, updated, failed).",
			},
			[]string{"outcome"},
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

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "toolshelf_active_workers",
				Help: "Number of workers currently running a crawl job.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolshelf_rate_limit_delays_seconds",
				Help:    "Histogram of outbound rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		staticListEntries = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "toolshelf_static_list_entries",
				Help: "Number of entries in the currently loaded static list.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSourceFetch records one source fetcher run.
func ObserveSourceFetch(source, outcome string, duration time.Duration) {
	Init()
	sourceFetchesTotal.WithLabelValues(source, outcome).Inc()
	sourceFetchDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveIconTier records the outcome of a single icon tier attempt.
func ObserveIconTier(tier, outcome string) {
	Init()
	iconResolutionsTotal.WithLabelValues(tier, outcome).Inc()
}

// ObserveUpsert records a tool store write.
func ObserveUpsert(outcome string) {
	Init()
	upsertsTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	Init()
	crawlJobsTotal.WithLabelValues(status).Inc()
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
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// SetStaticListEntries records the size of the active static list snapshot.
func SetStaticListEntries(n int) {
	Init()
	staticListEntries.Set(float64(n))
}
