// Package metrics exposes Prometheus collectors for the harvester.
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
	harvesterDatesTotal         *prometheus.CounterVec
	harvesterFetchAttemptsTotal *prometheus.CounterVec
	harvesterPeriodIndexTotal   prometheus.Counter
	harvesterStoredBytesTotal   prometheus.Counter
	harvesterRunDurationSeconds *prometheus.HistogramVec
	harvesterRateLimitWait      *prometheus.HistogramVec
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvesterDatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_dates_total",
				Help: "Total number of dates settled, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		harvesterFetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetch_attempts_total",
				Help: "Total number of fetch attempts, labeled by result.",
			},
			[]string{"result"},
		)

		harvesterPeriodIndexTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_period_index_fetches_total",
				Help: "Total number of period index lookups that reached the source.",
			},
		)

		harvesterStoredBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_stored_bytes_total",
				Help: "Total number of payload bytes written to the object store.",
			},
		)

		harvesterRunDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_run_duration_seconds",
				Help:    "Histogram of run wall-clock durations, labeled by mode.",
				Buckets: []float64{1, 10, 60, 300, 900, 3600, 7200, 21600},
			},
			[]string{"mode"},
		)

		harvesterRateLimitWait = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_wait_seconds",
				Help:    "Time spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"host"},
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
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDate counts one settled date.
func ObserveDate(outcome string) {
	Init()
	harvesterDatesTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch counts one fetch attempt.
func ObserveFetch(result string) {
	Init()
	harvesterFetchAttemptsTotal.WithLabelValues(result).Inc()
}

// ObservePeriodIndex counts one period index lookup against the source.
func ObservePeriodIndex() {
	Init()
	harvesterPeriodIndexTotal.Inc()
}

// ObserveStoredBytes adds n to the stored bytes counter.
func ObserveStoredBytes(n int) {
	Init()
	if n > 0 {
		harvesterStoredBytesTotal.Add(float64(n))
	}
}

// ObserveRunDuration records how long a run took.
func ObserveRunDuration(mode string, d time.Duration) {
	Init()
	harvesterRunDurationSeconds.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveRateLimitWait records a non-trivial wait on the host limiter.
func ObserveRateLimitWait(host string, d time.Duration) {
	Init()
	harvesterRateLimitWait.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
