// Package metrics exposes Prometheus collectors for the extraction service.
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
	extractorChunksTotal           *prometheus.CounterVec
	extractorAttemptsTotal         *prometheus.CounterVec
	extractorRecordsTotal          prometheus.Counter
	extractorRecognizeSeconds      *prometheus.HistogramVec
	extractorThrottlePausesTotal   prometheus.Counter
	extractorThrottlePauseSeconds  prometheus.Histogram
	extractorRetryCooldownsTotal   prometheus.Counter
	extractorActiveWorkers         prometheus.Gauge
	extractorRunsTotal             *prometheus.CounterVec
	extractorAggregateWriteSeconds prometheus.Histogram
	httpRequestsTotal              *prometheus.CounterVec
	httpRequestDurationSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		extractorChunksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extractor_chunks_total",
				Help: "Total number of chunks finished, labeled by terminal status.",
			},
			[]string{"status"},
		)

		extractorAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extractor_attempts_total",
				Help: "Total number of recognition attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		extractorRecordsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "extractor_records_total",
				Help: "Total number of records extracted from successful chunks.",
			},
		)

		extractorRecognizeSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "extractor_recognize_duration_seconds",
				Help:    "Histogram of recognition call latencies, labeled by outcome.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"outcome"},
		)

		extractorThrottlePausesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "extractor_throttle_pauses_total",
				Help: "Total number of global throttle pauses taken.",
			},
		)

		extractorThrottlePauseSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "extractor_throttle_pause_seconds",
				Help:    "Histogram of global throttle pause durations.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
		)

		extractorRetryCooldownsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "extractor_retry_cooldowns_total",
				Help: "Total number of failure cooldowns taken before retries.",
			},
		)

		extractorActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "extractor_active_workers",
				Help: "Number of workers currently processing a chunk.",
			},
		)

		extractorRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extractor_runs_total",
				Help: "Total number of runs finished, labeled by status.",
			},
			[]string{"status"},
		)

		extractorAggregateWriteSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "extractor_aggregate_write_seconds",
				Help:    "Histogram of consolidated output write durations.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
			},
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

// ObserveChunk increments the chunk counter for the given terminal status.
func ObserveChunk(status string) {
	extractorChunksTotal.WithLabelValues(status).Inc()
}

// ObserveAttempt records one recognition attempt and its latency.
func ObserveAttempt(outcome string, duration time.Duration) {
	extractorAttemptsTotal.WithLabelValues(outcome).Inc()
	extractorRecognizeSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// AddRecords adds extracted records to the running total.
func AddRecords(n int) {
	if n > 0 {
		extractorRecordsTotal.Add(float64(n))
	}
}

// ObserveThrottlePause records one global throttle pause.
func ObserveThrottlePause(duration time.Duration) {
	extractorThrottlePausesTotal.Inc()
	extractorThrottlePauseSeconds.Observe(duration.Seconds())
}

// ObserveRetryCooldown increments the failure cooldown counter.
func ObserveRetryCooldown() {
	extractorRetryCooldownsTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	extractorActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	extractorActiveWorkers.Dec()
}

// ObserveRun increments the run counter for the given status.
func ObserveRun(status string) {
	extractorRunsTotal.WithLabelValues(status).Inc()
}

// ObserveAggregateWrite records the time spent writing the consolidated output.
func ObserveAggregateWrite(duration time.Duration) {
	extractorAggregateWriteSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
