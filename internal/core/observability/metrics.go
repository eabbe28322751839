// Package observability holds the Prometheus metric surface shared across
// the HTTP server, cache, worker, and queue packages.
package observability

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var enabled atomic.Bool

func Init(r prometheus.Registerer, isEnabled bool) {
	enabled.Store(isEnabled)
	if !isEnabled || r == nil {
		return
	}
	initCollectors(r)
}

func Enabled() bool { return enabled.Load() }

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	cacheOpTotal                  *prometheus.CounterVec
	cacheOpDurationSeconds        *prometheus.HistogramVec
	cacheHitsTotal                *prometheus.CounterVec
	cacheMissesTotal              *prometheus.CounterVec
	cacheEvictionsTotal           *prometheus.CounterVec

	submissionsTotal *prometheus.CounterVec

	externalFetchTotal           *prometheus.CounterVec
	externalFetchDurationSeconds *prometheus.HistogramVec

	workerProcessedTotal          *prometheus.CounterVec
	workerProcessingDurationSeconds *prometheus.HistogramVec

	queueConsumerErrorsTotal *prometheus.CounterVec
	queueLagGauge            *prometheus.GaugeVec

	sweeperRequeuedTotal prometheus.Counter
)

func initCollectors(r prometheus.Registerer) {
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total number of HTTP requests."},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "Duration of HTTP requests in seconds.", Buckets: prometheus.ExponentialBuckets(0.005, 2, 12)},
		[]string{"method", "route", "status"},
	)

	cacheOpTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cache_op_total", Help: "Count of cache operations by op and outcome."},
		[]string{"op", "outcome"},
	)
	cacheOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "cache_op_duration_seconds", Help: "Latency of cache operations in seconds.", Buckets: prometheus.ExponentialBuckets(0.001, 2, 15)},
		[]string{"op"},
	)
	cacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cache_hits_total", Help: "Count of cache hits by namespace."},
		[]string{"namespace"},
	)
	cacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cache_misses_total", Help: "Count of cache misses by namespace."},
		[]string{"namespace"},
	)
	cacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cache_evictions_total", Help: "Count of local LRU capacity evictions by namespace."},
		[]string{"namespace"},
	)

	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "submissions_total", Help: "Count of coordinate submissions by resulting status."},
		[]string{"status"},
	)

	externalFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "external_fetch_total", Help: "Count of external landmark fetch calls by outcome."},
		[]string{"outcome"},
	)
	externalFetchDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "external_fetch_duration_seconds", Help: "Latency of the external landmark fetch in seconds.", Buckets: prometheus.ExponentialBuckets(0.01, 2, 12)},
		[]string{"outcome"},
	)

	workerProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "worker_processed_total", Help: "Count of processed queue messages by resulting status."},
		[]string{"status"},
	)
	workerProcessingDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "worker_processing_duration_seconds", Help: "End-to-end latency to process a queue message in seconds.", Buckets: prometheus.ExponentialBuckets(0.01, 2, 14)},
		[]string{"status"},
	)

	queueConsumerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "queue_consumer_errors_total", Help: "Errors encountered by the queue consumer."},
		[]string{"kind"},
	)
	queueLagGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "queue_partition_lag", Help: "Last observed consumer lag per partition."},
		[]string{"partition"},
	)

	sweeperRequeuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sweeper_requeued_total", Help: "Count of stalled PENDING requests requeued by the sweeper."},
	)

	r.MustRegister(
		httpRequestsTotal, httpRequestDurationSeconds,
		cacheOpTotal, cacheOpDurationSeconds, cacheHitsTotal, cacheMissesTotal, cacheEvictionsTotal,
		submissionsTotal,
		externalFetchTotal, externalFetchDurationSeconds,
		workerProcessedTotal, workerProcessingDurationSeconds,
		queueConsumerErrorsTotal, queueLagGauge,
		sweeperRequeuedTotal,
	)
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	if !enabled.Load() || httpRequestsTotal == nil {
		return
	}
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	if op == "" {
		op = "unknown"
	}
	outcome := "ok"
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			outcome = "timeout"
		case errors.Is(err, context.Canceled):
			outcome = "canceled"
		default:
			outcome = "error"
		}
	}
	if cacheOpTotal != nil {
		cacheOpTotal.WithLabelValues(op, outcome).Inc()
	}
	if cacheOpDurationSeconds != nil {
		cacheOpDurationSeconds.WithLabelValues(op).Observe(durationSeconds)
	}
}

func AddCacheHit(namespace string) {
	if !enabled.Load() || cacheHitsTotal == nil {
		return
	}
	cacheHitsTotal.WithLabelValues(namespace).Inc()
}

func AddCacheMiss(namespace string) {
	if !enabled.Load() || cacheMissesTotal == nil {
		return
	}
	cacheMissesTotal.WithLabelValues(namespace).Inc()
}

func AddCacheEviction(namespace string) {
	if !enabled.Load() || cacheEvictionsTotal == nil {
		return
	}
	cacheEvictionsTotal.WithLabelValues(namespace).Inc()
}

func IncSubmission(status string) {
	if !enabled.Load() || submissionsTotal == nil {
		return
	}
	submissionsTotal.WithLabelValues(status).Inc()
}

func ObserveExternalFetch(outcome string, durationSeconds float64) {
	if !enabled.Load() || externalFetchTotal == nil {
		return
	}
	externalFetchTotal.WithLabelValues(outcome).Inc()
	externalFetchDurationSeconds.WithLabelValues(outcome).Observe(durationSeconds)
}

func ObserveWorkerProcessed(status string, durationSeconds float64) {
	if !enabled.Load() || workerProcessedTotal == nil {
		return
	}
	workerProcessedTotal.WithLabelValues(status).Inc()
	workerProcessingDurationSeconds.WithLabelValues(status).Observe(durationSeconds)
}

func IncQueueConsumerError(kind string) {
	if !enabled.Load() || queueConsumerErrorsTotal == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	queueConsumerErrorsTotal.WithLabelValues(kind).Inc()
}

func SetQueueLag(partition int32, lag int64) {
	if !enabled.Load() || queueLagGauge == nil {
		return
	}
	queueLagGauge.WithLabelValues(strconv.Itoa(int(partition))).Set(float64(lag))
}

func IncSweeperRequeued() {
	if !enabled.Load() || sweeperRequeuedTotal == nil {
		return
	}
	sweeperRequeuedTotal.Inc()
}
