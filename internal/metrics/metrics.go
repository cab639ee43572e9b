package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ragsearch"

var registry = prometheus.NewRegistry()

var (
	EmbeddingCache = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "embedding_cache_lookups_total",
		Help:      "Embedding cache lookups by layer and result.",
	}, []string{"layer", "result"})

	EmbeddingFailures = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "embedding_fallback_vectors_total",
		Help:      "Texts that were stored with a zero vector.",
	})

	ChunksCreated = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunks_created_total",
		Help:      "Chunks produced by ingestion, by chunking method.",
	}, []string{"method"})

	DocumentsIngested = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_ingested_total",
		Help:      "Documents processed by ingestion, by outcome.",
	}, []string{"outcome"})

	SearchDuration = promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "search_duration_seconds",
		Help:      "Search latency by strategy.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"strategy"})

	AutoSearchRoutes = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auto_search_routes_total",
		Help:      "Strategies chosen by auto search.",
	}, []string{"strategy"})

	JobRuns = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_runs_total",
		Help:      "Scheduled job runs by job and result.",
	}, []string{"job", "result"})

	httpRequests = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func Registry() *prometheus.Registry {
	return registry
}

func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveSearch records the time since start for a search strategy.
func ObserveSearch(strategy string, start time.Time) {
	SearchDuration.WithLabelValues(strategy).Observe(time.Since(start).Seconds())
}

func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
