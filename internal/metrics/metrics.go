package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     prometheus.CounterVec
	HTTPRequestDuration   prometheus.HistogramVec
	HTTPRequestSize       prometheus.HistogramVec
	HTTPResponseSize      prometheus.HistogramVec
	HTTPActiveConnections prometheus.GaugeVec

	// Cache metrics
	CacheHitsTotal         prometheus.CounterVec
	CacheMissesTotal       prometheus.CounterVec
	CacheOperationsTotal   prometheus.CounterVec
	CacheOperationDuration prometheus.HistogramVec

	// Rate limiting metrics
	RateLimitExceededTotal prometheus.CounterVec

	// Document store metrics
	DocstoreOperationDuration prometheus.HistogramVec
	DocstoreOperationsTotal   prometheus.CounterVec
	DocstoreTxRetries         prometheus.CounterVec

	// Redis metrics
	RedisOperationDuration prometheus.HistogramVec
	RedisOperationsTotal   prometheus.CounterVec

	// Catalog API metrics
	TMDBRequestsTotal   prometheus.CounterVec
	TMDBRequestDuration prometheus.HistogramVec
	TMDBBreakerState    prometheus.GaugeVec

	// Search index metrics
	SearchOperationsTotal   prometheus.CounterVec
	SearchOperationDuration prometheus.HistogramVec

	// Feed metrics
	FeedGenerationTime prometheus.HistogramVec
	FeedPageSize       prometheus.HistogramVec

	// Error metrics
	ErrorsTotal prometheus.CounterVec

	*ApplicationMetrics
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			// HTTP metrics
			HTTPRequestsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestSize: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_size_bytes",
					Help:    "HTTP request body size in bytes",
					Buckets: prometheus.ExponentialBuckets(100, 10, 7),
				},
				[]string{"method", "path"},
			),
			HTTPResponseSize: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_response_size_bytes",
					Help:    "HTTP response size in bytes",
					Buckets: prometheus.ExponentialBuckets(100, 10, 7),
				},
				[]string{"method", "path", "status"},
			),
			HTTPActiveConnections: *promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "http_active_connections",
					Help: "Number of currently active HTTP connections",
				},
				[]string{"method", "path"},
			),

			// Cache metrics
			CacheHitsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_hits_total",
					Help: "Total number of cache hits",
				},
				[]string{"cache_name"},
			),
			CacheMissesTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_misses_total",
					Help: "Total number of cache misses",
				},
				[]string{"cache_name"},
			),
			CacheOperationsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_operations_total",
					Help: "Total number of cache operations",
				},
				[]string{"operation", "cache_name"},
			),
			CacheOperationDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "cache_operation_duration_seconds",
					Help:    "Cache operation latency in seconds",
					Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
				},
				[]string{"operation", "cache_name"},
			),

			// Rate limiting metrics
			RateLimitExceededTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rate_limit_exceeded_total",
					Help: "Total number of rate limit violations",
				},
				[]string{"endpoint", "method"},
			),

			// Document store metrics
			DocstoreOperationDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "docstore_operation_duration_seconds",
					Help:    "Document store operation latency in seconds",
					Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"operation", "collection"},
			),
			DocstoreOperationsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "docstore_operations_total",
					Help: "Total number of document store operations",
				},
				[]string{"operation", "collection", "status"},
			),
			DocstoreTxRetries: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "docstore_transaction_failures_total",
					Help: "Transactions that failed after exhausting retries",
				},
				[]string{"operation"},
			),

			// Redis metrics
			RedisOperationDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "redis_operation_duration_seconds",
					Help:    "Redis operation latency in seconds",
					Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
				},
				[]string{"operation", "key_pattern"},
			),
			RedisOperationsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "redis_operations_total",
					Help: "Total number of Redis operations",
				},
				[]string{"operation", "status"},
			),

			// Catalog API metrics
			TMDBRequestsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tmdb_requests_total",
					Help: "Total number of catalog API requests",
				},
				[]string{"endpoint", "status"},
			),
			TMDBRequestDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tmdb_request_duration_seconds",
					Help:    "Catalog API request latency in seconds",
					Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10},
				},
				[]string{"endpoint"},
			),
			TMDBBreakerState: *promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "tmdb_circuit_breaker_state",
					Help: "Catalog API circuit breaker state (0 closed, 1 half-open, 2 open)",
				},
				[]string{"name"},
			),

			// Search index metrics
			SearchOperationsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "search_operations_total",
					Help: "Total number of search index operations",
				},
				[]string{"operation", "status"},
			),
			SearchOperationDuration: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "search_operation_duration_seconds",
					Help:    "Search index operation latency in seconds",
					Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
				},
				[]string{"operation"},
			),

			// Feed metrics
			FeedGenerationTime: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "feed_generation_duration_seconds",
					Help:    "Time to generate a feed page in seconds",
					Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"feed_type"},
			),
			FeedPageSize: *promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "feed_page_items",
					Help:    "Number of items returned per feed page",
					Buckets: []float64{0, 1, 5, 10, 20, 40, 80},
				},
				[]string{"feed_type"},
			),

			// Error metrics
			ErrorsTotal: *promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "errors_total",
					Help: "Total number of errors by type",
				},
				[]string{"error_type", "endpoint"},
			),

			ApplicationMetrics: InitializeApplicationMetrics(),
		}
	})
	return instance
}

// Get returns the global metrics instance
func Get() *Metrics {
	if instance == nil {
		return Initialize()
	}
	return instance
}
