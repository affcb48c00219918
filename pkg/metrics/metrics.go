// Package metrics defines the Prometheus collectors for indexing, merging and
// query evaluation, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors of a process.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount prometheus.Histogram
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter

	TokensIndexedTotal  prometheus.Counter
	DocsIndexedTotal    prometheus.Counter
	SegmentFlushesTotal *prometheus.CounterVec
	SegmentMergesTotal  *prometheus.CounterVec
	MergeDuration       prometheus.Histogram
	DictCollisionsTotal prometheus.Counter
	CorruptRecordsTotal prometheus.Counter
	SegmentGeneration   prometheus.Gauge

	LinkRankIterations *prometheus.GaugeVec
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg uses the
// global default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by query type and ranking.",
			},
			[]string{"query_type", "ranking"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Query evaluation latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"query_type"},
		),
		SearchResultsCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "search_results_count",
			Help:    "Number of matching documents per query.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
		}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of result cache hits.",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of result cache misses.",
		}),
		TokensIndexedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "index_tokens_total",
			Help: "Total tokens inserted into the index.",
		}),
		DocsIndexedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "index_docs_total",
			Help: "Total documents indexed.",
		}),
		SegmentFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "segment_flushes_total",
				Help: "Generation flushes by status.",
			},
			[]string{"status"},
		),
		SegmentMergesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "segment_merges_total",
				Help: "Segment merges by status.",
			},
			[]string{"status"},
		),
		MergeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "segment_merge_duration_seconds",
			Help:    "Wall time of a single segment merge.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		DictCollisionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dictionary_collisions_total",
			Help: "Dictionary slots probed past an occupied home slot.",
		}),
		CorruptRecordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "segment_corrupt_records_total",
			Help: "Corrupt postings records skipped or partially recovered by merges.",
		}),
		SegmentGeneration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "segment_generation",
			Help: "Generation number of the current head segment.",
		}),
		LinkRankIterations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "linkrank_iterations",
				Help: "Iterations used by the last link analysis run.",
			},
			[]string{"algorithm"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.TokensIndexedTotal,
		m.DocsIndexedTotal,
		m.SegmentFlushesTotal,
		m.SegmentMergesTotal,
		m.MergeDuration,
		m.DictCollisionsTotal,
		m.CorruptRecordsTotal,
		m.SegmentGeneration,
		m.LinkRankIterations,
		m.CircuitBreakerState,
	)

	return m
}

// NewUnregistered returns collectors bound to a private registry. Tests and
// library callers that do not scrape use it.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
