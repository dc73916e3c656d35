// Package metrics defines the Prometheus collectors used by the indexer, the
// semantic engine and the query path, and exposes an HTTP handler for
// scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing, so library code can take one unconditionally.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   *prometheus.HistogramVec
	QueryExpansionsTotal prometheus.Counter
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	SimilarityCacheTotal *prometheus.CounterVec
	LexiconCacheTotal    *prometheus.CounterVec
	DocsIndexedTotal     prometheus.Counter
	IndexFlushesTotal    *prometheus.CounterVec
	BarrelRewritesTotal  *prometheus.CounterVec
	IndexingDuration     prometheus.Histogram
	LexiconTerms         prometheus.Gauge
	CorpusDocuments      prometheus.Gauge
	EmbeddingsLoaded     prometheus.Gauge
}

// New creates all collectors and registers them with reg, or with the
// default registry when reg is nil.
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
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (ok, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"semantic"},
		),
		SearchResultsCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of documents scored per search query.",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
			},
			[]string{},
		),
		QueryExpansionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_expansion_terms_total",
				Help: "Total terms added to queries by semantic expansion.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of search result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of search result cache misses.",
			},
		),
		SimilarityCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "similarity_cache_lookups_total",
				Help: "Similarity cache lookups by result (hit, miss).",
			},
			[]string{"result"},
		),
		LexiconCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexicon_barrel_cache_lookups_total",
				Help: "Lexicon barrel cache lookups by result (hit, miss).",
			},
			[]string{"result"},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		IndexFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_flushes_total",
				Help: "Total index flush operations by status.",
			},
			[]string{"status"},
		),
		BarrelRewritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barrel_writes_total",
				Help: "Barrel files written by store (lexicon appends, inverted_index rewrites).",
			},
			[]string{"store"},
		),
		IndexingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "indexing_duration_seconds",
				Help:    "Latency of one indexing operation.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
			},
		),
		LexiconTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lexicon_terms",
				Help: "Number of terms in the lexicon.",
			},
		),
		CorpusDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corpus_documents",
				Help: "Number of distinct indexed documents.",
			},
		),
		EmbeddingsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "embeddings_loaded_words",
				Help: "Number of words in the loaded embedding table.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.QueryExpansionsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.SimilarityCacheTotal,
		m.LexiconCacheTotal,
		m.DocsIndexedTotal,
		m.IndexFlushesTotal,
		m.BarrelRewritesTotal,
		m.IndexingDuration,
		m.LexiconTerms,
		m.CorpusDocuments,
		m.EmbeddingsLoaded,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSimilarityLookup counts one similarity cache lookup.
func (m *Metrics) RecordSimilarityLookup(hit bool) {
	if m == nil {
		return
	}
	m.SimilarityCacheTotal.WithLabelValues(hitLabel(hit)).Inc()
}

// RecordLexiconLookup counts one lexicon barrel cache lookup.
func (m *Metrics) RecordLexiconLookup(hit bool) {
	if m == nil {
		return
	}
	m.LexiconCacheTotal.WithLabelValues(hitLabel(hit)).Inc()
}

// RecordBarrelWrites counts n barrel writes for store.
func (m *Metrics) RecordBarrelWrites(store string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.BarrelRewritesTotal.WithLabelValues(store).Add(float64(n))
}

// RecordFlush counts one builder flush.
func (m *Metrics) RecordFlush(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.IndexFlushesTotal.WithLabelValues(status).Inc()
}

func hitLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}
