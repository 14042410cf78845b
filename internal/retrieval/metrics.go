package retrieval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics owned by the retrieval engine.
// A single instance is created via NewMetrics and shared by the engine and
// both caches, so tests can inject a fresh prometheus.Registry without
// polluting the default one. A nil *Metrics disables instrumentation —
// every method is nil-safe.
type Metrics struct {
	// retrievalsTotal counts completed retrievals, partitioned by the path
	// that produced the result ("primary", "local", "cache") and outcome
	// ("ok", "empty", "error").
	retrievalsTotal *prometheus.CounterVec

	// chunkCacheHits counts GetOrBuild calls served from an unchanged
	// cached chunk set.
	chunkCacheHits prometheus.Counter

	// chunkCacheMisses counts GetOrBuild calls that triggered a rebuild.
	chunkCacheMisses prometheus.Counter

	// chunkCacheEvictions counts chunk sets dropped by LRU eviction.
	chunkCacheEvictions prometheus.Counter

	// chunkRebuildSeconds records the wall-clock duration of chunk set
	// rebuilds, including the batched embed call.
	chunkRebuildSeconds prometheus.Histogram

	// queryCacheHits counts query-result cache hits.
	queryCacheHits prometheus.Counter

	// queryCacheMisses counts query-result cache misses.
	queryCacheMisses prometheus.Counter

	// queryCacheInvalidations counts entries dropped by pattern invalidation.
	queryCacheInvalidations prometheus.Counter

	// embedFallbacks counts embed failures that degraded a request or a
	// chunk build to the lexical strategy.
	embedFallbacks prometheus.Counter
}

// NewMetrics registers all retrieval metrics against reg and returns the
// populated Metrics. promauto.With(reg) registers into the provided
// registry rather than the global default, keeping unit tests hermetic.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		retrievalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutor",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total retrievals completed, partitioned by serving path and outcome.",
		}, []string{"path", "outcome"}),

		chunkCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tutor",
			Subsystem: "chunk_cache",
			Name:      "hits_total",
			Help:      "Chunk cache lookups served without a rebuild.",
		}),

		chunkCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tutor",
			Subsystem: "chunk_cache",
			Name:      "misses_total",
			Help:      "Chunk cache lookups that triggered a scope rebuild.",
		}),

		chunkCacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tutor",
			Subsystem: "chunk_cache",
			Name:      "evictions_total",
			Help:      "Chunk sets evicted by the LRU policy.",
		}),

		chunkRebuildSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tutor",
			Subsystem: "chunk_cache",
			Name:      "rebuild_duration_seconds",
			Help:      "Wall-clock duration of chunk set rebuilds including the batched embed call.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 60},
		}),

		queryCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tutor",
			Subsystem: "query_cache",
			Name:      "hits_total",
			Help:      "Query-result cache hits.",
		}),

		queryCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tutor",
			Subsystem: "query_cache",
			Name:      "misses_total",
			Help:      "Query-result cache misses.",
		}),

		queryCacheInvalidations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tutor",
			Subsystem: "query_cache",
			Name:      "invalidations_total",
			Help:      "Query-result cache entries dropped by pattern invalidation.",
		}),

		embedFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tutor",
			Subsystem: "retrieval",
			Name:      "embed_fallbacks_total",
			Help:      "Embed failures that degraded ranking to the lexical strategy.",
		}),
	}
}

// observeRetrieval records one completed retrieval.
func (m *Metrics) observeRetrieval(path, outcome string) {
	if m == nil {
		return
	}
	m.retrievalsTotal.WithLabelValues(path, outcome).Inc()
}

func (m *Metrics) chunkCacheHit() {
	if m == nil {
		return
	}
	m.chunkCacheHits.Inc()
}

func (m *Metrics) chunkCacheMiss() {
	if m == nil {
		return
	}
	m.chunkCacheMisses.Inc()
}

func (m *Metrics) chunkCacheEviction() {
	if m == nil {
		return
	}
	m.chunkCacheEvictions.Inc()
}

func (m *Metrics) observeRebuild(seconds float64) {
	if m == nil {
		return
	}
	m.chunkRebuildSeconds.Observe(seconds)
}

func (m *Metrics) queryCacheHit() {
	if m == nil {
		return
	}
	m.queryCacheHits.Inc()
}

func (m *Metrics) queryCacheMiss() {
	if m == nil {
		return
	}
	m.queryCacheMisses.Inc()
}

func (m *Metrics) queryCacheInvalidated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.queryCacheInvalidations.Add(float64(n))
}

func (m *Metrics) embedFallback() {
	if m == nil {
		return
	}
	m.embedFallbacks.Inc()
}
