package retrieval

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultQueryCacheTTL is how long a cached query result stays valid.
const DefaultQueryCacheTTL = 10 * time.Minute

// QueryKey derives the deterministic cache key for a query. The strategy
// flag is part of the key so embedding and lexical results never collide.
func QueryKey(query string, scope Scope, k int, strategy string) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%s|%d|%s",
		query, scope.CourseID, scope.BookID, k, strategy))
	return fmt.Sprintf("%x", sum)
}

// queryCacheEntry is one stored result plus the metadata needed for TTL
// expiry and pattern invalidation.
type queryCacheEntry struct {
	// result is a private deep copy of the computed context.
	result RetrievalContext

	// scopeKey is the entry's scope key, matched by InvalidateByPattern.
	scopeKey string

	// storedAt drives TTL expiry.
	storedAt time.Time
}

// QueryCache is the second-tier cache over whole retrieval results, keyed by
// (query, scope, k, strategy) hash with TTL expiry and pattern-based
// invalidation for course/book deletion or re-indexing.
//
// Entries are deep-copied on both store and load: callers never share a
// slice with the cache, so annotation merging cannot corrupt a cached base
// result. Empty-text results are never cached so a re-index is reflected
// immediately.
type QueryCache struct {
	// ttl is the entry lifetime.
	ttl time.Duration

	// metrics instruments hits, misses, and invalidations.
	metrics *Metrics

	// mu guards entries.
	mu sync.Mutex

	// entries maps cache key to its stored entry.
	entries map[string]queryCacheEntry
}

// NewQueryCache constructs a QueryCache. A non-positive ttl selects
// DefaultQueryCacheTTL; metrics may be nil.
func NewQueryCache(ttl time.Duration, metrics *Metrics) *QueryCache {
	if ttl <= 0 {
		ttl = DefaultQueryCacheTTL
	}
	return &QueryCache{
		ttl:     ttl,
		metrics: metrics,
		entries: make(map[string]queryCacheEntry),
	}
}

// Get returns a deep copy of the cached result for key, when present and
// not expired. Expired entries are dropped on access.
func (qc *QueryCache) Get(key string) (RetrievalContext, bool) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	entry, ok := qc.entries[key]
	if !ok {
		return RetrievalContext{}, false
	}
	if time.Since(entry.storedAt) > qc.ttl {
		delete(qc.entries, key)
		return RetrievalContext{}, false
	}
	return entry.result.Clone(), true
}

// Put stores a deep copy of the result under key. Results with empty text
// are never cached: a negative result must not mask a subsequent re-index.
func (qc *QueryCache) Put(key string, result RetrievalContext) {
	if result.Text == "" {
		return
	}

	qc.mu.Lock()
	defer qc.mu.Unlock()

	qc.entries[key] = queryCacheEntry{
		result:   result.Clone(),
		scopeKey: result.Scope.Key(),
		storedAt: time.Now(),
	}
}

// GetOrCompute returns the cached result for key, or invokes compute and
// caches its result. A compute error bypasses the cache entirely and
// propagates as-is — no entry is written.
func (qc *QueryCache) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (RetrievalContext, error)) (RetrievalContext, error) {
	if cached, ok := qc.Get(key); ok {
		qc.metrics.queryCacheHit()
		return cached, nil
	}
	qc.metrics.queryCacheMiss()

	result, err := compute(ctx)
	if err != nil {
		return RetrievalContext{}, err
	}

	qc.Put(key, result)
	return result, nil
}

// InvalidateByPattern drops every entry whose scope key starts with prefix
// and returns the number of entries removed. Used when a course or book is
// deleted, re-uploaded, or re-indexed.
func (qc *QueryCache) InvalidateByPattern(prefix string) int {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	removed := 0
	for key, entry := range qc.entries {
		if strings.HasPrefix(entry.scopeKey, prefix) {
			delete(qc.entries, key)
			removed++
		}
	}

	qc.metrics.queryCacheInvalidated(removed)
	return removed
}

// Purge removes every entry. Administrative operation.
func (qc *QueryCache) Purge() {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	qc.entries = make(map[string]queryCacheEntry)
}

// Len returns the number of stored entries, including not-yet-swept expired
// ones.
func (qc *QueryCache) Len() int {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	return len(qc.entries)
}
