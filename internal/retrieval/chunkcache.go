package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pietrondo/tutor-rag/internal/chunker"
)

// Chunk cache defaults.
const (
	// DefaultMaxScopes bounds how many scope chunk sets are kept in memory.
	DefaultMaxScopes = 8

	// DefaultMaxChunksPerScope caps the total chunk count of one scope so a
	// pathological upload cannot exhaust memory.
	DefaultMaxChunksPerScope = 2000

	// DefaultEmbedTimeout bounds the batched embed call during a rebuild;
	// on expiry the scope is stored in lexical fallback mode instead of
	// failing the request.
	DefaultEmbedTimeout = 30 * time.Second
)

// ChunkCacheConfig holds the tunables of a ChunkCache. Zero values select
// the package defaults.
type ChunkCacheConfig struct {
	// MaxScopes is the LRU bound on cached scope entries.
	MaxScopes int

	// MaxChunksPerScope caps the chunk count of a single scope.
	MaxChunksPerScope int

	// TargetSize is the chunk window size in runes.
	TargetSize int

	// OverlapRatio is the fraction of the window shared between chunks.
	OverlapRatio float64

	// EmbedTimeout bounds the batched embed call per rebuild.
	EmbedTimeout time.Duration
}

// withDefaults returns the config with zero values replaced by defaults.
func (c ChunkCacheConfig) withDefaults() ChunkCacheConfig {
	if c.MaxScopes <= 0 {
		c.MaxScopes = DefaultMaxScopes
	}
	if c.MaxChunksPerScope <= 0 {
		c.MaxChunksPerScope = DefaultMaxChunksPerScope
	}
	if c.TargetSize <= 0 {
		c.TargetSize = chunker.DefaultTargetSize
	}
	if c.OverlapRatio <= 0 || c.OverlapRatio >= 1 {
		c.OverlapRatio = chunker.DefaultOverlapRatio
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = DefaultEmbedTimeout
	}
	return c
}

// ChunkCache caches the chunked (and, when possible, embedded) form of each
// scope's documents, keyed by a content signature so that edited, added, or
// removed files force recomputation.
//
// Concurrent reads never block; a per-scope build mutex serializes rebuilds
// so concurrent misses for one scope trigger exactly one rebuild, and a
// rebuild in progress never blocks unrelated scopes. Cached ChunkSets are
// immutable, so readers holding an evicted set continue to use it safely.
type ChunkCache struct {
	// encoder computes batch embeddings during rebuilds. May be nil, in
	// which case every chunk set is stored in lexical fallback mode.
	encoder Encoder

	// cfg holds the resolved configuration.
	cfg ChunkCacheConfig

	// log is the structured logger for degraded-path events.
	log *slog.Logger

	// metrics instruments hits, misses, evictions, and rebuild durations.
	metrics *Metrics

	// mu guards entries and builds.
	mu sync.Mutex

	// entries maps scope key to its cached chunk set.
	entries map[string]*ChunkSet

	// builds maps scope key to its rebuild mutex.
	builds map[string]*sync.Mutex
}

// NewChunkCache constructs a ChunkCache. encoder and metrics may be nil;
// log falls back to slog.Default when nil.
func NewChunkCache(encoder Encoder, cfg ChunkCacheConfig, log *slog.Logger, metrics *Metrics) *ChunkCache {
	if log == nil {
		log = slog.Default()
	}
	return &ChunkCache{
		encoder: encoder,
		cfg:     cfg.withDefaults(),
		log:     log,
		metrics: metrics,
		entries: make(map[string]*ChunkSet),
		builds:  make(map[string]*sync.Mutex),
	}
}

// GetOrBuild returns the cached chunk set for the scope when its signature
// still matches the provided documents, rebuilding it otherwise. The only
// error it returns is context cancellation; embed failures and unreadable
// documents degrade the result instead of failing it.
func (c *ChunkCache) GetOrBuild(ctx context.Context, scope Scope, docs []Document) (*ChunkSet, error) {
	key := scope.Key()
	sig := Signature(docs)

	if set, ok := c.lookup(key, sig); ok {
		c.metrics.chunkCacheHit()
		return set, nil
	}

	// Serialize rebuilds per scope: concurrent misses wait here and then
	// read the freshly built entry instead of rebuilding again.
	build := c.buildMutex(key)
	build.Lock()
	defer build.Unlock()

	if set, ok := c.lookup(key, sig); ok {
		c.metrics.chunkCacheHit()
		return set, nil
	}

	c.metrics.chunkCacheMiss()
	started := time.Now()

	set, err := c.build(ctx, scope, docs, sig)
	if err != nil {
		// Cancelled mid-build: nothing is stored.
		return nil, err
	}

	c.metrics.observeRebuild(time.Since(started).Seconds())
	c.store(key, set)

	c.log.Debug("chunk cache: rebuilt scope",
		slog.String("scope", scope.String()),
		slog.Int("chunks", len(set.Chunks)),
		slog.Bool("embedded", set.HasEmbeddings()),
	)

	return set, nil
}

// Invalidate drops the cached chunk set for the scope. A scope without a
// BookID drops every book-level entry of the course as well.
func (c *ChunkCache) Invalidate(scope Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if scope.BookID != "" {
		c.drop(scope.Key())
		// The course-wide set includes this book's documents.
		c.drop(Scope{CourseID: scope.CourseID}.Key())
		return
	}

	prefix := scope.CourseID + "/"
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.drop(key)
		}
	}
}

// drop removes the entry and its rebuild mutex. The mutex goes with the
// entry so the builds map cannot outgrow the scope bound; a rebuild already
// holding the old mutex simply finishes against a fresh one. Callers hold mu.
func (c *ChunkCache) drop(key string) {
	delete(c.entries, key)
	delete(c.builds, key)
}

// Len returns the number of cached scope entries.
func (c *ChunkCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// lookup returns the cached set for key when its signature matches.
func (c *ChunkCache) lookup(key, sig string) (*ChunkSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.entries[key]
	if !ok || set.Signature != sig {
		return nil, false
	}
	return set, true
}

// buildMutex returns the per-scope rebuild mutex for key, creating it on
// first use.
func (c *ChunkCache) buildMutex(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	mu, ok := c.builds[key]
	if !ok {
		mu = &sync.Mutex{}
		c.builds[key] = mu
	}
	return mu
}

// store inserts the set and evicts the least recently updated entries until
// the scope bound holds.
func (c *ChunkCache) store(key string, set *ChunkSet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = set

	for len(c.entries) > c.cfg.MaxScopes {
		oldestKey := ""
		var oldest time.Time
		for k, e := range c.entries {
			if k == key {
				continue // never evict the entry just built
			}
			if oldestKey == "" || e.UpdatedAt.Before(oldest) {
				oldestKey = k
				oldest = e.UpdatedAt
			}
		}
		if oldestKey == "" {
			break
		}
		c.drop(oldestKey)
		c.metrics.chunkCacheEviction()
	}
}

// build chunks every readable document in the scope and attempts one batched
// embed call over all chunks. Unreadable documents are skipped; an embed
// failure or timeout stores the set without embeddings so ranking falls back
// to the lexical strategy.
func (c *ChunkCache) build(ctx context.Context, scope Scope, docs []Document, sig string) (*ChunkSet, error) {
	set := &ChunkSet{
		Signature: sig,
		UpdatedAt: time.Now(),
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(set.Chunks) >= c.cfg.MaxChunksPerScope {
			c.log.Warn("chunk cache: scope chunk budget reached, truncating",
				slog.String("scope", scope.String()),
				slog.Int("max_chunks", c.cfg.MaxChunksPerScope),
			)
			break
		}

		text, err := doc.Text()
		if err != nil {
			// Partial indexing beats refusing to answer.
			c.log.Warn("chunk cache: skipping unreadable document",
				slog.String("path", doc.Path()),
				slog.String("error", err.Error()),
			)
			continue
		}

		pieces := chunker.Split(text, c.cfg.TargetSize, c.cfg.OverlapRatio)
		for i, piece := range pieces {
			if len(set.Chunks) >= c.cfg.MaxChunksPerScope {
				break
			}
			set.Chunks = append(set.Chunks, Chunk{
				Text:       piece,
				Index:      i,
				SourceName: doc.Name(),
				SourcePath: doc.Path(),
				Scope:      scope,
			})
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.encoder == nil || len(set.Chunks) == 0 {
		return set, nil
	}

	embeddings, err := c.embedAll(ctx, set.Chunks)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.metrics.embedFallback()
		c.log.Warn("chunk cache: embed failed, storing scope in lexical fallback mode",
			slog.String("scope", scope.String()),
			slog.String("error", err.Error()),
		)
		return set, nil
	}
	set.Embeddings = embeddings

	return set, nil
}

// embedAll runs one batched encode over every chunk text, bounded by the
// configured embed timeout.
func (c *ChunkCache) embedAll(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	ectx, cancel := context.WithTimeout(ctx, c.cfg.EmbedTimeout)
	defer cancel()

	embeddings, err := c.encoder.Encode(ectx, texts)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("retrieval: expected %d embeddings, got %d", len(chunks), len(embeddings))
	}
	return embeddings, nil
}
