package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

// MessageNoMaterials is set on the empty result returned when a scope has no
// indexed documents. Callers must treat this as "no context", not a failure.
const MessageNoMaterials = "no materials indexed for this scope"

// MessageNoRelevantPassages is set on the empty result returned when chunks
// exist but none pass ranking.
const MessageNoRelevantPassages = "no relevant passages found for this query"

// DefaultTopK is the result count used when the caller passes k <= 0.
const DefaultTopK = 5

// Serving-path label values for metrics.
const (
	pathPrimary = "primary"
	pathLocal   = "local"
)

// Options tunes one retrieval call.
type Options struct {
	// K is the number of passages to return. Zero selects DefaultTopK.
	K int

	// UserID enables annotation merging for this user. Empty disables it.
	UserID string

	// IncludeAnnotations requests merging the user's shared notes ahead of
	// the retrieved passages. Requires UserID.
	IncludeAnnotations bool
}

// EngineConfig wires an Engine's collaborators. ChunkCache and Documents are
// required; everything else is optional and disables its feature when nil.
type EngineConfig struct {
	// ChunkCache is the per-scope document chunk cache. Required.
	ChunkCache *ChunkCache

	// QueryCache is the second-tier result cache used by RetrieveCached.
	// Nil degrades RetrieveCached to always-compute.
	QueryCache *QueryCache

	// Index is the optional external vector index tried before local
	// retrieval. Requires Encoder to be usable.
	Index PrimaryIndex

	// Encoder embeds queries for the embedding strategy and the primary
	// index path. Nil selects the lexical strategy for every call.
	Encoder Encoder

	// Documents lists the source documents per scope. Required.
	Documents DocumentSource

	// Annotations lists a user's shareable notes. Nil disables merging.
	Annotations AnnotationSource

	// QueryEmbedTimeout bounds the per-request query embed call; on expiry
	// the request degrades to the lexical strategy. Zero selects 10s.
	QueryEmbedTimeout time.Duration

	// Logger receives degraded-path warnings. Nil selects slog.Default.
	Logger *slog.Logger

	// Metrics instruments the engine and caches. May be nil.
	Metrics *Metrics
}

// Engine composes the retrieval pipeline: try the primary index, else rank
// over the local chunk cache, merge annotations, and optionally wrap the
// whole computation with the query-result cache.
//
// An Engine is an explicit service value constructed once at process start
// and passed by reference; it holds no hidden global state.
type Engine struct {
	chunks            *ChunkCache
	queries           *QueryCache
	index             PrimaryIndex
	encoder           Encoder
	docs              DocumentSource
	annotations       AnnotationSource
	queryEmbedTimeout time.Duration
	log               *slog.Logger
	metrics           *Metrics
}

// NewEngine validates cfg and constructs an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.ChunkCache == nil {
		return nil, fmt.Errorf("retrieval: chunk cache must not be nil")
	}
	if cfg.Documents == nil {
		return nil, fmt.Errorf("retrieval: document source must not be nil")
	}
	if cfg.QueryEmbedTimeout <= 0 {
		cfg.QueryEmbedTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		chunks:            cfg.ChunkCache,
		queries:           cfg.QueryCache,
		index:             cfg.Index,
		encoder:           cfg.Encoder,
		docs:              cfg.Documents,
		annotations:       cfg.Annotations,
		queryEmbedTimeout: cfg.QueryEmbedTimeout,
		log:               cfg.Logger,
		metrics:           cfg.Metrics,
	}, nil
}

// Retrieve answers query within scope and returns the ranked passages with
// provenance. An empty scope yields an empty context with a descriptive
// Message, not an error; the only propagated errors are caller cancellation
// and document source failures.
func (e *Engine) Retrieve(ctx context.Context, query string, scope Scope, opts Options) (RetrievalContext, error) {
	base, err := e.retrieveBase(ctx, query, scope, resolveK(opts.K))
	if err != nil {
		return RetrievalContext{}, err
	}
	return e.mergeUserAnnotations(ctx, base, opts)
}

// RetrieveCached is Retrieve with the base computation (primary index or
// local ranking) wrapped by the query-result cache. Annotation merging runs
// freshly per request, after the cache, so a cached base result is never
// mutated and never carries another user's notes.
func (e *Engine) RetrieveCached(ctx context.Context, query string, scope Scope, opts Options) (RetrievalContext, error) {
	if e.queries == nil {
		return e.Retrieve(ctx, query, scope, opts)
	}

	k := resolveK(opts.K)
	key := QueryKey(query, scope, k, string(e.strategy()))

	base, err := e.queries.GetOrCompute(ctx, key, func(cctx context.Context) (RetrievalContext, error) {
		return e.retrieveBase(cctx, query, scope, k)
	})
	if err != nil {
		return RetrievalContext{}, err
	}

	return e.mergeUserAnnotations(ctx, base, opts)
}

// InvalidateScope drops all cached state for a course or a single book:
// the scope's chunk sets and every query result the change could affect.
// Upload, delete, and reindex workflows call this.
func (e *Engine) InvalidateScope(scope Scope) {
	e.chunks.Invalidate(scope)

	if e.queries == nil {
		return
	}
	if scope.BookID == "" {
		e.queries.InvalidateByPattern(scope.CourseID + "/")
		return
	}
	// Book-level change: drop the book's entries and the course-wide
	// entries that include this book's material.
	e.queries.InvalidateByPattern(scope.Key())
	e.queries.InvalidateByPattern(Scope{CourseID: scope.CourseID}.Key())
}

// strategy reports which ranking strategy this engine's configuration
// selects. It is a pure function of encoder availability and is baked into
// query cache keys.
func (e *Engine) strategy() Strategy {
	if e.encoder != nil {
		return StrategyEmbedding
	}
	return StrategyLexical
}

// retrieveBase runs the pipeline through ranking: TryPrimary → TryLocal.
// Annotation merging is applied by the callers, after any caching.
func (e *Engine) retrieveBase(ctx context.Context, query string, scope Scope, k int) (RetrievalContext, error) {
	if rc, ok := e.tryPrimary(ctx, query, scope, k); ok {
		e.metrics.observeRetrieval(pathPrimary, "ok")
		return rc, nil
	}
	if err := ctx.Err(); err != nil {
		return RetrievalContext{}, err
	}

	rc, err := e.tryLocal(ctx, query, scope, k)
	if err != nil {
		e.metrics.observeRetrieval(pathLocal, "error")
		return RetrievalContext{}, err
	}
	if rc.Message != "" {
		e.metrics.observeRetrieval(pathLocal, "empty")
	} else {
		e.metrics.observeRetrieval(pathLocal, "ok")
	}
	return rc, nil
}

// tryPrimary queries the external vector index when one is configured. Any
// failure — no encoder, embed error, index error, empty result — returns
// ok=false so the engine falls through to local retrieval; the error is
// logged, never surfaced.
func (e *Engine) tryPrimary(ctx context.Context, query string, scope Scope, k int) (RetrievalContext, bool) {
	if e.index == nil || e.encoder == nil {
		return RetrievalContext{}, false
	}

	vec, err := e.encodeQuery(ctx, query)
	if err != nil {
		if ctx.Err() == nil {
			e.log.Warn("retrieval: primary index skipped, query embed failed",
				slog.String("scope", scope.String()),
				slog.String("error", err.Error()),
			)
		}
		return RetrievalContext{}, false
	}

	hits, err := e.index.Query(ctx, vec, scope, k)
	if err != nil {
		if ctx.Err() == nil {
			e.log.Warn("retrieval: primary index query failed, falling back to local",
				slog.String("scope", scope.String()),
				slog.String("error", err.Error()),
			)
		}
		return RetrievalContext{}, false
	}
	if len(hits) == 0 {
		return RetrievalContext{}, false
	}

	texts := make([]string, 0, len(hits))
	sources := make([]SourceRef, 0, len(hits))
	for _, hit := range hits {
		texts = append(texts, hit.Text)
		sources = append(sources, SourceRef{
			Source:         hit.Source,
			ChunkIndex:     hit.ChunkIndex,
			RelevanceScore: roundScore(hit.Score),
			CourseID:       scope.CourseID,
			BookID:         scope.BookID,
			MaterialPath:   hit.MaterialPath,
			Type:           SourceTypeDocument,
		})
	}

	return RetrievalContext{
		Text:    strings.Join(texts, "\n\n"),
		Sources: sources,
		Scope:   scope,
	}, true
}

// tryLocal ranks over the scope's chunk cache. Strategy selection is a
// visible branch: embeddings when the set and the encoder allow it, the
// lexical fallback otherwise — never a mix.
func (e *Engine) tryLocal(ctx context.Context, query string, scope Scope, k int) (RetrievalContext, error) {
	docs, err := e.docs.ListDocuments(ctx, scope)
	if err != nil {
		return RetrievalContext{}, fmt.Errorf("retrieval: listing documents for %s: %w", scope, err)
	}
	if len(docs) == 0 {
		return RetrievalContext{Scope: scope, Message: MessageNoMaterials}, nil
	}

	set, err := e.chunks.GetOrBuild(ctx, scope, docs)
	if err != nil {
		return RetrievalContext{}, err
	}
	if len(set.Chunks) == 0 {
		return RetrievalContext{Scope: scope, Message: MessageNoMaterials}, nil
	}

	var results []RankedResult
	if e.encoder != nil && set.HasEmbeddings() {
		vec, encErr := e.encodeQuery(ctx, query)
		switch {
		case encErr == nil:
			results = Embedding(vec, set, k)
		case ctx.Err() != nil:
			return RetrievalContext{}, ctx.Err()
		default:
			e.metrics.embedFallback()
			e.log.Warn("retrieval: query embed failed, using lexical ranking",
				slog.String("scope", scope.String()),
				slog.String("error", encErr.Error()),
			)
			results = Lexical(query, set, k)
		}
	} else {
		results = Lexical(query, set, k)
	}

	if len(results) == 0 {
		return RetrievalContext{Scope: scope, Message: MessageNoRelevantPassages}, nil
	}

	texts := make([]string, 0, len(results))
	sources := make([]SourceRef, 0, len(results))
	for _, r := range results {
		texts = append(texts, r.Chunk.Text)
		sources = append(sources, SourceRef{
			Source:         r.Chunk.SourceName,
			ChunkIndex:     r.Chunk.Index,
			RelevanceScore: roundScore(r.Score),
			CourseID:       scope.CourseID,
			BookID:         scope.BookID,
			MaterialPath:   r.Chunk.SourcePath,
			Type:           SourceTypeDocument,
		})
	}

	return RetrievalContext{
		Text:    strings.Join(texts, "\n\n"),
		Sources: sources,
		Scope:   scope,
	}, nil
}

// mergeUserAnnotations applies the annotation merger when the caller asked
// for it and an annotation source is configured. Listing failures degrade
// to the unmerged base result.
func (e *Engine) mergeUserAnnotations(ctx context.Context, base RetrievalContext, opts Options) (RetrievalContext, error) {
	if !opts.IncludeAnnotations || opts.UserID == "" || e.annotations == nil {
		return base, nil
	}

	notes, err := e.annotations.ListShareable(ctx, opts.UserID, base.Scope)
	if err != nil {
		if ctx.Err() != nil {
			return RetrievalContext{}, ctx.Err()
		}
		e.log.Warn("retrieval: annotation listing failed, returning base result",
			slog.String("user", opts.UserID),
			slog.String("error", err.Error()),
		)
		return base, nil
	}

	return MergeAnnotations(base, notes), nil
}

// encodeQuery embeds the query text, bounded by the query embed timeout.
func (e *Engine) encodeQuery(ctx context.Context, query string) ([]float32, error) {
	ectx, cancel := context.WithTimeout(ctx, e.queryEmbedTimeout)
	defer cancel()

	vecs, err := e.encoder.Encode(ectx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("retrieval: encoder returned no vector for query")
	}
	return vecs[0], nil
}

// resolveK applies the default result count.
func resolveK(k int) int {
	if k <= 0 {
		return DefaultTopK
	}
	return k
}

// roundScore rounds a relevance score to three decimals for presentation.
func roundScore(s float64) float64 {
	return math.Round(s*1000) / 1000
}
