package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pietrondo/tutor-rag/internal/embedder"
	"github.com/pietrondo/tutor-rag/internal/index"
	"github.com/pietrondo/tutor-rag/internal/library"
	"github.com/pietrondo/tutor-rag/internal/retrieval"
)

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat returns the float value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration returns the duration value of the named environment
// variable, or fallback if the variable is unset, empty, or not parseable.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// scopeFromFlags builds the retrieval scope for --course/--book values.
func scopeFromFlags(course, book string) (retrieval.Scope, error) {
	if course == "" {
		return retrieval.Scope{}, fmt.Errorf("--course is required")
	}
	return retrieval.Scope{CourseID: course, BookID: book}, nil
}

// buildEncoder validates the embedding environment and constructs the
// encoder. A nil encoder (EMBEDDING_PROVIDER=none) is a valid result and
// selects the lexical ranking strategy everywhere.
func buildEncoder(log *slog.Logger) (retrieval.Encoder, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	return embedder.NewFromEnv()
}

// buildIndex connects to Qdrant when QDRANT_HOST is set. Without it, the
// engine runs purely on the local chunk cache.
func buildIndex(ctx context.Context) (retrieval.PrimaryIndex, error) {
	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		return nil, nil
	}
	backend := getEnvOrDefault("EMBEDDING_PROVIDER", "ollama")
	return index.NewQdrantIndex(ctx, &index.QdrantConfig{
		Host:       host,
		Port:       getEnvInt("QDRANT_PORT", 6334),
		Collection: getEnvOrDefault("QDRANT_COLLECTION", "tutor_chunks"),
		VectorSize: uint64(embedder.DefaultDimensions(backend)),
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
}

// materialsRoot resolves the course material root directory.
func materialsRoot() string {
	return getEnvOrDefault("TUTOR_MATERIALS_ROOT", "./materials")
}

// openAnnotations opens the annotation store at the configured (or default)
// path.
func openAnnotations() (*library.AnnotationStore, error) {
	path := os.Getenv("TUTOR_ANNOTATIONS_DB")
	if path == "" {
		var err error
		path, err = library.DefaultAnnotationsDBPath()
		if err != nil {
			return nil, err
		}
	}
	return library.OpenAnnotations(path)
}

// buildEngine wires the full retrieval engine from the environment. The
// returned cleanup closes the index connection and annotation store.
func buildEngine(ctx context.Context, log *slog.Logger) (*retrieval.Engine, func(), error) {
	enc, err := buildEncoder(log)
	if err != nil {
		return nil, nil, err
	}

	idx, err := buildIndex(ctx)
	if err != nil {
		// The primary index is an optimization; a connection failure must
		// not take retrieval down with it.
		log.Warn("primary index unavailable, continuing with local retrieval", slog.Any("error", err))
		idx = nil
	}

	annotations, err := openAnnotations()
	if err != nil {
		return nil, nil, err
	}

	metrics := retrieval.NewMetrics(prometheus.NewRegistry())
	chunkCache := retrieval.NewChunkCache(enc, retrieval.ChunkCacheConfig{
		MaxScopes:         getEnvInt("RETRIEVAL_MAX_CACHED_SCOPES", 0),
		MaxChunksPerScope: getEnvInt("RETRIEVAL_MAX_CHUNKS_PER_SCOPE", 0),
		TargetSize:        getEnvInt("RETRIEVAL_CHUNK_SIZE", 0),
		OverlapRatio:      getEnvFloat("RETRIEVAL_OVERLAP_RATIO", 0),
		EmbedTimeout:      getEnvDuration("RETRIEVAL_EMBED_TIMEOUT", 0),
	}, log, metrics)
	queryCache := retrieval.NewQueryCache(getEnvDuration("RETRIEVAL_QUERY_CACHE_TTL", 0), metrics)

	engine, err := retrieval.NewEngine(retrieval.EngineConfig{
		ChunkCache:  chunkCache,
		QueryCache:  queryCache,
		Index:       idx,
		Encoder:     enc,
		Documents:   library.NewStore(materialsRoot()),
		Annotations: annotations,
		Logger:      log,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if idx != nil {
			_ = idx.Close()
		}
		_ = annotations.Close()
	}
	return engine, cleanup, nil
}
