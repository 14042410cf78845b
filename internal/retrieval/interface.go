package retrieval

import (
	"context"
	"time"
)

// Document is a source file contributed to a scope: its identity, the
// filesystem metadata used to build content signatures, and lazy access to
// its extracted text. Implementations are provided by course/book storage
// and are read-only to this package.
type Document interface {
	// Path is the filesystem path of the source file.
	Path() string

	// Name is the human-readable document name (usually the base filename).
	Name() string

	// ModTime is the source file's last modification time.
	ModTime() time.Time

	// Size is the source file's length in bytes.
	Size() int64

	// Text returns the extracted full text of the document. A read error
	// (e.g. the file was removed after listing) causes the document to be
	// skipped during chunk builds, not a failed retrieval.
	Text() (string, error)
}

// DocumentSource lists the documents contributing to a scope.
// Implementations must be safe to call from multiple goroutines.
type DocumentSource interface {
	// ListDocuments returns every document in the scope. An empty slice
	// means no materials are indexed for the scope — a valid, non-error
	// condition.
	ListDocuments(ctx context.Context, scope Scope) ([]Document, error)
}

// AnnotationSource lists a user's shareable personal notes for a scope.
type AnnotationSource interface {
	// ListShareable returns the user's annotations that are marked
	// shareable and belong to the scope's course.
	ListShareable(ctx context.Context, userID string, scope Scope) ([]Annotation, error)
}

// Encoder converts a batch of texts into dense vector embeddings. The
// returned slice is parallel to the input. Absence or failure of the
// encoder is a recoverable condition: ranking degrades to the lexical
// strategy instead of failing the request.
// Implementations must be safe to call from multiple goroutines.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// IndexHit is one result returned by a PrimaryIndex query. Scores are the
// index's own similarity scores and are treated as authoritative.
type IndexHit struct {
	// Text is the stored chunk text.
	Text string

	// Source is the document name the chunk came from.
	Source string

	// MaterialPath is the source file path, when stored.
	MaterialPath string

	// ChunkIndex is the chunk position within the source document.
	ChunkIndex int

	// Score is the index similarity score (0.0–1.0).
	Score float64
}

// PrimaryIndex is the optional external vector-database retrieval path.
// When configured and reachable it is tried before the local chunk cache;
// any failure makes the engine fall through to local retrieval without
// surfacing the error. This path is a performance optimization, not a
// correctness dependency.
// Implementations must be safe to call from multiple goroutines.
type PrimaryIndex interface {
	// Query searches the index for the top-k chunks in the scope most
	// similar to the query vector.
	Query(ctx context.Context, vector []float32, scope Scope, k int) ([]IndexHit, error)

	// Upsert stores chunks with their pre-computed embeddings. The
	// embeddings slice must be parallel to chunks.
	Upsert(ctx context.Context, chunks []Chunk, embeddings [][]float32) error

	// DeleteScope removes every stored chunk belonging to the scope.
	DeleteScope(ctx context.Context, scope Scope) error

	// Close releases any resources held by the index client.
	Close() error
}
