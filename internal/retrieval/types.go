// Package retrieval implements the retrieval and caching engine of the
// tutoring backend: it turns a natural-language query plus a (course, book)
// scope into a ranked set of text passages with provenance.
//
// The engine composes a per-scope document chunk cache, a two-strategy
// similarity ranker (embedding cosine with a lexical fallback), an optional
// external vector index, an annotation merger, and a TTL query-result cache.
// All collaborators are explicit dependencies injected at construction —
// there is no hidden global state beyond the two caches owned by the Engine.
package retrieval

import (
	"fmt"
	"time"
)

// SourceRef type values.
const (
	// SourceTypeDocument marks a passage retrieved from course material.
	SourceTypeDocument = "document"
	// SourceTypeAnnotation marks a synthetic passage built from a user's
	// shared personal note.
	SourceTypeAnnotation = "user_annotation"
)

// Scope identifies the slice of a course a retrieval targets. An empty
// BookID means the whole course ("all books").
type Scope struct {
	// CourseID is the owning course identifier. Required.
	CourseID string

	// BookID narrows the scope to a single book. Empty means course-wide.
	BookID string
}

// Key returns the canonical cache key for this scope.
func (s Scope) Key() string {
	book := s.BookID
	if book == "" {
		book = "all"
	}
	return s.CourseID + "/" + book
}

// String implements fmt.Stringer for log output.
func (s Scope) String() string {
	if s.BookID == "" {
		return s.CourseID
	}
	return fmt.Sprintf("%s/%s", s.CourseID, s.BookID)
}

// Chunk is one overlapping slice of a source document. Chunks are immutable
// once created; the Index is stable across re-runs on unchanged text.
type Chunk struct {
	// Text is the chunk content after normalization.
	Text string

	// Index is the position of this chunk within its source document.
	Index int

	// SourceName is the human-readable name of the source document.
	SourceName string

	// SourcePath is the filesystem path of the source document.
	SourcePath string

	// Scope is the (course, book) the chunk belongs to.
	Scope Scope
}

// ChunkSet is the cached chunking of one scope's documents, optionally with
// precomputed embeddings. Invariant: Embeddings is either nil (lexical
// fallback mode) or exactly parallel to Chunks.
type ChunkSet struct {
	// Chunks holds all chunks for the scope in document order.
	Chunks []Chunk

	// Embeddings is parallel to Chunks, or nil when the embed step failed
	// or no encoder is configured.
	Embeddings [][]float32

	// Signature is the content signature of the contributing documents;
	// a mismatch against freshly listed documents forces a rebuild.
	Signature string

	// UpdatedAt is when this set was built, used for LRU eviction.
	UpdatedAt time.Time
}

// HasEmbeddings reports whether this set carries a usable embedding per
// chunk. When false the ranker must use the lexical strategy.
func (cs *ChunkSet) HasEmbeddings() bool {
	return cs != nil && len(cs.Embeddings) == len(cs.Chunks) && len(cs.Embeddings) > 0
}

// RankedResult pairs a chunk with its relevance score. Produced transiently
// by the ranker; never persisted.
type RankedResult struct {
	// Chunk is the ranked chunk.
	Chunk Chunk

	// Score is the similarity score in [0, 1] for the selected strategy.
	Score float64
}

// SourceRef carries the provenance of one passage in a RetrievalContext.
type SourceRef struct {
	// Source is the document name or annotation label the passage came from.
	Source string `json:"source"`

	// ChunkIndex is the chunk position within the source document.
	// Zero for annotations.
	ChunkIndex int `json:"chunk_index"`

	// RelevanceScore is the rounded similarity score; annotations are
	// always 1.0 so they rank above retrieved passages.
	RelevanceScore float64 `json:"relevance_score"`

	// CourseID is the owning course.
	CourseID string `json:"course_id"`

	// BookID is the owning book, empty for course-wide material.
	BookID string `json:"book_id,omitempty"`

	// MaterialPath is the source file path, when known.
	MaterialPath string `json:"material_path,omitempty"`

	// Type is SourceTypeDocument or SourceTypeAnnotation.
	Type string `json:"type"`
}

// RetrievalContext is the externally visible retrieval result: the joined
// passages, their provenance, and the scope they were drawn from.
type RetrievalContext struct {
	// Text is the concatenation of the selected passages.
	Text string `json:"text"`

	// Sources lists the provenance of each passage, in passage order.
	Sources []SourceRef `json:"sources"`

	// Scope is the (course, book) the query targeted.
	Scope Scope `json:"scope"`

	// Message is a human-readable note set when the result is empty
	// (e.g. no materials indexed for the scope). Empty on success.
	Message string `json:"message,omitempty"`
}

// Clone returns a deep copy of the context. Cached entries are always
// cloned before being handed to callers so that annotation merging can
// never corrupt the cached base result.
func (rc *RetrievalContext) Clone() RetrievalContext {
	out := RetrievalContext{
		Text:    rc.Text,
		Scope:   rc.Scope,
		Message: rc.Message,
	}
	if rc.Sources != nil {
		out.Sources = make([]SourceRef, len(rc.Sources))
		copy(out.Sources, rc.Sources)
	}
	return out
}

// Annotation is a personal note a student attached to course material.
// Only annotations marked Shareable are ever merged into retrieval results.
type Annotation struct {
	// ID is the annotation identifier.
	ID string

	// UserID is the owning student.
	UserID string

	// CourseID is the course the note belongs to. Required.
	CourseID string

	// BookID scopes the note to one book; empty means course-wide.
	BookID string

	// Page is the page number the note refers to.
	Page int

	// SelectedText is the passage the student highlighted.
	SelectedText string

	// Content is the note body.
	Content string

	// Tags are free-form labels attached to the note.
	Tags []string

	// Shareable marks the note as usable in retrieval results.
	Shareable bool

	// CreatedAt is when the note was stored.
	CreatedAt time.Time
}
