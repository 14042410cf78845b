// Package index provides the optional external vector-index retrieval path.
// The Qdrant implementation stores every chunk with its scope in the payload
// so queries can be filtered to a (course, book) without separate
// collections. The engine treats any failure here as a fall-through to
// local retrieval, never as a request failure.
package index

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/pietrondo/tutor-rag/internal/retrieval"
)

// Payload field names used in the Qdrant collection.
const (
	fieldText       = "text"
	fieldSource     = "source"
	fieldPath       = "material_path"
	fieldChunkIndex = "chunk_index"
	fieldCourseID   = "course_id"
	fieldBookID     = "book_id"
)

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the stored embeddings.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements retrieval.PrimaryIndex backed by a Qdrant instance.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this index.
	cfg *QdrantConfig
}

// NewQdrantIndex creates a QdrantIndex, ensuring the target collection
// exists (creating it if necessary), and returns a ready-to-use index.
func NewQdrantIndex(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	idx := &QdrantIndex{client: client, cfg: cfg}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return idx, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", q.cfg.Collection, err)
	}

	return nil
}

// scopeFilter builds the payload filter for a scope: always the course, and
// the book when the scope names one.
func scopeFilter(scope retrieval.Scope) *qdrant.Filter {
	must := []*qdrant.Condition{
		qdrant.NewMatch(fieldCourseID, scope.CourseID),
	}
	if scope.BookID != "" {
		must = append(must, qdrant.NewMatch(fieldBookID, scope.BookID))
	}
	return &qdrant.Filter{Must: must}
}

// Query performs a filtered cosine similarity search and returns the top-k
// hits for the scope. Qdrant's own similarity scores are returned untouched.
func (q *QdrantIndex) Query(ctx context.Context, vector []float32, scope retrieval.Scope, k int) ([]retrieval.IndexHit, error) {
	limit := uint64(k)
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         scopeFilter(scope),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	hits := make([]retrieval.IndexHit, 0, len(results))
	for _, r := range results {
		hit := retrieval.IndexHit{Score: float64(r.Score)}
		if p := r.Payload; p != nil {
			if v, ok := p[fieldText]; ok {
				hit.Text = v.GetStringValue()
			}
			if v, ok := p[fieldSource]; ok {
				hit.Source = v.GetStringValue()
			}
			if v, ok := p[fieldPath]; ok {
				hit.MaterialPath = v.GetStringValue()
			}
			if v, ok := p[fieldChunkIndex]; ok {
				hit.ChunkIndex = int(v.GetIntegerValue())
			}
		}
		hits = append(hits, hit)
	}

	return hits, nil
}

// Upsert stores chunks with their pre-computed embeddings. The embeddings
// slice must be parallel to chunks. Point IDs are deterministic, derived
// from (path, chunk index), so re-indexing a scope overwrites in place.
func (q *QdrantIndex) Upsert(ctx context.Context, chunks []retrieval.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("qdrant: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, chunk := range chunks {
		payload := map[string]interface{}{
			fieldText:       chunk.Text,
			fieldSource:     chunk.SourceName,
			fieldPath:       chunk.SourcePath,
			fieldChunkIndex: chunk.Index,
			fieldCourseID:   chunk.Scope.CourseID,
			fieldBookID:     chunk.Scope.BookID,
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(chunkPointID(chunk)),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// DeleteScope removes every stored point belonging to the scope.
func (q *QdrantIndex) DeleteScope(ctx context.Context, scope retrieval.Scope) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.cfg.Collection,
		Points:         qdrant.NewPointsSelectorFilter(scopeFilter(scope)),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete scope %s failed: %w", scope, err)
	}

	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// chunkPointID derives the deterministic UUID for a chunk from its source
// path and index.
func chunkPointID(chunk retrieval.Chunk) string {
	name := fmt.Sprintf("%s#%d", chunk.SourcePath, chunk.Index)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
