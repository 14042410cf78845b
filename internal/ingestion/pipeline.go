// Package ingestion populates the primary vector index from course
// materials. It reads a scope's documents from the library, chunks the
// content, encodes each chunk, and upserts the results into the index.
// This pipeline is invoked by the `tutorrag index` CLI command.
package ingestion

import (
	"context"
	"fmt"

	"github.com/pietrondo/tutor-rag/internal/chunker"
	"github.com/pietrondo/tutor-rag/internal/retrieval"
)

// ScopeInvalidator drops cached state for a scope after its index contents
// change. The retrieval engine satisfies this.
type ScopeInvalidator interface {
	InvalidateScope(scope retrieval.Scope)
}

// Config holds the configuration for the indexing pipeline.
type Config struct {
	// ChunkSize is the target number of characters per chunk.
	// Defaults to the chunker default if zero.
	ChunkSize int

	// OverlapRatio is the fraction of each chunk repeated at the start of
	// the next. Defaults to the chunker default if zero.
	OverlapRatio float64

	// EncodeBatch is the maximum number of chunks per encode request.
	// Defaults to 64 if zero.
	EncodeBatch int
}

// Pipeline orchestrates the list → chunk → encode → upsert flow for a scope.
type Pipeline struct {
	// documents lists the scope's source material.
	documents retrieval.DocumentSource

	// encoder converts chunk text into dense vector embeddings.
	encoder retrieval.Encoder

	// index persists the encoded chunks.
	index retrieval.PrimaryIndex

	// invalidator drops stale cached results after an upsert. Optional.
	invalidator ScopeInvalidator

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(documents retrieval.DocumentSource, encoder retrieval.Encoder, index retrieval.PrimaryIndex, invalidator ScopeInvalidator, cfg *Config) (*Pipeline, error) {
	if documents == nil {
		return nil, fmt.Errorf("ingestion: document source must not be nil")
	}
	if encoder == nil {
		return nil, fmt.Errorf("ingestion: encoder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("ingestion: index must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultTargetSize
	}
	if cfg.OverlapRatio <= 0 || cfg.OverlapRatio >= 1 {
		cfg.OverlapRatio = chunker.DefaultOverlapRatio
	}
	if cfg.EncodeBatch <= 0 {
		cfg.EncodeBatch = 64
	}

	return &Pipeline{
		documents:   documents,
		encoder:     encoder,
		index:       index,
		invalidator: invalidator,
		cfg:         cfg,
	}, nil
}

// IndexScope chunks, encodes, and upserts every document in the scope, then
// invalidates cached results for it. It returns the number of chunks stored.
// Progress is reported via the optional progress callback.
func (p *Pipeline) IndexScope(ctx context.Context, scope retrieval.Scope, progress func(msg string)) (int, error) {
	if progress == nil {
		progress = func(string) {}
	}

	docs, err := p.documents.ListDocuments(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("ingestion: list documents for %s: %w", scope, err)
	}
	if len(docs) == 0 {
		progress(fmt.Sprintf("no materials found for %s", scope))
		return 0, nil
	}

	var chunks []retrieval.Chunk
	for _, doc := range docs {
		text, err := doc.Text()
		if err != nil {
			return 0, fmt.Errorf("ingestion: read %s: %w", doc.Path(), err)
		}
		pieces := chunker.Split(chunker.Normalize(text), p.cfg.ChunkSize, p.cfg.OverlapRatio)
		for i, piece := range pieces {
			chunks = append(chunks, retrieval.Chunk{
				Text:       piece,
				Index:      i,
				SourceName: doc.Name(),
				SourcePath: doc.Path(),
				Scope:      scope,
			})
		}
		progress(fmt.Sprintf("chunked %s into %d chunks", doc.Name(), len(pieces)))
	}

	for start := 0; start < len(chunks); start += p.cfg.EncodeBatch {
		end := min(start+p.cfg.EncodeBatch, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		embeddings, err := p.encoder.Encode(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("ingestion: encode batch for %s: %w", scope, err)
		}
		if err := p.index.Upsert(ctx, batch, embeddings); err != nil {
			return 0, fmt.Errorf("ingestion: upsert batch for %s: %w", scope, err)
		}
		progress(fmt.Sprintf("stored %d/%d chunks", end, len(chunks)))
	}

	if p.invalidator != nil {
		p.invalidator.InvalidateScope(scope)
	}

	return len(chunks), nil
}

// DropScope removes the scope's chunks from the index and invalidates its
// cached results.
func (p *Pipeline) DropScope(ctx context.Context, scope retrieval.Scope) error {
	if err := p.index.DeleteScope(ctx, scope); err != nil {
		return fmt.Errorf("ingestion: drop %s: %w", scope, err)
	}
	if p.invalidator != nil {
		p.invalidator.InvalidateScope(scope)
	}
	return nil
}
