package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pietrondo/tutor-rag/internal/ingestion"
	"github.com/pietrondo/tutor-rag/internal/library"
)

// NewIndexCmd constructs the `tutorrag index` command, which populates the
// Qdrant vector index with a scope's course material.
func NewIndexCmd() *cobra.Command {
	var course string
	var book string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index a scope's course material into the vector index",
		Long: `Chunk, embed, and store a course's (or single book's) material in the
Qdrant vector index, then invalidate any cached results for the scope.

Required environment variables:
  QDRANT_HOST           Qdrant server hostname
  QDRANT_PORT           Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION     Collection name (default: tutor_chunks)
  EMBEDDING_PROVIDER    Embedding backend: ollama, openai, azure (default: ollama)
  TUTOR_MATERIALS_ROOT  Course material root (default: ./materials)

Examples:
  tutorrag index --course calc-101
  tutorrag index --course calc-101 --book stewart`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			scope, err := scopeFromFlags(course, book)
			if err != nil {
				return err
			}

			enc, err := buildEncoder(log)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			if enc == nil {
				return fmt.Errorf("index: the vector index requires an embedding backend, but EMBEDDING_PROVIDER is none")
			}

			idx, err := buildIndex(ctx)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			if idx == nil {
				return fmt.Errorf("index: QDRANT_HOST is not set")
			}
			defer idx.Close()

			pipeline, err := ingestion.NewPipeline(
				library.NewStore(materialsRoot()), enc, idx, nil,
				&ingestion.Config{
					ChunkSize:    getEnvInt("RETRIEVAL_CHUNK_SIZE", 0),
					OverlapRatio: getEnvFloat("RETRIEVAL_OVERLAP_RATIO", 0),
				},
			)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			log.Info("indexing scope", slog.String("scope", scope.String()))
			n, err := pipeline.IndexScope(ctx, scope, func(msg string) {
				log.Info(msg)
			})
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			log.Info("indexing complete", slog.String("scope", scope.String()), slog.Int("chunks", n))
			return nil
		},
	}

	cmd.Flags().StringVarP(&course, "course", "c", "", "Course identifier (required)")
	cmd.Flags().StringVarP(&book, "book", "b", "", "Book identifier (default: whole course)")

	return cmd
}
