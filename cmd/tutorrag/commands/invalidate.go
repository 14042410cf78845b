package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// NewInvalidateCmd constructs the `tutorrag invalidate` command, which drops
// a scope's entries from the vector index so stale material stops being
// served.
func NewInvalidateCmd() *cobra.Command {
	var course string
	var book string

	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Remove a scope's entries from the vector index",
		Long: `Remove every stored chunk for a course (or single book) from the Qdrant
vector index. Run this after material is removed, or before re-indexing a
scope from scratch. In-process caches are scoped to each running engine and
are invalidated automatically on re-index.

Examples:
  tutorrag invalidate --course calc-101
  tutorrag invalidate --course calc-101 --book stewart`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			scope, err := scopeFromFlags(course, book)
			if err != nil {
				return err
			}

			idx, err := buildIndex(ctx)
			if err != nil {
				return fmt.Errorf("invalidate: %w", err)
			}
			if idx == nil {
				return fmt.Errorf("invalidate: QDRANT_HOST is not set")
			}
			defer idx.Close()

			if err := idx.DeleteScope(ctx, scope); err != nil {
				return fmt.Errorf("invalidate: %w", err)
			}

			log.Info("scope removed from index", slog.String("scope", scope.String()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&course, "course", "c", "", "Course identifier (required)")
	cmd.Flags().StringVarP(&book, "book", "b", "", "Book identifier (default: whole course)")

	return cmd
}
