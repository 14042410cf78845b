package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pietrondo/tutor-rag/internal/audit"
	"github.com/pietrondo/tutor-rag/internal/embedder"
	"github.com/pietrondo/tutor-rag/internal/library"
	"github.com/pietrondo/tutor-rag/internal/retrieval"
)

// NewDiagnoseCmd constructs the `tutorrag diagnose` command, which runs
// pre-flight checks against the configured environment and reports what a
// retrieval would actually use.
func NewDiagnoseCmd() *cobra.Command {
	var course string
	var book string

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Check the configured environment and report problems",
		Long: `Run pre-flight checks: embedding configuration, materials root,
annotation database, and Qdrant connectivity. With --course, also lists how
many material files the scope would contribute.

Examples:
  tutorrag diagnose
  tutorrag diagnose --course calc-101 --book stewart`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()
			failures := 0

			report := func(name string, err error) {
				if err != nil {
					failures++
					fmt.Printf("  FAIL  %-18s %v\n", name, err)
					return
				}
				fmt.Printf("  ok    %s\n", name)
			}

			fmt.Println("Environment:")
			for _, key := range []string{
				"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_API_KEY",
				"QDRANT_HOST", "QDRANT_COLLECTION",
				"TUTOR_MATERIALS_ROOT", "TUTOR_ANNOTATIONS_DB",
			} {
				fmt.Printf("  %-22s %s\n", key, audit.SanitiseKey(key, os.Getenv(key)))
			}
			fmt.Println()

			fmt.Println("Checks:")
			report("embedding config", embedder.Validate(log))

			root := materialsRoot()
			if info, err := os.Stat(root); err != nil {
				report("materials root", fmt.Errorf("%s: %w", root, err))
			} else if !info.IsDir() {
				report("materials root", fmt.Errorf("%s is not a directory", root))
			} else {
				report("materials root", nil)
			}

			if store, err := openAnnotations(); err != nil {
				report("annotations db", err)
			} else {
				report("annotations db", nil)
				_ = store.Close()
			}

			if os.Getenv("QDRANT_HOST") == "" {
				fmt.Println("  skip  qdrant             QDRANT_HOST not set (local retrieval only)")
			} else if idx, err := buildIndex(ctx); err != nil {
				report("qdrant", err)
			} else {
				report("qdrant", nil)
				_ = idx.Close()
			}

			if course != "" {
				scope := retrieval.Scope{CourseID: course, BookID: book}
				docs, err := library.NewStore(root).ListDocuments(ctx, scope)
				if err != nil {
					report("scope listing", err)
				} else {
					fmt.Printf("  ok    scope %-12s %d material file(s)\n", scope, len(docs))
				}
			}

			if failures > 0 {
				return fmt.Errorf("diagnose: %d check(s) failed", failures)
			}
			fmt.Println("\nAll checks passed.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&course, "course", "c", "", "Course identifier to inspect")
	cmd.Flags().StringVarP(&book, "book", "b", "", "Book identifier to inspect")

	return cmd
}
