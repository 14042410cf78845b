package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pietrondo/tutor-rag/internal/retrieval"
)

// NewQueryCmd constructs the `tutorrag query` command, which retrieves the
// most relevant course material passages for a question.
func NewQueryCmd() *cobra.Command {
	var course string
	var book string
	var user string
	var k int
	var withAnnotations bool
	var cached bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Retrieve the most relevant course material for a question",
		Long: `Retrieve the top passages of a course's material for a question,
optionally narrowed to a single book.

With --user and --annotations, the user's shareable personal notes for the
scope are merged ahead of the retrieved passages. With --cached, results are
served from the query cache when a fresh entry exists.

Examples:
  tutorrag query --course calc-101 "what is the chain rule?"
  tutorrag query --course calc-101 --book stewart --k 3 "define a limit"
  tutorrag query --course bio-201 --user maria --annotations "krebs cycle"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()
			question := strings.Join(args, " ")

			scope, err := scopeFromFlags(course, book)
			if err != nil {
				return err
			}

			engine, cleanup, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			defer cleanup()

			opts := retrieval.Options{
				K:                  k,
				UserID:             user,
				IncludeAnnotations: withAnnotations,
			}

			var result retrieval.RetrievalContext
			if cached {
				result, err = engine.RetrieveCached(ctx, question, scope, opts)
			} else {
				result, err = engine.Retrieve(ctx, question, scope, opts)
			}
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			if result.Message != "" {
				fmt.Println(result.Message)
				return nil
			}

			fmt.Println(result.Text)
			fmt.Println()
			fmt.Println("Sources:")
			for _, src := range result.Sources {
				fmt.Printf("  %-40s chunk=%d score=%.3f type=%s\n",
					src.Source, src.ChunkIndex, src.RelevanceScore, src.Type)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&course, "course", "c", "", "Course identifier (required)")
	cmd.Flags().StringVarP(&book, "book", "b", "", "Book identifier (default: whole course)")
	cmd.Flags().StringVarP(&user, "user", "u", "", "User identifier for annotation merging")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of passages to return (default 5)")
	cmd.Flags().BoolVar(&withAnnotations, "annotations", false, "Merge the user's shareable notes ahead of passages")
	cmd.Flags().BoolVar(&cached, "cached", false, "Serve from the query result cache when possible")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")

	return cmd
}
