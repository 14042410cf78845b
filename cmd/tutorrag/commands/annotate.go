package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pietrondo/tutor-rag/internal/retrieval"
)

// NewAnnotateCmd constructs the `tutorrag annotate` command, which stores a
// personal note against a course or book.
func NewAnnotateCmd() *cobra.Command {
	var user string
	var course string
	var book string
	var page int
	var selected string
	var tags []string
	var shareable bool

	cmd := &cobra.Command{
		Use:   "annotate [note]",
		Short: "Store a personal note for a course or book",
		Long: `Store a personal annotation in the local annotation database
(TUTOR_ANNOTATIONS_DB, default ~/.tutor-rag/annotations.db).

Notes marked --shareable are merged ahead of retrieved passages when
querying with --annotations.

Examples:
  tutorrag annotate --user maria --course calc-101 --book stewart --page 42 \
      --selected "the chain rule" --shareable "differentiate outside-in"
  tutorrag annotate --user maria --course bio-201 --tag exam "revisit krebs cycle"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			if user == "" || course == "" {
				return fmt.Errorf("annotate: --user and --course are required")
			}

			store, err := openAnnotations()
			if err != nil {
				return fmt.Errorf("annotate: %w", err)
			}
			defer store.Close()

			stored, err := store.Add(ctx, retrieval.Annotation{
				UserID:       user,
				CourseID:     course,
				BookID:       book,
				Page:         page,
				SelectedText: selected,
				Content:      args[0],
				Tags:         tags,
				Shareable:    shareable,
			})
			if err != nil {
				return fmt.Errorf("annotate: %w", err)
			}

			log.Info("annotation stored",
				slog.String("id", stored.ID),
				slog.String("course", course),
				slog.Bool("shareable", shareable),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "Owning user identifier (required)")
	cmd.Flags().StringVarP(&course, "course", "c", "", "Course identifier (required)")
	cmd.Flags().StringVarP(&book, "book", "b", "", "Book identifier (default: course-wide)")
	cmd.Flags().IntVarP(&page, "page", "p", 0, "Page number the note refers to")
	cmd.Flags().StringVarP(&selected, "selected", "s", "", "Passage the note highlights")
	cmd.Flags().StringArrayVarP(&tags, "tag", "t", nil, "Free-form label (repeatable)")
	cmd.Flags().BoolVar(&shareable, "shareable", false, "Allow the note to appear in retrieval results")

	return cmd
}
