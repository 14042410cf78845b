// Package commands defines all Cobra CLI commands for the tutorrag binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pietrondo/tutor-rag/internal/audit"
	"github.com/pietrondo/tutor-rag/internal/config"
	"github.com/pietrondo/tutor-rag/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tutorrag",
		Short: "tutor-rag — retrieval and caching engine for course material",
		Long: `tutor-rag retrieves the most relevant passages of a student's course
material for a question, scoped to a course or a single book.

Material lives as extracted .txt files under the materials root
(TUTOR_MATERIALS_ROOT), personal annotations in a local SQLite database,
and an optional Qdrant vector index accelerates semantic search.

Embedding backend is selected via the EMBEDDING_PROVIDER environment
variable or a YAML config file (~/.tutor-rag/config.yaml).
See 'tutorrag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A local .env is a convenience for development; absence is fine.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.tutor-rag/config.yaml)")

	root.AddCommand(
		NewQueryCmd(),
		NewIndexCmd(),
		NewInvalidateCmd(),
		NewAnnotateCmd(),
		NewDiagnoseCmd(),
		NewVersionCmd(),
	)

	return root
}
