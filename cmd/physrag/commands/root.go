// Package commands defines all Cobra CLI commands for the physrag binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/physrag-go/internal/audit"
	"github.com/54b3r/physrag-go/internal/config"
	"github.com/54b3r/physrag-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "physrag",
		Short: "physrag — retrieval-augmented physiology assistant",
		Long: `physrag answers physiology questions over a fixed document corpus.

Documents are chunked with medical-concept awareness, embedded, and stored
in Qdrant; answers are generated from the retrieved context and can be
attributed back to the supporting paragraphs.

Model and embedding providers are selected via MODEL_PROVIDER and
EMBEDDING_PROVIDER environment variables or a YAML config file
(~/.physrag/config.yaml). See 'physrag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
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

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.physrag/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewSearchCmd(),
		NewIngestCmd(),
		NewServeCmd(),
		NewCacheCmd(),
		NewVersionCmd(),
	)

	return root
}
