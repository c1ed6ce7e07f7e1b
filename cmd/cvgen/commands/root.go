// Package commands defines all Cobra CLI commands for the cvgen binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/cvgen-go/internal/audit"
	"github.com/54b3r/cvgen-go/internal/config"
	"github.com/54b3r/cvgen-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cvgen",
		Short: "cvgen: retrieval-augmented CV generation",
		Long: `cvgen builds a vector index over a directory of PDF and text documents
and uses a text-generation model to write a CV grounded in them.

Typical flow:
  cvgen index              # load, chunk and embed DATA_DIR into the index
  cvgen generate           # retrieve context and write generated_cv.txt

Configuration comes from environment variables, a .env file and an optional
YAML config file (~/.cvgen/config.yaml or ./cvgen.yaml). Environment
variables always win.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			// Config may have changed LOG_LEVEL / LOG_FORMAT.
			log = logging.New()
			cmd.SetContext(logging.WithLogger(cmd.Context(), log))
			audit.LogCommandStart(cmd.Context(), log, cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.cvgen/config.yaml)")

	root.AddCommand(
		NewIndexCmd(),
		NewGenerateCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
