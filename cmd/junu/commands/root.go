// Package commands defines all Cobra CLI commands for the junu binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/junu-go/internal/audit"
	"github.com/54b3r/junu-go/internal/config"
	"github.com/54b3r/junu-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "junu",
		Short: "Junu, a Nepali assistant for government services",
		Long: `Junu answers questions about Nepali government services (citizenship,
land registration, passports and similar) from a local document collection.

Documents under the data directory are chunked and embedded into a vector
index; questions are answered by a chat model grounded on the most relevant
chunks. Answers can be spoken and questions can be asked by voice.

Configuration comes from environment variables, a .env file and an optional
YAML file (junu.yaml or ~/.junu/config.yaml), in that order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			// Logging settings may come from the file just loaded.
			log = logging.New()
			cmd.SetContext(logging.WithLogger(cmd.Context(), log))
			audit.LogCommandStart(cmd.Context(), log, cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: junu.yaml or ~/.junu/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewAskCmd(),
		NewChatCmd(),
		NewSearchCmd(),
		NewEvalCmd(),
		NewTranscribeCmd(),
		NewSpeakCmd(),
		NewVersionCmd(),
	)

	return root
}
