// Package commands defines all Cobra CLI commands for the ragchat binary.
package commands

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/54b3r/ragchat-go/internal/audit"
	"github.com/54b3r/ragchat-go/internal/config"
	"github.com/54b3r/ragchat-go/internal/logging"
)

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "ragchat",
		Short: "ragchat answers questions grounded in your own documents",
		Long: `ragchat is a chat service that grounds language model answers in
uploaded documents. Documents are split into overlapping fragments, embedded,
and held in an in-memory index; each chat turn retrieves the most similar
fragments and passes them to the model as context.

Configuration is read from a .env file in the working directory, then a YAML
config file (~/.ragchat/config.yaml), then environment variables. Environment
variables always win.
See 'ragchat --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Existing environment variables are never overwritten by .env.
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("ragchat: load .env: %w", err)
			}

			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			audit.LogCommandStart(cmd.Context(), log, cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.ragchat/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewAskCmd(),
		NewChunkCmd(),
		NewSearchCmd(),
		NewVersionCmd(),
	)

	return root
}
