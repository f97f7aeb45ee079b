package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mailgate/internal/config"
)

// NewRootCmd builds the command tree. Configuration is read from the
// environment before any subcommand runs.
func NewRootCmd() *cobra.Command {
	var cfg config.Config

	root := &cobra.Command{
		Use:           "mailgate",
		Short:         "Authenticated mail relay API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			cfg = loaded
			return nil
		},
	}

	root.AddCommand(newServeCmd(&cfg))
	root.AddCommand(newHashPasswordCmd(&cfg))
	root.AddCommand(newTokenCmd(&cfg))
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
