// Package commands implements the pgstate command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/pgstate/cmd/pgstate/commands/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "pgstate",
	Short: "pgstate - PostgreSQL state store for Dapr",
	Long: `pgstate is a Dapr pluggable state store backed by PostgreSQL.

It serves the StateStore and TransactionalStateStore gRPC services on a Unix
socket the Dapr sidecar discovers, with optional per-tenant schema or table
isolation, optimistic concurrency through etags and multi-key transactions.

Use "pgstate [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/pgstate/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
