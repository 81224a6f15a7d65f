// Package config holds the `pgstate config` subcommands.
package config

import "github.com/spf13/cobra"

// Cmd groups show, validate and schema under `pgstate config`.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and check the component configuration",
	Long: `Work with the pgstate YAML configuration.

The effective configuration merges the file (--config or the default path),
PGSTATE_* environment variables and built-in defaults. Create a starting file
with 'pgstate init'.`,
}

func init() {
	Cmd.AddCommand(showCmd, validateCmd, schemaCmd)
}
