package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/pgstate/internal/cli/output"
	"github.com/marmos91/pgstate/pkg/config"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Display the effective pgstate configuration: the file merged with
PGSTATE_* environment overrides and defaults.

By default outputs YAML format. Use --output to change format.

Examples:
  # Show default config as YAML
  pgstate config show

  # Show as JSON
  pgstate config show --output json

  # Show specific config file
  pgstate config show --config /etc/pgstate/config.yaml`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}
	if format == output.FormatTable {
		format = output.FormatYAML
	}

	return output.Print(cmd.OutOrStdout(), format, cfg)
}
