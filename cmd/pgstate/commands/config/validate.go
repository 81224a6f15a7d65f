package config

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/pgstate/internal/cli/output"
	"github.com/marmos91/pgstate/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the pgstate configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  pgstate config validate

  # Validate specific config file
  pgstate config validate --config /etc/pgstate/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
		if !config.DefaultConfigExists() {
			displayPath = "(defaults)"
		}
	}

	var warnings []string
	if cfg.Metrics.Enabled && !cfg.API.IsEnabled() {
		warnings = append(warnings, "metrics enabled but the HTTP server is disabled: /metrics is not served")
	}
	if cfg.Database.RequestTimeout == 0 {
		warnings = append(warnings, "database.request_timeout not set: operations are bounded only by the caller's deadline")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	httpPort := "disabled"
	if cfg.API.IsEnabled() {
		httpPort = strconv.Itoa(cfg.API.Port)
	}

	_, _ = fmt.Fprintln(out, "\nConfiguration summary:")
	return output.SimpleTable(out, [][2]string{
		{"Component", cfg.Server.ComponentName},
		{"Socket", cfg.Server.SocketPath()},
		{"HTTP port", httpPort},
		{"Metrics", strconv.FormatBool(cfg.Metrics.Enabled)},
		{"Log level", cfg.Logging.Level},
	})
}
