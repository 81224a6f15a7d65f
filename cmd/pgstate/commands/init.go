package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/pgstate/internal/cli/prompt"
	"github.com/marmos91/pgstate/pkg/config"
)

var (
	initForce       bool
	initInteractive bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Initialize a pgstate configuration file with default settings.

By default, the file is created at $XDG_CONFIG_HOME/pgstate/config.yaml.
Use --config to choose a different path and --interactive to be asked for
the most common settings.

Examples:
  # Initialize with default location
  pgstate init

  # Initialize with custom path
  pgstate init --config /etc/pgstate/config.yaml

  # Ask for component name, socket folder, log level and HTTP port
  pgstate init --interactive

  # Force overwrite existing config
  pgstate init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
	initCmd.Flags().BoolVarP(&initInteractive, "interactive", "i", false, "Prompt for common settings")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	cfg := config.GetDefaultConfig()
	force := initForce

	if initInteractive {
		if !force {
			if _, err := os.Stat(configPath); err == nil {
				overwrite, err := prompt.Confirm(fmt.Sprintf("%s exists, overwrite", configPath), false)
				if err != nil {
					return err
				}
				if !overwrite {
					return prompt.ErrAborted
				}
				force = true
			}
		}
		if err := promptSettings(cfg); err != nil {
			return err
		}
	}

	if err := config.WriteInitialConfig(configPath, cfg, force); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Edit the configuration file to customize your setup")
	_, _ = fmt.Fprintf(out, "  2. Start the component: pgstate start --config %s\n", configPath)
	_, _ = fmt.Fprintf(out, "  3. Declare a Dapr component of type state.%s with a connectionString\n", cfg.Server.ComponentName)

	return nil
}

// promptSettings asks for the settings most deployments change.
func promptSettings(cfg *config.Config) error {
	name, err := prompt.Input("Component name", cfg.Server.ComponentName, func(s string) error {
		s = strings.TrimSpace(s)
		if s == "" {
			return errors.New("component name is required")
		}
		if strings.ContainsAny(s, `/\`) {
			return errors.New("component name must not contain path separators")
		}
		return nil
	})
	if err != nil {
		return err
	}
	cfg.Server.ComponentName = name

	folder, err := prompt.Input("Socket folder (empty: $DAPR_COMPONENTS_SOCKETS_FOLDER or default)", cfg.Server.SocketFolder, nil)
	if err != nil {
		return err
	}
	cfg.Server.SocketFolder = folder

	level, err := prompt.SelectString("Log level", []string{"DEBUG", "INFO", "WARN", "ERROR"}, strings.ToUpper(cfg.Logging.Level))
	if err != nil {
		return err
	}
	cfg.Logging.Level = level

	enableAPI, err := prompt.Confirm("Serve health probes over HTTP", true)
	if err != nil {
		return err
	}
	cfg.API.Enabled = &enableAPI
	if !enableAPI {
		return nil
	}

	port, err := prompt.InputPort("HTTP port", cfg.API.Port)
	if err != nil {
		return err
	}
	cfg.API.Port = port

	enableMetrics, err := prompt.Confirm("Expose Prometheus metrics on /metrics", false)
	if err != nil {
		return err
	}
	cfg.Metrics.Enabled = enableMetrics

	return nil
}
