package commands

import (
	"fmt"

	"github.com/marmos91/pgstate/internal/logger"
	"github.com/marmos91/pgstate/pkg/config"
)

// setupLogging applies the logging section before anything else logs.
func setupLogging(l config.LoggingConfig) error {
	err := logger.Init(logger.Config{Level: l.Level, Format: l.Format, Output: l.Output})
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// configSource names the file the configuration came from, or "defaults"
// when only built-in values and PGSTATE_* variables apply.
func configSource(explicit string) string {
	switch {
	case explicit != "":
		return explicit
	case config.DefaultConfigExists():
		return config.GetDefaultConfigPath()
	default:
		return "defaults and environment"
	}
}
