package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the cross-field rules tags cannot express.
// It does not modify cfg.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return err
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}
	if cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.Endpoint == "" {
		return fmt.Errorf("telemetry.profiling.endpoint is required when profiling is enabled")
	}
	if cfg.Database.MaxOpenConns > 0 && cfg.Database.MaxIdleConns > cfg.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) exceeds database.max_open_conns (%d)",
			cfg.Database.MaxIdleConns, cfg.Database.MaxOpenConns)
	}
	if cfg.Database.RequestTimeout < 0 {
		return fmt.Errorf("database.request_timeout must not be negative")
	}

	return nil
}

// formatValidationErrors renders one line per failed field, e.g.
// "Config.Logging.Level: failed 'oneof' (DEBUG INFO WARN ERROR ...)".
func formatValidationErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s: failed '%s'", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += fmt.Sprintf(" (%s)", fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return errors.New(strings.Join(msgs, "; "))
}
