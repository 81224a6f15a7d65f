package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const configHeader = `# pgstate configuration file
#
# Every key can be overridden from the environment as
# PGSTATE_<SECTION>_<KEY>, for example PGSTATE_LOGGING_LEVEL=DEBUG.
#
# Component properties (connectionString, schema, table, tenant) are not
# configured here: the Dapr sidecar sends them with Init.

`

// InitConfig writes a default configuration file to the default location and
// returns its path.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path.
func InitConfigToPath(path string, force bool) error {
	return WriteInitialConfig(path, GetDefaultConfig(), force)
}

// WriteInitialConfig writes cfg, with an explanatory header, to path. An
// existing file is only replaced when force is set.
func WriteInitialConfig(path string, cfg *Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	if err := Validate(cfg); err != nil {
		return fmt.Errorf("refusing to write invalid configuration: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return writeConfigFile(path, append([]byte(configHeader), data...))
}
