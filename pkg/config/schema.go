package config

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// JSONSchema returns the JSON schema of the configuration file, keyed by the
// YAML field names. Editors use it for completion and validation.
func JSONSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "yaml",
	}

	schema := reflector.Reflect(&Config{})
	schema.Version = "https://json-schema.org/draft/2020-12/schema"
	schema.Title = "pgstate configuration"
	schema.Description = "Process configuration of the pgstate Dapr state store component"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema: %w", err)
	}
	return data, nil
}
