package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/pgstate/pkg/config"
)

var schemaOutput string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Generate JSON schema for configuration",
	Long: `Generate a JSON schema for the pgstate configuration file.

Point your editor's YAML language server at the schema for completion and
inline validation of config.yaml.

Examples:
  # Print schema to stdout
  pgstate config schema

  # Save schema to file
  pgstate config schema --output config.schema.json`,
	RunE: runSchema,
}

func init() {
	schemaCmd.Flags().StringVarP(&schemaOutput, "output", "o", "", "Output file (default: stdout)")
}

func runSchema(cmd *cobra.Command, args []string) error {
	schemaJSON, err := config.JSONSchema()
	if err != nil {
		return err
	}

	if schemaOutput != "" {
		if err := os.WriteFile(schemaOutput, schemaJSON, 0o644); err != nil {
			return fmt.Errorf("failed to write schema file: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "JSON schema written to %s\n", schemaOutput)
		return nil
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(schemaJSON))
	return nil
}
