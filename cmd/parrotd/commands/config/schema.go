package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/parrotchat/parrot/pkg/config"
)

var schemaOutput string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Generate JSON schema for configuration",
	Long: `Emit a JSON schema describing every field of the Parrot configuration
file. The schema works for editor autocompletion and for validating
configs in CI.

Examples:
  # Print schema to stdout
  parrotd config schema

  # Save schema to file
  parrotd config schema -o config.schema.json`,
	RunE: runSchema,
}

func init() {
	schemaCmd.Flags().StringVarP(&schemaOutput, "output", "o", "", "Output file (default: stdout)")
}

func runSchema(cmd *cobra.Command, args []string) error {
	out, err := configSchemaJSON()
	if err != nil {
		return err
	}

	if schemaOutput == "" {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}

	if err := os.WriteFile(schemaOutput, out, 0644); err != nil {
		return fmt.Errorf("failed to write schema file: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "JSON schema written to %s\n", schemaOutput)
	return nil
}

// configSchemaJSON reflects the Config struct into a self-contained,
// indented JSON schema document.
func configSchemaJSON() ([]byte, error) {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	s := r.Reflect(&config.Config{})
	s.Version = "https://json-schema.org/draft/2020-12/schema"
	s.Title = "Parrot Configuration"
	s.Description = "Configuration schema for the Parrot chat service"

	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return out, nil
}
