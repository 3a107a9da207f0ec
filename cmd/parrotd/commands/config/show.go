package config

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/parrotchat/parrot/internal/cli/output"
	"github.com/parrotchat/parrot/pkg/config"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Print the configuration a replica would run with: the merged view of
config file, PARROT_* environment variables, and built-in defaults.

Examples:
  # Merged config as YAML
  parrotd config show

  # As JSON
  parrotd config show -o json

  # A specific config file
  parrotd config show --config /etc/parrot/config.json`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	// The config flag is persistent on the root command.
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	if format == output.FormatJSON {
		return output.PrintJSON(os.Stdout, cfg)
	}
	return output.PrintYAML(os.Stdout, cfg)
}
