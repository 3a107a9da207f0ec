package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parrotchat/parrot/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate a Parrot configuration file.

Checks the configuration for structural problems: missing required fields,
out-of-range values, duplicate replica ids, and duplicate listen addresses.

Examples:
  # Validate config at the default location
  parrotd config validate

  # Validate a specific file
  parrotd config validate --config /etc/parrot/config.json`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  Replicas:  %d\n", len(cfg.Servers))
	for _, s := range cfg.Servers {
		fmt.Printf("    id %d: %s\n", s.ID, s.Addr())
	}
	fmt.Printf("  Data dir:  %s\n", cfg.DataDir)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)

	return nil
}
