package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/parrotchat/parrot/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a sample configuration file",
	Long: `Create a sample Parrot configuration file.

The sample describes a three-replica cluster on localhost. Every replica and
every client reads the same file; a replica additionally gets its own id via
'parrotd start --id'.

By default, the configuration file is created at
$XDG_CONFIG_HOME/parrot/config.json. Use --config to specify a custom path.

Examples:
  # Initialize with default location
  parrotd config init

  # Initialize with custom path
  parrotd config init --config /etc/parrot/config.json

  # Force overwrite existing config
  parrotd config init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if !initForce {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
		}
	}

	if err := config.SaveConfig(sampleConfig(), configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the servers list to match your cluster")
	fmt.Println("  2. Start each replica with its own id:")
	fmt.Println("       parrotd start --id 1")
	fmt.Println("       parrotd start --id 2")
	fmt.Println("       parrotd start --id 3")
	fmt.Printf("  3. Or specify the custom config: parrotd start --id 1 --config %s\n", configPath)

	return nil
}

// sampleConfig returns a three-replica localhost cluster with all other
// settings at their defaults.
func sampleConfig() *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Servers = []config.ServerSpec{
		{Host: "127.0.0.1", Port: 7001, ID: 1},
		{Host: "127.0.0.1", Port: 7002, ID: 2},
		{Host: "127.0.0.1", Port: 7003, ID: 3},
	}
	return cfg
}
