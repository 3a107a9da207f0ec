// Package config groups the parrotd configuration subcommands.
package config

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent "config" command. Subcommands attach in init.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Inspect and maintain parrotd configuration files.

Subcommands:
  init      Write a sample cluster configuration
  validate  Check a configuration file for errors
  show      Print the effective configuration
  schema    Emit the configuration JSON schema`,
}

func init() {
	Cmd.AddCommand(initCmd, validateCmd, showCmd, schemaCmd)
}
