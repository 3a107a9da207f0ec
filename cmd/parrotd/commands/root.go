// Package commands implements the CLI commands for the parrotd replica daemon.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	configcmd "github.com/parrotchat/parrot/cmd/parrotd/commands/config"
)

var (
	// Set by main through -ldflags.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Value of the persistent --config flag.
	cfgFile string
)

// rootCmd is the bare "parrotd" invocation. It only prints help; the work
// happens in subcommands.
var rootCmd = &cobra.Command{
	Use:   "parrotd",
	Short: "Parrot - Replicated chat service daemon",
	Long: `parrotd runs one replica of the Parrot chat service.

Every replica reads the same servers list from the configuration and is
started with its own --id. The live replica with the lowest id acts as
primary: it serves client requests and synchronously replicates every state
change to the backups. When the primary dies, the backups elect the next
lowest id and clients fail over transparently.

Use "parrotd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. main calls this exactly once.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd exposes the root command to tests.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/parrot/config.json)")

	rootCmd.AddCommand(versionCmd, startCmd, logsCmd, configcmd.Cmd, completionCmd)

	// completionCmd replaces the generated completion command.
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile reports the --config flag value.
func GetConfigFile() string {
	return cfgFile
}

// PrintErr writes a formatted message to the command's error stream.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit writes a formatted message to stderr and terminates with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}
