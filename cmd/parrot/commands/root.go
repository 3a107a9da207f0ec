// Package commands implements the CLI commands for the parrot chat client.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/parrotchat/parrot/internal/logger"
	"github.com/parrotchat/parrot/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
	verbose bool
)

// rootCmd represents the base command. Running parrot without a subcommand
// starts the interactive chat session.
var rootCmd = &cobra.Command{
	Use:   "parrot",
	Short: "Parrot - Replicated chat client",
	Long: `parrot is the terminal client for the Parrot chat service.

It connects to every replica listed in the configuration, registers itself,
and talks to whichever replica is currently primary. When the primary dies
the client fails over to the next one without losing the session.

Running parrot with no arguments starts an interactive chat session.
Use "parrot [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runChat,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/parrot/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(completionCmd)

	// Hide the default completion command (we provide our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads the shared configuration and initializes the logger. The
// client is a terminal program, so unless --verbose is given only warnings
// and errors reach the screen regardless of the configured level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.MustLoad(cfgFile)
	if err != nil {
		return nil, err
	}

	level := "WARN"
	if verbose {
		level = cfg.Logging.Level
	}
	if err := logger.Init(logger.Config{
		Level:  level,
		Format: cfg.Logging.Format,
		Output: "stderr",
	}); err != nil {
		return nil, err
	}

	return cfg, nil
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}
