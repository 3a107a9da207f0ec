package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Write a completion script for the given shell to stdout.

Install it where your shell looks for completions:

  bash:        parrot completion bash > /etc/bash_completion.d/parrot
  zsh:         parrot completion zsh > "${fpath[1]}/_parrot"
  fish:        parrot completion fish > ~/.config/fish/completions/parrot.fish
  powershell:  parrot completion powershell | Out-String | Invoke-Expression

Zsh users may need 'autoload -U compinit; compinit' in ~/.zshrc first.`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := cmd.Root()
		switch args[0] {
		case "bash":
			return root.GenBashCompletion(os.Stdout)
		case "zsh":
			return root.GenZshCompletion(os.Stdout)
		case "fish":
			return root.GenFishCompletion(os.Stdout, true)
		default:
			return root.GenPowerShellCompletionWithDesc(os.Stdout)
		}
	},
}
