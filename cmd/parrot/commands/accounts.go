package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/parrotchat/parrot/internal/cli/output"
	"github.com/parrotchat/parrot/pkg/client"
)

var accountsOutput string

var accountsCmd = &cobra.Command{
	Use:   "accounts [pattern]",
	Short: "List registered accounts",
	Long: `List accounts whose name matches a pattern.

The pattern is a case-insensitive regular expression matched against the
start of each account name, the same matching the interactive client uses.
Without a pattern, all accounts are listed in creation order.

Examples:
  # List all accounts
  parrot accounts

  # List accounts starting with "al"
  parrot accounts al

  # List as JSON
  parrot accounts -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAccounts,
}

func init() {
	accountsCmd.Flags().StringVarP(&accountsOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// AccountList is a list of account names for table rendering.
type AccountList []string

// Headers implements output.TableRenderer.
func (AccountList) Headers() []string {
	return []string{"USERNAME"}
}

// Rows implements output.TableRenderer.
func (al AccountList) Rows() [][]string {
	rows := make([][]string, 0, len(al))
	for _, name := range al {
		rows = append(rows, []string{name})
	}
	return rows
}

func runAccounts(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(accountsOutput)
	if err != nil {
		return err
	}

	pattern := ".*"
	if len(args) == 1 {
		pattern = args[0]
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := client.Dial(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = c.Close() }()

	status, accounts, err := c.ListAccounts(pattern)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if status != client.StatusSuccess {
		return errors.New(status)
	}

	if len(accounts) == 0 && format == output.FormatTable {
		fmt.Println("No accounts found.")
		return nil
	}

	printer := output.NewPrinter(os.Stdout, format)
	return printer.Print(AccountList(accounts))
}
