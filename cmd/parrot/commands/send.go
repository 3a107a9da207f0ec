package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parrotchat/parrot/pkg/client"
)

var sendAs string

var sendCmd = &cobra.Command{
	Use:   "send <recipient> <message>...",
	Short: "Send a single message",
	Long: `Send one message and exit.

The command logs in as the account given with --as, queues the message for
the recipient, and logs off again. The recipient does not have to be online:
the service stores the message and delivers it on their next login.

Examples:
  # Send a message as alice
  parrot send --as alice bob "see you at noon"

  # Everything after the recipient is the message
  parrot send --as alice bob running late, start without me`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendAs, "as", "", "Account to send the message as")
	_ = sendCmd.MarkFlagRequired("as")
}

func runSend(cmd *cobra.Command, args []string) error {
	recipient := args[0]
	message := strings.Join(args[1:], " ")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := client.Dial(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = c.Close() }()

	status, err := c.Login(sendAs)
	if err != nil {
		return fmt.Errorf("failed to log in: %w", err)
	}
	if status != client.StatusSuccess {
		return errors.New(status)
	}
	// Best effort: the server also logs the session off when the
	// connection closes.
	defer func() { _, _ = c.Logoff() }()

	status, err = c.Send(recipient, message)
	if err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}
	if status != client.StatusSuccess {
		return errors.New(status)
	}

	fmt.Printf("Message queued for %s.\n", recipient)
	return nil
}
