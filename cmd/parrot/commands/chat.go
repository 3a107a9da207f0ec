package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parrotchat/parrot/internal/cli/prompt"
	"github.com/parrotchat/parrot/pkg/client"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session with the Parrot service.

The client connects to every configured replica and talks to the current
primary. Incoming messages are printed as they arrive; if the primary dies
mid-session the client fails over and the session continues.

Examples:
  # Chat using the default config
  parrot chat

  # Chat against a specific fleet
  parrot chat --config ./cluster.json`,
	RunE: runChat,
}

// Menu actions, in display order.
const (
	actionCreate = "create"
	actionLogin  = "login"
	actionList   = "list"
	actionSend   = "send"
	actionLogoff = "logoff"
	actionDelete = "delete"
	actionQuit   = "quit"
)

var chatMenu = []prompt.SelectOption{
	{Label: "Create account", Value: actionCreate},
	{Label: "Log in", Value: actionLogin},
	{Label: "List accounts", Value: actionList},
	{Label: "Send message", Value: actionSend},
	{Label: "Log off", Value: actionLogoff},
	{Label: "Delete account", Value: actionDelete},
	{Label: "Quit", Value: actionQuit},
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Pushed frames arrive on the client's reader goroutine while the menu
	// is waiting for input, so they print on their own lines.
	c, err := client.Dial(cfg,
		client.WithMessageHandler(func(m client.Message) {
			fmt.Printf("\r<%s> %s\n", m.Sender, m.Body)
		}),
		client.WithSwitchHandler(func(id int) {
			fmt.Printf("\r(now talking to replica %d)\n", id)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = c.Close() }()

	fmt.Printf("Connected to the chat service. Primary is replica %d.\n", c.PrimaryID())

	for {
		action, err := prompt.Select("What would you like to do?", chatMenu)
		if err != nil {
			if prompt.IsAborted(err) {
				fmt.Println("Disconnected from server.")
				return nil
			}
			return err
		}

		if action == actionQuit {
			fmt.Println("Disconnected from server.")
			return nil
		}
		if err := runChatAction(c, action); err != nil {
			if prompt.IsAborted(err) {
				continue // back to the menu
			}
			return err
		}
	}
}

// runChatAction executes one menu choice. Server status lines are printed
// verbatim: they are the service's user-facing vocabulary.
func runChatAction(c *client.Client, action string) error {
	switch action {
	case actionCreate:
		username, err := prompt.InputRequired("Username")
		if err != nil {
			return err
		}
		status, err := c.CreateAccount(username)
		if err != nil {
			return err
		}
		fmt.Println(status)

	case actionLogin:
		username, err := prompt.InputRequired("Username")
		if err != nil {
			return err
		}
		status, err := c.Login(username)
		if err != nil {
			return err
		}
		fmt.Println(status)

	case actionList:
		pattern, err := prompt.Input("Search pattern", ".*")
		if err != nil {
			return err
		}
		status, accounts, err := c.ListAccounts(pattern)
		if err != nil {
			return err
		}
		if status != client.StatusSuccess {
			fmt.Println(status)
			return nil
		}
		if len(accounts) == 0 {
			fmt.Println("No accounts found.")
			return nil
		}
		for _, name := range accounts {
			fmt.Println(name)
		}

	case actionSend:
		recipient, err := prompt.InputRequired("Recipient")
		if err != nil {
			return err
		}
		message, err := prompt.InputRequired("Message")
		if err != nil {
			return err
		}
		status, err := c.Send(recipient, message)
		if err != nil {
			return err
		}
		fmt.Println(status)

	case actionLogoff:
		status, err := c.Logoff()
		if err != nil {
			return err
		}
		fmt.Println(status)

	case actionDelete:
		confirmed, err := prompt.Confirm("Delete your account? Queued messages for it are kept for whoever registers the name next", false)
		if err != nil {
			return err
		}
		if !confirmed {
			return nil
		}
		status, err := c.DeleteAccount()
		if err != nil {
			return err
		}
		fmt.Println(status)
	}

	return nil
}
