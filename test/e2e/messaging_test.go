//go:build e2e

package e2e

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parrotchat/parrot/pkg/client"
)

func TestSendToLoggedInRecipient(t *testing.T) {
	c := startCluster(t, 3)

	alice := c.dial()
	bobCh, bobOpt := collect()
	bob := c.dial(bobOpt)

	// Creation logs each client in as its own account.
	status, err := alice.CreateAccount("alice")
	require.NoError(t, err)
	require.Equal(t, client.StatusSuccess, status)
	status, err = bob.CreateAccount("bob")
	require.NoError(t, err)
	require.Equal(t, client.StatusSuccess, status)

	status, err = alice.Send("bob", "hello bob")
	require.NoError(t, err)
	require.Equal(t, client.StatusSuccess, status)

	// Queued messages reach a logged-in recipient on the next pump tick.
	msg := expectMessage(t, bobCh, 500*time.Millisecond)
	require.Equal(t, "alice", msg.Sender)
	require.Equal(t, "hello bob", msg.Body)

	// After delivery every replica's queue log drains back to empty.
	for id := 1; id <= 3; id++ {
		id := id
		require.Eventually(t, func() bool {
			return len(c.storeLines("undelivered_messages", id)) == 0
		}, waitTimeout, pollInterval, "replica %d queue log never drained", id)
	}
}

func TestOfflineDelivery(t *testing.T) {
	c := startCluster(t, 3)

	alice := c.dial()
	status, err := alice.CreateAccount("alice")
	require.NoError(t, err)
	require.Equal(t, client.StatusSuccess, status)

	// Register bob's account through a throwaway session, then log it off so
	// the recipient is known but offline.
	registrar := c.dial()
	status, err = registrar.CreateAccount("bob")
	require.NoError(t, err)
	require.Equal(t, client.StatusSuccess, status)
	status, err = registrar.Logoff()
	require.NoError(t, err)
	require.Equal(t, client.StatusSuccess, status)

	status, err = alice.Send("bob", "are you there")
	require.NoError(t, err)
	require.Equal(t, client.StatusSuccess, status)

	// With bob offline the record must sit in every replica's queue log.
	want := []string{"bob alice are you there"}
	for id := 1; id <= 3; id++ {
		require.Equal(t, want, c.storeLines("undelivered_messages", id),
			"replica %d queue log", id)
	}

	bobCh, bobOpt := collect()
	bob := c.dial(bobOpt)
	status, err = bob.Login("bob")
	require.NoError(t, err)
	require.Equal(t, client.StatusSuccess, status)

	msg := expectMessage(t, bobCh, 2*time.Second)
	require.Equal(t, "alice", msg.Sender)
	require.Equal(t, "are you there", msg.Body)

	for id := 1; id <= 3; id++ {
		id := id
		require.Eventually(t, func() bool {
			return len(c.storeLines("undelivered_messages", id)) == 0
		}, waitTimeout, pollInterval, "replica %d queue log never drained", id)
	}
}

func TestSendValidation(t *testing.T) {
	c := startCluster(t, 1)
	cl := c.dial()

	status, err := cl.CreateAccount("alice")
	require.NoError(t, err)
	require.Equal(t, client.StatusSuccess, status)
	status, err = cl.Logoff()
	require.NoError(t, err)
	require.Equal(t, client.StatusSuccess, status)

	t.Run("NotLoggedIn", func(t *testing.T) {
		status, err := cl.Send("alice", "hi")
		require.NoError(t, err)
		require.Equal(t, "Error: Need to be logged in to send a message.", status)
	})

	t.Run("UnknownRecipient", func(t *testing.T) {
		status, err := cl.Login("alice")
		require.NoError(t, err)
		require.Equal(t, client.StatusSuccess, status)

		status, err = cl.Send("nobody", "hi")
		require.NoError(t, err)
		require.Equal(t, "Error: The recipient of the message does not exist.", status)
	})

	t.Run("SelfSendIsDelivered", func(t *testing.T) {
		// The sender is its own valid recipient; uses a fresh client so the
		// pushed copy lands on a handler.
		ch, opt := collect()
		self := c.dial(opt)

		status, err := self.CreateAccount("echo")
		require.NoError(t, err)
		require.Equal(t, client.StatusSuccess, status)

		status, err = self.Send("echo", "talking to myself")
		require.NoError(t, err)
		require.Equal(t, client.StatusSuccess, status)

		msg := expectMessage(t, ch, 2*time.Second)
		require.Equal(t, "echo", msg.Sender)
		require.Equal(t, "talking to myself", msg.Body)
	})
}
