package replica

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parrotchat/parrot/internal/protocol/wire"
)

// ============================================================================
// Account Operations
// ============================================================================

func TestCreateAccount(t *testing.T) {
	t.Run("CreatesAndLogsIn", func(t *testing.T) {
		s := newTestServer(t, 1)
		sess, clientEnd := attachClient(t, s, "u1")

		resp := request(t, s, sess, clientEnd, wire.CreateAccountRequest{Username: "alice"})
		require.Equal(t, statusSuccess, resp.(wire.CreateAccountResponse).Status)

		s.accounts.Lock()
		assert.True(t, s.accounts.Contains("alice"))
		s.accounts.Unlock()

		s.logins.Lock()
		assert.True(t, s.logins.IsLoggedInByUsername("alice"))
		uuid, _ := s.logins.UUIDOf("alice")
		assert.Equal(t, "u1", uuid)
		s.logins.Unlock()
	})

	t.Run("DuplicateRejected", func(t *testing.T) {
		s := newTestServer(t, 1)
		sess1, client1 := attachClient(t, s, "u1")
		sess2, client2 := attachClient(t, s, "u2")

		resp := request(t, s, sess1, client1, wire.CreateAccountRequest{Username: "alice"})
		require.Equal(t, statusSuccess, resp.(wire.CreateAccountResponse).Status)

		resp = request(t, s, sess2, client2, wire.CreateAccountRequest{Username: "alice"})
		assert.Equal(t, statusAccountExists, resp.(wire.CreateAccountResponse).Status)
	})

	t.Run("RejectedWhileLoggedIn", func(t *testing.T) {
		s := newTestServer(t, 1)
		sess, clientEnd := attachClient(t, s, "u1")

		request(t, s, sess, clientEnd, wire.CreateAccountRequest{Username: "alice"})
		resp := request(t, s, sess, clientEnd, wire.CreateAccountRequest{Username: "bob"})
		assert.Equal(t, statusCreateWhileLoggedIn, resp.(wire.CreateAccountResponse).Status)
	})

	t.Run("IllegalUsernameRejected", func(t *testing.T) {
		s := newTestServer(t, 1)
		sess, clientEnd := attachClient(t, s, "u1")

		// Names that would corrupt the line-oriented logs or the ';'/'\r'
		// separated list replies never reach the stores.
		for _, name := range []string{"", "has space", "tab\there", "semi;colon", "bell\x07"} {
			resp := request(t, s, sess, clientEnd, wire.CreateAccountRequest{Username: name})
			assert.Equal(t, statusBadUsername, resp.(wire.CreateAccountResponse).Status, "username %q", name)
		}

		s.accounts.Lock()
		assert.Equal(t, 0, s.accounts.Count())
		s.accounts.Unlock()
	})
}

func TestListAccounts(t *testing.T) {
	seed := func(t *testing.T) (*Server, *session, net.Conn) {
		t.Helper()
		s := newTestServer(t, 1)
		for i, name := range []string{"alice", "bob", "alfred"} {
			sess, clientEnd := attachClient(t, s, string(rune('a'+i)))
			resp := request(t, s, sess, clientEnd, wire.CreateAccountRequest{Username: name})
			require.Equal(t, statusSuccess, resp.(wire.CreateAccountResponse).Status)
		}
		sess, clientEnd := attachClient(t, s, "lister")
		return s, sess, clientEnd
	}

	t.Run("MatchAllPreservesCreationOrder", func(t *testing.T) {
		s, sess, clientEnd := seed(t)
		resp := request(t, s, sess, clientEnd, wire.ListAccountsRequest{Query: ".*"}).(wire.ListAccountsResponse)
		assert.Equal(t, statusSuccess, resp.Status)
		assert.Equal(t, "alice;bob;alfred", resp.Accounts)
	})

	t.Run("PrefixAnchoredAndCaseInsensitive", func(t *testing.T) {
		s, sess, clientEnd := seed(t)
		resp := request(t, s, sess, clientEnd, wire.ListAccountsRequest{Query: "AL"}).(wire.ListAccountsResponse)
		assert.Equal(t, statusSuccess, resp.Status)
		assert.Equal(t, "alice;alfred", resp.Accounts)

		// re.match semantics anchor at the start only; a mid-name match
		// does not count.
		resp = request(t, s, sess, clientEnd, wire.ListAccountsRequest{Query: "ob"}).(wire.ListAccountsResponse)
		assert.Equal(t, statusSuccess, resp.Status)
		assert.Equal(t, "", resp.Accounts)
	})

	t.Run("MalformedPattern", func(t *testing.T) {
		s, sess, clientEnd := seed(t)
		resp := request(t, s, sess, clientEnd, wire.ListAccountsRequest{Query: "["}).(wire.ListAccountsResponse)
		assert.Equal(t, statusBadPattern, resp.Status)
		assert.Equal(t, "", resp.Accounts)
	})

	t.Run("EmptyStore", func(t *testing.T) {
		s := newTestServer(t, 1)
		sess, clientEnd := attachClient(t, s, "u1")
		resp := request(t, s, sess, clientEnd, wire.ListAccountsRequest{Query: ".*"}).(wire.ListAccountsResponse)
		assert.Equal(t, statusSuccess, resp.Status)
		assert.Equal(t, "", resp.Accounts)
	})
}

func TestDeleteAccount(t *testing.T) {
	t.Run("RemovesAccountAndSession", func(t *testing.T) {
		s := newTestServer(t, 1)
		sess, clientEnd := attachClient(t, s, "u1")

		request(t, s, sess, clientEnd, wire.CreateAccountRequest{Username: "alice"})
		resp := request(t, s, sess, clientEnd, wire.DeleteAccountRequest{})
		require.Equal(t, statusSuccess, resp.(wire.DeleteAccountResponse).Status)

		s.accounts.Lock()
		assert.False(t, s.accounts.Contains("alice"))
		s.accounts.Unlock()

		s.logins.Lock()
		assert.False(t, s.logins.IsLoggedInByUUID("u1"))
		s.logins.Unlock()
	})

	t.Run("RequiresLogin", func(t *testing.T) {
		s := newTestServer(t, 1)
		sess, clientEnd := attachClient(t, s, "u1")

		resp := request(t, s, sess, clientEnd, wire.DeleteAccountRequest{})
		assert.Equal(t, statusDeleteNotLoggedIn, resp.(wire.DeleteAccountResponse).Status)
	})

	t.Run("QueuedMessagesSurviveDeletion", func(t *testing.T) {
		s := newTestServer(t, 1)
		alice, aliceEnd := attachClient(t, s, "u1")
		bob, bobEnd := attachClient(t, s, "u2")

		request(t, s, alice, aliceEnd, wire.CreateAccountRequest{Username: "alice"})
		request(t, s, bob, bobEnd, wire.CreateAccountRequest{Username: "bob"})
		request(t, s, alice, aliceEnd, wire.SendMsgRequest{Recipient: "bob", Message: "hello"})

		resp := request(t, s, bob, bobEnd, wire.DeleteAccountRequest{})
		require.Equal(t, statusSuccess, resp.(wire.DeleteAccountResponse).Status)

		s.undelivered.Lock()
		assert.Len(t, s.undelivered.QueueFor("bob"), 1)
		s.undelivered.Unlock()
	})
}

// ============================================================================
// Sessions
// ============================================================================

func TestLogin(t *testing.T) {
	// Seed one account and log its creator off so the name is free.
	seed := func(t *testing.T) *Server {
		t.Helper()
		s := newTestServer(t, 1)
		sess, clientEnd := attachClient(t, s, "creator")
		request(t, s, sess, clientEnd, wire.CreateAccountRequest{Username: "alice"})
		request(t, s, sess, clientEnd, wire.LogoffRequest{})
		return s
	}

	t.Run("BindsSession", func(t *testing.T) {
		s := seed(t)
		sess, clientEnd := attachClient(t, s, "u1")

		resp := request(t, s, sess, clientEnd, wire.LoginRequest{Username: "alice"})
		require.Equal(t, statusSuccess, resp.(wire.LoginResponse).Status)

		s.logins.Lock()
		uuid, ok := s.logins.UUIDOf("alice")
		s.logins.Unlock()
		require.True(t, ok)
		assert.Equal(t, "u1", uuid)
	})

	t.Run("UnknownAccount", func(t *testing.T) {
		s := seed(t)
		sess, clientEnd := attachClient(t, s, "u1")

		resp := request(t, s, sess, clientEnd, wire.LoginRequest{Username: "nobody"})
		assert.Equal(t, statusAccountMissing, resp.(wire.LoginResponse).Status)
	})

	t.Run("AccountBusy", func(t *testing.T) {
		s := seed(t)
		first, firstEnd := attachClient(t, s, "u1")
		second, secondEnd := attachClient(t, s, "u2")

		request(t, s, first, firstEnd, wire.LoginRequest{Username: "alice"})
		resp := request(t, s, second, secondEnd, wire.LoginRequest{Username: "alice"})
		assert.Equal(t, statusAccountBusy, resp.(wire.LoginResponse).Status)
	})

	t.Run("AlreadyLoggedIn", func(t *testing.T) {
		s := seed(t)
		sess, clientEnd := attachClient(t, s, "u1")

		request(t, s, sess, clientEnd, wire.LoginRequest{Username: "alice"})
		resp := request(t, s, sess, clientEnd, wire.LoginRequest{Username: "alice"})
		assert.Equal(t, statusAlreadyLoggedIn, resp.(wire.LoginResponse).Status)
	})
}

func TestLogoff(t *testing.T) {
	t.Run("UnbindsSession", func(t *testing.T) {
		s := newTestServer(t, 1)
		sess, clientEnd := attachClient(t, s, "u1")

		request(t, s, sess, clientEnd, wire.CreateAccountRequest{Username: "alice"})
		resp := request(t, s, sess, clientEnd, wire.LogoffRequest{})
		require.Equal(t, statusSuccess, resp.(wire.LogoffResponse).Status)

		s.logins.Lock()
		assert.False(t, s.logins.IsLoggedInByUsername("alice"))
		s.logins.Unlock()
	})

	t.Run("RequiresLogin", func(t *testing.T) {
		s := newTestServer(t, 1)
		sess, clientEnd := attachClient(t, s, "u1")

		resp := request(t, s, sess, clientEnd, wire.LogoffRequest{})
		assert.Equal(t, statusLogoffNotLoggedIn, resp.(wire.LogoffResponse).Status)
	})
}

func TestDropSession(t *testing.T) {
	t.Run("LogsOffBoundUsername", func(t *testing.T) {
		s := newTestServer(t, 1)
		sess, clientEnd := attachClient(t, s, "u1")
		request(t, s, sess, clientEnd, wire.CreateAccountRequest{Username: "alice"})

		s.dropSession(sess)

		s.logins.Lock()
		assert.False(t, s.logins.IsLoggedInByUsername("alice"))
		s.logins.Unlock()

		s.clientsMu.Lock()
		assert.NotContains(t, s.clients, "u1")
		s.clientsMu.Unlock()
	})

	t.Run("UnregisteredSessionIsNoOp", func(t *testing.T) {
		s := newTestServer(t, 1)
		_, _ = attachClient(t, s, "other")

		anon := newSession(nil)
		s.dropSession(anon) // must not panic or touch the table

		s.clientsMu.Lock()
		assert.Contains(t, s.clients, "other")
		s.clientsMu.Unlock()
	})

	t.Run("ReplacedSessionKeepsNewEntry", func(t *testing.T) {
		s := newTestServer(t, 1)
		old, _ := attachClient(t, s, "u1")
		replacement, _ := attachClient(t, s, "u1")
		_ = replacement

		s.dropSession(old)

		s.clientsMu.Lock()
		assert.Contains(t, s.clients, "u1", "newer registration must survive the old session's teardown")
		s.clientsMu.Unlock()
	})
}

// ============================================================================
// Messaging
// ============================================================================

func TestSendMsg(t *testing.T) {
	t.Run("QueuesForRecipient", func(t *testing.T) {
		s := newTestServer(t, 1)
		alice, aliceEnd := attachClient(t, s, "u1")
		bob, bobEnd := attachClient(t, s, "u2")

		request(t, s, alice, aliceEnd, wire.CreateAccountRequest{Username: "alice"})
		request(t, s, bob, bobEnd, wire.CreateAccountRequest{Username: "bob"})

		resp := request(t, s, alice, aliceEnd, wire.SendMsgRequest{Recipient: "bob", Message: "hello"})
		require.Equal(t, statusSuccess, resp.(wire.SendMessageResponse).Status)

		s.undelivered.Lock()
		queue := s.undelivered.QueueFor("bob")
		s.undelivered.Unlock()
		require.Len(t, queue, 1)
		assert.Equal(t, "alice", queue[0].Sender)
		assert.Equal(t, "hello", queue[0].Body)
	})

	t.Run("RequiresLogin", func(t *testing.T) {
		s := newTestServer(t, 1)
		sess, clientEnd := attachClient(t, s, "u1")

		resp := request(t, s, sess, clientEnd, wire.SendMsgRequest{Recipient: "bob", Message: "hello"})
		assert.Equal(t, statusSendNotLoggedIn, resp.(wire.SendMessageResponse).Status)
	})

	t.Run("UnknownRecipient", func(t *testing.T) {
		s := newTestServer(t, 1)
		sess, clientEnd := attachClient(t, s, "u1")

		request(t, s, sess, clientEnd, wire.CreateAccountRequest{Username: "alice"})
		resp := request(t, s, sess, clientEnd, wire.SendMsgRequest{Recipient: "ghost", Message: "boo"})
		assert.Equal(t, statusRecipientMissing, resp.(wire.SendMessageResponse).Status)
	})

	t.Run("QueueKeepsArrivalOrder", func(t *testing.T) {
		s := newTestServer(t, 1)
		alice, aliceEnd := attachClient(t, s, "u1")
		bob, bobEnd := attachClient(t, s, "u2")

		request(t, s, alice, aliceEnd, wire.CreateAccountRequest{Username: "alice"})
		request(t, s, bob, bobEnd, wire.CreateAccountRequest{Username: "bob"})

		for _, body := range []string{"first", "second", "third"} {
			resp := request(t, s, alice, aliceEnd, wire.SendMsgRequest{Recipient: "bob", Message: body})
			require.Equal(t, statusSuccess, resp.(wire.SendMessageResponse).Status)
		}

		s.undelivered.Lock()
		queue := s.undelivered.QueueFor("bob")
		s.undelivered.Unlock()
		require.Len(t, queue, 3)
		assert.Equal(t, "first", queue[0].Body)
		assert.Equal(t, "second", queue[1].Body)
		assert.Equal(t, "third", queue[2].Body)
	})
}

// ============================================================================
// Connection Management Frames
// ============================================================================

func TestGetPrimary(t *testing.T) {
	s := newTestServer(t, 2, 1, 2, 3)
	sess, clientEnd := attachClient(t, s, "u1")

	resp := request(t, s, sess, clientEnd, wire.GetPrimaryRequest{})
	require.IsType(t, wire.SwitchPrimary{}, resp)
	assert.Equal(t, 1, resp.(wire.SwitchPrimary).ID)

	// Belief changes are reflected immediately.
	s.primaryID.Store(2)
	resp = request(t, s, sess, clientEnd, wire.GetPrimaryRequest{})
	assert.Equal(t, 2, resp.(wire.SwitchPrimary).ID)
}

func TestRegisterClientUUID(t *testing.T) {
	t.Run("AddsTableEntry", func(t *testing.T) {
		s := newTestServer(t, 1)
		sess, _ := attachClient(t, s, "u1")

		s.clientsMu.Lock()
		defer s.clientsMu.Unlock()
		assert.Same(t, sess, s.clients["u1"])
		assert.Equal(t, "u1", sess.uuid)
	})

	t.Run("ReRegistrationOverwrites", func(t *testing.T) {
		s := newTestServer(t, 1)
		_, _ = attachClient(t, s, "u1")
		replacement, _ := attachClient(t, s, "u1")

		s.clientsMu.Lock()
		defer s.clientsMu.Unlock()
		assert.Same(t, replacement, s.clients["u1"])
	})
}

func TestProcessDropsResponseFrames(t *testing.T) {
	s := newTestServer(t, 1)
	serverEnd, clientEnd := net.Pipe()
	defer serverEnd.Close()
	defer clientEnd.Close()
	sess := newSession(serverEnd)

	// Response-type operations have no dispatch entry; nothing must be
	// written back and nothing must panic.
	s.process(sess, wire.Header{Op: wire.OpCreateAccountResponse, ID: 7},
		wire.CreateAccountResponse{Status: statusSuccess})
	s.process(sess, wire.Header{Op: wire.OpAck, ID: 8}, wire.Ack{})

	_ = clientEnd.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	buf := make([]byte, 1)
	_, err := clientEnd.Read(buf)
	require.Error(t, err, "no bytes may be written for dropped frames")
}
