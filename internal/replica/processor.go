package replica

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/parrotchat/parrot/internal/logger"
	"github.com/parrotchat/parrot/internal/protocol/wire"
	"github.com/parrotchat/parrot/internal/telemetry"
)

// Status lines are part of the client-visible interface: the client library
// and the terminal UI print them verbatim, so the exact wording is load
// bearing.
const (
	statusSuccess = "Success"

	statusCreateWhileLoggedIn = "Error: User can't create an account while logged in."
	statusAccountExists       = "Error: Account already exists."
	statusBadUsername         = "Error: Username contains illegal characters."
	statusBadPattern          = "Error: regex is malformed."
	statusRecipientMissing    = "Error: The recipient of the message does not exist."
	statusSendNotLoggedIn     = "Error: Need to be logged in to send a message."
	statusDeleteNotLoggedIn   = "Error: Need to be logged in to delete your account."
	statusAlreadyLoggedIn     = "Error: Already logged into an account, please log off first."
	statusAccountMissing      = "Error: Account does not exist."
	statusAccountBusy         = "Error: Someone else is logged into that account."
	statusLogoffNotLoggedIn   = "Error: Need to be logged in to log out of your account."

	// statusStoreFailure covers log-file write errors, which are not part of
	// the normal protocol vocabulary. The operation is aborted; backups that
	// already acknowledged the update stay ahead until the next mutation.
	statusStoreFailure = "Error: Internal storage failure."
)

// procedureHandler processes one inbound frame on a session. The returned
// string is the response status line for client operations, or empty for
// frames that answer with something other than a status (ACK, id replies,
// registrations). ctx carries the request span.
type procedureHandler func(ctx context.Context, s *Server, sess *session, h wire.Header, rec wire.Record) string

// procedure contains dispatch metadata for one inbound operation.
type procedure struct {
	// Name is the operation name for logging and metrics.
	Name string

	// Handler processes the frame and writes any response to the session.
	Handler procedureHandler
}

// dispatchTable maps inbound operations to their handlers. Client requests,
// peer election probes, heartbeats, and replication updates all arrive
// through the same table; response-type operations have no entry and are
// dropped with a debug log.
//
// The table is initialized once at package init time.
var dispatchTable map[wire.OpCode]*procedure

func init() {
	dispatchTable = map[wire.OpCode]*procedure{
		wire.OpCreateAccount:      {Name: "CREATE_ACCOUNT", Handler: handleCreateAccount},
		wire.OpListAccounts:       {Name: "LIST_ACCOUNTS", Handler: handleListAccounts},
		wire.OpSendMsg:            {Name: "SEND_MSG", Handler: handleSendMsg},
		wire.OpDeleteAccount:      {Name: "DELETE_ACCOUNT", Handler: handleDeleteAccount},
		wire.OpLogin:              {Name: "LOGIN", Handler: handleLogin},
		wire.OpLogoff:             {Name: "LOGOFF", Handler: handleLogoff},
		wire.OpGetPrimary:         {Name: "GET_PRIMARY", Handler: handleGetPrimary},
		wire.OpRegisterClientUUID: {Name: "REGISTER_CLIENT_UUID", Handler: handleRegisterClientUUID},
		wire.OpAssignPrimary:      {Name: "ASSIGN_PRIMARY", Handler: handleAssignPrimary},
		wire.OpHeartbeat:          {Name: "HEARTBEAT", Handler: handleHeartbeat},
		wire.OpUpdateAccountState: {Name: "UPDATE_ACCOUNT_STATE", Handler: handleUpdateAccountState},
		wire.OpUpdateLoginState:   {Name: "UPDATE_LOGIN_STATE", Handler: handleUpdateLoginState},
		wire.OpUpdateMessageState: {Name: "UPDATE_MESSAGE_STATE", Handler: handleUpdateMessageState},
	}
}

// process dispatches one inbound frame. Each frame gets its own root span;
// replication rounds triggered by the handler show up as child spans.
func (s *Server) process(sess *session, h wire.Header, rec wire.Record) {
	proc, ok := dispatchTable[h.Op]
	if !ok {
		logger.Debug("Dropping unexpected frame",
			logger.Op(h.Op.String()), logger.MsgID(h.ID), "addr", sess.remoteAddr())
		return
	}

	ctx, span := telemetry.StartChatSpan(context.Background(), proc.Name, h.ID,
		telemetry.ClientAddr(sess.remoteAddr()))
	defer span.End()

	start := time.Now()
	if s.chatMetrics != nil {
		s.chatMetrics.RecordRequestStart(proc.Name)
	}

	status := proc.Handler(ctx, s, sess, h, rec)

	if s.chatMetrics != nil {
		s.chatMetrics.RecordRequestEnd(proc.Name)
		s.chatMetrics.RecordRequest(proc.Name, status, time.Since(start))
	}
	if status != "" {
		span.SetAttributes(telemetry.Status(status))
		if sess.uuid != "" {
			span.SetAttributes(telemetry.ClientUUID(sess.uuid))
		}

		lc := logger.NewLogContext(sess.clientIP()).WithOp(proc.Name)
		lc.ClientUUID = sess.uuid
		lc.TraceID = telemetry.TraceID(ctx)
		lc.SpanID = telemetry.SpanID(ctx)
		logger.DebugCtx(logger.WithContext(context.Background(), lc), "Request processed",
			logger.MsgID(h.ID), logger.Status(status), logger.DurationMs(logger.Duration(start)))
	}
}

// respond writes a response frame carrying the request's message id. Write
// failures are logged and otherwise ignored; the read loop notices the dead
// connection on its next read.
func (s *Server) respond(sess *session, h wire.Header, rec wire.Record) {
	if err := sess.send(rec, h.ID); err != nil {
		logger.Debug("Response write failed",
			logger.Op(rec.Op().String()), logger.MsgID(h.ID), "addr", sess.remoteAddr())
	}
}

// ---------------------------------------------------------------------------
// Client operations
// ---------------------------------------------------------------------------

func handleCreateAccount(ctx context.Context, s *Server, sess *session, h wire.Header, rec wire.Record) string {
	req := rec.(wire.CreateAccountRequest)
	status := s.createAccount(ctx, sess, req.Username)
	s.respond(sess, h, wire.CreateAccountResponse{Status: status})
	return status
}

// createAccount registers a username and logs the requesting client in as
// it. Both mutations replicate before they apply.
func (s *Server) createAccount(ctx context.Context, sess *session, username string) string {
	s.ackMu.Lock()
	defer s.ackMu.Unlock()
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	s.logins.Lock()
	defer s.logins.Unlock()
	s.accounts.Lock()
	defer s.accounts.Unlock()

	if s.logins.IsLoggedInByUUID(sess.uuid) {
		return statusCreateWhileLoggedIn
	}
	if !validUsername(username) {
		return statusBadUsername
	}
	if s.accounts.Contains(username) {
		return statusAccountExists
	}

	s.broadcastLocked(ctx, wire.UpdateAccountState{Add: true, Username: username})
	if err := s.accounts.Create(username); err != nil {
		logger.Error("Account create failed", logger.Username(username), logger.Err(err))
		return statusStoreFailure
	}

	s.broadcastLocked(ctx, wire.UpdateLoginState{Add: true, Username: username, UUID: sess.uuid})
	if err := s.logins.Login(username, sess.uuid); err != nil {
		logger.Error("Login after create failed", logger.Username(username), logger.Err(err))
		return statusStoreFailure
	}

	telemetry.SetAttributes(ctx, telemetry.Username(username))
	if s.chatMetrics != nil {
		s.chatMetrics.SetAccounts(s.accounts.Count())
		s.chatMetrics.SetLoggedIn(s.logins.Count())
	}
	logger.Info("Account created", logger.Username(username), logger.ClientUUID(sess.uuid))
	return statusSuccess
}

// validUsername reports whether a name can survive the wire format and the
// store logs: frames delimit fields with newlines, list replies separate
// entries with '\r' and ';', and the queue log is space-separated.
func validUsername(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r == ';' || unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

func handleListAccounts(ctx context.Context, s *Server, sess *session, h wire.Header, rec wire.Record) string {
	req := rec.(wire.ListAccountsRequest)
	telemetry.SetAttributes(ctx, telemetry.Query(req.Query))

	status, accounts := s.listAccounts(req.Query)
	s.respond(sess, h, wire.ListAccountsResponse{Status: status, Accounts: accounts})
	return status
}

// listAccounts matches the query against every account in creation order.
func (s *Server) listAccounts(query string) (status, accounts string) {
	s.accounts.Lock()
	defer s.accounts.Unlock()

	matches, err := s.accounts.Search(query)
	if err != nil {
		logger.Debug("Account search rejected", logger.KeyQuery, query, logger.Err(err))
		return statusBadPattern, ""
	}
	return statusSuccess, strings.Join(matches, wire.AccountListSeparator)
}

func handleSendMsg(ctx context.Context, s *Server, sess *session, h wire.Header, rec wire.Record) string {
	req := rec.(wire.SendMsgRequest)
	status := s.sendMsg(ctx, sess, req.Recipient, req.Message)
	s.respond(sess, h, wire.SendMessageResponse{Status: status})
	return status
}

// sendMsg queues a message for the recipient. Delivery is always
// asynchronous: even a logged-in recipient gets the message from the pump on
// its next tick, never from the sender's request handler.
func (s *Server) sendMsg(ctx context.Context, sess *session, recipient, message string) string {
	s.ackMu.Lock()
	defer s.ackMu.Unlock()
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	s.logins.Lock()
	defer s.logins.Unlock()
	s.accounts.Lock()
	defer s.accounts.Unlock()
	s.undelivered.Lock()
	defer s.undelivered.Unlock()

	sender, loggedIn := s.logins.UsernameOf(sess.uuid)
	if !loggedIn {
		return statusSendNotLoggedIn
	}
	if !s.accounts.Contains(recipient) {
		return statusRecipientMissing
	}

	s.broadcastLocked(ctx, wire.UpdateMessageState{
		AddOne:    true,
		Recipient: recipient,
		Sender:    sender,
		Message:   message,
	})
	if err := s.undelivered.Add(recipient, sender, message); err != nil {
		logger.Error("Message enqueue failed",
			logger.KeyRecipient, recipient, logger.KeySender, sender, logger.Err(err))
		return statusStoreFailure
	}

	telemetry.AddEvent(ctx, "message_queued",
		telemetry.Sender(sender), telemetry.Recipient(recipient))
	logger.Debug("Message queued", logger.KeySender, sender, logger.KeyRecipient, recipient)
	return statusSuccess
}

func handleDeleteAccount(ctx context.Context, s *Server, sess *session, h wire.Header, rec wire.Record) string {
	status := s.deleteAccount(ctx, sess)
	s.respond(sess, h, wire.DeleteAccountResponse{Status: status})
	return status
}

// deleteAccount removes the caller's own account, ending its session first.
// Any messages still queued for the account survive; if the name is ever
// registered again the new owner inherits them on first login.
func (s *Server) deleteAccount(ctx context.Context, sess *session) string {
	s.ackMu.Lock()
	defer s.ackMu.Unlock()
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	s.logins.Lock()
	defer s.logins.Unlock()
	s.accounts.Lock()
	defer s.accounts.Unlock()

	username, loggedIn := s.logins.UsernameOf(sess.uuid)
	if !loggedIn {
		return statusDeleteNotLoggedIn
	}

	s.broadcastLocked(ctx, wire.UpdateLoginState{Add: false, Username: username, UUID: sess.uuid})
	if _, err := s.logins.Logoff(username); err != nil {
		logger.Error("Logoff during delete failed", logger.Username(username), logger.Err(err))
		return statusStoreFailure
	}

	s.broadcastLocked(ctx, wire.UpdateAccountState{Add: false, Username: username})
	if err := s.accounts.Remove(username); err != nil {
		logger.Error("Account remove failed", logger.Username(username), logger.Err(err))
		return statusStoreFailure
	}

	telemetry.SetAttributes(ctx, telemetry.Username(username))
	if s.chatMetrics != nil {
		s.chatMetrics.SetAccounts(s.accounts.Count())
		s.chatMetrics.SetLoggedIn(s.logins.Count())
	}
	logger.Info("Account deleted", logger.Username(username), logger.ClientUUID(sess.uuid))
	return statusSuccess
}

func handleLogin(ctx context.Context, s *Server, sess *session, h wire.Header, rec wire.Record) string {
	req := rec.(wire.LoginRequest)
	status := s.login(ctx, sess, req.Username)
	s.respond(sess, h, wire.LoginResponse{Status: status})
	return status
}

// login binds the caller's uuid to username. The clients lock is held with
// the login lock so no session can slip between the "nobody logged in" check
// and the new binding.
func (s *Server) login(ctx context.Context, sess *session, username string) string {
	s.ackMu.Lock()
	defer s.ackMu.Unlock()
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	s.logins.Lock()
	defer s.logins.Unlock()
	s.accounts.Lock()
	defer s.accounts.Unlock()

	if s.logins.IsLoggedInByUUID(sess.uuid) {
		return statusAlreadyLoggedIn
	}
	if !s.accounts.Contains(username) {
		return statusAccountMissing
	}
	if s.logins.IsLoggedInByUsername(username) {
		return statusAccountBusy
	}

	s.broadcastLocked(ctx, wire.UpdateLoginState{Add: true, Username: username, UUID: sess.uuid})
	if err := s.logins.Login(username, sess.uuid); err != nil {
		logger.Error("Login failed", logger.Username(username), logger.Err(err))
		return statusStoreFailure
	}

	telemetry.SetAttributes(ctx, telemetry.Username(username))
	if s.chatMetrics != nil {
		s.chatMetrics.SetLoggedIn(s.logins.Count())
	}
	logger.Info("Client logged in", logger.Username(username), logger.ClientUUID(sess.uuid))
	return statusSuccess
}

func handleLogoff(ctx context.Context, s *Server, sess *session, h wire.Header, rec wire.Record) string {
	status := s.logoff(ctx, sess)
	s.respond(sess, h, wire.LogoffResponse{Status: status})
	return status
}

// logoff unbinds the caller's session from its username.
func (s *Server) logoff(ctx context.Context, sess *session) string {
	s.ackMu.Lock()
	defer s.ackMu.Unlock()
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	s.logins.Lock()
	defer s.logins.Unlock()

	username, loggedIn := s.logins.UsernameOf(sess.uuid)
	if !loggedIn {
		return statusLogoffNotLoggedIn
	}

	s.broadcastLocked(ctx, wire.UpdateLoginState{Add: false, Username: username, UUID: sess.uuid})
	if _, err := s.logins.Logoff(username); err != nil {
		logger.Error("Logoff failed", logger.Username(username), logger.Err(err))
		return statusStoreFailure
	}

	telemetry.SetAttributes(ctx, telemetry.Username(username))
	if s.chatMetrics != nil {
		s.chatMetrics.SetLoggedIn(s.logins.Count())
	}
	logger.Info("Client logged off", logger.Username(username), logger.ClientUUID(sess.uuid))
	return statusSuccess
}

// ---------------------------------------------------------------------------
// Connection management
// ---------------------------------------------------------------------------

func handleGetPrimary(ctx context.Context, s *Server, sess *session, h wire.Header, rec wire.Record) string {
	s.respond(sess, h, wire.SwitchPrimary{ID: int(s.primaryID.Load())})
	return ""
}

func handleRegisterClientUUID(ctx context.Context, s *Server, sess *session, h wire.Header, rec wire.Record) string {
	req := rec.(wire.RegisterClientUUID)

	s.clientsMu.Lock()
	sess.uuid = req.UUID
	s.clients[req.UUID] = sess
	s.clientsMu.Unlock()

	logger.Debug("Client registered", logger.ClientUUID(req.UUID), "addr", sess.remoteAddr())
	// No response; the client fires and forgets.
	return ""
}

// ---------------------------------------------------------------------------
// Peer operations
// ---------------------------------------------------------------------------

func handleAssignPrimary(ctx context.Context, s *Server, sess *session, h wire.Header, rec wire.Record) string {
	s.respond(sess, h, wire.AssignPrimaryResponse{ID: s.self.ID})
	return ""
}

func handleHeartbeat(ctx context.Context, s *Server, sess *session, h wire.Header, rec wire.Record) string {
	s.respond(sess, h, wire.Ack{})
	return ""
}
