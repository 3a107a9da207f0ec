package wire

import (
	"bytes"
	"strconv"
	"strings"
)

// Record is a typed view of one frame body. Every operation in the protocol
// has exactly one record type; Decode returns the concrete type for the
// header's operation code and handlers type-switch on it.
type Record interface {
	// Op returns the operation code this record encodes as.
	Op() OpCode

	// fields returns the body fields in schema order.
	fields() []string
}

// Boolean flags travel as the literal strings "True" and "False".
const (
	flagTrue  = "True"
	flagFalse = "False"
)

func encodeFlag(v bool) string {
	if v {
		return flagTrue
	}
	return flagFalse
}

func decodeFlag(s string) (bool, error) {
	switch s {
	case flagTrue:
		return true, nil
	case flagFalse:
		return false, nil
	}
	return false, strconv.ErrSyntax
}

// ---------------------------------------------------------------------------
// Client-facing requests and responses
// ---------------------------------------------------------------------------

// CreateAccountRequest registers a new username.
type CreateAccountRequest struct {
	Username string
}

func (CreateAccountRequest) Op() OpCode { return OpCreateAccount }
func (r CreateAccountRequest) fields() []string { return []string{r.Username} }

// CreateAccountResponse carries the status line for a CREATE_ACCOUNT.
type CreateAccountResponse struct {
	Status string
}

func (CreateAccountResponse) Op() OpCode { return OpCreateAccountResponse }
func (r CreateAccountResponse) fields() []string { return []string{r.Status} }

// ListAccountsRequest searches accounts by case-insensitive prefix pattern.
type ListAccountsRequest struct {
	Query string
}

func (ListAccountsRequest) Op() OpCode { return OpListAccounts }
func (r ListAccountsRequest) fields() []string { return []string{r.Query} }

// ListAccountsResponse carries the status line and the matching usernames
// joined by ";" in account-creation order.
type ListAccountsResponse struct {
	Status   string
	Accounts string
}

func (ListAccountsResponse) Op() OpCode { return OpListAccountsResponse }
func (r ListAccountsResponse) fields() []string { return []string{r.Status, r.Accounts} }

// SendMsgRequest delivers or queues a message for recipient. The message is
// the trailing field, so it may contain any bytes except the field delimiter.
type SendMsgRequest struct {
	Recipient string
	Message   string
}

func (SendMsgRequest) Op() OpCode { return OpSendMsg }
func (r SendMsgRequest) fields() []string { return []string{r.Recipient, r.Message} }

// SendMessageResponse carries the status line for a SEND_MSG.
type SendMessageResponse struct {
	Status string
}

func (SendMessageResponse) Op() OpCode { return OpSendMessageResponse }
func (r SendMessageResponse) fields() []string { return []string{r.Status} }

// DeleteAccountRequest removes the requesting client's own account. The
// target is implied by the session, so the body is empty.
type DeleteAccountRequest struct{}

func (DeleteAccountRequest) Op() OpCode { return OpDeleteAccount }
func (DeleteAccountRequest) fields() []string { return nil }

// DeleteAccountResponse carries the status line for a DELETE_ACCOUNT.
type DeleteAccountResponse struct {
	Status string
}

func (DeleteAccountResponse) Op() OpCode { return OpDeleteAccountResponse }
func (r DeleteAccountResponse) fields() []string { return []string{r.Status} }

// LoginRequest binds the requesting client's session to username.
type LoginRequest struct {
	Username string
}

func (LoginRequest) Op() OpCode { return OpLogin }
func (r LoginRequest) fields() []string { return []string{r.Username} }

// LoginResponse carries the status line for a LOGIN.
type LoginResponse struct {
	Status string
}

func (LoginResponse) Op() OpCode { return OpLoginResponse }
func (r LoginResponse) fields() []string { return []string{r.Status} }

// LogoffRequest ends the requesting client's login session.
type LogoffRequest struct{}

func (LogoffRequest) Op() OpCode { return OpLogoff }
func (LogoffRequest) fields() []string { return nil }

// LogoffResponse carries the status line for a LOGOFF.
type LogoffResponse struct {
	Status string
}

func (LogoffResponse) Op() OpCode { return OpLogoffResponse }
func (r LogoffResponse) fields() []string { return []string{r.Status} }

// RecvMessage pushes a chat message to a logged-in client. It is
// server-initiated and carries no response.
type RecvMessage struct {
	Sender  string
	Message string
}

func (RecvMessage) Op() OpCode { return OpRecvMessage }
func (r RecvMessage) fields() []string { return []string{r.Sender, r.Message} }

// SwitchPrimary announces the replica id clients should treat as primary.
// It is pushed to every connected client on failover and is also the reply
// to GET_PRIMARY.
type SwitchPrimary struct {
	ID int
}

func (SwitchPrimary) Op() OpCode { return OpSwitchPrimary }
func (r SwitchPrimary) fields() []string { return []string{strconv.Itoa(r.ID)} }

// GetPrimaryRequest asks a replica which replica is currently primary.
// The reply is a SwitchPrimary frame.
type GetPrimaryRequest struct{}

func (GetPrimaryRequest) Op() OpCode { return OpGetPrimary }
func (GetPrimaryRequest) fields() []string { return nil }

// RegisterClientUUID identifies a freshly accepted connection as a chat
// client with a stable identity across reconnects.
type RegisterClientUUID struct {
	UUID string
}

func (RegisterClientUUID) Op() OpCode { return OpRegisterClientUUID }
func (r RegisterClientUUID) fields() []string { return []string{r.UUID} }

// ---------------------------------------------------------------------------
// Replica-to-replica traffic
// ---------------------------------------------------------------------------

// AssignPrimary probes a peer during election. The peer answers with an
// AssignPrimaryResponse carrying its replica id.
type AssignPrimary struct{}

func (AssignPrimary) Op() OpCode { return OpAssignPrimary }
func (AssignPrimary) fields() []string { return nil }

// AssignPrimaryResponse carries the responding replica's id.
type AssignPrimaryResponse struct {
	ID int
}

func (AssignPrimaryResponse) Op() OpCode { return OpAssignPrimaryResponse }
func (r AssignPrimaryResponse) fields() []string { return []string{strconv.Itoa(r.ID)} }

// UpdateAccountState replicates one account mutation: Add=true appends the
// username to the account set, Add=false removes it.
type UpdateAccountState struct {
	Add      bool
	Username string
}

func (UpdateAccountState) Op() OpCode { return OpUpdateAccountState }
func (r UpdateAccountState) fields() []string {
	return []string{encodeFlag(r.Add), r.Username}
}

// UpdateLoginState replicates one login-session mutation: Add=true binds
// the client UUID to the username, Add=false unbinds it.
type UpdateLoginState struct {
	Add      bool
	Username string
	UUID     string
}

func (UpdateLoginState) Op() OpCode { return OpUpdateLoginState }
func (r UpdateLoginState) fields() []string {
	return []string{encodeFlag(r.Add), r.Username, r.UUID}
}

// UpdateMessageState replicates undelivered-message changes for one
// recipient. With AddOne=true, Sender and Message name a single queued
// message to append. With AddOne=false the frame replaces the recipient's
// entire queue: Sender and Message are parallel lists whose items are
// separated by ListSeparator, and an empty pair clears the queue.
type UpdateMessageState struct {
	AddOne    bool
	Recipient string
	Sender    string
	Message   string
}

func (UpdateMessageState) Op() OpCode { return OpUpdateMessageState }
func (r UpdateMessageState) fields() []string {
	return []string{encodeFlag(r.AddOne), r.Recipient, r.Sender, r.Message}
}

// NewMessageReplace builds the queue-replacement form of UpdateMessageState
// from parallel sender and message slices.
func NewMessageReplace(recipient string, senders, messages []string) UpdateMessageState {
	return UpdateMessageState{
		AddOne:    false,
		Recipient: recipient,
		Sender:    strings.Join(senders, ListSeparator),
		Message:   strings.Join(messages, ListSeparator),
	}
}

// Senders splits the sender list of a queue-replacement frame. For an empty
// field it returns nil, meaning the queue is cleared.
func (r UpdateMessageState) Senders() []string { return splitList(r.Sender) }

// Messages splits the message list of a queue-replacement frame.
func (r UpdateMessageState) Messages() []string { return splitList(r.Message) }

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ListSeparator)
}

// Ack acknowledges a replicated mutation. The body is empty; the message id
// in the header echoes the id of the frame being acknowledged.
type Ack struct{}

func (Ack) Op() OpCode { return OpAck }
func (Ack) fields() []string { return nil }

// Heartbeat is the periodic liveness probe a backup sends to the primary.
// The primary answers with an Ack carrying the same message id.
type Heartbeat struct{}

func (Heartbeat) Op() OpCode { return OpHeartbeat }
func (Heartbeat) fields() []string { return nil }

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// Decode interprets a frame body against the header's operation schema and
// returns the typed record. The body must contain exactly the operation's
// field count; the trailing field absorbs any remaining delimiter bytes, so
// free-text message fields survive intact.
func Decode(h Header, body []byte) (Record, error) {
	arity, ok := opArity[h.Op]
	if !ok {
		return nil, decodeError(h.Op, "unknown operation")
	}

	var f []string
	if arity == 0 {
		if len(body) != 0 {
			return nil, decodeError(h.Op, "unexpected %d-byte body", len(body))
		}
	} else {
		parts := bytes.SplitN(body, []byte{FieldDelimiter}, arity)
		if len(parts) != arity {
			return nil, decodeError(h.Op, "want %d fields, got %d", arity, len(parts))
		}
		f = make([]string, arity)
		for i, p := range parts {
			f[i] = string(p)
		}
	}

	switch h.Op {
	case OpCreateAccount:
		return CreateAccountRequest{Username: f[0]}, nil
	case OpCreateAccountResponse:
		return CreateAccountResponse{Status: f[0]}, nil
	case OpListAccounts:
		return ListAccountsRequest{Query: f[0]}, nil
	case OpListAccountsResponse:
		return ListAccountsResponse{Status: f[0], Accounts: f[1]}, nil
	case OpSendMsg:
		return SendMsgRequest{Recipient: f[0], Message: f[1]}, nil
	case OpSendMessageResponse:
		return SendMessageResponse{Status: f[0]}, nil
	case OpDeleteAccount:
		return DeleteAccountRequest{}, nil
	case OpDeleteAccountResponse:
		return DeleteAccountResponse{Status: f[0]}, nil
	case OpLogin:
		return LoginRequest{Username: f[0]}, nil
	case OpLoginResponse:
		return LoginResponse{Status: f[0]}, nil
	case OpLogoff:
		return LogoffRequest{}, nil
	case OpLogoffResponse:
		return LogoffResponse{Status: f[0]}, nil
	case OpRecvMessage:
		return RecvMessage{Sender: f[0], Message: f[1]}, nil
	case OpSwitchPrimary:
		id, err := strconv.Atoi(f[0])
		if err != nil {
			return nil, decodeError(h.Op, "bad replica id %q", f[0])
		}
		return SwitchPrimary{ID: id}, nil
	case OpGetPrimary:
		return GetPrimaryRequest{}, nil
	case OpAssignPrimary:
		return AssignPrimary{}, nil
	case OpAssignPrimaryResponse:
		id, err := strconv.Atoi(f[0])
		if err != nil {
			return nil, decodeError(h.Op, "bad replica id %q", f[0])
		}
		return AssignPrimaryResponse{ID: id}, nil
	case OpUpdateAccountState:
		add, err := decodeFlag(f[0])
		if err != nil {
			return nil, decodeError(h.Op, "bad add flag %q", f[0])
		}
		return UpdateAccountState{Add: add, Username: f[1]}, nil
	case OpUpdateLoginState:
		add, err := decodeFlag(f[0])
		if err != nil {
			return nil, decodeError(h.Op, "bad add flag %q", f[0])
		}
		return UpdateLoginState{Add: add, Username: f[1], UUID: f[2]}, nil
	case OpUpdateMessageState:
		addOne, err := decodeFlag(f[0])
		if err != nil {
			return nil, decodeError(h.Op, "bad add flag %q", f[0])
		}
		return UpdateMessageState{AddOne: addOne, Recipient: f[1], Sender: f[2], Message: f[3]}, nil
	case OpRegisterClientUUID:
		return RegisterClientUUID{UUID: f[0]}, nil
	case OpAck:
		return Ack{}, nil
	case OpHeartbeat:
		return Heartbeat{}, nil
	}
	return nil, decodeError(h.Op, "unknown operation")
}
