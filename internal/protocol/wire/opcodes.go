package wire

import "fmt"

// OpCode identifies the operation a frame carries. The set is closed:
// decoding a frame whose code is not listed here fails the connection.
type OpCode uint32

const (
	OpCreateAccount         OpCode = 1
	OpCreateAccountResponse OpCode = 2
	OpListAccounts          OpCode = 3
	OpListAccountsResponse  OpCode = 4
	OpSendMsg               OpCode = 5
	OpSendMessageResponse   OpCode = 6
	OpDeleteAccount         OpCode = 7
	OpDeleteAccountResponse OpCode = 8
	OpLogin                 OpCode = 9
	OpLoginResponse         OpCode = 10
	OpLogoff                OpCode = 11
	OpLogoffResponse        OpCode = 12
	OpRecvMessage           OpCode = 13
	OpSwitchPrimary         OpCode = 14
	OpGetPrimary            OpCode = 15
	OpAssignPrimary         OpCode = 16
	OpAssignPrimaryResponse OpCode = 17
	OpUpdateAccountState    OpCode = 18
	OpUpdateLoginState      OpCode = 19
	OpUpdateMessageState    OpCode = 20
	OpRegisterClientUUID    OpCode = 21
	OpAck                   OpCode = 22
	OpHeartbeat             OpCode = 23
)

// opNames doubles as the registry of valid operation codes: an OpCode is
// part of the protocol iff it has an entry here.
var opNames = map[OpCode]string{
	OpCreateAccount:         "CREATE_ACCOUNT",
	OpCreateAccountResponse: "CREATE_ACCOUNT_RESPONSE",
	OpListAccounts:          "LIST_ACCOUNTS",
	OpListAccountsResponse:  "LIST_ACCOUNTS_RESPONSE",
	OpSendMsg:               "SEND_MSG",
	OpSendMessageResponse:   "SEND_MESSAGE_RESPONSE",
	OpDeleteAccount:         "DELETE_ACCOUNT",
	OpDeleteAccountResponse: "DELETE_ACCOUNT_RESPONSE",
	OpLogin:                 "LOGIN",
	OpLoginResponse:         "LOG_IN_RESPONSE",
	OpLogoff:                "LOGOFF",
	OpLogoffResponse:        "LOG_OFF_RESPONSE",
	OpRecvMessage:           "RECV_MESSAGE",
	OpSwitchPrimary:         "SWITCH_PRIMARY",
	OpGetPrimary:            "GET_PRIMARY",
	OpAssignPrimary:         "ASSIGN_PRIMARY",
	OpAssignPrimaryResponse: "ASSIGN_PRIMARY_RESPONSE",
	OpUpdateAccountState:    "UPDATE_ACCOUNT_STATE",
	OpUpdateLoginState:      "UPDATE_LOGIN_STATE",
	OpUpdateMessageState:    "UPDATE_MESSAGE_STATE",
	OpRegisterClientUUID:    "REGISTER_CLIENT_UUID",
	OpAck:                   "ACK",
	OpHeartbeat:             "HEARTBEAT",
}

// opArity gives the exact number of body fields each operation carries.
// Zero-arity operations must have an empty body.
var opArity = map[OpCode]int{
	OpCreateAccount:         1,
	OpCreateAccountResponse: 1,
	OpListAccounts:          1,
	OpListAccountsResponse:  2,
	OpSendMsg:               2,
	OpSendMessageResponse:   1,
	OpDeleteAccount:         0,
	OpDeleteAccountResponse: 1,
	OpLogin:                 1,
	OpLoginResponse:         1,
	OpLogoff:                0,
	OpLogoffResponse:        1,
	OpRecvMessage:           2,
	OpSwitchPrimary:         1,
	OpGetPrimary:            0,
	OpAssignPrimary:         0,
	OpAssignPrimaryResponse: 1,
	OpUpdateAccountState:    2,
	OpUpdateLoginState:      3,
	OpUpdateMessageState:    4,
	OpRegisterClientUUID:    1,
	OpAck:                   0,
	OpHeartbeat:             0,
}

// Valid reports whether op is part of the protocol.
func (op OpCode) Valid() bool {
	_, ok := opNames[op]
	return ok
}

func (op OpCode) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_OP(%d)", uint32(op))
}
