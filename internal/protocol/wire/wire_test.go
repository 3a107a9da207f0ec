package wire

import (
	"bytes"
	"encoding/binary"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Round-trip Tests
// ============================================================================

// TestRoundTrip_AllOperations encodes and decodes one record of every
// operation in the protocol and checks the result is identical.
func TestRoundTrip_AllOperations(t *testing.T) {
	records := []Record{
		CreateAccountRequest{Username: "alice"},
		CreateAccountResponse{Status: "Success"},
		ListAccountsRequest{Query: "al.*"},
		ListAccountsResponse{Status: "Success", Accounts: "alice;albert"},
		SendMsgRequest{Recipient: "bob", Message: "hello there"},
		SendMessageResponse{Status: "Success"},
		DeleteAccountRequest{},
		DeleteAccountResponse{Status: "Success"},
		LoginRequest{Username: "alice"},
		LoginResponse{Status: "Success"},
		LogoffRequest{},
		LogoffResponse{Status: "Success"},
		RecvMessage{Sender: "alice", Message: "hi bob"},
		SwitchPrimary{ID: 2},
		GetPrimaryRequest{},
		AssignPrimary{},
		AssignPrimaryResponse{ID: 1},
		UpdateAccountState{Add: true, Username: "carol"},
		UpdateLoginState{Add: false, Username: "carol", UUID: "d2c7f9aa-1111-2222-3333-444455556666"},
		UpdateMessageState{AddOne: true, Recipient: "bob", Sender: "alice", Message: "queued"},
		RegisterClientUUID{UUID: "d2c7f9aa-1111-2222-3333-444455556666"},
		Ack{},
		Heartbeat{},
	}
	require.Len(t, records, len(opNames), "every operation needs a round-trip case")

	for _, rec := range records {
		t.Run(rec.Op().String(), func(t *testing.T) {
			frame := Encode(rec, 42)

			h, body, err := ReadFrame(bytes.NewReader(frame))
			require.NoError(t, err)
			assert.Equal(t, rec.Op(), h.Op)
			assert.EqualValues(t, 42, h.ID)
			assert.EqualValues(t, len(frame)-HeaderSize, h.BodyLen)

			decoded, err := Decode(h, body)
			require.NoError(t, err)
			assert.Equal(t, rec, decoded)
		})
	}
}

// TestRoundTrip_EmptyBody checks zero-arity operations produce header-only
// frames.
func TestRoundTrip_EmptyBody(t *testing.T) {
	for _, rec := range []Record{DeleteAccountRequest{}, LogoffRequest{}, GetPrimaryRequest{}, AssignPrimary{}, Ack{}, Heartbeat{}} {
		frame := Encode(rec, 7)
		assert.Len(t, frame, HeaderSize, "%s should encode to a bare header", rec.Op())
	}
}

// TestRoundTrip_TrailingFieldKeepsDelimiters checks that the last field of a
// record absorbs delimiter bytes instead of splitting on them, so free-text
// messages survive the trip.
func TestRoundTrip_TrailingFieldKeepsDelimiters(t *testing.T) {
	sent := SendMsgRequest{Recipient: "bob", Message: "line one\nline two\nline three"}
	frame := Encode(sent, 1)

	h, body, err := ReadFrame(bytes.NewReader(frame))
	require.NoError(t, err)
	decoded, err := Decode(h, body)
	require.NoError(t, err)

	got, ok := decoded.(SendMsgRequest)
	require.True(t, ok)
	assert.Equal(t, "bob", got.Recipient)
	assert.Equal(t, sent.Message, got.Message)
}

// TestRoundTrip_EmptyFields checks that empty field values survive, which
// matters for a LIST_ACCOUNTS_RESPONSE with no matches.
func TestRoundTrip_EmptyFields(t *testing.T) {
	sent := ListAccountsResponse{Status: "Success", Accounts: ""}
	frame := Encode(sent, 3)

	h, body, err := ReadFrame(bytes.NewReader(frame))
	require.NoError(t, err)
	decoded, err := Decode(h, body)
	require.NoError(t, err)
	assert.Equal(t, sent, decoded)
}

// ============================================================================
// Bulk List Tests
// ============================================================================

// TestMessageReplace_SplitsParallelLists checks the queue-replacement form of
// UPDATE_MESSAGE_STATE keeps sender and message lists aligned.
func TestMessageReplace_SplitsParallelLists(t *testing.T) {
	rec := NewMessageReplace("bob", []string{"alice", "carol"}, []string{"first", "second"})
	assert.False(t, rec.AddOne)

	frame := Encode(rec, 9)
	h, body, err := ReadFrame(bytes.NewReader(frame))
	require.NoError(t, err)
	decoded, err := Decode(h, body)
	require.NoError(t, err)

	got, ok := decoded.(UpdateMessageState)
	require.True(t, ok)
	assert.Equal(t, []string{"alice", "carol"}, got.Senders())
	assert.Equal(t, []string{"first", "second"}, got.Messages())
}

// TestMessageReplace_EmptyListsClearQueue checks an empty replacement decodes
// to nil slices, the signal to drop the recipient's queue entirely.
func TestMessageReplace_EmptyListsClearQueue(t *testing.T) {
	rec := NewMessageReplace("bob", nil, nil)

	frame := Encode(rec, 4)
	h, body, err := ReadFrame(bytes.NewReader(frame))
	require.NoError(t, err)
	decoded, err := Decode(h, body)
	require.NoError(t, err)

	got := decoded.(UpdateMessageState)
	assert.Nil(t, got.Senders())
	assert.Nil(t, got.Messages())
}

// ============================================================================
// Malformed Input Tests
// ============================================================================

// TestReadFrame_Failures checks every framing violation collapses to
// ErrConnectionClosed.
func TestReadFrame_Failures(t *testing.T) {
	valid := Encode(LoginRequest{Username: "alice"}, 1)

	badTerminator := append([]byte(nil), valid...)
	binary.BigEndian.PutUint32(badTerminator[12:16], 0xDEADBEEF)

	unknownOp := append([]byte(nil), valid...)
	binary.BigEndian.PutUint32(unknownOp[0:4], 999)

	oversized := append([]byte(nil), valid...)
	binary.BigEndian.PutUint32(oversized[8:12], MaxBodySize+1)

	cases := []struct {
		name  string
		input []byte
	}{
		{"TruncatedHeader", valid[:HeaderSize-3]},
		{"TruncatedBody", valid[:len(valid)-2]},
		{"BadTerminator", badTerminator},
		{"UnknownOperation", unknownOp},
		{"OversizedBody", oversized},
		{"EmptyStream", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ReadFrame(bytes.NewReader(tc.input))
			assert.ErrorIs(t, err, ErrConnectionClosed)
		})
	}
}

// TestDecode_SchemaViolations checks bodies that do not match the operation's
// field schema are rejected.
func TestDecode_SchemaViolations(t *testing.T) {
	t.Run("MissingField", func(t *testing.T) {
		// SEND_MSG wants recipient and message; give it one field.
		h := Header{Op: OpSendMsg, ID: 1, BodyLen: 3}
		_, err := Decode(h, []byte("bob"))
		assert.Error(t, err)
	})

	t.Run("BodyOnZeroArityOp", func(t *testing.T) {
		h := Header{Op: OpAck, ID: 1, BodyLen: 5}
		_, err := Decode(h, []byte("extra"))
		assert.Error(t, err)
	})

	t.Run("BadReplicaID", func(t *testing.T) {
		h := Header{Op: OpSwitchPrimary, ID: 1, BodyLen: 3}
		_, err := Decode(h, []byte("abc"))
		assert.Error(t, err)
	})

	t.Run("BadAddFlag", func(t *testing.T) {
		h := Header{Op: OpUpdateAccountState, ID: 1, BodyLen: 10}
		_, err := Decode(h, []byte("maybe\nbob"))
		assert.Error(t, err)
	})

	t.Run("FlagIsCaseSensitive", func(t *testing.T) {
		h := Header{Op: OpUpdateAccountState, ID: 1, BodyLen: 9}
		_, err := Decode(h, []byte("true\nbob"))
		assert.Error(t, err, "only the exact tokens True and False are valid")
	})
}

// ============================================================================
// Connection Tests
// ============================================================================

// TestSend_DeliversFramesOverConnection checks Send/ReadRecord work over a
// real connection pair and preserve the message id.
func TestSend_DeliversFramesOverConnection(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	var mu sync.Mutex
	go func() {
		_ = SendRecord(client, &mu, SendMsgRequest{Recipient: "bob", Message: "over the wire"}, 77)
	}()

	h, rec, err := ReadRecord(server)
	require.NoError(t, err)
	assert.EqualValues(t, 77, h.ID)
	assert.Equal(t, SendMsgRequest{Recipient: "bob", Message: "over the wire"}, rec)
}

// TestSend_ConcurrentWritersDoNotInterleave checks the shared write mutex
// keeps frames contiguous when many goroutines write to one connection.
func TestSend_ConcurrentWritersDoNotInterleave(t *testing.T) {
	const writers = 8
	const framesPerWriter = 25

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	var mu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < framesPerWriter; i++ {
				err := SendRecord(client, &mu, RecvMessage{Sender: "alice", Message: "payload"}, uint32(w))
				assert.NoError(t, err)
			}
		}(w)
	}

	received := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for received < writers*framesPerWriter {
			h, rec, err := ReadRecord(server)
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, OpRecvMessage, h.Op)
			assert.Equal(t, RecvMessage{Sender: "alice", Message: "payload"}, rec)
			received++
		}
	}()

	wg.Wait()
	<-done
	assert.Equal(t, writers*framesPerWriter, received)
}

// TestReadLoop_StopsOnClose checks ReadLoop dispatches every frame and
// returns ErrConnectionClosed once the peer hangs up.
func TestReadLoop_StopsOnClose(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	var mu sync.Mutex
	go func() {
		for i := uint32(1); i <= 3; i++ {
			_ = SendRecord(client, &mu, Heartbeat{}, i)
		}
		client.Close()
	}()

	var ids []uint32
	err := ReadLoop(server, func(h Header, rec Record) {
		assert.Equal(t, OpHeartbeat, h.Op)
		ids = append(ids, h.ID)
	})
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.Equal(t, []uint32{1, 2, 3}, ids)
}
