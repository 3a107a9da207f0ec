// Package wire implements the framed protocol spoken between chat clients,
// replicas, and replica peers.
//
// Every frame is a fixed-size header followed by a body. The header carries
// four big-endian uint32s: operation code, message id, body length, and a
// terminator sentinel that guards against desynchronized readers. The body is
// the operation's fields in schema order, joined by a single delimiter byte.
// Bulk list fields (full undelivered-queue replication) separate items within
// one field with the record separator '\r'.
//
// All read-side failures (short header, bad sentinel, unknown operation,
// short body) collapse to ErrConnectionClosed: a reader that cannot trust
// its framing must drop the connection rather than resynchronize.
package wire

import (
	"errors"
	"fmt"
)

const (
	// HeaderSize is the fixed size of every frame header in bytes.
	HeaderSize = 16

	// headerTerminator is the sentinel closing every header.
	headerTerminator uint32 = 0x0D0A0D0A

	// FieldDelimiter joins body fields in schema order.
	FieldDelimiter byte = '\n'

	// ListSeparator separates items inside a bulk list field.
	ListSeparator = "\r"

	// AccountListSeparator joins usernames in a LIST_ACCOUNTS response.
	AccountListSeparator = ";"

	// MaxBodySize caps the declared body length of a single frame.
	// Anything larger is treated as a desynchronized or hostile peer.
	MaxBodySize = 1 << 20
)

// ErrConnectionClosed is the sentinel returned for every read-side failure:
// EOF, short reads, malformed headers, and unknown operation codes alike.
// Callers must not attempt to recover partial frames.
var ErrConnectionClosed = errors.New("connection closed")

// Header is the decoded fixed-size frame header.
type Header struct {
	Op      OpCode
	ID      uint32
	BodyLen uint32
}

// decodeError reports a structurally valid frame whose body does not match
// the operation's schema.
func decodeError(op OpCode, format string, args ...any) error {
	return fmt.Errorf("decode %s: %s", op, fmt.Sprintf(format, args...))
}
