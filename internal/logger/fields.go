package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that replica,
// replication, and client activity can be correlated when aggregating logs.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Protocol & Operation
	// ========================================================================
	KeyOp     = "op"     // Operation name: CREATE_ACCOUNT, LOGIN, SEND_MSG, ...
	KeyMsgID  = "msg_id" // Frame message id
	KeyStatus = "status" // Response status string

	// ========================================================================
	// Replica Set & Replication
	// ========================================================================
	KeyReplicaID = "replica_id" // This replica's configured id
	KeyPeerID    = "peer_id"    // Remote replica id
	KeyPrimaryID = "primary_id" // Current primary id
	KeyRole      = "role"       // primary or backup
	KeyLiveSet   = "live_set"   // Replica ids that answered the last election

	// ========================================================================
	// Client Identification
	// ========================================================================
	KeyClientIP   = "client_ip"   // Client IP address
	KeyClientUUID = "client_uuid" // Client-generated session UUID
	KeyUsername   = "username"    // Account name

	// ========================================================================
	// Messaging
	// ========================================================================
	KeyRecipient = "recipient" // Message recipient account
	KeySender    = "sender"    // Message sender account
	KeyQueued    = "queued"    // Queued message count
	KeyDelivered = "delivered" // Delivered message count
	KeyQuery     = "query"     // Account search pattern

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyAddr       = "addr"        // Network address (host:port)
	KeyPort       = "port"        // Listening port
	KeyConns      = "conns"       // Open connection count
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// Op returns a slog.Attr for the operation name
func Op(name string) slog.Attr {
	return slog.String(KeyOp, name)
}

// MsgID returns a slog.Attr for a frame message id
func MsgID(id uint32) slog.Attr {
	return slog.Uint64(KeyMsgID, uint64(id))
}

// Status returns a slog.Attr for a response status string
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// ReplicaID returns a slog.Attr for a replica id
func ReplicaID(id int) slog.Attr {
	return slog.Int(KeyReplicaID, id)
}

// PeerID returns a slog.Attr for a peer replica id
func PeerID(id int) slog.Attr {
	return slog.Int(KeyPeerID, id)
}

// PrimaryID returns a slog.Attr for the elected primary id
func PrimaryID(id int) slog.Attr {
	return slog.Int(KeyPrimaryID, id)
}

// ClientUUID returns a slog.Attr for a client session uuid
func ClientUUID(uuid string) slog.Attr {
	return slog.String(KeyClientUUID, uuid)
}

// Username returns a slog.Attr for an account name
func Username(name string) slog.Attr {
	return slog.String(KeyUsername, name)
}

// Err returns a slog.Attr for an error (nil-safe)
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// DurationMs returns a slog.Attr for a duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}
