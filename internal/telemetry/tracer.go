package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for chat and replication operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientAddr = "client.address"
	AttrClientUUID = "client.uuid"

	// ========================================================================
	// Chat protocol attributes
	// ========================================================================
	AttrOperation = "chat.operation" // Operation name (CREATE_ACCOUNT, LOGIN, ...)
	AttrMsgID     = "chat.msg_id"    // Frame message id
	AttrStatus    = "chat.status"    // Verbatim response status line
	AttrRecipient = "chat.recipient" // Message recipient username
	AttrSender    = "chat.sender"    // Message sender username
	AttrQuery     = "chat.query"     // LIST_ACCOUNTS pattern
	AttrQueued    = "chat.queued"    // Number of messages left queued
	AttrDelivered = "chat.delivered" // Number of messages delivered

	// ========================================================================
	// Replication attributes
	// ========================================================================
	AttrReplicaID = "replica.id"      // This replica's id
	AttrPeerID    = "replica.peer_id" // Peer replica id
	AttrPrimaryID = "replica.primary" // Current primary id
	AttrRole      = "replica.role"    // primary or backup
	AttrLiveSet   = "replica.live"    // Live replica ids after an election

	// ========================================================================
	// User attributes
	// ========================================================================
	AttrUsername = "user.name"
)

// Span names for control-plane operations. Chat request spans are named
// "chat.<operation>" by StartChatSpan.
const (
	SpanReplicationBroadcast = "replication.broadcast"
	SpanElection             = "election.run"
	SpanPromotion            = "election.promote"
	SpanPumpDelivery         = "pump.delivery"
)

// ClientAddr returns an attribute for full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// ClientUUID returns an attribute for the client's stable uuid
func ClientUUID(uuid string) attribute.KeyValue {
	return attribute.String(AttrClientUUID, uuid)
}

// Operation returns an attribute for the chat operation name
func Operation(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// MsgID returns an attribute for the frame message id
func MsgID(id uint32) attribute.KeyValue {
	return attribute.Int64(AttrMsgID, int64(id))
}

// Status returns an attribute for the verbatim response status
func Status(status string) attribute.KeyValue {
	return attribute.String(AttrStatus, status)
}

// Recipient returns an attribute for a message recipient
func Recipient(username string) attribute.KeyValue {
	return attribute.String(AttrRecipient, username)
}

// Sender returns an attribute for a message sender
func Sender(username string) attribute.KeyValue {
	return attribute.String(AttrSender, username)
}

// Query returns an attribute for a LIST_ACCOUNTS pattern
func Query(pattern string) attribute.KeyValue {
	return attribute.String(AttrQuery, pattern)
}

// Username returns an attribute for username
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// ReplicaID returns an attribute for this replica's id
func ReplicaID(id int) attribute.KeyValue {
	return attribute.Int(AttrReplicaID, id)
}

// PeerID returns an attribute for a peer replica's id
func PeerID(id int) attribute.KeyValue {
	return attribute.Int(AttrPeerID, id)
}

// PrimaryID returns an attribute for the current primary's id
func PrimaryID(id int) attribute.KeyValue {
	return attribute.Int(AttrPrimaryID, id)
}

// Role returns an attribute for the replica's role
func Role(role string) attribute.KeyValue {
	return attribute.String(AttrRole, role)
}

// LiveSet returns an attribute for the live replica ids
func LiveSet(ids []int) attribute.KeyValue {
	return attribute.IntSlice(AttrLiveSet, ids)
}

// Delivered returns an attribute for the number of delivered messages
func Delivered(n int) attribute.KeyValue {
	return attribute.Int(AttrDelivered, n)
}

// Queued returns an attribute for the number of still-queued messages
func Queued(n int) attribute.KeyValue {
	return attribute.Int(AttrQueued, n)
}

// StartChatSpan starts a span for one chat operation.
// This is a convenience function that sets common attributes.
func StartChatSpan(ctx context.Context, operation string, msgID uint32, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Operation(operation),
		MsgID(msgID),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "chat."+operation, trace.WithAttributes(allAttrs...))
}

// StartReplicationSpan starts a span for one replication broadcast round.
func StartReplicationSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{Operation(operation)}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanReplicationBroadcast, trace.WithAttributes(allAttrs...))
}
