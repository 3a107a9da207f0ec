package metrics

import (
	"time"
)

// ChatMetrics provides observability for the chat request path.
//
// Implementations collect request counts and latencies per operation,
// connection lifecycle events, and store-level gauges. The interface is
// optional: pass nil to disable collection with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	srv, err := replica.New(cfg, id, metrics.NewChatMetrics(), metrics.NewReplicationMetrics())
//
//	// Without metrics (pass nil for zero overhead)
//	srv, err := replica.New(cfg, id, nil, nil)
type ChatMetrics interface {
	// RecordRequest records a completed client request with its operation
	// name, response status line, and processing duration.
	RecordRequest(op string, status string, duration time.Duration)

	// RecordRequestStart increments the in-flight request counter for op.
	RecordRequestStart(op string)

	// RecordRequestEnd decrements the in-flight request counter for op.
	RecordRequestEnd(op string)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionForceClosed increments the force-closed connections
	// counter. Called when connections are closed after shutdown timeout.
	RecordConnectionForceClosed()

	// SetAccounts updates the registered account gauge.
	SetAccounts(count int)

	// SetLoggedIn updates the live login gauge.
	SetLoggedIn(count int)

	// RecordDelivered adds to the delivered-message counter after the pump
	// pushes queued messages to a recipient.
	RecordDelivered(count int)

	// SetQueueDepth updates the undelivered backlog gauges: the number of
	// recipients with a queue and the total queued message count.
	SetQueueDepth(recipients, messages int)
}

// NewChatMetrics creates a new Prometheus-backed ChatMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called) or the
// prometheus implementation package was not linked in.
func NewChatMetrics() ChatMetrics {
	if !IsEnabled() || newPrometheusChatMetrics == nil {
		return nil
	}
	return newPrometheusChatMetrics()
}

// newPrometheusChatMetrics is implemented in pkg/metrics/prometheus/chat.go.
// The indirection avoids an import cycle while keeping the API clean.
var newPrometheusChatMetrics func() ChatMetrics

// RegisterChatMetricsConstructor registers the Prometheus chat metrics
// constructor. Called by pkg/metrics/prometheus during package init.
func RegisterChatMetricsConstructor(constructor func() ChatMetrics) {
	newPrometheusChatMetrics = constructor
}
