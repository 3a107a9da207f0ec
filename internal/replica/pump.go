package replica

import (
	"context"
	"time"

	"github.com/parrotchat/parrot/internal/logger"
	"github.com/parrotchat/parrot/internal/protocol/wire"
	"github.com/parrotchat/parrot/internal/store"
	"github.com/parrotchat/parrot/internal/telemetry"
)

// runPump periodically drains undelivered queues to logged-in recipients.
// Only the primary runs it: it starts when the replica assumes the primary
// role and stops at shutdown. SEND_MSG never writes to a client directly, so
// every chat message a client ever receives flows through here.
func (s *Server) runPump(ctx context.Context) {
	logger.Info("Delivery pump started",
		logger.ReplicaID(s.self.ID), "interval", s.cfg.Replication.PumpInterval)

	ticker := time.NewTicker(s.cfg.Replication.PumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.deliverQueued()
		}
	}
}

// deliverQueued walks every non-empty queue whose recipient is logged in and
// attached here, pushes the queued messages, and replicates the resulting
// queue (the failed sends) before replacing it locally. The whole sweep runs
// as one replication round, so a SEND_MSG cannot interleave between a
// delivery and its queue replacement.
func (s *Server) deliverQueued() {
	s.ackMu.Lock()
	defer s.ackMu.Unlock()
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	s.logins.Lock()
	defer s.logins.Unlock()
	s.undelivered.Lock()
	defer s.undelivered.Unlock()

	queuedRecipients := 0
	queuedMessages := 0

	for _, recipient := range s.undelivered.Recipients() {
		queue := s.undelivered.QueueFor(recipient)
		if len(queue) == 0 {
			continue
		}

		remaining := s.pushQueue(recipient, queue)
		if len(remaining) < len(queue) {
			delivered := len(queue) - len(remaining)
			ctx, span := telemetry.StartSpan(context.Background(), telemetry.SpanPumpDelivery)
			span.SetAttributes(
				telemetry.Recipient(recipient),
				telemetry.Delivered(delivered),
				telemetry.Queued(len(remaining)))

			senders := make([]string, 0, len(remaining))
			bodies := make([]string, 0, len(remaining))
			for _, m := range remaining {
				senders = append(senders, m.Sender)
				bodies = append(bodies, m.Body)
			}

			s.broadcastLocked(ctx, wire.NewMessageReplace(recipient, senders, bodies))
			if err := s.undelivered.Replace(recipient, remaining); err != nil {
				logger.Error("Queue replace failed", logger.KeyRecipient, recipient, logger.Err(err))
			}

			logger.Debug("Delivered queued messages",
				logger.KeyRecipient, recipient,
				logger.KeyDelivered, delivered,
				logger.KeyQueued, len(remaining))
			if s.chatMetrics != nil {
				s.chatMetrics.RecordDelivered(delivered)
			}
			span.End()
		}

		if len(remaining) > 0 {
			queuedRecipients++
			queuedMessages += len(remaining)
		}
	}

	if s.chatMetrics != nil {
		s.chatMetrics.SetQueueDepth(queuedRecipients, queuedMessages)
	}
}

// pushQueue attempts to deliver each queued message in order and returns the
// ones that did not go out. A recipient that is offline, or logged in through
// a different replica, keeps its whole queue. Message ids advance for every
// attempt, so a message that fails and is retried next tick goes out under a
// new id.
func (s *Server) pushQueue(recipient string, queue []store.Message) []store.Message {
	uuid, loggedIn := s.logins.UUIDOf(recipient)
	if !loggedIn {
		return queue
	}
	sess := s.clients[uuid]
	if sess == nil {
		return queue
	}

	var remaining []store.Message
	for _, m := range queue {
		err := sess.send(wire.RecvMessage{Sender: m.Sender, Message: m.Body}, s.nextID())
		if err != nil {
			logger.Debug("Delivery failed, message kept",
				logger.KeyRecipient, recipient, logger.KeySender, m.Sender, logger.Err(err))
			remaining = append(remaining, m)
		}
	}
	return remaining
}
