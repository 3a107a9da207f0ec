package replica

import (
	"context"
	"sort"
	"time"

	"github.com/parrotchat/parrot/internal/logger"
	"github.com/parrotchat/parrot/internal/protocol/wire"
	"github.com/parrotchat/parrot/internal/store"
	"github.com/parrotchat/parrot/internal/telemetry"
)

// broadcastLocked sends one update frame to every live peer, in ascending id
// order, reading one ACK back per peer before moving to the next. The caller
// holds ackMu and peersMu for the whole round and keeps holding them while it
// applies the mutation locally, so backups commit an update strictly before
// the primary does. A primary crash between a backup's ACK and its own apply
// therefore leaves the backups one mutation ahead; the next election makes
// one of them primary and the divergence becomes the truth.
//
// A peer whose link fails mid-round is dropped from the live set for good and
// the round continues without it.
func (s *Server) broadcastLocked(ctx context.Context, rec wire.Record) {
	if len(s.peers) == 0 {
		return
	}

	ctx, span := telemetry.StartReplicationSpan(ctx, rec.Op().String(),
		telemetry.ReplicaID(s.self.ID))
	defer span.End()

	start := time.Now()
	for _, id := range s.peerIDsLocked() {
		link := s.peers[id]

		_, reply, err := link.call(rec, s.nextID(), 0)
		if err != nil {
			logger.Warn("Peer dropped during broadcast",
				logger.PeerID(id), logger.Op(rec.Op().String()), logger.Err(err))
			telemetry.RecordError(ctx, err)
			telemetry.AddEvent(ctx, "peer_dropped", telemetry.PeerID(id))
			s.removePeerLocked(id)
			continue
		}
		if _, ok := reply.(wire.Ack); !ok {
			logger.Warn("Unexpected reply to update frame",
				logger.PeerID(id), logger.Op(reply.Op().String()))
			telemetry.AddEvent(ctx, "peer_dropped", telemetry.PeerID(id))
			s.removePeerLocked(id)
			continue
		}
	}

	if s.replMetrics != nil {
		s.replMetrics.RecordUpdateSent(rec.Op().String())
		s.replMetrics.RecordRound(time.Since(start))
	}
}

// peerIDsLocked returns the live peer ids in ascending order. Callers hold
// peersMu.
func (s *Server) peerIDsLocked() []int {
	ids := make([]int, 0, len(s.peers))
	for id := range s.peers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// removePeerLocked closes and forgets a peer link. Callers hold peersMu.
func (s *Server) removePeerLocked(id int) {
	link, ok := s.peers[id]
	if !ok {
		return
	}
	link.close()
	delete(s.peers, id)

	if s.replMetrics != nil {
		s.replMetrics.RecordPeerDeath(id)
		s.replMetrics.SetLivePeers(len(s.peers))
	}
}

// removePeer is removePeerLocked for callers that do not hold peersMu.
func (s *Server) removePeer(id int) {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	s.removePeerLocked(id)
}

// peer returns the live link to the given replica, or nil.
func (s *Server) peer(id int) *peerLink {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	return s.peers[id]
}

// ---------------------------------------------------------------------------
// Update application (backup side)
// ---------------------------------------------------------------------------
//
// Updates arrive serially on the primary's connection and are acknowledged
// only after the store write, so a backup that ACKed an update has durably
// applied it. Each applier takes only the store lock it mutates: a backup
// never broadcasts, so the wider lock ladder is not needed here.
//
// A store failure withholds the ACK and closes the connection instead; the
// primary's pending acknowledgement read fails and it drops this replica
// from the live set, which beats acknowledging state we do not have.

func handleUpdateAccountState(ctx context.Context, s *Server, sess *session, h wire.Header, rec wire.Record) string {
	req := rec.(wire.UpdateAccountState)

	s.accounts.Lock()
	var err error
	if req.Add {
		err = s.accounts.Create(req.Username)
	} else {
		err = s.accounts.Remove(req.Username)
	}
	count := s.accounts.Count()
	s.accounts.Unlock()

	if err != nil {
		logger.Error("Replicated account update failed",
			logger.Username(req.Username), "add", req.Add, logger.Err(err))
		_ = sess.conn.Close()
		return ""
	}
	if s.chatMetrics != nil {
		s.chatMetrics.SetAccounts(count)
	}

	logger.Debug("Applied account update", logger.Username(req.Username), "add", req.Add, logger.MsgID(h.ID))
	s.respond(sess, h, wire.Ack{})
	return ""
}

func handleUpdateLoginState(ctx context.Context, s *Server, sess *session, h wire.Header, rec wire.Record) string {
	req := rec.(wire.UpdateLoginState)

	s.logins.Lock()
	var err error
	if req.Add {
		err = s.logins.Login(req.Username, req.UUID)
	} else {
		_, err = s.logins.Logoff(req.Username)
	}
	count := s.logins.Count()
	s.logins.Unlock()

	if err != nil {
		logger.Error("Replicated login update failed",
			logger.Username(req.Username), "add", req.Add, logger.Err(err))
		_ = sess.conn.Close()
		return ""
	}
	if s.chatMetrics != nil {
		s.chatMetrics.SetLoggedIn(count)
	}

	logger.Debug("Applied login update", logger.Username(req.Username), "add", req.Add, logger.MsgID(h.ID))
	s.respond(sess, h, wire.Ack{})
	return ""
}

func handleUpdateMessageState(ctx context.Context, s *Server, sess *session, h wire.Header, rec wire.Record) string {
	req := rec.(wire.UpdateMessageState)

	s.undelivered.Lock()
	var err error
	if req.AddOne {
		err = s.undelivered.Add(req.Recipient, req.Sender, req.Message)
	} else {
		err = s.undelivered.Replace(req.Recipient, zipMessages(req.Senders(), req.Messages()))
	}
	s.undelivered.Unlock()

	if err != nil {
		logger.Error("Replicated message update failed",
			logger.KeyRecipient, req.Recipient, "add_one", req.AddOne, logger.Err(err))
		_ = sess.conn.Close()
		return ""
	}

	logger.Debug("Applied message update",
		logger.KeyRecipient, req.Recipient, "add_one", req.AddOne, logger.MsgID(h.ID))
	s.respond(sess, h, wire.Ack{})
	return ""
}

// zipMessages pairs the parallel sender and body lists of a queue
// replacement. A well-formed frame has equal lengths; a short body list is
// tolerated by dropping the unpaired tail.
func zipMessages(senders, bodies []string) []store.Message {
	n := len(senders)
	if len(bodies) < n {
		n = len(bodies)
	}
	msgs := make([]store.Message, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, store.Message{Sender: senders[i], Body: bodies[i]})
	}
	return msgs
}
