package replica

import (
	"context"
	"net"
	"time"

	"github.com/parrotchat/parrot/internal/logger"
	"github.com/parrotchat/parrot/internal/protocol/wire"
	"github.com/parrotchat/parrot/internal/telemetry"
	"github.com/parrotchat/parrot/pkg/config"
)

// bringUp dials every configured peer, runs the first election, and starts
// the role task: the pump when this replica wins, the heartbeat loop when it
// does not. It runs concurrently with the accept loop, which is what answers
// the peers' own probes of us.
func (s *Server) bringUp(ctx context.Context) {
	s.connectPeers(ctx)

	select {
	case <-ctx.Done():
		return
	default:
	}

	if s.elect() == s.self.ID {
		s.promote()
	} else {
		go s.heartbeatLoop(ctx)
	}
}

// connectPeers opens outbound links to every configured peer, retrying each
// until it answers or the dial window closes. Peers that never answer are
// simply absent from the live set; they were either never started or died
// before us, and either way the election proceeds without them.
func (s *Server) connectPeers(ctx context.Context) {
	deadline := time.Now().Add(s.cfg.Replication.PeerDialTimeout)

	var dialers []chan *peerLink
	for _, spec := range s.cfg.Peers(s.self.ID) {
		ch := make(chan *peerLink, 1)
		dialers = append(dialers, ch)
		go func(spec config.ServerSpec) {
			ch <- s.dialPeer(ctx, spec, deadline)
		}(spec)
	}

	live := 0
	for _, ch := range dialers {
		link := <-ch
		if link == nil {
			continue
		}
		s.peersMu.Lock()
		s.peers[link.id] = link
		live = len(s.peers)
		s.peersMu.Unlock()
	}

	if s.replMetrics != nil {
		s.replMetrics.SetLivePeers(live)
	}
	logger.Info("Peer bring-up complete", logger.ReplicaID(s.self.ID), "live_peers", live)
}

// dialPeer keeps dialing one peer until it answers, the deadline passes, or
// the context is cancelled.
func (s *Server) dialPeer(ctx context.Context, spec config.ServerSpec, deadline time.Time) *peerLink {
	dialer := net.Dialer{Timeout: s.cfg.Replication.PeerRetryInterval}

	for {
		conn, err := dialer.DialContext(ctx, "tcp", spec.Addr())
		if err == nil {
			logger.Debug("Peer connected", logger.PeerID(spec.ID), "addr", spec.Addr())
			return &peerLink{id: spec.ID, addr: spec.Addr(), conn: conn}
		}

		if ctx.Err() != nil || time.Now().After(deadline) {
			logger.Warn("Peer unreachable at bring-up",
				logger.PeerID(spec.ID), "addr", spec.Addr(), logger.Err(err))
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.Replication.PeerRetryInterval):
		}
	}
}

// elect probes every live peer and applies the lowest-id rule over the
// responders plus self. Peers that fail the probe are dropped from the live
// set. The elected id is stored as this replica's primary belief and
// returned; the caller decides whether that means promotion.
func (s *Server) elect() int {
	ctx, span := telemetry.StartSpan(context.Background(), telemetry.SpanElection)
	defer span.End()

	s.peersMu.Lock()
	ids := s.peerIDsLocked()
	links := make(map[int]*peerLink, len(ids))
	for _, id := range ids {
		links[id] = s.peers[id]
	}
	s.peersMu.Unlock()

	live := []int{s.self.ID}
	primary := s.self.ID
	for _, id := range ids {
		_, reply, err := links[id].call(wire.AssignPrimary{}, s.nextID(), s.cfg.Replication.ElectionTimeout)
		if err != nil {
			logger.Warn("Peer silent during election", logger.PeerID(id), logger.Err(err))
			telemetry.RecordError(ctx, err)
			s.removePeer(id)
			continue
		}
		resp, ok := reply.(wire.AssignPrimaryResponse)
		if !ok {
			logger.Warn("Unexpected reply to election probe",
				logger.PeerID(id), logger.Op(reply.Op().String()))
			s.removePeer(id)
			continue
		}

		live = append(live, resp.ID)
		if resp.ID < primary {
			primary = resp.ID
		}
	}

	s.primaryID.Store(int64(primary))
	span.SetAttributes(telemetry.PrimaryID(primary), telemetry.LiveSet(live))

	role := "backup"
	if primary == s.self.ID {
		role = "primary"
	}
	logger.Info("Election complete",
		logger.ReplicaID(s.self.ID), logger.PrimaryID(primary),
		logger.KeyRole, role, logger.KeyLiveSet, live)
	if s.replMetrics != nil {
		s.replMetrics.RecordElection(primary)
		s.replMetrics.SetPrimary(primary == s.self.ID)
	}

	return primary
}

// promote makes this replica the primary: it starts the delivery pump (at
// most once per process) and announces the change to every attached client.
// Clients connect and register with all replicas up front, so their sessions
// already exist here; no connection rebuilding is needed, the clients just
// redirect their traffic after the announcement.
func (s *Server) promote() {
	_, span := telemetry.StartSpan(context.Background(), telemetry.SpanPromotion)
	span.SetAttributes(telemetry.ReplicaID(s.self.ID), telemetry.Role("primary"))
	defer span.End()

	s.primaryID.Store(int64(s.self.ID))

	logger.Info("Assuming primary role", logger.ReplicaID(s.self.ID))
	if s.replMetrics != nil {
		s.replMetrics.RecordPromotion()
		s.replMetrics.SetPrimary(true)
	}

	s.pumpOnce.Do(func() {
		go s.runPump(s.taskCtx)
	})

	s.announcePrimary()
}

// announcePrimary pushes a SWITCH_PRIMARY frame to every registered client.
// Delivery is best effort: a client that is gone gets dropped by its own
// read loop, and clients that miss the push discover the new primary by
// probing with GET_PRIMARY when their old primary connection dies.
func (s *Server) announcePrimary() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	for uuid, sess := range s.clients {
		if err := sess.send(wire.SwitchPrimary{ID: s.self.ID}, s.nextID()); err != nil {
			logger.Debug("Failover announcement failed",
				logger.ClientUUID(uuid), logger.Err(err))
		}
	}
	logger.Info("Announced primary switch", logger.PrimaryID(s.self.ID), "clients", len(s.clients))
}

// heartbeatLoop pings the primary every HeartbeatInterval and re-elects when
// the primary stops answering. Only backups run it; it returns when this
// replica is promoted or the server shuts down.
//
// Liveness detection is purely connection-based: a heartbeat fails when the
// send or the ACK read fails, not on a timer. A hung-but-connected primary
// keeps its backups waiting, which is the accepted trade for never falsely
// deposing a slow one.
func (s *Server) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Replication.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
		}

		primary := int(s.primaryID.Load())
		if primary == s.self.ID {
			return
		}

		if s.heartbeatOnce(primary) {
			continue
		}

		logger.Warn("Primary lost", logger.ReplicaID(s.self.ID), logger.PrimaryID(primary))
		s.removePeer(primary)

		if s.elect() == s.self.ID {
			s.promote()
			return
		}
	}
}

// heartbeatOnce sends one heartbeat to the primary and reads the ACK.
func (s *Server) heartbeatOnce(primary int) bool {
	link := s.peer(primary)

	ok := false
	if link != nil {
		_, reply, err := link.call(wire.Heartbeat{}, s.nextID(), 0)
		if err == nil {
			_, ok = reply.(wire.Ack)
		}
	}

	if s.replMetrics != nil {
		s.replMetrics.RecordHeartbeat(ok)
	}
	return ok
}
