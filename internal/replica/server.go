// Package replica implements one replica of the chat service: the TCP server
// that speaks the chat wire protocol, the text-log-backed stores behind it,
// synchronous primary-to-backup replication, lowest-id election with
// heartbeat failover, and the undelivered-message delivery pump.
package replica

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parrotchat/parrot/internal/logger"
	"github.com/parrotchat/parrot/internal/protocol/wire"
	"github.com/parrotchat/parrot/internal/store"
	"github.com/parrotchat/parrot/pkg/config"
	"github.com/parrotchat/parrot/pkg/metrics"
)

// Server is one replica of the chat service.
//
// Every replica runs the same code; behavior splits by role. The primary
// serves all client requests, broadcasts every store mutation to the live
// backups before applying it locally, and runs the delivery pump. Backups
// apply replicated updates, heartbeat the primary, and promote themselves
// when the lowest live id after a failed heartbeat is their own.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. Background tasks cancelled (heartbeat, pump, bring-up)
//  4. Outbound peer links closed, blocked reads interrupted
//  5. Wait for active connections to complete (up to ShutdownTimeout)
//  6. Force-close any remaining connections after timeout
type Server struct {
	cfg  *config.Config
	self config.ServerSpec

	accounts    *store.AccountStore
	logins      *store.LoginStore
	undelivered *store.UndeliveredStore

	// ackMu serializes replication rounds: it is held across the full
	// broadcast of one update frame to every live backup, acknowledgement
	// reads included, which is what gives mutations a total order.
	//
	// Lock order, always top-down for any code that needs more than one:
	//   ackMu → peersMu → clientsMu → logins → accounts → undelivered
	ackMu sync.Mutex

	// peersMu guards the live peer set. Links are added at bring-up and only
	// ever removed: a peer whose link fails is dead for the rest of this
	// process's life.
	peersMu sync.Mutex
	peers   map[int]*peerLink

	// clientsMu guards the client table, uuid → session. Registration
	// overwrites, so a client that reconnects with the same uuid simply
	// replaces its old entry.
	clientsMu sync.Mutex
	clients   map[string]*session

	// primaryID is this replica's current belief about who is primary. It
	// starts at the lowest configured id and is corrected by every election.
	primaryID atomic.Int64

	// msgID feeds the message-id header field of every frame this replica
	// originates. Ids are per-replica and only ever move forward.
	msgID atomic.Uint32

	// pumpOnce guards pump startup: a replica that is elected primary at
	// bring-up and re-elected later must not start a second pump.
	pumpOnce sync.Once

	chatMetrics metrics.ChatMetrics
	replMetrics metrics.ReplicationMetrics

	listener      net.Listener
	listenerMu    sync.RWMutex
	listenerReady chan struct{}

	// shutdown is closed by initiateShutdown, and monitored by the accept
	// loop and the periodic tasks.
	shutdown     chan struct{}
	shutdownOnce sync.Once

	// taskCtx is cancelled during shutdown to stop the heartbeat loop, the
	// pump, and any in-flight peer dialing.
	taskCtx     context.Context
	cancelTasks context.CancelFunc

	// activeConns tracks accepted connections for graceful shutdown. Each
	// handler calls Add(1) when starting and Done() when complete.
	activeConns sync.WaitGroup

	// activeConnections maps remote address → net.Conn for forced closure.
	activeConnections sync.Map

	connCount atomic.Int32

	// connSemaphore limits concurrent connections when MaxConnections > 0,
	// nil otherwise.
	connSemaphore chan struct{}
}

// New creates a replica for the given id from the shared configuration and
// opens its stores. Metrics collectors may be nil for zero overhead.
//
// The replica is created in a stopped state; call Serve to start it.
func New(cfg *config.Config, selfID int, cm metrics.ChatMetrics, rm metrics.ReplicationMetrics) (*Server, error) {
	self, ok := cfg.ServerByID(selfID)
	if !ok {
		return nil, fmt.Errorf("replica id %d is not in the configured server list", selfID)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %q: %w", cfg.DataDir, err)
	}

	accounts, err := store.OpenAccountStore(cfg.DataDir, selfID)
	if err != nil {
		return nil, fmt.Errorf("failed to open account store: %w", err)
	}
	logins, err := store.OpenLoginStore(cfg.DataDir, selfID)
	if err != nil {
		return nil, fmt.Errorf("failed to open login store: %w", err)
	}
	undelivered, err := store.OpenUndeliveredStore(cfg.DataDir, selfID)
	if err != nil {
		return nil, fmt.Errorf("failed to open undelivered message store: %w", err)
	}

	var connSemaphore chan struct{}
	if cfg.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, cfg.MaxConnections)
		logger.Debug("Connection limit", "max_connections", cfg.MaxConnections)
	}

	taskCtx, cancelTasks := context.WithCancel(context.Background())

	s := &Server{
		cfg:           cfg,
		self:          self,
		accounts:      accounts,
		logins:        logins,
		undelivered:   undelivered,
		peers:         make(map[int]*peerLink),
		clients:       make(map[string]*session),
		chatMetrics:   cm,
		replMetrics:   rm,
		shutdown:      make(chan struct{}),
		taskCtx:       taskCtx,
		cancelTasks:   cancelTasks,
		connSemaphore: connSemaphore,
		listenerReady: make(chan struct{}),
	}

	// Until the first election settles, answer GET_PRIMARY with the
	// deterministic expectation: the lowest configured id.
	lowest := cfg.Servers[0].ID
	for _, spec := range cfg.Servers {
		if spec.ID < lowest {
			lowest = spec.ID
		}
	}
	s.primaryID.Store(int64(lowest))

	return s, nil
}

// Serve starts the replica and blocks until the context is cancelled or an
// unrecoverable error occurs.
//
// Startup order matters: the listener comes up first so that peers dialing
// this replica during their own bring-up are answered immediately, then
// bring-up runs concurrently with the accept loop. Election probes are
// answered by connection handlers, never by bring-up itself, so replicas
// starting at the same time cannot deadlock waiting on each other.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.self.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.self.Addr(), err)
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()
	close(s.listenerReady)

	logger.Info("Replica listening",
		logger.ReplicaID(s.self.ID),
		"addr", listener.Addr().String(),
	)

	// Monitor context cancellation in a separate goroutine so the accept
	// loop can focus on accepting connections.
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received", logger.ReplicaID(s.self.ID), "error", ctx.Err())
		s.initiateShutdown()
	}()

	// Dial peers and elect in the background; the accept loop must already
	// be running for the peers' probes of us to get answers.
	go s.bringUp(s.taskCtx)

	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		tcpConn, err := listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}
			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting connection", logger.Err(err))
				continue
			}
		}

		s.activeConns.Add(1)
		s.connCount.Add(1)

		connAddr := tcpConn.RemoteAddr().String()
		s.activeConnections.Store(connAddr, tcpConn)

		currentConns := s.connCount.Load()
		if s.chatMetrics != nil {
			s.chatMetrics.RecordConnectionAccepted()
			s.chatMetrics.SetActiveConnections(currentConns)
		}

		logger.Debug("Connection accepted", "addr", connAddr, logger.KeyConns, currentConns)

		go func(addr string, conn net.Conn) {
			defer func() {
				s.activeConnections.Delete(addr)
				s.activeConns.Done()
				s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}
				if s.chatMetrics != nil {
					s.chatMetrics.RecordConnectionClosed()
					s.chatMetrics.SetActiveConnections(s.connCount.Load())
				}
				logger.Debug("Connection closed", "addr", addr, logger.KeyConns, s.connCount.Load())
			}()

			s.handleConn(conn)
		}(connAddr, tcpConn)
	}
}

// handleConn runs the read loop for one accepted connection and tears the
// session down when it ends: the table entry goes away, and on the primary a
// still-bound username is logged off and the logoff is replicated.
func (s *Server) handleConn(conn net.Conn) {
	sess := newSession(conn)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in connection handler", "addr", sess.remoteAddr(), "panic", r)
		}
		s.dropSession(sess)
		_ = conn.Close()
	}()

	err := wire.ReadLoop(conn, func(h wire.Header, rec wire.Record) {
		s.process(sess, h, rec)
	})
	logger.Debug("Read loop ended", "addr", sess.remoteAddr(), logger.Err(err))
}

// dropSession removes the session from the client table and ends its login.
// Only the primary replicates the logoff; a backup observing a disconnect
// leaves the replicated login table alone, because the primary sees the same
// disconnect on its own connection to that client and replicates the logoff
// from there.
func (s *Server) dropSession(sess *session) {
	s.ackMu.Lock()
	defer s.ackMu.Unlock()
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	if sess.uuid == "" {
		return
	}
	if cur, ok := s.clients[sess.uuid]; ok && cur == sess {
		delete(s.clients, sess.uuid)
	}

	s.logins.Lock()
	defer s.logins.Unlock()

	username, ok := s.logins.UsernameOf(sess.uuid)
	if !ok || !s.IsPrimary() {
		return
	}

	s.broadcastLocked(context.Background(), wire.UpdateLoginState{Add: false, Username: username, UUID: sess.uuid})
	if _, err := s.logins.Logoff(username); err != nil {
		logger.Error("Failed to log off disconnected client",
			logger.Username(username), logger.ClientUUID(sess.uuid), logger.Err(err))
	}
	if s.chatMetrics != nil {
		s.chatMetrics.SetLoggedIn(s.logins.Count())
	}
	logger.Info("Client disconnected while logged in",
		logger.Username(username), logger.ClientUUID(sess.uuid))
}

// initiateShutdown signals the replica to begin graceful shutdown. Safe to
// call multiple times and from multiple goroutines.
func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Shutdown initiated", logger.ReplicaID(s.self.ID))

		close(s.shutdown)

		s.listenerMu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing listener", logger.Err(err))
			}
		}
		s.listenerMu.Unlock()

		// Stop the heartbeat loop, the pump, and any in-flight peer dialing.
		s.cancelTasks()

		// Drop outbound links so peers see the death promptly instead of at
		// their next heartbeat or broadcast.
		s.closePeers()

		// Unblock pending reads so connection loops notice shutdown quickly.
		s.interruptBlockingReads()
	})
}

// closePeers closes every outbound peer link.
func (s *Server) closePeers() {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	for id, link := range s.peers {
		link.close()
		delete(s.peers, id)
	}
}

// interruptBlockingReads sets a short deadline on all accepted connections to
// interrupt any blocked read during shutdown.
func (s *Server) interruptBlockingReads() {
	deadline := time.Now().Add(100 * time.Millisecond)

	s.activeConnections.Range(func(key, value any) bool {
		if conn, ok := value.(net.Conn); ok {
			if err := conn.SetReadDeadline(deadline); err != nil {
				logger.Debug("Error setting shutdown deadline", "addr", key, logger.Err(err))
			}
		}
		return true
	})
}

// gracefulShutdown waits for active connections to complete or the shutdown
// timeout to expire, force-closing whatever remains.
func (s *Server) gracefulShutdown() error {
	activeCount := s.connCount.Load()
	logger.Info("Graceful shutdown: waiting for active connections",
		logger.ReplicaID(s.self.ID), logger.KeyConns, activeCount, "timeout", s.cfg.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		logger.Info("Graceful shutdown complete: all connections closed", logger.ReplicaID(s.self.ID))

	case <-time.After(s.cfg.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("Shutdown timeout exceeded - forcing closure",
			logger.KeyConns, remaining, "timeout", s.cfg.ShutdownTimeout)

		s.forceCloseConnections()

		err = fmt.Errorf("shutdown timeout: %d connections force-closed", remaining)
	}

	return err
}

// forceCloseConnections closes all tracked connections to accelerate
// shutdown after the graceful window has passed.
func (s *Server) forceCloseConnections() {
	closedCount := 0
	s.activeConnections.Range(func(key, value any) bool {
		addr := key.(string)
		conn := value.(net.Conn)

		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection", "addr", addr, logger.Err(err))
		} else {
			closedCount++
			if s.chatMetrics != nil {
				s.chatMetrics.RecordConnectionForceClosed()
			}
		}
		return true
	})

	if closedCount > 0 {
		logger.Info("Force-closed connections", "count", closedCount)
	}
}

// Stop initiates graceful shutdown and waits for active connections to
// complete. Safe to call multiple times and concurrently with Serve. A nil
// context applies the configured shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Graceful shutdown complete: all connections closed", logger.ReplicaID(s.self.ID))
		return nil
	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("Shutdown context cancelled", logger.KeyConns, remaining, logger.Err(ctx.Err()))
		s.forceCloseConnections()
		return ctx.Err()
	}
}

// nextID returns a fresh message id for a frame this replica originates.
func (s *Server) nextID() uint32 {
	return s.msgID.Add(1)
}

// ID returns this replica's configured id.
func (s *Server) ID() int {
	return s.self.ID
}

// PrimaryID returns this replica's current belief about who is primary.
func (s *Server) PrimaryID() int {
	return int(s.primaryID.Load())
}

// IsPrimary reports whether this replica currently believes it is primary.
func (s *Server) IsPrimary() bool {
	return int(s.primaryID.Load()) == s.self.ID
}

// ActiveConnections returns the number of currently open connections.
func (s *Server) ActiveConnections() int32 {
	return s.connCount.Load()
}

// ListenerAddr returns the address the replica is listening on. It blocks
// until the listener is ready, so tests can call it right after starting
// Serve without racing startup.
func (s *Server) ListenerAddr() string {
	<-s.listenerReady

	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// ClusterStatus is a point-in-time snapshot of one replica's view of the
// world, served by the HTTP status endpoint and used in tests.
type ClusterStatus struct {
	ReplicaID      int
	Role           string
	PrimaryID      int
	LivePeers      []int
	Connections    int32
	Accounts       int
	LoggedIn       int
	QueuedMessages int
}

// Status captures a consistent snapshot of this replica's state.
func (s *Server) Status() ClusterStatus {
	st := ClusterStatus{
		ReplicaID:   s.self.ID,
		PrimaryID:   int(s.primaryID.Load()),
		Connections: s.connCount.Load(),
	}
	if st.PrimaryID == st.ReplicaID {
		st.Role = "primary"
	} else {
		st.Role = "backup"
	}

	s.peersMu.Lock()
	st.LivePeers = s.peerIDsLocked()
	s.peersMu.Unlock()

	s.logins.Lock()
	st.LoggedIn = s.logins.Count()
	s.logins.Unlock()

	s.accounts.Lock()
	st.Accounts = s.accounts.Count()
	s.accounts.Unlock()

	s.undelivered.Lock()
	for _, r := range s.undelivered.Recipients() {
		st.QueuedMessages += len(s.undelivered.QueueFor(r))
	}
	s.undelivered.Unlock()

	return st
}
