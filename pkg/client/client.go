// Package client implements the chat-service side of the wire protocol for
// programs that talk to the replica fleet: the interactive terminal client,
// one-shot commands, and tests.
//
// A Client holds a registered connection to every reachable replica and
// tracks which one is primary. Requests go to the primary connection only;
// the other connections exist so that failover is a matter of asking the
// survivors who is in charge now, not of re-dialing and re-registering
// under time pressure.
package client

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/parrotchat/parrot/internal/logger"
	"github.com/parrotchat/parrot/internal/protocol/wire"
	"github.com/parrotchat/parrot/pkg/config"
)

var (
	// ErrNoServers means no configured server accepted a connection at dial
	// time.
	ErrNoServers = errors.New("no configured server is reachable")

	// ErrNoPrimary means no reachable replica identified a live primary
	// within the failover window.
	ErrNoPrimary = errors.New("no primary answered")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("client is closed")

	// ErrPrimaryLost means the primary connection died before the reply to
	// an in-flight request arrived. The request may or may not have been
	// applied; the caller decides whether to re-issue it after failover.
	ErrPrimaryLost = errors.New("primary connection lost before the reply arrived")
)

// StatusSuccess is the status line servers answer for accepted operations.
// Any other status is a human-readable rejection reason, returned verbatim.
const StatusSuccess = "Success"

// Message is one chat message pushed by the primary.
type Message struct {
	Sender string
	Body   string
}

// Client is a failover-aware connection to the replica fleet. It is safe for
// concurrent use; requests are serialized because the protocol matches
// replies to requests by arrival order, not by id.
type Client struct {
	cfg  *config.Config
	opts options
	uuid string

	msgID atomic.Uint32

	mu         sync.Mutex
	conns      map[int]*serverConn
	active     int // replica id requests go to; -1 when no primary is known
	gen        uint64
	readerDone chan struct{}
	closed     bool

	respCh chan wire.Record
}

// Dial connects to every configured server, registers the client uuid on
// each, and adopts the primary that the fleet names. Servers that cannot be
// reached are skipped; only a fleet with no reachable member at all fails
// the dial.
func Dial(cfg *config.Config, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		cfg:    cfg,
		opts:   o,
		uuid:   o.uuid,
		conns:  make(map[int]*serverConn),
		active: -1,
		respCh: make(chan wire.Record, 1),
	}
	if c.uuid == "" {
		c.uuid = uuid.NewString()
	}

	for _, spec := range cfg.Servers {
		conn, err := net.DialTimeout("tcp", spec.Addr(), o.dialTimeout)
		if err != nil {
			logger.Debug("Server unreachable", logger.KeyAddr, spec.Addr(), logger.Err(err))
			continue
		}
		sc := newServerConn(spec.ID, conn)
		if err := sc.send(wire.RegisterClientUUID{UUID: c.uuid}, c.nextID()); err != nil {
			logger.Debug("Registration failed", logger.KeyAddr, spec.Addr(), logger.Err(err))
			_ = conn.Close()
			continue
		}
		c.conns[spec.ID] = sc
	}
	if len(c.conns) == 0 {
		return nil, ErrNoServers
	}

	c.mu.Lock()
	err := c.adoptPrimaryLocked()
	if err == nil {
		c.startReaderLocked()
	}
	c.mu.Unlock()

	if err != nil {
		_ = c.Close()
		return nil, err
	}
	logger.Debug("Connected to fleet",
		logger.ClientUUID(c.uuid), logger.PrimaryID(c.PrimaryID()), logger.KeyConns, len(c.conns))
	return c, nil
}

// UUID returns the client uuid registered with every replica.
func (c *Client) UUID() string {
	return c.uuid
}

// PrimaryID returns the replica id requests currently go to, or -1 when the
// client has lost the fleet.
func (c *Client) PrimaryID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Close drops every connection. In-flight requests fail; the client cannot
// be reused.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	for id, sc := range c.conns {
		sc.close()
		delete(c.conns, id)
	}
	c.active = -1
	return nil
}

// ============================================================================
// Chat Operations
// ============================================================================

// CreateAccount registers a username and logs this client in as it. The
// returned status is the server's verbatim status line.
func (c *Client) CreateAccount(username string) (string, error) {
	rec, err := c.roundTrip(wire.CreateAccountRequest{Username: username})
	if err != nil {
		return "", err
	}
	resp, ok := rec.(wire.CreateAccountResponse)
	if !ok {
		return "", unexpectedReply(rec, wire.OpCreateAccountResponse)
	}
	return resp.Status, nil
}

// ListAccounts returns the usernames whose prefix matches pattern, in
// creation order, along with the server's status line.
func (c *Client) ListAccounts(pattern string) (string, []string, error) {
	rec, err := c.roundTrip(wire.ListAccountsRequest{Query: pattern})
	if err != nil {
		return "", nil, err
	}
	resp, ok := rec.(wire.ListAccountsResponse)
	if !ok {
		return "", nil, unexpectedReply(rec, wire.OpListAccountsResponse)
	}
	var accounts []string
	if resp.Accounts != "" {
		accounts = strings.Split(resp.Accounts, wire.AccountListSeparator)
	}
	return resp.Status, accounts, nil
}

// Send queues a message for recipient. Delivery happens whenever the
// recipient is next logged in; a Success status only means the message is
// queued on the primary.
func (c *Client) Send(recipient, message string) (string, error) {
	rec, err := c.roundTrip(wire.SendMsgRequest{Recipient: recipient, Message: message})
	if err != nil {
		return "", err
	}
	resp, ok := rec.(wire.SendMessageResponse)
	if !ok {
		return "", unexpectedReply(rec, wire.OpSendMessageResponse)
	}
	return resp.Status, nil
}

// Login binds this client to an existing account.
func (c *Client) Login(username string) (string, error) {
	rec, err := c.roundTrip(wire.LoginRequest{Username: username})
	if err != nil {
		return "", err
	}
	resp, ok := rec.(wire.LoginResponse)
	if !ok {
		return "", unexpectedReply(rec, wire.OpLoginResponse)
	}
	return resp.Status, nil
}

// Logoff releases the account this client is logged into.
func (c *Client) Logoff() (string, error) {
	rec, err := c.roundTrip(wire.LogoffRequest{})
	if err != nil {
		return "", err
	}
	resp, ok := rec.(wire.LogoffResponse)
	if !ok {
		return "", unexpectedReply(rec, wire.OpLogoffResponse)
	}
	return resp.Status, nil
}

// DeleteAccount removes the account this client is logged into. Messages
// already queued for the name survive and go to whoever registers it next.
func (c *Client) DeleteAccount() (string, error) {
	rec, err := c.roundTrip(wire.DeleteAccountRequest{})
	if err != nil {
		return "", err
	}
	resp, ok := rec.(wire.DeleteAccountResponse)
	if !ok {
		return "", unexpectedReply(rec, wire.OpDeleteAccountResponse)
	}
	return resp.Status, nil
}

// ============================================================================
// Request Path
// ============================================================================

// roundTrip sends one request on the primary connection and waits for its
// reply, the reader's death, or the request timeout, whichever comes first.
func (c *Client) roundTrip(req wire.Record) (wire.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	sc := c.conns[c.active]
	if sc == nil {
		return nil, ErrNoPrimary
	}

	// Drop a reply stranded by an earlier timed-out request.
	select {
	case <-c.respCh:
	default:
	}

	done := c.readerDone
	if err := sc.send(req, c.nextID()); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", req.Op(), err)
	}

	select {
	case rec := <-c.respCh:
		return rec, nil
	case <-done:
		return nil, ErrPrimaryLost
	case <-time.After(c.opts.requestTimeout):
		return nil, fmt.Errorf("no reply to %s within %s", req.Op(), c.opts.requestTimeout)
	}
}

func (c *Client) nextID() uint32 {
	return c.msgID.Add(1)
}

func unexpectedReply(rec wire.Record, want wire.OpCode) error {
	return fmt.Errorf("unexpected %s reply, want %s", rec.Op(), want)
}

// ============================================================================
// Primary Tracking
// ============================================================================

// adoptPrimaryLocked probes the live connections in configuration order
// until one names a primary the client holds a connection to. A mid-election
// fleet may name a dead replica, so probing repeats until the failover
// window closes.
func (c *Client) adoptPrimaryLocked() error {
	deadline := time.Now().Add(c.opts.failoverTimeout)
	for {
		for _, spec := range c.cfg.Servers {
			sc := c.conns[spec.ID]
			if sc == nil {
				continue
			}
			id, err := c.probeConn(sc)
			if err != nil {
				logger.Debug("Probe failed", logger.PeerID(spec.ID), logger.Err(err))
				c.dropConnLocked(spec.ID)
				continue
			}
			if c.conns[id] == nil {
				// The named primary is one we never reached, likely the
				// replica whose death started this; ask the others.
				continue
			}
			c.active = id
			return nil
		}

		if len(c.conns) == 0 {
			return ErrNoPrimary
		}
		if time.Now().After(deadline) {
			return ErrNoPrimary
		}
		time.Sleep(c.opts.probeRetryInterval)
	}
}

// probeConn asks one replica who the primary is and reads frames until the
// answer arrives. Chat messages pushed while probing are delivered, not
// dropped; stale replies are skipped. Any read failure, including the probe
// timeout, poisons the connection because the stream may die mid-frame.
func (c *Client) probeConn(sc *serverConn) (int, error) {
	if err := sc.send(wire.GetPrimaryRequest{}, c.nextID()); err != nil {
		return 0, err
	}

	_ = sc.conn.SetReadDeadline(time.Now().Add(c.opts.probeTimeout))
	defer func() { _ = sc.conn.SetReadDeadline(time.Time{}) }()

	for {
		_, rec, err := wire.ReadRecord(sc.conn)
		if err != nil {
			return 0, err
		}
		switch rec := rec.(type) {
		case wire.SwitchPrimary:
			return rec.ID, nil
		case wire.RecvMessage:
			c.deliverMessage(rec)
		default:
			// A reply to a request that died with the old primary.
		}
	}
}

func (c *Client) dropConnLocked(id int) {
	if sc := c.conns[id]; sc != nil {
		sc.close()
		delete(c.conns, id)
	}
}

// startReaderLocked starts the reader goroutine for the current primary
// connection. Each reader belongs to one generation; a stale reader that
// outlives a switch cannot trigger a second failover.
func (c *Client) startReaderLocked() {
	c.gen++
	c.readerDone = make(chan struct{})
	go c.readLoop(c.gen, c.active, c.conns[c.active], c.readerDone)
}

// readLoop owns all reads on the primary connection: replies go to the
// waiting request, chat messages and primary announcements go to the
// callbacks. When the connection dies the loop hands off to failover.
func (c *Client) readLoop(gen uint64, id int, sc *serverConn, done chan struct{}) {
	err := wire.ReadLoop(sc.conn, func(_ wire.Header, rec wire.Record) {
		switch rec := rec.(type) {
		case wire.RecvMessage:
			c.deliverMessage(rec)
		case wire.SwitchPrimary:
			// The active replica only ever announces itself; the id is
			// news to the application, not to us.
			if c.opts.onSwitch != nil {
				c.opts.onSwitch(rec.ID)
			}
		default:
			select {
			case c.respCh <- rec:
			default:
				logger.Debug("Discarding reply with no waiting request", logger.Op(rec.Op().String()))
			}
		}
	})

	close(done)
	logger.Debug("Primary connection closed", logger.PrimaryID(id), logger.Err(err))
	c.failover(gen, id)
}

// failover drops the dead primary, finds the new one, and restarts the
// reader. A client that cannot find a primary within the window stays
// connected to whatever survives but fails every request with ErrNoPrimary.
func (c *Client) failover(gen uint64, deadID int) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}

	c.dropConnLocked(deadID)
	c.active = -1

	err := c.adoptPrimaryLocked()
	adopted := c.active
	if err == nil {
		c.startReaderLocked()
	}
	c.mu.Unlock()

	if err != nil {
		logger.Warn("Failover found no primary", logger.Err(err))
		return
	}
	logger.Info("Failed over to new primary", logger.PrimaryID(adopted))
	if c.opts.onSwitch != nil {
		c.opts.onSwitch(adopted)
	}
}

func (c *Client) deliverMessage(rec wire.RecvMessage) {
	if c.opts.onMessage == nil {
		logger.Debug("Dropping pushed message, no handler installed", logger.KeySender, rec.Sender)
		return
	}
	c.opts.onMessage(Message{Sender: rec.Sender, Body: rec.Message})
}
