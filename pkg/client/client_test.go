package client

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parrotchat/parrot/internal/protocol/wire"
	"github.com/parrotchat/parrot/pkg/config"
)

// ============================================================================
// Scripted Replica
// ============================================================================

type fakeConn struct {
	conn    net.Conn
	writeMu sync.Mutex
}

func (fc *fakeConn) send(rec wire.Record, id uint32) error {
	return wire.SendRecord(fc.conn, &fc.writeMu, rec, id)
}

// fakeReplica speaks just enough of the wire protocol to exercise the
// client: it records registrations and chat requests, answers GET_PRIMARY
// with a settable belief, and returns canned statuses.
type fakeReplica struct {
	id     int
	ln     net.Listener
	belief atomic.Int64

	mu       sync.Mutex
	uuids    []string
	conns    []*fakeConn
	requests []wire.Record
}

func startFakeReplica(t *testing.T, id, belief int) *fakeReplica {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeReplica{id: id, ln: ln}
	f.belief.Store(int64(belief))
	t.Cleanup(f.stop)
	go f.acceptLoop()
	return f
}

func (f *fakeReplica) acceptLoop() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		fc := &fakeConn{conn: conn}
		f.mu.Lock()
		f.conns = append(f.conns, fc)
		f.mu.Unlock()
		go f.serve(fc)
	}
}

func (f *fakeReplica) serve(fc *fakeConn) {
	_ = wire.ReadLoop(fc.conn, func(h wire.Header, rec wire.Record) {
		switch rec := rec.(type) {
		case wire.RegisterClientUUID:
			f.mu.Lock()
			f.uuids = append(f.uuids, rec.UUID)
			f.mu.Unlock()
		case wire.GetPrimaryRequest:
			_ = fc.send(wire.SwitchPrimary{ID: int(f.belief.Load())}, h.ID)
		case wire.CreateAccountRequest:
			f.recordRequest(rec)
			_ = fc.send(wire.CreateAccountResponse{Status: "Success"}, h.ID)
		case wire.ListAccountsRequest:
			f.recordRequest(rec)
			_ = fc.send(wire.ListAccountsResponse{Status: "Success", Accounts: "alice;bob"}, h.ID)
		case wire.SendMsgRequest:
			f.recordRequest(rec)
			_ = fc.send(wire.SendMessageResponse{Status: "Success"}, h.ID)
		case wire.LoginRequest:
			f.recordRequest(rec)
			_ = fc.send(wire.LoginResponse{Status: "Success"}, h.ID)
		case wire.LogoffRequest:
			f.recordRequest(rec)
			_ = fc.send(wire.LogoffResponse{Status: "Success"}, h.ID)
		case wire.DeleteAccountRequest:
			f.recordRequest(rec)
			_ = fc.send(wire.DeleteAccountResponse{Status: "Success"}, h.ID)
		}
	})
}

func (f *fakeReplica) recordRequest(rec wire.Record) {
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()
}

// push writes a server-initiated frame on the most recent connection.
func (f *fakeReplica) push(t *testing.T, rec wire.Record) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.conns, "no client connection to push on")
	require.NoError(t, f.conns[len(f.conns)-1].send(rec, 9999))
}

func (f *fakeReplica) registeredUUIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uuids...)
}

func (f *fakeReplica) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeReplica) stop() {
	_ = f.ln.Close()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fc := range f.conns {
		_ = fc.conn.Close()
	}
}

func (f *fakeReplica) spec() config.ServerSpec {
	addr := f.ln.Addr().(*net.TCPAddr)
	return config.ServerSpec{Host: "127.0.0.1", Port: addr.Port, ID: f.id}
}

func fleetConfig(replicas ...*fakeReplica) *config.Config {
	cfg := &config.Config{}
	for _, f := range replicas {
		cfg.Servers = append(cfg.Servers, f.spec())
	}
	return cfg
}

// unusedSpec reserves a port nobody is listening on.
func unusedSpec(t *testing.T, id int) config.ServerSpec {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())
	return config.ServerSpec{Host: "127.0.0.1", Port: addr.Port, ID: id}
}

// ============================================================================
// Dialing
// ============================================================================

func TestDial(t *testing.T) {
	t.Run("RegistersOnEveryReplica", func(t *testing.T) {
		f1 := startFakeReplica(t, 1, 1)
		f2 := startFakeReplica(t, 2, 1)

		c, err := Dial(fleetConfig(f1, f2), WithUUID("fixed-uuid"))
		require.NoError(t, err)
		defer c.Close()

		assert.Equal(t, "fixed-uuid", c.UUID())
		assert.Equal(t, 1, c.PrimaryID())

		require.Eventually(t, func() bool {
			return len(f1.registeredUUIDs()) == 1 && len(f2.registeredUUIDs()) == 1
		}, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, []string{"fixed-uuid"}, f1.registeredUUIDs())
		assert.Equal(t, []string{"fixed-uuid"}, f2.registeredUUIDs())
	})

	t.Run("GeneratesUUID", func(t *testing.T) {
		f1 := startFakeReplica(t, 1, 1)

		c, err := Dial(fleetConfig(f1))
		require.NoError(t, err)
		defer c.Close()

		assert.NotEmpty(t, c.UUID())
	})

	t.Run("SkipsUnreachableServers", func(t *testing.T) {
		f2 := startFakeReplica(t, 2, 2)
		cfg := &config.Config{Servers: []config.ServerSpec{unusedSpec(t, 1), f2.spec()}}

		c, err := Dial(cfg, WithDialTimeout(500*time.Millisecond))
		require.NoError(t, err)
		defer c.Close()

		assert.Equal(t, 2, c.PrimaryID())
	})

	t.Run("NoReachableServers", func(t *testing.T) {
		cfg := &config.Config{Servers: []config.ServerSpec{unusedSpec(t, 1), unusedSpec(t, 2)}}

		_, err := Dial(cfg, WithDialTimeout(300*time.Millisecond))
		require.ErrorIs(t, err, ErrNoServers)
	})

	t.Run("NoPrimaryWhenBeliefPointsAtDeadReplica", func(t *testing.T) {
		// The only reachable replica keeps naming a primary we never
		// connected to; the dial must give up after the failover window.
		f2 := startFakeReplica(t, 2, 1)
		cfg := &config.Config{Servers: []config.ServerSpec{unusedSpec(t, 1), f2.spec()}}

		_, err := Dial(cfg,
			WithDialTimeout(300*time.Millisecond),
			WithFailoverTimeout(400*time.Millisecond),
			WithProbeTimeout(200*time.Millisecond))
		require.ErrorIs(t, err, ErrNoPrimary)
	})
}

// ============================================================================
// Requests
// ============================================================================

func TestRequests(t *testing.T) {
	f1 := startFakeReplica(t, 1, 1)
	c, err := Dial(fleetConfig(f1))
	require.NoError(t, err)
	defer c.Close()

	t.Run("CreateAccount", func(t *testing.T) {
		status, err := c.CreateAccount("alice")
		require.NoError(t, err)
		assert.Equal(t, "Success", status)
	})

	t.Run("ListAccounts", func(t *testing.T) {
		status, accounts, err := c.ListAccounts(".*")
		require.NoError(t, err)
		assert.Equal(t, "Success", status)
		assert.Equal(t, []string{"alice", "bob"}, accounts)
	})

	t.Run("Send", func(t *testing.T) {
		status, err := c.Send("bob", "hello")
		require.NoError(t, err)
		assert.Equal(t, "Success", status)
	})

	t.Run("LoginLogoffDelete", func(t *testing.T) {
		for _, call := range []func() (string, error){
			func() (string, error) { return c.Login("alice") },
			func() (string, error) { return c.Logoff() },
			func() (string, error) { return c.DeleteAccount() },
		} {
			status, err := call()
			require.NoError(t, err)
			assert.Equal(t, "Success", status)
		}
	})

	t.Run("AllRequestsReachedPrimary", func(t *testing.T) {
		assert.Equal(t, 6, f1.requestCount())
	})
}

// ============================================================================
// Pushes
// ============================================================================

func TestMessagePush(t *testing.T) {
	f1 := startFakeReplica(t, 1, 1)

	received := make(chan Message, 4)
	c, err := Dial(fleetConfig(f1), WithMessageHandler(func(m Message) { received <- m }))
	require.NoError(t, err)
	defer c.Close()

	f1.push(t, wire.RecvMessage{Sender: "alice", Message: "hi there"})

	select {
	case m := <-received:
		assert.Equal(t, Message{Sender: "alice", Body: "hi there"}, m)
	case <-time.After(2 * time.Second):
		t.Fatal("pushed message never reached the handler")
	}
}

// ============================================================================
// Failover
// ============================================================================

func TestFailover(t *testing.T) {
	t.Run("AdoptsSurvivor", func(t *testing.T) {
		f1 := startFakeReplica(t, 1, 1)
		f2 := startFakeReplica(t, 2, 1)

		switches := make(chan int, 4)
		c, err := Dial(fleetConfig(f1, f2),
			WithSwitchHandler(func(id int) { switches <- id }),
			WithProbeTimeout(500*time.Millisecond),
			WithFailoverTimeout(5*time.Second))
		require.NoError(t, err)
		defer c.Close()
		require.Equal(t, 1, c.PrimaryID())

		// The old primary dies and the survivor takes over.
		f2.belief.Store(2)
		f1.stop()

		select {
		case id := <-switches:
			assert.Equal(t, 2, id)
		case <-time.After(3 * time.Second):
			t.Fatal("switch handler never fired")
		}
		assert.Equal(t, 2, c.PrimaryID())

		status, err := c.CreateAccount("alice")
		require.NoError(t, err)
		assert.Equal(t, "Success", status)
		assert.Equal(t, 1, f2.requestCount())
	})

	t.Run("NoPrimaryAfterFleetDies", func(t *testing.T) {
		f1 := startFakeReplica(t, 1, 1)
		f2 := startFakeReplica(t, 2, 1)

		c, err := Dial(fleetConfig(f1, f2),
			WithProbeTimeout(200*time.Millisecond),
			WithFailoverTimeout(500*time.Millisecond))
		require.NoError(t, err)
		defer c.Close()

		f1.stop()
		f2.stop()

		require.Eventually(t, func() bool { return c.PrimaryID() == -1 },
			3*time.Second, 10*time.Millisecond)

		_, err = c.CreateAccount("alice")
		require.ErrorIs(t, err, ErrNoPrimary)
	})
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestClose(t *testing.T) {
	f1 := startFakeReplica(t, 1, 1)

	c, err := Dial(fleetConfig(f1))
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "closing twice is fine")

	_, err = c.CreateAccount("alice")
	require.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, -1, c.PrimaryID())
}

func TestUnexpectedReply(t *testing.T) {
	err := unexpectedReply(wire.Ack{}, wire.OpCreateAccountResponse)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACK")
	assert.Contains(t, err.Error(), "CREATE_ACCOUNT_RESPONSE")
}
