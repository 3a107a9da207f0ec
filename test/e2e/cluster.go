//go:build e2e

// Package e2e exercises a whole replica fleet end to end: real TCP
// listeners, real store log files, and the public client library. Replicas
// run in-process so tests can kill one and inspect the files it leaves
// behind.
package e2e

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parrotchat/parrot/internal/replica"
	"github.com/parrotchat/parrot/pkg/client"
	"github.com/parrotchat/parrot/pkg/config"
)

const (
	// waitTimeout bounds every polling wait in the suite.
	waitTimeout = 10 * time.Second

	// pollInterval is the cadence of polling waits.
	pollInterval = 10 * time.Millisecond
)

// testCluster is a fleet of in-process replicas sharing one configuration
// and one data directory, with ids 1..n.
type testCluster struct {
	t   *testing.T
	cfg *config.Config

	mu       sync.Mutex
	replicas map[int]*managedReplica
}

// managedReplica pairs a running replica with its shutdown handle.
type managedReplica struct {
	srv    *replica.Server
	cancel context.CancelFunc
	done   chan error
}

// findFreePort finds an available TCP port by binding to :0 and reading the
// assigned port.
func findFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to find free port")
	defer func() { _ = listener.Close() }()

	return listener.Addr().(*net.TCPAddr).Port
}

// clusterConfig builds a shared configuration for n replicas on loopback
// ports, with intervals tightened so failover scenarios settle quickly.
func clusterConfig(t *testing.T, n int) *config.Config {
	t.Helper()

	cfg := &config.Config{DataDir: t.TempDir()}
	for id := 1; id <= n; id++ {
		cfg.Servers = append(cfg.Servers, config.ServerSpec{
			Host: "127.0.0.1",
			Port: findFreePort(t),
			ID:   id,
		})
	}
	config.ApplyDefaults(cfg)

	cfg.Replication.HeartbeatInterval = 50 * time.Millisecond
	cfg.Replication.ElectionTimeout = 500 * time.Millisecond
	cfg.Replication.PeerDialTimeout = 5 * time.Second
	cfg.Replication.PeerRetryInterval = 25 * time.Millisecond
	cfg.ShutdownTimeout = 2 * time.Second

	return cfg
}

// startCluster boots n replicas and waits until every one is fully peered
// and agrees that replica 1 is primary.
func startCluster(t *testing.T, n int) *testCluster {
	t.Helper()

	c := &testCluster{
		t:        t,
		cfg:      clusterConfig(t, n),
		replicas: make(map[int]*managedReplica),
	}
	for id := 1; id <= n; id++ {
		c.start(id)
	}
	t.Cleanup(c.stopAll)

	c.waitPeered(n - 1)
	c.waitPrimary(1)
	return c
}

// start boots one replica and blocks until its listener is up.
func (c *testCluster) start(id int) {
	c.t.Helper()

	srv, err := replica.New(c.cfg, id, nil, nil)
	require.NoError(c.t, err, "failed to create replica %d", id)

	ctx, cancel := context.WithCancel(context.Background())
	mr := &managedReplica{srv: srv, cancel: cancel, done: make(chan error, 1)}
	go func() { mr.done <- srv.Serve(ctx) }()
	srv.ListenerAddr()

	c.mu.Lock()
	c.replicas[id] = mr
	c.mu.Unlock()
}

// kill shuts one replica down and waits for its Serve to return, so by the
// time kill returns every connection it held is closed.
func (c *testCluster) kill(id int) {
	c.t.Helper()

	c.mu.Lock()
	mr := c.replicas[id]
	delete(c.replicas, id)
	c.mu.Unlock()
	require.NotNil(c.t, mr, "replica %d is not running", id)

	mr.cancel()
	select {
	case <-mr.done:
	case <-time.After(waitTimeout):
		c.t.Fatalf("replica %d did not shut down", id)
	}
}

func (c *testCluster) stopAll() {
	c.mu.Lock()
	replicas := c.replicas
	c.replicas = make(map[int]*managedReplica)
	c.mu.Unlock()

	for _, mr := range replicas {
		mr.cancel()
	}
	for _, mr := range replicas {
		select {
		case <-mr.done:
		case <-time.After(waitTimeout):
		}
	}
}

// replica returns the running replica with the given id.
func (c *testCluster) replica(id int) *replica.Server {
	c.t.Helper()

	c.mu.Lock()
	defer c.mu.Unlock()
	mr := c.replicas[id]
	require.NotNil(c.t, mr, "replica %d is not running", id)
	return mr.srv
}

// live returns the running replicas in id order.
func (c *testCluster) live() []*replica.Server {
	c.mu.Lock()
	defer c.mu.Unlock()

	srvs := make([]*replica.Server, 0, len(c.replicas))
	for id := 1; id <= len(c.cfg.Servers); id++ {
		if mr := c.replicas[id]; mr != nil {
			srvs = append(srvs, mr.srv)
		}
	}
	return srvs
}

// waitPeered waits until every running replica holds a live link to `peers`
// other replicas. Mutations issued before the fleet is peered would not
// replicate everywhere, so tests call this before touching state.
func (c *testCluster) waitPeered(peers int) {
	c.t.Helper()

	require.Eventually(c.t, func() bool {
		for _, srv := range c.live() {
			if len(srv.Status().LivePeers) != peers {
				return false
			}
		}
		return true
	}, waitTimeout, pollInterval, "fleet never fully peered")
}

// waitPrimary waits until every running replica believes the given id is
// primary.
func (c *testCluster) waitPrimary(want int) {
	c.t.Helper()

	require.Eventually(c.t, func() bool {
		for _, srv := range c.live() {
			if srv.PrimaryID() != want {
				return false
			}
		}
		return true
	}, waitTimeout, pollInterval, "fleet never agreed on primary %d", want)
}

// dial connects a client to the fleet.
func (c *testCluster) dial(opts ...client.Option) *client.Client {
	c.t.Helper()

	cl, err := client.Dial(c.cfg, opts...)
	require.NoError(c.t, err, "client dial failed")
	c.t.Cleanup(func() { _ = cl.Close() })
	return cl
}

// storeLines returns the non-blank lines of one replica's store log file.
// A missing file reads as empty: the store creates it lazily.
func (c *testCluster) storeLines(name string, id int) []string {
	c.t.Helper()

	path := filepath.Join(c.cfg.DataDir, fmt.Sprintf("%s_%d.log", name, id))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		c.t.Fatalf("failed to read %s: %v", path, err)
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// collect funnels pushed chat messages into a channel large enough that the
// client's reader goroutine never blocks on it.
func collect() (chan client.Message, client.Option) {
	ch := make(chan client.Message, 64)
	return ch, client.WithMessageHandler(func(m client.Message) { ch <- m })
}

// expectMessage waits for one pushed message within the given window.
func expectMessage(t *testing.T, ch <-chan client.Message, within time.Duration) client.Message {
	t.Helper()

	select {
	case m := <-ch:
		return m
	case <-time.After(within):
		t.Fatalf("no message delivered within %s", within)
	}
	return client.Message{}
}
