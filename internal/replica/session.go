package replica

import (
	"net"
	"sync"

	"github.com/parrotchat/parrot/internal/protocol/wire"
)

// session wraps one accepted connection. The same type serves chat clients
// and inbound peer links: the first frames on the connection reveal which it
// is, and the dispatch table handles both without caring.
//
// Reads are owned by the session's reader goroutine. Writes come from several
// goroutines (the reader answering requests, the delivery pump, the failover
// announcement) and are serialized by writeMu so frames stay contiguous on
// the wire.
type session struct {
	conn net.Conn

	writeMu sync.Mutex

	// uuid is the identity bound by REGISTER_CLIENT_UUID. Empty for peer
	// connections and for clients that have not registered yet. Set under the
	// server's clients lock so table and field stay consistent; afterwards it
	// is only read by the owning reader goroutine and by table lookups that
	// already hold the clients lock.
	uuid string
}

func newSession(conn net.Conn) *session {
	return &session{conn: conn}
}

// send writes one frame under the session's write mutex.
func (s *session) send(rec wire.Record, id uint32) error {
	return wire.SendRecord(s.conn, &s.writeMu, rec, id)
}

func (s *session) remoteAddr() string {
	return s.conn.RemoteAddr().String()
}

// clientIP strips the port from the peer address for log correlation.
func (s *session) clientIP() string {
	host, _, err := net.SplitHostPort(s.conn.RemoteAddr().String())
	if err != nil {
		return s.conn.RemoteAddr().String()
	}
	return host
}
