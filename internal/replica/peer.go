package replica

import (
	"net"
	"sync"
	"time"

	"github.com/parrotchat/parrot/internal/protocol/wire"
)

// peerLink is an outbound connection to another replica. Each replica pair is
// joined by two TCP connections, one dialed from each side; a link carries
// only traffic this replica initiates (election probes, heartbeats, update
// broadcasts) and the single-frame replies to it. The peer answers on its
// accepted end of the same connection, so reads here never race a reader
// goroutine: whichever task issued the request reads the reply.
type peerLink struct {
	id   int
	addr string
	conn net.Conn

	writeMu sync.Mutex
}

// call sends one frame and reads the single reply frame. A non-zero timeout
// bounds the reply read; zero blocks until the peer answers or the connection
// dies. Once a deadline fires the stream may be mid-frame, so any error from
// call means the link is unusable and the caller must drop the peer.
func (p *peerLink) call(rec wire.Record, id uint32, timeout time.Duration) (wire.Header, wire.Record, error) {
	if err := wire.SendRecord(p.conn, &p.writeMu, rec, id); err != nil {
		return wire.Header{}, nil, err
	}
	if timeout > 0 {
		_ = p.conn.SetReadDeadline(time.Now().Add(timeout))
		defer func() { _ = p.conn.SetReadDeadline(time.Time{}) }()
	}
	return wire.ReadRecord(p.conn)
}

func (p *peerLink) close() {
	_ = p.conn.Close()
}
