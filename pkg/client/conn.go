package client

import (
	"net"
	"sync"

	"github.com/parrotchat/parrot/internal/protocol/wire"
)

// serverConn is one registered connection to a replica. Writes are
// serialized. Reads belong to whoever currently owns the connection (the
// reader goroutine for the active primary, the probing code for everything
// else), so no read lock is needed.
type serverConn struct {
	id   int
	conn net.Conn

	writeMu sync.Mutex
}

func newServerConn(id int, conn net.Conn) *serverConn {
	return &serverConn{id: id, conn: conn}
}

func (sc *serverConn) send(rec wire.Record, id uint32) error {
	return wire.SendRecord(sc.conn, &sc.writeMu, rec, id)
}

func (sc *serverConn) close() {
	_ = sc.conn.Close()
}
