package wire

import (
	"net"
	"sync"
)

// Send writes a complete frame under the connection's write mutex. Each
// connection is shared by several writers (request handlers, the delivery
// pump, failover announcements), so every write must hold the same mutex to
// keep frames contiguous on the wire. Short writes are retried; any write
// error returns ErrConnectionClosed.
func Send(conn net.Conn, mu *sync.Mutex, frame []byte) error {
	mu.Lock()
	defer mu.Unlock()
	for len(frame) > 0 {
		n, err := conn.Write(frame)
		if err != nil {
			return ErrConnectionClosed
		}
		frame = frame[n:]
	}
	return nil
}

// SendRecord encodes rec with the given message id and sends it.
func SendRecord(conn net.Conn, mu *sync.Mutex, rec Record, id uint32) error {
	return Send(conn, mu, Encode(rec, id))
}

// ReadLoop reads and decodes frames from conn until the connection fails,
// invoking handle for each. Reads are owned by exactly one goroutine per
// connection; responses flow back through Send on the shared write mutex.
// The returned error is ErrConnectionClosed for transport failures or a
// decode error for a schema violation; either way the caller must drop the
// connection.
func ReadLoop(conn net.Conn, handle func(Header, Record)) error {
	for {
		h, rec, err := ReadRecord(conn)
		if err != nil {
			return err
		}
		handle(h, rec)
	}
}
