package reliable

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// fakeConn is an in-memory net.PacketConn stand-in so tests exercise the
// sender/receiver state machines without opening real sockets.
type fakeConn struct {
	mu     sync.Mutex
	writes [][]byte
	drop   bool
}

func newFakeConn() *fakeConn { return &fakeConn{} }

func (c *fakeConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drop {
		return 0, nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	c.writes = append(c.writes, cp)
	return len(b), nil
}

func (c *fakeConn) ReadFrom(b []byte) (int, net.Addr, error) { return 0, nil, io.EOF }
func (c *fakeConn) Close() error                              { return nil }
func (c *fakeConn) LocalAddr() net.Addr                        { return &net.UDPAddr{} }
func (c *fakeConn) SetDeadline(time.Time) error                { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error            { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error           { return nil }

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func (c *fakeConn) last() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes[len(c.writes)-1]
}

var _ net.PacketConn = (*fakeConn)(nil)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fakeAddr struct{ s string }

func (a fakeAddr) Network() string { return "udp" }
func (a fakeAddr) String() string  { return a.s }

var remote net.Addr = fakeAddr{"127.0.0.1:9999"}
