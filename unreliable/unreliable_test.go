package unreliable

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"hudp/delivery"
	"hudp/wire"
)

type fakeConn struct {
	mu     sync.Mutex
	writes [][]byte
}

func (c *fakeConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
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

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fakeAddr struct{}

func (fakeAddr) Network() string { return "udp" }
func (fakeAddr) String() string  { return "127.0.0.1:1" }

func TestSenderAssignsMonotonicSeq(t *testing.T) {
	conn := &fakeConn{}
	s := NewSender(conn, fakeAddr{}, testLogger(), nil)

	for want := uint16(0); want < 5; want++ {
		got, err := s.Send([]byte("x"))
		if err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		if got != want {
			t.Errorf("Send() = %d, want %d", got, want)
		}
	}
}

func TestSenderWrapsAtMaxSeq(t *testing.T) {
	conn := &fakeConn{}
	s := NewSender(conn, fakeAddr{}, testLogger(), nil)
	s.nextSeq = 65535

	first, _ := s.Send([]byte("x"))
	second, _ := s.Send([]byte("x"))
	if first != 65535 || second != 0 {
		t.Errorf("expected wrap 65535 -> 0, got %d then %d", first, second)
	}
}

func TestSendOversizePayloadReturnsErrWithoutSideEffects(t *testing.T) {
	conn := &fakeConn{}
	s := NewSender(conn, fakeAddr{}, testLogger(), nil)

	oversize := make([]byte, wire.MaxPayloadSize+1)
	if _, err := s.Send(oversize); err != wire.ErrPayloadTooLarge {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if len(conn.writes) != 0 {
		t.Errorf("PayloadTooLarge must not transmit, got %d writes", len(conn.writes))
	}

	next, err := s.Send([]byte("x"))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if next != 0 {
		t.Errorf("expected the failed oversize send to leave the sequence counter untouched, got next seq %d", next)
	}
}

func TestReceiverComputesLatencyAndDelivers(t *testing.T) {
	var got delivery.Record
	sink := delivery.SinkFunc(func(r delivery.Record) { got = r })
	r := NewReceiver(sink, nil)

	now := wire.NowMillis()
	r.OnReceive(wire.Data{Channel: wire.ChannelUnreliable, Seq: 7, Timestamp: now - 5, Payload: []byte("hi")})

	if got.Seq != 7 || string(got.Payload) != "hi" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Channel != wire.ChannelUnreliable {
		t.Errorf("expected unreliable channel tag, got %v", got.Channel)
	}
	if got.Latency > 1000 {
		t.Errorf("latency should be small and non-wrapped for a just-stamped packet, got %d", got.Latency)
	}
}
