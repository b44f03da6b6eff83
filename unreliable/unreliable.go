// Package unreliable implements the fire-and-forget delivery discipline
// (§4.3, §4.4): a monotonically numbered sender with no retained state,
// and a receiver that measures latency but performs no ordering or
// dedup.
package unreliable

import (
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"hudp/delivery"
	"hudp/wire"
)

// Sender stamps, encodes, and transmits unreliable packets (§4.3).
type Sender struct {
	conn   net.PacketConn
	remote net.Addr
	log    *logrus.Logger
	obs    delivery.Observer

	mu      sync.Mutex
	nextSeq uint16
}

// NewSender constructs an unreliable sender; obs may be nil.
func NewSender(conn net.PacketConn, remote net.Addr, log *logrus.Logger, obs delivery.Observer) *Sender {
	if obs == nil {
		obs = delivery.NullObserver{}
	}
	return &Sender{conn: conn, remote: remote, log: log, obs: obs}
}

// Send encodes and transmits payload once, returning the assigned
// sequence. No state is retained about the packet once this returns
// (§4.3).
func (s *Sender) Send(payload []byte) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seqNo := s.nextSeq
	encoded, err := wire.Encode(wire.ChannelUnreliable, seqNo, payload)
	if err != nil {
		return 0, err
	}
	s.nextSeq++

	if _, err := s.conn.WriteTo(encoded, s.remote); err != nil {
		s.log.WithError(err).WithField("seq", seqNo).Warn("unreliable send: socket error, not retried")
		s.obs.OnSend(wire.ChannelUnreliable, seqNo)
		return seqNo, &SendIOError{Cause: err}
	}

	s.obs.OnSend(wire.ChannelUnreliable, seqNo)
	return seqNo, nil
}

// SendIOError wraps a transient socket error from the unreliable
// sender (§4.3 "Fails with SendIO(cause) on socket error (never retried
// here)").
type SendIOError struct{ Cause error }

func (e *SendIOError) Error() string { return "unreliable: send failed: " + e.Cause.Error() }
func (e *SendIOError) Unwrap() error { return e.Cause }

// Receiver decodes inbound unreliable packets, computes latency, and
// hands each one to the delivery sink with no ordering or
// deduplication (§4.4).
type Receiver struct {
	sink delivery.Sink
	obs  delivery.Observer
}

// NewReceiver constructs an unreliable receiver; obs may be nil.
func NewReceiver(sink delivery.Sink, obs delivery.Observer) *Receiver {
	if obs == nil {
		obs = delivery.NullObserver{}
	}
	return &Receiver{sink: sink, obs: obs}
}

// OnReceive wraps a decoded DATA frame into a delivery record and hands
// it to the sink (§4.4).
func (r *Receiver) OnReceive(d wire.Data) {
	record := delivery.Record{
		Seq:       d.Seq,
		Payload:   d.Payload,
		Timestamp: d.Timestamp,
		Latency:   wire.Latency(wire.NowMillis(), d.Timestamp),
		Channel:   wire.ChannelUnreliable,
	}
	r.obs.OnDeliver(record)
	r.sink.Deliver(record)
}
