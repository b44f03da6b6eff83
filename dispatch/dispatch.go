// Package dispatch implements the single socket-owning receive loop
// that demultiplexes inbound datagrams into ACK frames (routed to the
// reliable sender) and DATA frames (routed to the reliable or
// unreliable receiver by channel), per §4.7.
package dispatch

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"hudp/delivery"
	"hudp/wire"
)

// recvTimeout bounds each blocking read so the loop can observe context
// cancellation promptly (§4.7, ≈ 500 ms).
const recvTimeout = 500 * time.Millisecond

const maxDatagramSize = 2048

// ReliableSender is the subset of reliable.Sender the dispatcher needs.
type ReliableSender interface {
	OnAck(ackNo uint16)
}

// ReliableReceiver is the subset of reliable.Receiver the dispatcher
// needs.
type ReliableReceiver interface {
	OnReceive(d wire.Data, senderAddr net.Addr)
}

// UnreliableReceiver is the subset of unreliable.Receiver the
// dispatcher needs.
type UnreliableReceiver interface {
	OnReceive(d wire.Data)
}

// Loop owns the socket for reads and demultiplexes every inbound
// datagram (§4.7). Exactly one Loop runs per facade instance.
type Loop struct {
	conn net.PacketConn
	log  *logrus.Logger
	obs  delivery.Observer

	isSender bool

	reliableSender     ReliableSender     // sender role only
	reliableReceiver   ReliableReceiver   // receiver role only
	unreliableReceiver UnreliableReceiver // receiver role only
}

// New constructs a dispatcher loop. Exactly one of (reliableSender) or
// (reliableReceiver, unreliableReceiver) should be non-nil, matching
// the role the facade was constructed with.
func New(conn net.PacketConn, log *logrus.Logger, obs delivery.Observer, sender ReliableSender, reliableReceiver ReliableReceiver, unreliableReceiver UnreliableReceiver) *Loop {
	if obs == nil {
		obs = delivery.NullObserver{}
	}
	return &Loop{
		conn:               conn,
		log:                log,
		obs:                obs,
		isSender:           sender != nil,
		reliableSender:     sender,
		reliableReceiver:   reliableReceiver,
		unreliableReceiver: unreliableReceiver,
	}
}

// Run blocks, reading and dispatching datagrams until ctx is canceled
// (§4.7). It always returns nil on a clean cancellation, matching the
// errgroup-friendly contract the facade relies on for lifecycle.
func (l *Loop) Run(ctx context.Context) error {
	buf := make([]byte, maxDatagramSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		l.conn.SetReadDeadline(time.Now().Add(recvTimeout))
		n, addr, err := l.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if isTimeout(err) {
				continue
			}
			// Transient socket errors (including platform-specific
			// "connection reset" for a UDP peer that ICMP-unreachable'd
			// us) are logged and the loop continues (§4.7, §7 SocketIO).
			l.log.WithError(err).Warn("dispatch: transient socket error")
			continue
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		l.dispatch(datagram, addr)
	}
}

func (l *Loop) dispatch(datagram []byte, addr net.Addr) {
	if wire.IsACK(datagram) {
		ack, err := wire.DecodeACK(datagram)
		if err != nil {
			l.obs.OnMalformed()
			l.log.WithError(err).Debug("dispatch: malformed ACK discarded")
			return
		}
		if l.isSender {
			l.reliableSender.OnAck(ack.AckNo)
		}
		// Receivers do not expect ACKs; discard silently (§4.7).
		return
	}

	data, err := wire.Decode(datagram)
	if err != nil {
		l.obs.OnMalformed()
		l.log.WithError(err).Debug("dispatch: malformed datagram discarded")
		return
	}

	if l.isSender {
		// A sender role never has receivers wired; nothing to dispatch
		// DATA frames to.
		return
	}

	switch data.Channel {
	case wire.ChannelReliable:
		l.reliableReceiver.OnReceive(data, addr)
	case wire.ChannelUnreliable:
		l.unreliableReceiver.OnReceive(data)
	default:
		l.log.WithField("channel", data.Channel).Debug("dispatch: unknown channel discarded")
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
