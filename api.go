// Package hudp is the public facade over the dual-channel datagram
// transport: a bounded selective-repeat RELIABLE channel and a
// fire-and-forget UNRELIABLE channel sharing one wire format and one
// socket (§4.8).
package hudp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"hudp/delivery"
	"hudp/dispatch"
	"hudp/reliable"
	"hudp/unreliable"
)

// Role fixes a Facade as the sending or receiving half of a connection
// for its entire lifetime (§4.8 "Role-fixed at construction").
type Role int

const (
	RoleSender Role = iota
	RoleReceiver
)

func (r Role) String() string {
	if r == RoleSender {
		return "sender"
	}
	return "receiver"
}

// deliveryQueueDepth bounds the facade's internal delivery queue; a slow
// consumer of Receive applies back-pressure to the dispatcher rather
// than growing memory without bound.
const deliveryQueueDepth = 1024

// Facade binds one role of one H-UDP connection: a UDP socket, the
// dispatcher loop that owns its reads, and the sender- or receiver-side
// reliable/unreliable subcomponents (§4.8).
type Facade struct {
	role Role
	log  *logrus.Logger
	conn *net.UDPConn

	reliableSender     *reliable.Sender
	unreliableSender   *unreliable.Sender
	reliableReceiver   *reliable.Receiver
	unreliableReceiver *unreliable.Receiver

	queue chan delivery.Record

	group  *errgroup.Group
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// New constructs a Facade bound to localPort. remoteAddr is required for
// RoleSender (the fixed peer every send targets) and unused by
// RoleReceiver, which accepts datagrams from whatever address sent
// them (§4.8). A non-empty remoteAddr is resolved for either role, and
// New fails if it does not resolve.
func New(role Role, localPort int, remoteAddr string, opts ...Option) (*Facade, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if role == RoleSender && remoteAddr == "" {
		return nil, ErrRemoteAddrRequired
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: localPort})
	if err != nil {
		return nil, fmt.Errorf("hudp: bind local port %d: %w", localPort, err)
	}

	var remote *net.UDPAddr
	if remoteAddr != "" {
		remote, err = net.ResolveUDPAddr("udp", remoteAddr)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("hudp: resolve remote address %q: %w", remoteAddr, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	f := &Facade{
		role:   role,
		log:    cfg.logger,
		conn:   conn,
		group:  group,
		cancel: cancel,
	}

	var loop *dispatch.Loop

	switch role {
	case RoleSender:
		f.reliableSender = reliable.NewSender(conn, remote, cfg.senderTimeout, cfg.logger, cfg.observer)
		f.unreliableSender = unreliable.NewSender(conn, remote, cfg.logger, cfg.observer)
		loop = dispatch.New(conn, cfg.logger, cfg.observer, f.reliableSender, nil, nil)

	case RoleReceiver:
		f.queue = make(chan delivery.Record, deliveryQueueDepth)
		sink := delivery.SinkFunc(func(r delivery.Record) {
			select {
			case f.queue <- r:
			case <-ctx.Done():
			}
		})
		f.reliableReceiver = reliable.NewReceiver(conn, sink, cfg.receiverTimeout, cfg.logger, cfg.observer)
		f.unreliableReceiver = unreliable.NewReceiver(sink, cfg.observer)
		loop = dispatch.New(conn, cfg.logger, cfg.observer, nil, f.reliableReceiver, f.unreliableReceiver)

	default:
		conn.Close()
		cancel()
		return nil, fmt.Errorf("hudp: unknown role %v", role)
	}

	f.group.Go(func() error {
		return loop.Run(ctx)
	})

	f.log.WithFields(logrus.Fields{
		"role":        role,
		"local_addr":  conn.LocalAddr(),
		"remote_addr": remoteAddr,
	}).Info("hudp: facade started")

	return f, nil
}

// Send transmits payload on the reliable or unreliable channel,
// returning the assigned sequence number (§4.8 operation `send`).
// Sender-role only.
func (f *Facade) Send(payload []byte, reliableChannel bool) (uint16, error) {
	if f.role != RoleSender {
		return 0, ErrWrongRole
	}
	if reliableChannel {
		return f.reliableSender.Send(payload)
	}
	seq, err := f.unreliableSender.Send(payload)
	return seq, err
}

// Receive dequeues the next delivered record, honoring an optional
// bounded wait (§4.8 operation `receive`). Receiver-role only.
//
// timeout < 0 blocks until a record arrives or the facade is closed;
// timeout == 0 checks the queue without blocking; timeout > 0 waits up
// to that duration. A timeout with nothing delivered returns
// (Record{}, false, nil), matching the spec's "returns None on timeout".
func (f *Facade) Receive(timeout time.Duration) (delivery.Record, bool, error) {
	if f.role != RoleReceiver {
		return delivery.Record{}, false, ErrWrongRole
	}

	if timeout == 0 {
		select {
		case r, ok := <-f.queue:
			if !ok {
				return delivery.Record{}, false, ErrClosed
			}
			return r, true, nil
		default:
			return delivery.Record{}, false, nil
		}
	}

	if timeout < 0 {
		r, ok := <-f.queue
		if !ok {
			return delivery.Record{}, false, ErrClosed
		}
		return r, true, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r, ok := <-f.queue:
		if !ok {
			return delivery.Record{}, false, ErrClosed
		}
		return r, true, nil
	case <-timer.C:
		return delivery.Record{}, false, nil
	}
}

// WindowUsed reports the reliable sender's current in-flight count
// (diagnostic, sender-role only; 0 for the other role).
func (f *Facade) WindowUsed() int {
	if f.role != RoleSender {
		return 0
	}
	return f.reliableSender.WindowUsed()
}

// Close closes the socket, waits for the dispatcher loop to exit, then
// stops the sub-senders' or sub-receivers' background goroutines
// (§4.8 "Close"). Idempotent.
func (f *Facade) Close() error {
	f.closeOnce.Do(func() {
		f.cancel()

		// Close the socket before waiting for the dispatch loop: it
		// unblocks the in-flight ReadFrom immediately instead of making
		// the loop wait out its read deadline.
		if err := f.conn.Close(); err != nil {
			f.closeErr = err
		}

		// The dispatch loop must have fully exited before the queue is
		// closed below — otherwise a goroutine still inside
		// deliverLocked could send on a channel this goroutine just
		// closed.
		_ = f.group.Wait()

		switch f.role {
		case RoleSender:
			if err := f.reliableSender.Close(); err != nil && f.closeErr == nil {
				f.closeErr = err
			}
		case RoleReceiver:
			if err := f.reliableReceiver.Close(); err != nil && f.closeErr == nil {
				f.closeErr = err
			}
			close(f.queue)
		}

		f.log.WithField("role", f.role).Info("hudp: facade closed")
	})
	return f.closeErr
}
