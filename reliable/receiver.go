package reliable

import (
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"hudp/delivery"
	"hudp/wire"
)

// skipCheckInterval is how often the skip timer inspects the current
// gap (§4.6 "Skip timer", ≈ every 20 ms).
const skipCheckInterval = 20 * time.Millisecond

// receiverEntry buffers an in-window, out-of-order packet until the
// window base reaches it (§3 "Receiver-side reliable buffer entry").
type receiverEntry struct {
	payload     []byte
	timestamp   uint32
	arrivalTime time.Time
}

// Receiver implements the selective-repeat ARQ receiver state machine
// (§4.6), including the buffered reordering window and the background
// skip timer that guarantees forward progress when a low-numbered
// packet is permanently lost.
type Receiver struct {
	conn net.PacketConn
	log  *logrus.Logger
	obs  delivery.Observer
	sink delivery.Sink

	timeout time.Duration

	mu        sync.Mutex
	rcvBase   uint16
	buffer    map[uint16]*receiverEntry
	delivered map[uint16]struct{}

	// waitingActive/waitingSince track the single live skip-timer clock
	// (§3 invariant: at most one waiting_since entry, always for the
	// current rcv_base); waitingSeq records which base it belongs to so
	// a stale clock from a base that has already advanced is ignored.
	waitingActive bool
	waitingSeq    uint16
	waitingSince  time.Time

	stop   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// NewReceiver constructs a reliable receiver. timeout is the
// receiver-side skip timeout (§6 receiver_timeout); obs may be nil.
func NewReceiver(conn net.PacketConn, sink delivery.Sink, timeout time.Duration, log *logrus.Logger, obs delivery.Observer) *Receiver {
	if obs == nil {
		obs = delivery.NullObserver{}
	}
	r := &Receiver{
		conn:      conn,
		log:       log,
		obs:       obs,
		sink:      sink,
		timeout:   timeout,
		buffer:    make(map[uint16]*receiverEntry),
		delivered: make(map[uint16]struct{}),
		stop:      make(chan struct{}),
	}
	r.wg.Add(1)
	go r.skipLoop()
	return r
}

// OnReceive classifies and handles one decoded DATA frame on the
// reliable channel (§4.6 operation `on_receive`).
func (r *Receiver) OnReceive(d wire.Data, senderAddr net.Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seqNo := d.Seq

	if _, ok := r.delivered[seqNo]; ok {
		r.sendAckLocked(seqNo, d.Timestamp, senderAddr)
		return
	}

	if wire.SeqLT(seqNo, r.rcvBase) {
		r.sendAckLocked(seqNo, d.Timestamp, senderAddr)
		return
	}

	if wire.SeqGE(seqNo, wire.SeqAdd(r.rcvBase, wire.Window)) {
		r.log.WithField("seq", seqNo).Debug("reliable receive: above window, discarding")
		return
	}

	r.sendAckLocked(seqNo, d.Timestamp, senderAddr)

	if seqNo == r.rcvBase {
		r.clearWaitingLocked(r.rcvBase)
		r.deliverLocked(seqNo, d.Payload, d.Timestamp)
		r.rcvBase++
		r.drainLocked()
		return
	}

	r.buffer[seqNo] = &receiverEntry{
		payload:     d.Payload,
		timestamp:   d.Timestamp,
		arrivalTime: time.Now(),
	}
	if !r.waitingActive {
		r.waitingActive = true
		r.waitingSeq = r.rcvBase
		r.waitingSince = time.Now()
	}
}

// drainLocked delivers the contiguous prefix of buffered packets
// starting at rcv_base, stopping at the first gap (§4.6 "Drain after
// advance"). Must be called with r.mu held.
func (r *Receiver) drainLocked() {
	for {
		entry, ok := r.buffer[r.rcvBase]
		if !ok {
			break
		}
		delete(r.buffer, r.rcvBase)
		r.clearWaitingLocked(r.rcvBase)
		r.deliverLocked(r.rcvBase, entry.payload, entry.timestamp)
		r.rcvBase++
	}
}

// deliverLocked emits a delivery record upward and marks seq delivered.
func (r *Receiver) deliverLocked(seqNo uint16, payload []byte, timestamp uint32) {
	r.delivered[seqNo] = struct{}{}
	record := delivery.Record{
		Seq:       seqNo,
		Payload:   payload,
		Timestamp: timestamp,
		Latency:   wire.Latency(wire.NowMillis(), timestamp),
		Channel:   wire.ChannelReliable,
	}
	r.obs.OnDeliver(record)
	r.sink.Deliver(record)
}

// sendAckLocked emits an ACK frame; ACKs are stateless, idempotent
// echoes (§4.6).
func (r *Receiver) sendAckLocked(ackNo uint16, timestamp uint32, addr net.Addr) {
	ack := wire.EncodeACK(ackNo, timestamp)
	if _, err := r.conn.WriteTo(ack, addr); err != nil {
		r.log.WithError(err).WithField("seq", ackNo).Warn("reliable receive: transient socket error sending ACK")
	}
}

// clearWaitingLocked clears the skip-timer clock if it belongs to seq.
func (r *Receiver) clearWaitingLocked(seqNo uint16) {
	if r.waitingActive && r.waitingSeq == seqNo {
		r.waitingActive = false
	}
}

// skipLoop periodically checks whether rcv_base has been stalled longer
// than receiver_timeout and, if so, abandons it (§4.6 "Skip timer").
func (r *Receiver) skipLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(skipCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.checkSkip()
		}
	}
}

func (r *Receiver) checkSkip() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.waitingActive || r.waitingSeq != r.rcvBase {
		return
	}
	if time.Since(r.waitingSince) < r.timeout {
		return
	}

	abandoned := r.rcvBase
	r.waitingActive = false
	r.rcvBase++
	r.log.WithField("seq", abandoned).Warn("reliable receive: skip timer abandoning sequence")
	r.obs.OnSkipReceive(abandoned)
	r.drainLocked()
}

// Close stops the skip-check background goroutine (§4.6, §5 "Close").
// Idempotent.
func (r *Receiver) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.stop)
	r.wg.Wait()
	return nil
}
