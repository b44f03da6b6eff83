package reliable

import (
	"container/heap"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"hudp/delivery"
	"hudp/wire"
)

// MaxRetries bounds how many times an unacknowledged packet is
// retransmitted before the sender gives up on it (§4.5): one retry, so
// two transmissions total.
const MaxRetries = 1

// ErrWindowFull is returned by Send when the selective-repeat window
// holds Window unacknowledged sequences (§4.5, §7). It is a normal
// back-pressure signal, not a fault.
var ErrWindowFull = errors.New("reliable: send window full")

// senderEntry is the sender-side lifecycle record for one in-flight
// reliable sequence (§3 "Sender-side reliable entry").
type senderEntry struct {
	encoded       []byte
	timestamp     uint32
	firstSendTime time.Time
	lastSendTime  time.Time
	retry         int
	generation    uint32
}

// Sender implements the selective-repeat ARQ sender state machine
// (§4.5). All exported methods take s.mu for their entire critical
// section (§5).
type Sender struct {
	conn   net.PacketConn
	remote net.Addr
	log    *logrus.Logger
	obs    delivery.Observer

	timeout time.Duration

	mu       sync.Mutex
	sendBase uint16
	nextSeq  uint16
	buffer   map[uint16]*senderEntry
	acked    map[uint16]struct{}
	timers   deadlineHeap

	wake   chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// NewSender constructs a reliable sender bound to conn/remote. timeout
// is the retransmission interval (§6 sender_timeout); obs may be nil.
func NewSender(conn net.PacketConn, remote net.Addr, timeout time.Duration, log *logrus.Logger, obs delivery.Observer) *Sender {
	if obs == nil {
		obs = delivery.NullObserver{}
	}
	s := &Sender{
		conn:    conn,
		remote:  remote,
		log:     log,
		obs:     obs,
		timeout: timeout,
		buffer:  make(map[uint16]*senderEntry),
		acked:   make(map[uint16]struct{}),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.timerLoop()
	return s
}

// Send assigns a sequence to payload, transmits it once, and arms its
// retransmission deadline (§4.5 operation `send`).
func (s *Sender) Send(payload []byte) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	used := s.nextSeq - s.sendBase
	if used >= wire.Window {
		return 0, ErrWindowFull
	}

	seqNo := s.nextSeq
	encoded, err := wire.Encode(wire.ChannelReliable, seqNo, payload)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	if _, err := s.conn.WriteTo(encoded, s.remote); err != nil {
		s.log.WithError(err).WithField("seq", seqNo).Warn("reliable send: transient socket error, timer will retry")
	}

	decoded, _ := wire.Decode(encoded)
	entry := &senderEntry{
		encoded:       encoded,
		timestamp:     decoded.Timestamp,
		firstSendTime: now,
		lastSendTime:  now,
	}
	s.buffer[seqNo] = entry
	s.scheduleLocked(seqNo, entry, s.timeout)

	s.nextSeq++
	s.obs.OnSend(wire.ChannelReliable, seqNo)

	return seqNo, nil
}

// OnAck processes an ACK frame for ackNo (§4.5 operation `on_ack`).
// Duplicate and late ACKs are dropped silently (L-Duplicate-ACK-Idempotent).
func (s *Sender) OnAck(ackNo uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, already := s.acked[ackNo]; already {
		return
	}
	entry, ok := s.buffer[ackNo]
	if !ok {
		return
	}

	s.acked[ackNo] = struct{}{}
	delete(s.buffer, ackNo)

	rtt := time.Since(entry.firstSendTime).Milliseconds()
	s.log.WithFields(logrus.Fields{"seq": ackNo, "rtt_ms": rtt}).Debug("reliable ack")
	s.obs.OnAck(ackNo, rtt)

	s.slideWindowLocked()
}

// scheduleLocked pushes a fresh deadline for seq into the heap and wakes
// the timer loop if this deadline is now the earliest. Must be called
// with s.mu held.
func (s *Sender) scheduleLocked(seqNo uint16, entry *senderEntry, after time.Duration) {
	entry.generation++
	item := &deadlineItem{
		seq:        seqNo,
		deadline:   time.Now().Add(after),
		generation: entry.generation,
	}
	heap.Push(&s.timers, item)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// timerLoop is the single background goroutine servicing every
// outstanding retransmission deadline via a min-heap rather than one
// timer per packet (design note in §9).
func (s *Sender) timerLoop() {
	defer s.wg.Done()

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.mu.Lock()
		var sleep time.Duration
		if len(s.timers) == 0 {
			sleep = time.Hour
		} else {
			sleep = time.Until(s.timers[0].deadline)
			if sleep < 0 {
				sleep = 0
			}
		}
		s.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(sleep)

		select {
		case <-s.stop:
			return
		case <-s.wake:
			continue
		case <-timer.C:
			s.fireDue()
		}
	}
}

// fireDue pops and processes every heap item whose deadline has passed.
func (s *Sender) fireDue() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for len(s.timers) > 0 && !s.timers[0].deadline.After(now) {
		item := heap.Pop(&s.timers).(*deadlineItem)
		s.onTimeoutLocked(item)
	}
}

// onTimeoutLocked implements §4.5 operation `on_timeout`. Must be called
// with s.mu held.
func (s *Sender) onTimeoutLocked(item *deadlineItem) {
	entry, ok := s.buffer[item.seq]
	if !ok {
		return // acked or already skipped
	}
	if entry.generation != item.generation {
		return // stale heap entry superseded by a later reschedule
	}

	if entry.retry >= MaxRetries {
		delete(s.buffer, item.seq)
		s.log.WithField("seq", item.seq).Warn("reliable send: retries exhausted, skipping")
		s.obs.OnSkipSend(item.seq)
		s.slideWindowLocked()
		return
	}

	entry.retry++
	entry.lastSendTime = time.Now()
	if _, err := s.conn.WriteTo(entry.encoded, s.remote); err != nil {
		s.log.WithError(err).WithField("seq", item.seq).Warn("reliable retry: transient socket error")
	}
	s.obs.OnRetry(item.seq, entry.retry)
	s.scheduleLocked(item.seq, entry, s.timeout)
}

// slideWindowLocked advances send_base past every sequence that is acked
// or has been removed by skip (§4.5 "Window slide"). Must be called
// with s.mu held.
func (s *Sender) slideWindowLocked() {
	advanced := false
	for s.sendBase != s.nextSeq {
		_, isAcked := s.acked[s.sendBase]
		_, stillBuffered := s.buffer[s.sendBase]
		if !isAcked && stillBuffered {
			break
		}
		delete(s.acked, s.sendBase)
		s.sendBase++
		advanced = true
	}
	if advanced {
		s.obs.OnWindowSlide(s.sendBase)
	}
}

// WindowUsed reports how many sequences are currently in flight.
func (s *Sender) WindowUsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.nextSeq - s.sendBase)
}

// Close cancels every outstanding timer and stops the background loop
// (§4.5 "Close"). Idempotent.
func (s *Sender) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	s.wg.Wait()
	return nil
}
