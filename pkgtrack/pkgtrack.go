// Package pkgtrack is an optional bookkeeping overlay that mirrors the
// original implementation's sent/received packet journals and delivery
// ratio report. It implements delivery.Observer and is wired in by a
// caller via hudp.WithObserver; the core facade has no dependency on it.
package pkgtrack

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"hudp/delivery"
	"hudp/wire"
)

const trackingDir = "packet_tracking"

// sentEntry records one outbound sequence's bookkeeping fields.
type sentEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Reliable  bool      `json:"reliable"`
	Acked     bool      `json:"acked"`
}

// receivedEntry records one inbound sequence's bookkeeping fields.
type receivedEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Reliable  bool      `json:"reliable"`
	Latency   uint32    `json:"latency"`
}

type sentFile struct {
	SessionStart time.Time            `json:"session_start"`
	Packets      map[string]sentEntry `json:"packets"`
}

type receivedFile struct {
	SessionStart time.Time                `json:"session_start"`
	Packets      map[string]receivedEntry `json:"packets"`
}

// Stats mirrors get_delivery_stats: counts and ratios split by channel,
// plus the set of sequences sent but never observed as received.
type Stats struct {
	TotalSent               int
	TotalReceived           int
	ReliableSent            int
	ReliableReceived        int
	UnreliableSent          int
	UnreliableReceived      int
	OverallDeliveryRatio    float64
	ReliableDeliveryRatio   float64
	UnreliableDeliveryRatio float64
	LostPackets             []LostPacket
}

// LostPacket names a sequence that was sent but has no matching receive
// record at the time Stats was computed.
type LostPacket struct {
	Seq       uint16
	Reliable  bool
	Timestamp time.Time
}

// Tracker persists sent/received packet journals to JSON files under
// dir (default "packet_tracking") and answers delivery-ratio queries
// the way the original implementation's get_delivery_stats did.
type Tracker struct {
	dir string

	mu       sync.Mutex
	sent     map[uint16]sentEntry
	received map[uint16]receivedEntry
}

// NewTracker loads any existing tracking files under dir (empty string
// selects the default "packet_tracking") and returns a ready Tracker.
func NewTracker(dir string) *Tracker {
	if dir == "" {
		dir = trackingDir
	}
	t := &Tracker{
		dir:      dir,
		sent:     make(map[uint16]sentEntry),
		received: make(map[uint16]receivedEntry),
	}
	t.load()
	return t
}

func (t *Tracker) sentPath() string     { return filepath.Join(t.dir, "sent_packets.json") }
func (t *Tracker) receivedPath() string { return filepath.Join(t.dir, "received_packets.json") }

func (t *Tracker) load() {
	if raw, err := os.ReadFile(t.sentPath()); err == nil {
		var f sentFile
		if json.Unmarshal(raw, &f) == nil {
			for k, v := range f.Packets {
				if seq, err := parseSeq(k); err == nil {
					t.sent[seq] = v
				}
			}
		}
	}
	if raw, err := os.ReadFile(t.receivedPath()); err == nil {
		var f receivedFile
		if json.Unmarshal(raw, &f) == nil {
			for k, v := range f.Packets {
				if seq, err := parseSeq(k); err == nil {
					t.received[seq] = v
				}
			}
		}
	}
}

// saveLocked persists both journals. Write failures are swallowed, the
// same as the original implementation's bare `except IOError: pass`:
// tracking is diagnostic, never load-bearing for delivery.
func (t *Tracker) saveLocked() {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return
	}

	sentOut := sentFile{SessionStart: sessionStart, Packets: make(map[string]sentEntry, len(t.sent))}
	for seq, e := range t.sent {
		sentOut.Packets[formatSeq(seq)] = e
	}
	if raw, err := json.MarshalIndent(sentOut, "", "  "); err == nil {
		_ = os.WriteFile(t.sentPath(), raw, 0o644)
	}

	recvOut := receivedFile{SessionStart: sessionStart, Packets: make(map[string]receivedEntry, len(t.received))}
	for seq, e := range t.received {
		recvOut.Packets[formatSeq(seq)] = e
	}
	if raw, err := json.MarshalIndent(recvOut, "", "  "); err == nil {
		_ = os.WriteFile(t.receivedPath(), raw, 0o644)
	}
}

// sessionStart is stamped once per process at package init, so every
// journal this process writes carries the same session_start value.
// Per-packet entries take their own time.Now() stamp when recorded.
var sessionStart = time.Now()

func formatSeq(seq uint16) string {
	return strconv.Itoa(int(seq))
}

func parseSeq(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(n), nil
}

// OnSend records a freshly transmitted sequence (not yet acked).
func (t *Tracker) OnSend(channel wire.Channel, seq uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent[seq] = sentEntry{Timestamp: time.Now(), Reliable: channel == wire.ChannelReliable}
	t.saveLocked()
}

// OnAck marks a previously sent sequence acked.
func (t *Tracker) OnAck(seq uint16, rttMillis int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.sent[seq]; ok {
		e.Acked = true
		t.sent[seq] = e
		t.saveLocked()
	}
}

func (t *Tracker) OnRetry(seq uint16, attempt int)  {}
func (t *Tracker) OnSkipSend(seq uint16)            {}
func (t *Tracker) OnSkipReceive(seq uint16)          {}
func (t *Tracker) OnWindowSlide(base uint16)         {}
func (t *Tracker) OnMalformed()                       {}

// OnDeliver records an inbound delivery.
func (t *Tracker) OnDeliver(r delivery.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.received[r.Seq] = receivedEntry{
		Timestamp: time.Now(),
		Reliable:  r.Channel == wire.ChannelReliable,
		Latency:   r.Latency,
	}
	t.saveLocked()
}

// Stats computes delivery ratios over every sequence observed so far,
// mirroring get_delivery_stats.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	var s Stats
	s.TotalSent = len(t.sent)
	s.TotalReceived = len(t.received)

	for _, e := range t.sent {
		if e.Reliable {
			s.ReliableSent++
		} else {
			s.UnreliableSent++
		}
	}
	for _, e := range t.received {
		if e.Reliable {
			s.ReliableReceived++
		} else {
			s.UnreliableReceived++
		}
	}

	if s.TotalSent > 0 {
		s.OverallDeliveryRatio = float64(s.TotalReceived) / float64(s.TotalSent) * 100
	}
	if s.ReliableSent > 0 {
		s.ReliableDeliveryRatio = float64(s.ReliableReceived) / float64(s.ReliableSent) * 100
	}
	if s.UnreliableSent > 0 {
		s.UnreliableDeliveryRatio = float64(s.UnreliableReceived) / float64(s.UnreliableSent) * 100
	}

	for seq, e := range t.sent {
		if _, ok := t.received[seq]; !ok {
			s.LostPackets = append(s.LostPackets, LostPacket{Seq: seq, Reliable: e.Reliable, Timestamp: e.Timestamp})
		}
	}

	return s
}

// Clear removes both tracking files and the in-memory journals.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	os.Remove(t.sentPath())
	os.Remove(t.receivedPath())
	t.sent = make(map[uint16]sentEntry)
	t.received = make(map[uint16]receivedEntry)
}

var _ delivery.Observer = (*Tracker)(nil)
