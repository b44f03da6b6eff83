// Package delivery defines the upward-facing delivery record and the
// explicit sink/observer capabilities the reliable and unreliable
// receivers hand packets to. Design note: avoid a generic/duck-typed
// callback type; inject a named capability instead.
package delivery

import "hudp/wire"

// Record is one unit handed to the application, tagged with the channel
// it arrived on and a measured one-way latency estimate (§6).
type Record struct {
	Seq       uint16
	Payload   []byte
	Timestamp uint32
	Latency   uint32
	Channel   wire.Channel
}

// Sink accepts delivery records from the reliable or unreliable
// receiver. The facade's internal queue is the only production
// implementation; tests may substitute their own.
type Sink interface {
	Deliver(Record)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Record)

func (f SinkFunc) Deliver(r Record) { f(r) }

// Observer is the optional bookkeeping collaborator described in the
// design notes: sender and receiver state machines report their
// transitions here, but never depend on any particular implementation.
// A nil-safe no-op is the default; pkgtrack and the Prometheus collector
// in package observability are the two production implementations.
type Observer interface {
	OnSend(channel wire.Channel, seq uint16)
	OnAck(seq uint16, rttMillis int64)
	OnRetry(seq uint16, attempt int)
	OnSkipSend(seq uint16)
	OnSkipReceive(seq uint16)
	OnDeliver(Record)
	OnWindowSlide(base uint16)
	OnMalformed()
}

// NullObserver discards every event. It is the zero-value-safe default
// every sender/receiver falls back to when no Observer is supplied.
type NullObserver struct{}

func (NullObserver) OnSend(wire.Channel, uint16)   {}
func (NullObserver) OnAck(uint16, int64)           {}
func (NullObserver) OnRetry(uint16, int)           {}
func (NullObserver) OnSkipSend(uint16)             {}
func (NullObserver) OnSkipReceive(uint16)          {}
func (NullObserver) OnDeliver(Record)               {}
func (NullObserver) OnWindowSlide(uint16)          {}
func (NullObserver) OnMalformed()                  {}

// Multi fans an event out to several observers, so the demo binary can
// wire both pkgtrack's bookkeeping and a Prometheus collector at once
// without either depending on the other.
type Multi []Observer

func (m Multi) OnSend(channel wire.Channel, seq uint16) {
	for _, o := range m {
		o.OnSend(channel, seq)
	}
}

func (m Multi) OnAck(seq uint16, rttMillis int64) {
	for _, o := range m {
		o.OnAck(seq, rttMillis)
	}
}

func (m Multi) OnRetry(seq uint16, attempt int) {
	for _, o := range m {
		o.OnRetry(seq, attempt)
	}
}

func (m Multi) OnSkipSend(seq uint16) {
	for _, o := range m {
		o.OnSkipSend(seq)
	}
}

func (m Multi) OnSkipReceive(seq uint16) {
	for _, o := range m {
		o.OnSkipReceive(seq)
	}
}

func (m Multi) OnDeliver(r Record) {
	for _, o := range m {
		o.OnDeliver(r)
	}
}

func (m Multi) OnWindowSlide(base uint16) {
	for _, o := range m {
		o.OnWindowSlide(base)
	}
}

func (m Multi) OnMalformed() {
	for _, o := range m {
		o.OnMalformed()
	}
}
