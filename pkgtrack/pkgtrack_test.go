package pkgtrack

import (
	"path/filepath"
	"testing"

	"hudp/delivery"
	"hudp/wire"
)

func TestTrackerRoundTripsToDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "packet_tracking")
	tr := NewTracker(dir)

	tr.OnSend(wire.ChannelReliable, 0)
	tr.OnSend(wire.ChannelUnreliable, 1)
	tr.OnAck(0, 5)

	reloaded := NewTracker(dir)
	stats := reloaded.Stats()
	if stats.TotalSent != 2 {
		t.Fatalf("TotalSent = %d, want 2 after reload", stats.TotalSent)
	}
	if stats.ReliableSent != 1 || stats.UnreliableSent != 1 {
		t.Errorf("split by channel wrong: %+v", stats)
	}
}

func TestTrackerStatsComputesRatiosAndLoss(t *testing.T) {
	dir := t.TempDir()
	tr := NewTracker(dir)

	tr.OnSend(wire.ChannelReliable, 0)
	tr.OnSend(wire.ChannelReliable, 1)
	tr.OnSend(wire.ChannelUnreliable, 2)

	tr.OnDeliver(delivery.Record{Seq: 0, Channel: wire.ChannelReliable})

	stats := tr.Stats()
	if stats.TotalSent != 3 || stats.TotalReceived != 1 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if stats.ReliableDeliveryRatio != 50 {
		t.Errorf("reliable delivery ratio = %v, want 50", stats.ReliableDeliveryRatio)
	}
	if stats.UnreliableDeliveryRatio != 0 {
		t.Errorf("unreliable delivery ratio = %v, want 0", stats.UnreliableDeliveryRatio)
	}
	if len(stats.LostPackets) != 2 {
		t.Errorf("expected 2 lost packets, got %d: %+v", len(stats.LostPackets), stats.LostPackets)
	}
}

func TestTrackerClearRemovesJournals(t *testing.T) {
	dir := t.TempDir()
	tr := NewTracker(dir)
	tr.OnSend(wire.ChannelReliable, 0)

	tr.Clear()

	stats := tr.Stats()
	if stats.TotalSent != 0 {
		t.Errorf("expected empty tracker after Clear, got TotalSent=%d", stats.TotalSent)
	}

	reloaded := NewTracker(dir)
	if got := reloaded.Stats().TotalSent; got != 0 {
		t.Errorf("expected no journal on disk after Clear, got TotalSent=%d", got)
	}
}

var _ delivery.Observer = (*Tracker)(nil)
