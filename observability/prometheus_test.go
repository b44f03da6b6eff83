package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"hudp/delivery"
	"hudp/wire"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := <-ch
	var pb dto.Metric
	if err := m.Write(&pb); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if pb.Counter != nil {
		return pb.Counter.GetValue()
	}
	if pb.Gauge != nil {
		return pb.Gauge.GetValue()
	}
	return 0
}

func TestPrometheusObserverCountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPrometheusObserver(reg)

	obs.OnSend(wire.ChannelReliable, 0)
	obs.OnSend(wire.ChannelReliable, 1)
	obs.OnRetry(0, 1)
	obs.OnSkipSend(2)
	obs.OnSkipReceive(3)
	obs.OnMalformed()
	obs.OnDeliver(delivery.Record{Seq: 0, Channel: wire.ChannelReliable})

	if got := counterValue(t, obs.retried); got != 1 {
		t.Errorf("retried = %v, want 1", got)
	}
	if got := counterValue(t, obs.skippedTx); got != 1 {
		t.Errorf("skippedTx = %v, want 1", got)
	}
	if got := counterValue(t, obs.skippedRx); got != 1 {
		t.Errorf("skippedRx = %v, want 1", got)
	}
	if got := counterValue(t, obs.malformed); got != 1 {
		t.Errorf("malformed = %v, want 1", got)
	}
}

func TestPrometheusObserverSetWindowUsed(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPrometheusObserver(reg)

	obs.SetWindowUsed(7)
	if got := counterValue(t, obs.windowUsed); got != 7 {
		t.Errorf("windowUsed = %v, want 7", got)
	}
}

var _ delivery.Observer = (*PrometheusObserver)(nil)
