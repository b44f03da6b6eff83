package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"hudp/delivery"
	"hudp/wire"
)

// PrometheusObserver reports sender/receiver lifecycle events as
// Prometheus metrics. It implements delivery.Observer; the facade never
// constructs one itself, matching the design note that bookkeeping
// collaborators are wired in by the caller, not baked into the core.
type PrometheusObserver struct {
	sent       *prometheus.CounterVec
	delivered  *prometheus.CounterVec
	retried    prometheus.Counter
	skippedTx  prometheus.Counter
	skippedRx  prometheus.Counter
	malformed  prometheus.Counter
	windowUsed prometheus.Gauge
	latencyMs  prometheus.Histogram
}

// NewPrometheusObserver registers its metrics against reg and returns the
// ready collaborator. Passing a fresh *prometheus.Registry per instance
// (rather than the global default registry) keeps multiple facades in
// one process from colliding on metric names.
func NewPrometheusObserver(reg *prometheus.Registry) *PrometheusObserver {
	p := &PrometheusObserver{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hudp_packets_sent_total",
			Help: "Packets transmitted, labeled by channel.",
		}, []string{"channel"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hudp_packets_delivered_total",
			Help: "Packets handed to the delivery sink, labeled by channel.",
		}, []string{"channel"}),
		retried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hudp_packets_retried_total",
			Help: "Reliable-channel retransmissions fired by the sender timer.",
		}),
		skippedTx: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hudp_packets_skipped_sender_total",
			Help: "Reliable-channel sequences abandoned by the sender after exhausting retries.",
		}),
		skippedRx: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hudp_packets_skipped_receiver_total",
			Help: "Reliable-channel sequences abandoned by the receiver skip timer.",
		}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hudp_packets_malformed_total",
			Help: "Inbound datagrams discarded for failing to decode.",
		}),
		windowUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hudp_send_window_used",
			Help: "Reliable-channel sequences currently in flight.",
		}),
		latencyMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hudp_reliable_latency_ms",
			Help:    "Round-trip time observed on ACK, in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}

	reg.MustRegister(p.sent, p.delivered, p.retried, p.skippedTx, p.skippedRx, p.malformed, p.windowUsed, p.latencyMs)
	return p
}

func channelLabel(c wire.Channel) string {
	if c == wire.ChannelReliable {
		return "reliable"
	}
	return "unreliable"
}

func (p *PrometheusObserver) OnSend(channel wire.Channel, seq uint16) {
	p.sent.WithLabelValues(channelLabel(channel)).Inc()
}

func (p *PrometheusObserver) OnAck(seq uint16, rttMillis int64) {
	p.latencyMs.Observe(float64(rttMillis))
}

func (p *PrometheusObserver) OnRetry(seq uint16, attempt int) {
	p.retried.Inc()
}

func (p *PrometheusObserver) OnSkipSend(seq uint16) {
	p.skippedTx.Inc()
}

func (p *PrometheusObserver) OnSkipReceive(seq uint16) {
	p.skippedRx.Inc()
}

func (p *PrometheusObserver) OnDeliver(r delivery.Record) {
	p.delivered.WithLabelValues(channelLabel(r.Channel)).Inc()
}

func (p *PrometheusObserver) OnWindowSlide(base uint16) {}

// SetWindowUsed publishes the reliable sender's current in-flight count.
// base occupancy isn't observable from OnWindowSlide alone, so callers
// poll Facade.WindowUsed and push it here (the demo binary does this on
// a short ticker).
func (p *PrometheusObserver) SetWindowUsed(n int) {
	p.windowUsed.Set(float64(n))
}

func (p *PrometheusObserver) OnMalformed() {
	p.malformed.Inc()
}

var _ delivery.Observer = (*PrometheusObserver)(nil)
