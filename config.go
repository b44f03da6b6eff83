package hudp

import (
	"time"

	"github.com/sirupsen/logrus"

	"hudp/delivery"
	"hudp/observability"
)

// Default timer intervals (§6): both default to 200ms, resolving the
// open question in the design notes about sender_timeout vs a separate
// RETRY_INTERVAL constant in favor of a single configurable value used
// for both the initial and every subsequent retransmission deadline.
const (
	DefaultSenderTimeout   = 200 * time.Millisecond
	DefaultReceiverTimeout = 200 * time.Millisecond
)

// config holds the facade's construction-time settings, assembled via
// functional options the way the teacher's ConnOption pattern in
// other_examples' AhmadMuzakkir-reliable conn.go builds up a Conn.
type config struct {
	senderTimeout   time.Duration
	receiverTimeout time.Duration
	logger          *logrus.Logger
	observer        delivery.Observer
}

func defaultConfig() config {
	return config{
		senderTimeout:   DefaultSenderTimeout,
		receiverTimeout: DefaultReceiverTimeout,
		logger:          observability.NewLogger(),
		observer:        delivery.NullObserver{},
	}
}

// Option configures a Facade at construction time.
type Option func(*config)

// WithSenderTimeout overrides the reliable sender's retransmission
// interval (§6 sender_timeout).
func WithSenderTimeout(d time.Duration) Option {
	return func(c *config) { c.senderTimeout = d }
}

// WithReceiverTimeout overrides the reliable receiver's skip timeout
// (§6 receiver_timeout).
func WithReceiverTimeout(d time.Duration) Option {
	return func(c *config) { c.receiverTimeout = d }
}

// WithLogger overrides the default structured logger.
func WithLogger(log *logrus.Logger) Option {
	return func(c *config) { c.logger = log }
}

// WithObserver wires an event-sink collaborator (e.g. pkgtrack's
// bookkeeping overlay or a observability.PrometheusObserver) to receive
// sender/receiver lifecycle events. Pass delivery.Multi{...} to wire more
// than one.
func WithObserver(obs delivery.Observer) Option {
	return func(c *config) { c.observer = obs }
}
