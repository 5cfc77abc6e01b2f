// Package notification sends push notifications through shoutrrr when a
// detection session settles or a violation record is saved. Delivery runs
// on a single worker so callers never block on remote services.
package notification

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/parkapp/parkwatch/internal/conf"
	"github.com/parkapp/parkwatch/internal/lifecycle"
	"github.com/parkapp/parkwatch/internal/logger"
	"github.com/parkapp/parkwatch/internal/violation"
)

const (
	statusSent        = "sent"
	statusFailed      = "failed"
	statusDropped     = "dropped"
	statusRateLimited = "rate_limited"
)

// DeliveryRecorder receives one observation per message.
type DeliveryRecorder interface {
	RecordDelivery(provider, event, status string, seconds float64)
}

type noopRecorder struct{}

func (noopRecorder) RecordDelivery(string, string, string, float64) {}

// Config selects which events are delivered and bounds the delivery rate.
type Config struct {
	OnComplete bool
	OnFailure  bool
	OnSubmit   bool

	QueueSize         int
	RequestsPerMinute int
	Burst             int
}

// DefaultConfig notifies on every event, one message per second on average.
func DefaultConfig() Config {
	return Config{
		OnComplete:        true,
		OnFailure:         true,
		OnSubmit:          true,
		QueueSize:         32,
		RequestsPerMinute: 60,
		Burst:             10,
	}
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithMetrics records every delivery attempt.
func WithMetrics(r DeliveryRecorder) Option {
	return func(n *Notifier) {
		if r != nil {
			n.metrics = r
		}
	}
}

// WithLogger sets the notifier logger.
func WithLogger(l logger.Logger) Option {
	return func(n *Notifier) {
		if l != nil {
			n.log = l
		}
	}
}

// Notifier queues messages and delivers them in order.
type Notifier struct {
	sender   Sender
	provider string
	config   Config
	limiter  *rate.Limiter
	metrics  DeliveryRecorder
	log      logger.Logger

	mu     sync.Mutex
	closed bool
	queue  chan Message
	wg     sync.WaitGroup
}

// New starts the delivery worker. Close must be called to stop it.
func New(sender Sender, provider string, cfg Config, opts ...Option) *Notifier {
	defaults := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = defaults.RequestsPerMinute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaults.Burst
	}
	if provider == "" {
		provider = "shoutrrr"
	}

	n := &Notifier{
		sender:   sender,
		provider: provider,
		config:   cfg,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.Burst),
		metrics:  noopRecorder{},
		log:      logger.Global().Module("notification"),
		queue:    make(chan Message, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(n)
	}

	n.wg.Go(n.run)
	return n
}

// FromSettings builds a shoutrrr backed notifier. It returns nil when
// notifications are disabled.
func FromSettings(s conf.NotificationSettings, opts ...Option) (*Notifier, error) {
	if !s.Enabled {
		return nil, nil
	}
	sender, err := NewShoutrrrSender(s.URLs, s.Timeout)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	cfg.OnComplete = s.OnComplete
	cfg.OnFailure = s.OnFailure
	cfg.OnSubmit = s.OnSubmit
	return New(sender, providerName(s.URLs), cfg, opts...), nil
}

// SessionSettled is registered as a lifecycle settle hook.
func (n *Notifier) SessionSettled(s lifecycle.Session) {
	msg, ok := sessionMessage(s)
	if !ok {
		return
	}
	switch msg.Event {
	case EventCompleted:
		if !n.config.OnComplete {
			return
		}
	case EventFailed:
		if !n.config.OnFailure {
			return
		}
	}
	n.enqueue(msg)
}

// Name implements violation.Hook.
func (n *Notifier) Name() string { return "notification" }

// RecordSaved implements violation.Hook. Delivery is asynchronous so it
// only fails when the message could not be queued.
func (n *Notifier) RecordSaved(_ context.Context, rec *violation.Record) error {
	if !n.config.OnSubmit {
		return nil
	}
	n.enqueue(recordMessage(rec))
	return nil
}

func (n *Notifier) enqueue(msg Message) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		n.metrics.RecordDelivery(n.provider, string(msg.Event), statusDropped, 0)
		return
	}
	select {
	case n.queue <- msg:
	default:
		n.log.Warn("notification queue full, dropping message",
			logger.String("event", string(msg.Event)),
			logger.String("session_id", msg.SessionID))
		n.metrics.RecordDelivery(n.provider, string(msg.Event), statusDropped, 0)
	}
}

func (n *Notifier) run() {
	for msg := range n.queue {
		n.deliver(msg)
	}
}

func (n *Notifier) deliver(msg Message) {
	if !n.limiter.Allow() {
		n.log.Warn("notification rate limit exceeded",
			logger.String("event", string(msg.Event)))
		n.metrics.RecordDelivery(n.provider, string(msg.Event), statusRateLimited, 0)
		return
	}

	start := time.Now()
	err := Send(n.sender, msg)
	elapsed := time.Since(start)

	if err != nil {
		n.log.Error("notification delivery failed",
			logger.String("event", string(msg.Event)),
			logger.String("session_id", msg.SessionID),
			logger.Error(err))
		n.metrics.RecordDelivery(n.provider, string(msg.Event), statusFailed, elapsed.Seconds())
		return
	}
	n.log.Debug("notification sent",
		logger.String("event", string(msg.Event)),
		logger.Duration("duration", elapsed))
	n.metrics.RecordDelivery(n.provider, string(msg.Event), statusSent, elapsed.Seconds())
}

// Close delivers queued messages and stops the worker. Later messages are
// dropped.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()

	n.wg.Wait()
}
