// Package poller queries the detection service for server side processing
// progress at a fixed interval until it is cancelled. It has no notion of
// completion; the owner decides when to stop it.
package poller

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/parkapp/parkwatch/internal/errors"
	"github.com/parkapp/parkwatch/internal/httpclient"
	"github.com/parkapp/parkwatch/internal/logger"
	"github.com/parkapp/parkwatch/internal/observability/metrics"
)

// DefaultQueryTimeout bounds a single progress query.
const DefaultQueryTimeout = 5 * time.Second

// DefaultInterval is used when Start is given a non-positive interval.
const DefaultInterval = time.Second

// Config holds the headers sent with each progress query.
type Config struct {
	BypassHeader string
	BypassValue  string
	UserAgent    string        // identifying client header, "ParkApp-Mobile"
	QueryTimeout time.Duration // zero uses DefaultQueryTimeout
}

// Poller creates polling loops. It is safe for concurrent use.
type Poller struct {
	client  *httpclient.Client
	config  Config
	metrics metrics.Recorder
	log     logger.Logger
}

// Option configures a Poller.
type Option func(*Poller)

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(p *Poller) { p.metrics = metrics.OrNoop(r) }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.log = l
		}
	}
}

// New creates a Poller. A nil client uses the httpclient defaults.
func New(client *httpclient.Client, cfg Config, opts ...Option) *Poller {
	if client == nil {
		client = httpclient.New(nil)
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	p := &Poller{
		client:  client,
		config:  cfg,
		metrics: metrics.NoopRecorder{},
		log:     logger.Global().Module("poller"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle owns one polling loop.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Cancel stops the loop and aborts an in-flight query. It blocks until the
// loop has exited, so no onProgress call happens after it returns. It is
// idempotent. It must not be called from inside onProgress.
func (h *Handle) Cancel() {
	h.once.Do(h.cancel)
	<-h.done
}

// Done is closed when the loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Start begins polling endpoint every interval. The first query is issued one
// interval after Start, not immediately. onProgress receives each reported
// percentage, rounded and clamped to [0,100]. The loop also ends when ctx is
// cancelled. A non-positive interval uses DefaultInterval.
func (p *Poller) Start(ctx context.Context, endpoint string, interval time.Duration, onProgress func(percent int)) *Handle {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		defer cancel()
		p.loop(ctx, endpoint, interval, onProgress)
	}()

	return h
}

func (p *Poller) loop(ctx context.Context, endpoint string, interval time.Duration, onProgress func(int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := p.log.WithContext(ctx)
	log.Debug("polling started", logger.String("endpoint", endpoint), logger.Duration("interval", interval))

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			log.Debug("polling stopped", logger.Int("ticks", ticks))
			return
		case <-ticker.C:
		}
		ticks++

		status, err := p.query(ctx, endpoint)
		if ctx.Err() != nil {
			continue
		}
		if err != nil {
			log.Debug("progress query failed", logger.Error(err), logger.Int("tick", ticks))
			p.metrics.RecordError(metrics.OpPollQuery, string(errors.CategoryPoll))
			continue
		}

		log.Debug("progress",
			logger.String("status", status.State),
			logger.Int64("current_frame", status.CurrentFrame),
			logger.Int64("total_frames", status.TotalFrames),
			logger.Bool("has_progress", status.Progress != nil))

		if status.Progress != nil && onProgress != nil {
			onProgress(*status.Progress)
		}
	}
}

// query performs one progress request.
func (p *Poller) query(ctx context.Context, endpoint string) (Status, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.config.QueryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return Status{}, newPollError(0, err)
	}
	if p.config.BypassHeader != "" {
		req.Header.Set(p.config.BypassHeader, p.config.BypassValue)
	}
	if p.config.UserAgent != "" {
		req.Header.Set("User-Agent", p.config.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(ctx, req)
	if err != nil {
		p.record(metrics.StatusError, start)
		return Status{}, newPollError(0, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		p.record(metrics.StatusError, start)
		return Status{}, newPollError(resp.StatusCode, nil)
	}

	status, err := decodeStatus(resp.Body)
	if err != nil {
		p.record(metrics.StatusError, start)
		return Status{}, newPollError(0, err)
	}

	p.record(metrics.StatusSuccess, start)
	return status, nil
}

func (p *Poller) record(status string, start time.Time) {
	p.metrics.RecordOperation(metrics.OpPollQuery, status)
	p.metrics.RecordDuration(metrics.OpPollQuery, time.Since(start).Seconds())
}
