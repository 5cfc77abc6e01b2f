// Package lifecycle drives one upload-and-poll session: it starts the
// transfer, switches to polling once the body is sent, reconciles the
// terminal payload into a result and guarantees that the poller and the
// in-flight request are released on every exit path.
//
// All mutations happen under a single mutex. Every event is tagged with the
// generation of the session that produced it, so events from a transfer or
// poller that belonged to an earlier session are dropped.
package lifecycle

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parkapp/parkwatch/internal/conf"
	"github.com/parkapp/parkwatch/internal/detection"
	"github.com/parkapp/parkwatch/internal/errors"
	"github.com/parkapp/parkwatch/internal/logger"
	"github.com/parkapp/parkwatch/internal/observability/metrics"
	"github.com/parkapp/parkwatch/internal/poller"
	"github.com/parkapp/parkwatch/internal/transfer"
)

// Transfer starts one upload and streams its events.
type Transfer interface {
	Begin(ctx context.Context, endpoint, mediaRef string) (<-chan transfer.Event, error)
}

// PollHandle stops a polling loop. Cancel must be synchronous and idempotent.
type PollHandle interface {
	Cancel()
}

// Poller starts a polling loop that reports processing progress.
type Poller interface {
	Start(ctx context.Context, endpoint string, interval time.Duration, onProgress func(int)) PollHandle
}

type pollerAdapter struct {
	p *poller.Poller
}

func (a pollerAdapter) Start(ctx context.Context, endpoint string, interval time.Duration, onProgress func(int)) PollHandle {
	return a.p.Start(ctx, endpoint, interval, onProgress)
}

// WrapPoller adapts a *poller.Poller to the Poller interface.
func WrapPoller(p *poller.Poller) Poller {
	return pollerAdapter{p: p}
}

// ProgressGauge is implemented by metrics that expose the current session.
type ProgressGauge interface {
	SetSessionActive(active bool)
	UpdateProgress(transfer, processing int)
}

// Config holds the endpoints and timing of a controller.
type Config struct {
	UploadURL       string        // POST target for the media
	ProgressURL     string        // GET target for processing progress
	PollInterval    time.Duration // first poll after one interval
	TransferTimeout time.Duration // bounds upload plus processing, zero disables
}

// DefaultPollInterval is used when Config.PollInterval is not positive.
const DefaultPollInterval = time.Second

// ConfigFromSettings resolves the endpoints from backend settings. It fails
// with conf.ErrMissingBaseURL when no base URL is configured.
func ConfigFromSettings(s *conf.Settings) (Config, error) {
	upload, err := s.Backend.Endpoint("upload")
	if err != nil {
		return Config{}, err
	}
	progress, err := s.Backend.Endpoint("progress")
	if err != nil {
		return Config{}, err
	}
	return Config{
		UploadURL:       upload,
		ProgressURL:     progress,
		PollInterval:    s.Poller.Interval,
		TransferTimeout: s.Backend.Timeout,
	}, nil
}

// Option configures a Controller.
type Option func(*Controller)

// WithMetrics sets the metrics recorder. When r also implements
// ProgressGauge the current progress is exported too.
func WithMetrics(r metrics.Recorder) Option {
	return func(c *Controller) {
		c.metrics = metrics.OrNoop(r)
		if g, ok := r.(ProgressGauge); ok {
			c.gauge = g
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithObserver registers fn to receive a snapshot after every mutation. It
// may be called from any goroutine and must not call Begin, Reset or Close
// synchronously. Snapshots carry an increasing Revision.
func WithObserver(fn func(Session)) Option {
	return func(c *Controller) {
		if fn != nil {
			c.observers = append(c.observers, fn)
		}
	}
}

// WithSettleHook registers fn to be called once per session that reaches
// Completed or Failed. Reset sessions do not settle.
func WithSettleHook(fn func(Session)) Option {
	return func(c *Controller) {
		if fn != nil {
			c.settleHooks = append(c.settleHooks, fn)
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// Controller owns a single upload session at a time.
type Controller struct {
	transfer Transfer
	poller   Poller
	config   Config

	metrics     metrics.Recorder
	gauge       ProgressGauge
	log         logger.Logger
	observers   []func(Session)
	settleHooks []func(Session)
	now         func() time.Time

	mu       sync.Mutex
	session  Session
	gen      uint64
	revision uint64
	closed   bool

	// resources of the current generation
	poll    PollHandle
	stopRun context.CancelFunc
	done    chan struct{}
	settled bool

	pumps sync.WaitGroup
}

// New creates a controller in PhaseIdle.
func New(t Transfer, p Poller, cfg Config, opts ...Option) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	done := make(chan struct{})
	close(done)

	c := &Controller{
		transfer: t,
		poller:   p,
		config:   cfg,
		metrics:  metrics.NoopRecorder{},
		log:      logger.Global().Module("lifecycle"),
		now:      time.Now,
		session:  Session{Phase: PhaseIdle},
		done:     done,
		settled:  true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.clone()
}

// Done returns a channel closed when the current session completes, fails or
// is reset. While Idle it returns a closed channel.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Wait blocks until the current session settles or ctx ends.
func (c *Controller) Wait(ctx context.Context) (Session, error) {
	select {
	case <-c.Done():
		return c.Snapshot(), nil
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	}
}

// Begin starts a new session for mediaRef. It fails with ErrTransferActive
// while a session is uploading or processing. A previous Completed or Failed
// session is discarded first. ctx bounds the transfer and the poller; cancel
// it or call Reset to abort.
func (c *Controller) Begin(ctx context.Context, mediaRef string) (Session, error) {
	if strings.TrimSpace(c.config.UploadURL) == "" || strings.TrimSpace(c.config.ProgressURL) == "" {
		return c.Snapshot(), errors.New(conf.ErrMissingBaseURL).
			Component("lifecycle").
			Category(errors.CategoryConfiguration).
			Build()
	}

	c.mu.Lock()
	if c.closed {
		phase := c.session.Phase
		c.mu.Unlock()
		return Session{Phase: phase}, stateError(ErrClosed, phase)
	}
	to, ok := next(c.session.Phase, triggerBegin)
	if !ok {
		snap := c.session.clone()
		c.mu.Unlock()
		return snap, stateError(ErrTransferActive, snap.Phase)
	}

	// Full reset of the previous session before anything else.
	oldPoll, oldStop := c.releaseLocked()
	c.gen++
	gen := c.gen
	c.session = Session{
		ID:        uuid.NewString(),
		MediaRef:  mediaRef,
		Phase:     to,
		StartedAt: c.now(),
	}
	c.done = make(chan struct{})
	c.settled = false

	runCtx, stopRun := context.WithCancel(logger.WithTraceID(ctx, c.session.ID))
	transferCtx := runCtx
	if c.config.TransferTimeout > 0 {
		var stopTimer context.CancelFunc
		transferCtx, stopTimer = context.WithTimeout(runCtx, c.config.TransferTimeout)
		cancelRun := stopRun
		stopRun = func() {
			stopTimer()
			cancelRun()
		}
	}
	c.stopRun = stopRun

	events, err := c.transfer.Begin(transferCtx, c.config.UploadURL, mediaRef)
	if err != nil {
		c.failLocked(err)
		c.releaseRunLocked()
		snap := c.bumpLocked()
		hooks := c.settleLocked()
		c.mu.Unlock()

		releaseResources(oldPoll, oldStop)
		c.logTransition(snap, PhaseUploading, triggerError)
		c.notify(snap)
		c.runSettleHooks(hooks, snap)
		return snap, err
	}

	snap := c.bumpLocked()
	c.updateGauge(snap)
	c.pumps.Add(1)
	go c.pump(runCtx, gen, events)
	c.mu.Unlock()

	releaseResources(oldPoll, oldStop)
	c.log.WithContext(runCtx).Info("session started", logger.String("media", mediaRef))
	c.notify(snap)
	return snap, nil
}

// Reset cancels the poller and any in-flight transfer and returns to Idle.
// It is safe to call at any time and idempotent.
func (c *Controller) Reset() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	from := c.session.Phase
	if from == PhaseIdle && c.poll == nil && c.stopRun == nil {
		c.mu.Unlock()
		return
	}

	poll, stop := c.releaseLocked()
	c.gen++
	c.session = Session{Phase: PhaseIdle}
	wasActive := from.Active()
	c.closeDoneLocked()
	snap := c.bumpLocked()
	c.mu.Unlock()

	releaseResources(poll, stop)
	if wasActive {
		c.metrics.RecordOperation(metrics.OpSession, metrics.OutcomeReset)
	}
	c.updateGauge(snap)
	c.logTransition(snap, from, triggerReset)
	c.notify(snap)
}

// Close releases the poller and transfer like Reset but leaves the session
// untouched, and drops every later event. It waits for internal goroutines.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.pumps.Wait()
		return
	}
	c.closed = true
	poll, stop := c.releaseLocked()
	c.closeDoneLocked()
	c.mu.Unlock()

	releaseResources(poll, stop)
	c.pumps.Wait()
	if c.gauge != nil {
		c.gauge.SetSessionActive(false)
	}
}

// pump forwards transfer events of generation gen until the stream closes
// or the session is abandoned.
func (c *Controller) pump(ctx context.Context, gen uint64, events <-chan transfer.Event) {
	defer c.pumps.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handleTransfer(ctx, gen, ev)
			if ev.Terminal() {
				return
			}
		}
	}
}

func (c *Controller) handleTransfer(ctx context.Context, gen uint64, ev transfer.Event) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}

	from := c.session.Phase
	var (
		poll  PollHandle
		hooks []func(Session)
		trig  trigger
	)

	switch ev.Kind {
	case transfer.KindProgress:
		trig = triggerProgress
		if _, ok := next(from, trig); !ok {
			c.mu.Unlock()
			return
		}
		if ev.Percent <= c.session.TransferProgress {
			c.mu.Unlock()
			return
		}
		c.session.TransferProgress = min(ev.Percent, 100)

	case transfer.KindSent:
		trig = triggerSent
		if !c.enterProcessingLocked(ctx, gen, true) {
			c.mu.Unlock()
			return
		}

	case transfer.KindDone:
		trig = triggerDone
		if from == PhaseUploading {
			// Terminal payload before sent: pass through Processing without polling.
			c.enterProcessingLocked(ctx, gen, false)
		}
		result, err := detection.Reconcile(ev.Payload)
		if err != nil {
			trig = triggerMalformed
		}
		to, ok := next(c.session.Phase, trig)
		if !ok {
			c.mu.Unlock()
			return
		}
		poll = c.takePollLocked()
		c.session.Phase = to
		c.session.ProcessingProgress = 100
		if err != nil {
			c.session.Err = err
			c.metrics.RecordError(metrics.OpReconcile, string(errors.CategoryPayload))
		} else {
			c.session.Result = &result
			c.session.CompletedAt = c.now()
		}
		c.releaseRunLocked()
		hooks = c.settleLocked()

	case transfer.KindError:
		trig = triggerError
		if _, ok := next(from, trig); !ok {
			c.mu.Unlock()
			return
		}
		poll = c.takePollLocked()
		c.failLocked(ev.Err)
		c.releaseRunLocked()
		hooks = c.settleLocked()

	default:
		c.mu.Unlock()
		return
	}

	snap := c.bumpLocked()
	c.mu.Unlock()

	if poll != nil {
		poll.Cancel()
	}
	c.updateGauge(snap)
	if snap.Phase != from {
		c.logTransition(snap, from, trig)
	}
	c.notify(snap)
	c.runSettleHooks(hooks, snap)
}

// handlePoll applies a poll update. Updates outside Processing or from an
// earlier generation are ignored; processing progress never decreases.
func (c *Controller) handlePoll(gen uint64, percent int) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	if _, ok := next(c.session.Phase, triggerPoll); !ok {
		c.mu.Unlock()
		return
	}
	percent = min(max(percent, 0), 100)
	if percent <= c.session.ProcessingProgress {
		c.mu.Unlock()
		return
	}
	c.session.ProcessingProgress = percent
	snap := c.bumpLocked()
	c.mu.Unlock()

	c.updateGauge(snap)
	c.notify(snap)
}

// enterProcessingLocked moves Uploading to Processing and optionally starts
// the poller. It reports whether the transition happened.
func (c *Controller) enterProcessingLocked(ctx context.Context, gen uint64, startPolling bool) bool {
	to, ok := next(c.session.Phase, triggerSent)
	if !ok {
		return false
	}
	c.session.Phase = to
	c.session.TransferProgress = 100
	c.session.ProcessingProgress = 0

	if startPolling && c.poller != nil && c.poll == nil {
		c.poll = c.poller.Start(ctx, c.config.ProgressURL, c.config.PollInterval, func(p int) {
			c.handlePoll(gen, p)
		})
	}
	return true
}

func (c *Controller) failLocked(err error) {
	c.session.Phase = PhaseFailed
	c.session.Err = err
	c.session.Result = nil
}

// takePollLocked detaches the poll handle; the caller cancels it after unlocking.
func (c *Controller) takePollLocked() PollHandle {
	h := c.poll
	c.poll = nil
	return h
}

// releaseRunLocked cancels the run context of a settled session.
func (c *Controller) releaseRunLocked() {
	if c.stopRun != nil {
		c.stopRun()
		c.stopRun = nil
	}
}

// releaseLocked detaches all resources of the current generation.
func (c *Controller) releaseLocked() (PollHandle, context.CancelFunc) {
	poll := c.takePollLocked()
	stop := c.stopRun
	c.stopRun = nil
	return poll, stop
}

// releaseResources must run without the lock held: the poller callback takes it.
func releaseResources(poll PollHandle, stop context.CancelFunc) {
	if stop != nil {
		stop()
	}
	if poll != nil {
		poll.Cancel()
	}
}

func (c *Controller) closeDoneLocked() {
	if !c.settled {
		c.settled = true
		close(c.done)
	}
}

// settleLocked closes Done and records the outcome. It returns the hooks to
// run once the lock is released.
func (c *Controller) settleLocked() []func(Session) {
	if c.settled {
		return nil
	}
	c.closeDoneLocked()

	outcome := metrics.OutcomeCompleted
	if c.session.Phase == PhaseFailed {
		outcome = metrics.OutcomeFailed
	}
	c.metrics.RecordOperation(metrics.OpSession, outcome)
	if !c.session.StartedAt.IsZero() {
		c.metrics.RecordDuration(metrics.OpSession, c.now().Sub(c.session.StartedAt).Seconds())
	}
	return c.settleHooks
}

func (c *Controller) bumpLocked() Session {
	c.revision++
	c.session.Revision = c.revision
	return c.session.clone()
}

func (c *Controller) notify(s Session) {
	for _, fn := range c.observers {
		fn(s)
	}
}

func (c *Controller) runSettleHooks(hooks []func(Session), s Session) {
	for _, fn := range hooks {
		fn(s)
	}
}

func (c *Controller) updateGauge(s Session) {
	if c.gauge == nil {
		return
	}
	c.gauge.SetSessionActive(s.Phase.Active())
	c.gauge.UpdateProgress(s.TransferProgress, s.ProcessingProgress)
}

func (c *Controller) logTransition(s Session, from Phase, t trigger) {
	fields := []logger.Field{
		logger.String("session_id", s.ID),
		logger.String("old_state", from.String()),
		logger.String("new_state", s.Phase.String()),
		logger.String("trigger", t.String()),
	}
	switch s.Phase {
	case PhaseFailed:
		c.log.Warn("session failed", append(fields, logger.Error(s.Err))...)
	case PhaseCompleted:
		c.log.Info("session completed", append(fields, logger.Int("violations", s.Result.ViolationCount))...)
	default:
		c.log.Debug("session state changed", fields...)
	}
}
