package lifecycle

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parkapp/parkwatch/internal/logger"
	"github.com/parkapp/parkwatch/internal/transfer"
)

const (
	testUploadURL   = "http://backend.test/upload"
	testProgressURL = "http://backend.test/progress"
	waitFor         = 2 * time.Second
	tick            = 5 * time.Millisecond
)

// transferCall is one recorded Begin invocation.
type transferCall struct {
	ctx      context.Context
	endpoint string
	mediaRef string
	events   chan transfer.Event
}

// fakeTransfer hands out buffered event channels the test writes into.
type fakeTransfer struct {
	mu    sync.Mutex
	calls []*transferCall
	err   error
}

func (f *fakeTransfer) Begin(ctx context.Context, endpoint, mediaRef string) (<-chan transfer.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	call := &transferCall{
		ctx:      ctx,
		endpoint: endpoint,
		mediaRef: mediaRef,
		events:   make(chan transfer.Event, 64),
	}
	f.calls = append(f.calls, call)
	return call.events, nil
}

func (f *fakeTransfer) call(t *testing.T, i int) *transferCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Greater(t, len(f.calls), i, "transfer %d was not started", i)
	return f.calls[i]
}

func (f *fakeTransfer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (c *transferCall) emit(events ...transfer.Event) {
	for _, ev := range events {
		c.events <- ev
	}
}

func progress(p int) transfer.Event { return transfer.Event{Kind: transfer.KindProgress, Percent: p} }
func sent() transfer.Event          { return transfer.Event{Kind: transfer.KindSent} }
func done(payload string) transfer.Event {
	return transfer.Event{Kind: transfer.KindDone, Payload: []byte(payload)}
}
func failed(err error) transfer.Event { return transfer.Event{Kind: transfer.KindError, Err: err} }

// fakeHandle records cancellation.
type fakeHandle struct {
	cancels atomic.Int32
}

func (h *fakeHandle) Cancel() { h.cancels.Add(1) }

func (h *fakeHandle) cancelled() bool { return h.cancels.Load() > 0 }

type pollStart struct {
	ctx        context.Context
	endpoint   string
	interval   time.Duration
	onProgress func(int)
	handle     *fakeHandle
}

// fakePoller never queries anything; the test drives ticks directly. A tick
// delivered after Cancel still reaches the controller so its guards are tested.
type fakePoller struct {
	mu     sync.Mutex
	starts []*pollStart
}

func (f *fakePoller) Start(ctx context.Context, endpoint string, interval time.Duration, onProgress func(int)) PollHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &pollStart{ctx: ctx, endpoint: endpoint, interval: interval, onProgress: onProgress, handle: &fakeHandle{}}
	f.starts = append(f.starts, s)
	return s.handle
}

func (f *fakePoller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

func (f *fakePoller) start(t *testing.T, i int) *pollStart {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Greater(t, len(f.starts), i, "poller %d was not started", i)
	return f.starts[i]
}

// revisionLog collects every observed snapshot.
type revisionLog struct {
	mu    sync.Mutex
	snaps []Session
}

func (r *revisionLog) observe(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *revisionLog) all() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Session(nil), r.snaps...)
}

type harness struct {
	ctrl     *Controller
	transfer *fakeTransfer
	poller   *fakePoller
	log      *revisionLog
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		transfer: &fakeTransfer{},
		poller:   &fakePoller{},
		log:      &revisionLog{},
	}
	cfg := Config{
		UploadURL:    testUploadURL,
		ProgressURL:  testProgressURL,
		PollInterval: 50 * time.Millisecond,
	}
	opts = append([]Option{
		WithLogger(logger.NewSlogLogger(io.Discard, logger.LogLevelDebug, nil)),
		WithObserver(h.log.observe),
	}, opts...)
	h.ctrl = New(h.transfer, h.poller, cfg, opts...)
	t.Cleanup(h.ctrl.Close)
	return h
}

func (h *harness) begin(t *testing.T, mediaRef string) *transferCall {
	t.Helper()
	_, err := h.ctrl.Begin(t.Context(), mediaRef)
	require.NoError(t, err)
	return h.transfer.call(t, h.transfer.count()-1)
}

// waitPhase waits until the controller reaches phase.
func (h *harness) waitPhase(t *testing.T, phase Phase) Session {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.ctrl.Snapshot().Phase == phase
	}, waitFor, tick, "phase %s not reached, have %s", phase, h.ctrl.Snapshot().Phase)
	return h.ctrl.Snapshot()
}

// waitSettled waits for Done and returns the final snapshot.
func (h *harness) waitSettled(t *testing.T) Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), waitFor)
	defer cancel()
	s, err := h.ctrl.Wait(ctx)
	require.NoError(t, err)
	return s
}
