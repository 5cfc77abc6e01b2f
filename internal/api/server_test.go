package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkapp/parkwatch/internal/conf"
	"github.com/parkapp/parkwatch/internal/datastore"
	"github.com/parkapp/parkwatch/internal/detection"
	"github.com/parkapp/parkwatch/internal/errors"
	"github.com/parkapp/parkwatch/internal/lifecycle"
	"github.com/parkapp/parkwatch/internal/logger"
	"github.com/parkapp/parkwatch/internal/observability"
	"github.com/parkapp/parkwatch/internal/violation"
)

// fakeController serves a fixed snapshot and records calls.
type fakeController struct {
	mu       sync.Mutex
	snap     lifecycle.Session
	beginErr error
	begun    []string
	resets   int
}

func (f *fakeController) Snapshot() lifecycle.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeController) Begin(_ context.Context, mediaRef string) (lifecycle.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begun = append(f.begun, mediaRef)
	if f.beginErr != nil {
		return f.snap, f.beginErr
	}
	f.snap = lifecycle.Session{ID: "sess-new", MediaRef: mediaRef, Phase: lifecycle.PhaseUploading}
	return f.snap, nil
}

func (f *fakeController) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.snap = lifecycle.Session{}
}

type fakeSubmitter struct {
	err error
	got []violation.Record
	mu  sync.Mutex
}

func (f *fakeSubmitter) Submit(_ context.Context, _ lifecycle.Session, rec *violation.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	rec.ProfileID = "42"
	f.got = append(f.got, *rec)
	return nil
}

type fakeLister struct {
	rows      []datastore.ViolationHistory
	err       error
	lastLimit int
}

func (f *fakeLister) ListViolations(_ context.Context, limit int) ([]datastore.ViolationHistory, error) {
	f.lastLimit = limit
	return f.rows, f.err
}

func completed() lifecycle.Session {
	return lifecycle.Session{
		ID:                 "sess-1",
		Phase:              lifecycle.PhaseCompleted,
		TransferProgress:   100,
		ProcessingProgress: 100,
		CompletedAt:        time.Date(2026, 3, 14, 21, 5, 9, 0, time.UTC),
		Result:             &detection.Result{ViolationCount: 2, ProcessedMediaRef: "https://x/out.mp4"},
	}
}

func testDefaults() violation.Defaults {
	return violation.Defaults{
		ViolationType: conf.DefaultViolationType,
		Location:      "Gate 3",
		TimeFormat:    conf.DefaultTimeFormat,
		Zone:          time.UTC,
	}
}

func newTestServer(t *testing.T, ctrl SessionController, opts ...ServerOption) *Server {
	t.Helper()
	opts = append([]ServerOption{WithLogger(logger.NewSlogLogger(io.Discard, logger.LogLevelDebug, nil))}, opts...)
	s, err := New(DefaultConfig(), ctrl, opts...)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeController{})
	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "idle", body["phase"])
}

func TestGetSession(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeController{snap: completed()})
	rec := do(t, s, http.MethodGet, "/api/v1/session", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "sess-1", body["id"])
	assert.Equal(t, "completed", body["phase"])
	assert.InDelta(t, 100, body["processing_progress"], 0)
	result := body["result"].(map[string]any)
	assert.InDelta(t, 2, result["violation_count"], 0)
	assert.NotContains(t, body, "error")
}

func TestGetSessionFailedCarriesError(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeController{snap: lifecycle.Session{
		Phase: lifecycle.PhaseFailed,
		Err:   errors.NewStd("server returned 502"),
	}})
	body := decode(t, do(t, s, http.MethodGet, "/api/v1/session", ""))
	assert.Equal(t, "failed", body["phase"])
	assert.Equal(t, "server returned 502", body["error"])
}

func TestBeginSession(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{}
	s := newTestServer(t, ctrl)

	rec := do(t, s, http.MethodPost, "/api/v1/session", `{"media":"/videos/clip.mp4"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "uploading", decode(t, rec)["phase"])
	assert.Equal(t, []string{"/videos/clip.mp4"}, ctrl.begun)
}

func TestBeginSessionErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		beginErr error
		snap     lifecycle.Session
		want     int
		wantMsg  string
	}{
		{name: "missing media", body: `{}`, want: http.StatusBadRequest, wantMsg: "media is required"},
		{name: "bad json", body: `{`, want: http.StatusBadRequest, wantMsg: "invalid request body"},
		{
			name:     "active transfer",
			body:     `{"media":"a.mp4"}`,
			beginErr: errors.New(lifecycle.ErrTransferActive).Category(errors.CategoryState).Build(),
			want:     http.StatusConflict,
			wantMsg:  lifecycle.ErrTransferActive.Error(),
		},
		{
			name:     "no base url",
			body:     `{"media":"a.mp4"}`,
			beginErr: errors.New(conf.ErrMissingBaseURL).Category(errors.CategoryConfiguration).Build(),
			want:     http.StatusServiceUnavailable,
			wantMsg:  conf.ErrMissingBaseURL.Error(),
		},
		{
			name:     "synchronous failure",
			body:     `{"media":"missing.mp4"}`,
			beginErr: errors.NewStd("open missing.mp4: no such file or directory"),
			snap:     lifecycle.Session{Phase: lifecycle.PhaseFailed, Err: errors.NewStd("open missing.mp4: no such file or directory")},
			want:     http.StatusUnprocessableEntity,
			wantMsg:  "open missing.mp4: no such file or directory",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t, &fakeController{beginErr: tt.beginErr, snap: tt.snap})
			rec := do(t, s, http.MethodPost, "/api/v1/session", tt.body)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.wantMsg, decode(t, rec)["error"])
		})
	}
}

func TestResetSession(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{snap: completed()}
	s := newTestServer(t, ctrl)
	rec := do(t, s, http.MethodPost, "/api/v1/session/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "idle", decode(t, rec)["phase"])
	assert.Equal(t, 1, ctrl.resets)
}

func TestDraft(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeController{snap: completed()}, WithSubmitter(&fakeSubmitter{}, testDefaults()))
	rec := do(t, s, http.MethodGet, "/api/v1/session/draft", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.InDelta(t, 2, body["recorded_number"], 0)
	assert.Equal(t, "Gate 3", body["location"])
	assert.Equal(t, "09:05:09 PM", body["time_caught"])
}

func TestDraftBeforeCompletion(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeController{}, WithSubmitter(&fakeSubmitter{}, testDefaults()))
	rec := do(t, s, http.MethodGet, "/api/v1/session/draft", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, violation.ErrNotCompleted.Error(), decode(t, rec)["error"])
}

func TestSubmitRecord(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	s := newTestServer(t, &fakeController{snap: completed()}, WithSubmitter(sub, testDefaults()))
	rec := do(t, s, http.MethodPost, "/api/v1/session/record", `{"location":"Lot B","recorded_number":5}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Len(t, sub.got, 1)
	assert.Equal(t, "Lot B", sub.got[0].Location)
	assert.Equal(t, 5, sub.got[0].RecordedCount)
	assert.Equal(t, conf.DefaultViolationType, sub.got[0].ViolationType)
	assert.Equal(t, "sess-1", sub.got[0].SessionID)
	assert.Equal(t, "42", decode(t, rec)["profile"])
}

func TestSubmitRecordErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", errors.New(&violation.ValidationError{Field: "location", Reason: "must not be empty"}).Build(), http.StatusBadRequest},
		{"no identity", errors.New(&violation.SubmitError{Kind: violation.NoIdentity}).Build(), http.StatusUnauthorized},
		{"remote", errors.New(&violation.SubmitError{Kind: violation.Remote, Err: errors.NewStd("timeout")}).Build(), http.StatusBadGateway},
		{"already submitted", errors.New(violation.ErrAlreadySubmitted).Build(), http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer(t, &fakeController{snap: completed()}, WithSubmitter(&fakeSubmitter{err: tt.err}, testDefaults()))
			rec := do(t, s, http.MethodPost, "/api/v1/session/record", `{}`)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.err.Error(), decode(t, rec)["error"])
		})
	}
}

func TestSubmitRoutesAbsentWithoutSubmitter(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeController{snap: completed()})
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, "/api/v1/session/record", `{}`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/v1/records", "").Code)
}

func TestListRecords(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{rows: []datastore.ViolationHistory{
		{ID: 2, Profile: "42", Location: "Gate 3"},
		{ID: 1, Profile: "42", Location: "Lot B"},
	}}
	s := newTestServer(t, &fakeController{}, WithRecords(lister))

	rec := do(t, s, http.MethodGet, "/api/v1/records?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.InDelta(t, 2, body["count"], 0)
	assert.Equal(t, 2, lister.lastLimit)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/records?limit=0", "").Code)

	do(t, s, http.MethodGet, "/api/v1/records", "")
	assert.Equal(t, datastore.DefaultListLimit, lister.lastLimit)
}

func TestListRecordsStoreFailure(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeController{}, WithRecords(&fakeLister{err: errors.NewStd("db locked")}))
	rec := do(t, s, http.MethodGet, "/api/v1/records", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "db locked", decode(t, rec)["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	m, err := observability.NewMetrics()
	require.NoError(t, err)
	s := newTestServer(t, &fakeController{}, WithMetrics(m))

	do(t, s, http.MethodGet, "/api/v1/session", "")
	rec := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{`)
	assert.Contains(t, rec.Body.String(), `path="/api/v1/session"`)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Listen = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	_, err = New(cfg, &fakeController{})
	require.Error(t, err)
}

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()

	cfg := ConfigFromSettings(&conf.Settings{API: conf.APISettings{Listen: ":9090", Metrics: false}})
	assert.Equal(t, ":9090", cfg.Listen)
	assert.False(t, cfg.Metrics)

	assert.Equal(t, DefaultListen, ConfigFromSettings(&conf.Settings{}).Listen)
}

func TestStartStopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Listen = "127.0.0.1:0"
	s, err := New(cfg, &fakeController{}, WithLogger(logger.NewSlogLogger(io.Discard, logger.LogLevelDebug, nil)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
