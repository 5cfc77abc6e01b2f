package datastore

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkapp/parkwatch/internal/conf"
	"github.com/parkapp/parkwatch/internal/errors"
	"github.com/parkapp/parkwatch/internal/httpclient"
	"github.com/parkapp/parkwatch/internal/logger"
	"github.com/parkapp/parkwatch/internal/observability/metrics"
	"github.com/parkapp/parkwatch/internal/violation"
)

func testRecord(profile string) *violation.Record {
	return &violation.Record{
		ProfileID:     profile,
		RecordedCount: 2,
		ViolationType: conf.DefaultViolationType,
		Location:      conf.DefaultLocation,
		TimeCaught:    "09:05:09 PM",
		Evidence:      conf.DefaultEvidence,
		SessionID:     "not-persisted",
	}
}

func quietLogger() Option {
	return WithLogger(logger.NewSlogLogger(io.Discard, logger.LogLevelDebug, nil))
}

// storedRecorder counts RecordStored calls on top of TestRecorder.
type storedRecorder struct {
	*metrics.TestRecorder
	mu     sync.Mutex
	stored map[string]int
}

func newStoredRecorder() *storedRecorder {
	return &storedRecorder{TestRecorder: metrics.NewTestRecorder(), stored: make(map[string]int)}
}

func (r *storedRecorder) RecordStored(backend string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored[backend]++
}

func (r *storedRecorder) count(backend string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stored[backend]
}

func newSQLiteStore(t *testing.T, opts ...Option) *GormStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "parkwatch.db")
	store, err := OpenSQLite(path, append([]Option{quietLogger()}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

func TestSQLiteInsertAndList(t *testing.T) {
	t.Parallel()
	rec := newStoredRecorder()
	store := newSQLiteStore(t, WithMetrics(rec))

	require.NoError(t, store.InsertViolation(t.Context(), testRecord("u1")))
	require.NoError(t, store.InsertViolation(t.Context(), testRecord("u2")))

	rows, err := store.ListViolations(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "u2", rows[0].Profile, "newest first")
	assert.Equal(t, "u1", rows[1].Profile)
	assert.Equal(t, 2, rows[0].RecordedNumber)
	assert.Equal(t, conf.DefaultLocation, rows[0].Location)
	assert.Equal(t, "09:05:09 PM", rows[0].TimeCaught)
	assert.False(t, rows[0].CreatedAt.IsZero())

	assert.Equal(t, 2, rec.count(conf.DriverSQLite))
	assert.Equal(t, 2, rec.GetOperationCount(metrics.OpDbInsert, metrics.StatusSuccess))
	assert.Equal(t, 1, rec.GetOperationCount(metrics.OpDbQuery, metrics.StatusSuccess))
	assert.Equal(t, conf.DriverSQLite, store.Backend())
}

func TestSQLiteSchema(t *testing.T) {
	t.Parallel()
	store := newSQLiteStore(t)

	assert.True(t, store.DB.Migrator().HasTable(TableName))
	for _, col := range []string{"profile", "recorded_number", "violation_type", "location", "time_caught", "evidence"} {
		assert.True(t, store.DB.Migrator().HasColumn(&ViolationHistory{}, col), col)
	}
}

func TestSQLiteInsertIsAppendOnly(t *testing.T) {
	t.Parallel()
	store := newSQLiteStore(t)

	rec := testRecord("u1")
	require.NoError(t, store.InsertViolation(t.Context(), rec))
	require.NoError(t, store.InsertViolation(t.Context(), rec))

	var count int64
	require.NoError(t, store.DB.Model(&ViolationHistory{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestSQLiteListDefaultLimit(t *testing.T) {
	t.Parallel()
	store := newSQLiteStore(t)
	for range DefaultListLimit + 5 {
		require.NoError(t, store.InsertViolation(t.Context(), testRecord("u")))
	}
	rows, err := store.ListViolations(t.Context(), 0)
	require.NoError(t, err)
	assert.Len(t, rows, DefaultListLimit)
}

func TestSQLiteClosedStoreFails(t *testing.T) {
	t.Parallel()
	rec := metrics.NewTestRecorder()
	path := filepath.Join(t.TempDir(), "closed.db")
	store, err := OpenSQLite(path, quietLogger(), WithMetrics(rec))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	err = store.InsertViolation(t.Context(), testRecord("u"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDatabase))
	assert.Equal(t, 1, rec.GetErrorCount(metrics.OpDbInsert, conf.DriverSQLite))
}

func TestOpenSQLiteEmptyPath(t *testing.T) {
	t.Parallel()
	_, err := OpenSQLite("")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestNewSelectsBackend(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	settings := &conf.Settings{}
	settings.Datastore.Driver = conf.DriverSQLite
	settings.Datastore.SQLite.Path = "rel.db"

	store, err := New(settings, filepath.Join(dir, "config.yaml"), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	assert.Equal(t, conf.DriverSQLite, store.Backend())
	assert.FileExists(t, filepath.Join(dir, "rel.db"))

	settings.Datastore.Driver = conf.DriverREST
	settings.Datastore.REST = conf.RESTSettings{URL: "https://p.supabase.co", Table: TableName}
	rest, err := New(settings, "", quietLogger())
	require.NoError(t, err)
	assert.Equal(t, conf.DriverREST, rest.Backend())
	require.NoError(t, rest.Close())

	settings.Datastore.Driver = "postgres"
	bad, err := New(settings, "")
	require.Error(t, err)
	assert.Nil(t, bad)

	settings.Datastore.Driver = conf.DriverREST
	settings.Datastore.REST = conf.RESTSettings{}
	bad, err = New(settings, "")
	require.Error(t, err)
	assert.Nil(t, bad, "a failed open must return a nil interface")
}

func TestMySQLDSN(t *testing.T) {
	t.Parallel()

	dsn := mysqlDSN(conf.MySQLSettings{
		Host:     "db.internal",
		Port:     3307,
		Username: "park",
		Password: "p@ss:word/1",
		Database: "parking",
	})
	assert.True(t, strings.HasPrefix(dsn, "park:p@ss:word/1@tcp(db.internal:3307)/parking?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
	assert.Contains(t, dsn, "timeout=10s")
}

func newRESTTestStore(t *testing.T, transport http.RoundTripper, opts ...Option) *RESTStore {
	t.Helper()
	client := httpclient.New(&httpclient.Config{Transport: transport, DefaultTimeout: time.Second})
	t.Cleanup(client.Close)
	store, err := NewRESTStore(conf.RESTSettings{
		URL:    "https://project.supabase.co/",
		APIKey: "service-key",
		Table:  TableName,
	}, append([]Option{quietLogger(), WithHTTPClient(client)}, opts...)...)
	require.NoError(t, err)
	return store
}

func TestRESTInsert(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	var body []map[string]any
	transport.RegisterResponder(http.MethodPost, "https://project.supabase.co/rest/v1/violation_history",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "service-key", req.Header.Get("apikey"))
			assert.Equal(t, "Bearer service-key", req.Header.Get("Authorization"))
			assert.Equal(t, "return=minimal", req.Header.Get("Prefer"))
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			return httpmock.NewStringResponse(http.StatusCreated, ""), nil
		})

	rec := newStoredRecorder()
	store := newRESTTestStore(t, transport, WithMetrics(rec))
	require.NoError(t, store.InsertViolation(t.Context(), testRecord("42")))

	assert.Equal(t, 1, transport.GetTotalCallCount())
	require.Len(t, body, 1)
	row := body[0]
	assert.Equal(t, "42", row["profile"])
	assert.Equal(t, float64(2), row["recorded_number"])
	assert.Equal(t, conf.DefaultViolationType, row["violation_type"])
	assert.Equal(t, conf.DefaultLocation, row["location"])
	assert.Equal(t, "09:05:09 PM", row["time_caught"])
	assert.Equal(t, conf.DefaultEvidence, row["evidence"])
	assert.NotContains(t, row, "id", "id is assigned by the table")
	assert.NotContains(t, row, "created_at")
	assert.Equal(t, 1, rec.count(conf.DriverREST))
}

func TestRESTInsertErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		responder httpmock.Responder
		contains  string
	}{
		{
			name: "postgrest error body",
			responder: httpmock.NewStringResponder(http.StatusConflict,
				`{"code":"23505","message":"duplicate key value violates unique constraint"}`),
			contains: "23505: duplicate key value",
		},
		{
			name:      "plain body",
			responder: httpmock.NewStringResponder(http.StatusUnauthorized, "Invalid API key"),
			contains:  "status 401: Invalid API key",
		},
		{
			name:      "transport failure",
			responder: httpmock.NewErrorResponder(errors.NewStd("dial tcp: no route to host")),
			contains:  "no route to host",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			transport := httpmock.NewMockTransport()
			transport.RegisterResponder(http.MethodPost, "=~/rest/v1/violation_history$", tt.responder)

			rec := metrics.NewTestRecorder()
			store := newRESTTestStore(t, transport, WithMetrics(rec))
			err := store.InsertViolation(t.Context(), testRecord("42"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
			assert.True(t, errors.IsCategory(err, errors.CategoryDatabase))
			assert.Equal(t, 1, rec.GetOperationCount(metrics.OpDbInsert, metrics.StatusError))
			assert.Equal(t, 1, transport.GetTotalCallCount(), "no retries")
		})
	}
}

func TestRESTList(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponderWithQuery(http.MethodGet, "https://project.supabase.co/rest/v1/violation_history",
		map[string]string{"select": "*", "order": "id.desc", "limit": "5"},
		httpmock.NewStringResponder(http.StatusOK,
			`[{"id":2,"profile":"42","recorded_number":1,"violation_type":"v","location":"l","time_caught":"t","evidence":"e","created_at":"2026-03-14T21:05:09Z"}]`))

	store := newRESTTestStore(t, transport)
	rows, err := store.ListViolations(t.Context(), 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint(2), rows[0].ID)
	assert.Equal(t, "42", rows[0].Profile)
	assert.Equal(t, 2026, rows[0].CreatedAt.Year())
}

func TestNewRESTStoreValidation(t *testing.T) {
	t.Parallel()
	_, err := NewRESTStore(conf.RESTSettings{URL: "https://p.supabase.co"})
	require.Error(t, err)
	_, err = NewRESTStore(conf.RESTSettings{Table: TableName})
	require.Error(t, err)
}
