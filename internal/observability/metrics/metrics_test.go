package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionMetrics_Recorder(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewSessionMetrics(registry)
	require.NoError(t, err)

	var r Recorder = m
	r.RecordOperation(OpTransfer, StatusSuccess)
	r.RecordOperation(OpTransfer, StatusSuccess)
	r.RecordOperation(OpSession, OutcomeFailed)
	r.RecordError(OpPollQuery, "network")
	r.RecordDuration(OpTransfer, 1.5)

	assert.InDelta(t, 2, testutil.ToFloat64(m.operationsTotal.WithLabelValues(OpTransfer, StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.operationsTotal.WithLabelValues(OpSession, OutcomeFailed)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.operationErrorsTotal.WithLabelValues(OpPollQuery, "network")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.operationDuration, "parkwatch_operation_duration_seconds"))
}

func TestSessionMetrics_Gauges(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewSessionMetrics(registry)
	require.NoError(t, err)

	m.SetSessionActive(true)
	m.UpdateProgress(100, 42)
	assert.InDelta(t, 1, testutil.ToFloat64(m.sessionsActiveGauge), 0)
	assert.InDelta(t, 42, testutil.ToFloat64(m.processingProgressGauge), 0)

	m.SetSessionActive(false)
	assert.InDelta(t, 0, testutil.ToFloat64(m.sessionsActiveGauge), 0)

	expected := `
# HELP parkwatch_transfer_progress_percent Upload progress of the current session
# TYPE parkwatch_transfer_progress_percent gauge
parkwatch_transfer_progress_percent 100
`
	require.NoError(t, testutil.CollectAndCompare(m.transferProgressGauge, strings.NewReader(expected)))
}

func TestNewSessionMetrics_DuplicateRegistration(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewSessionMetrics(registry)
	require.NoError(t, err)

	_, err = NewSessionMetrics(registry)
	require.Error(t, err)
}

func TestDatastoreMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewDatastoreMetrics(registry)
	require.NoError(t, err)

	m.RecordOperation(OpDbInsert, StatusSuccess)
	m.RecordStored("sqlite")
	m.RecordError(OpDbInsert, "database")

	assert.InDelta(t, 1, testutil.ToFloat64(m.dbOperationsTotal.WithLabelValues(OpDbInsert, StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.recordsTotal.WithLabelValues("sqlite")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.dbOperationErrorsTotal.WithLabelValues(OpDbInsert, "database")), 0)
}

func TestMQTTMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewMQTTMetrics(registry)
	require.NoError(t, err)

	m.SetConnected(true)
	m.RecordPublish(512, 0.02)
	m.RecordError(MQTTStageTimeout)
	m.RecordError(MQTTStageTimeout)

	assert.InDelta(t, 1, testutil.ToFloat64(m.connected), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.published), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.errors.WithLabelValues(MQTTStageTimeout)), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.publishSeconds))

	m.SetConnected(false)
	assert.InDelta(t, 0, testutil.ToFloat64(m.connected), 0)
}

func TestHTTPMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewHTTPMetrics(registry)
	require.NoError(t, err)

	m.RecordHTTPRequest("GET", "/api/v1/session", 200, 0.01)
	assert.InDelta(t, 1, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/api/v1/session", "200")), 0)
}

func TestTestRecorder(t *testing.T) {
	t.Parallel()

	r := NewTestRecorder()
	r.RecordOperation(OpSubmit, StatusSuccess)
	r.RecordDuration(OpSubmit, 0.2)
	r.RecordError(OpSubmit, "submission")

	assert.Equal(t, 1, r.GetOperationCount(OpSubmit, StatusSuccess))
	assert.Equal(t, 0, r.GetOperationCount(OpSubmit, StatusError))
	assert.Equal(t, []float64{0.2}, r.GetDurations(OpSubmit))
	assert.Equal(t, 1, r.GetErrorCount(OpSubmit, "submission"))
	assert.Nil(t, r.GetDurations(OpTransfer))
}

func TestOrNoop(t *testing.T) {
	t.Parallel()

	assert.IsType(t, NoopRecorder{}, OrNoop(nil))
	r := NewTestRecorder()
	assert.Same(t, r, OrNoop(r))
}
