package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SessionMetrics contains Prometheus metrics for the upload-and-poll lifecycle.
// It implements Recorder for the transfer, poller, lifecycle and violation packages.
type SessionMetrics struct {
	registry *prometheus.Registry

	// Generic operation metrics
	operationsTotal         *prometheus.CounterVec
	operationErrorsTotal    *prometheus.CounterVec
	operationDuration       *prometheus.HistogramVec
	transferSizeBytes       prometheus.Histogram
	sessionsActiveGauge     prometheus.Gauge
	transferProgressGauge   prometheus.Gauge
	processingProgressGauge prometheus.Gauge
}

// NewSessionMetrics creates and registers new session metrics
func NewSessionMetrics(registry *prometheus.Registry) (*SessionMetrics, error) {
	m := &SessionMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *SessionMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkwatch_operations_total",
			Help: "Total number of operations by outcome",
		},
		[]string{"operation", "status"}, // status: success, error, cancelled, or a session outcome
	)

	m.operationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkwatch_operation_errors_total",
			Help: "Total number of operation errors by error category",
		},
		[]string{"operation", "error_type"},
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "parkwatch_operation_duration_seconds",
			Help: "Time taken by uploads, progress queries, sessions and submissions",
			// 100ms to ~14 minutes, uploads include server side processing
			Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount15),
		},
		[]string{"operation"},
	)

	m.transferSizeBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "parkwatch_transfer_size_bytes",
			Help: "Size of uploaded media files",
			// 1KB to ~4GB
			Buckets: prometheus.ExponentialBuckets(BucketStart1KB, BucketFactor4, BucketCount12),
		},
	)

	m.sessionsActiveGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parkwatch_sessions_active",
		Help: "Number of sessions currently uploading or processing",
	})

	m.transferProgressGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parkwatch_transfer_progress_percent",
		Help: "Upload progress of the current session",
	})

	m.processingProgressGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parkwatch_processing_progress_percent",
		Help: "Server side processing progress of the current session",
	})
}

// Describe implements the Collector interface
func (m *SessionMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.operationsTotal.Describe(ch)
	m.operationErrorsTotal.Describe(ch)
	m.operationDuration.Describe(ch)
	m.transferSizeBytes.Describe(ch)
	m.sessionsActiveGauge.Describe(ch)
	m.transferProgressGauge.Describe(ch)
	m.processingProgressGauge.Describe(ch)
}

// Collect implements the Collector interface
func (m *SessionMetrics) Collect(ch chan<- prometheus.Metric) {
	m.operationsTotal.Collect(ch)
	m.operationErrorsTotal.Collect(ch)
	m.operationDuration.Collect(ch)
	m.transferSizeBytes.Collect(ch)
	m.sessionsActiveGauge.Collect(ch)
	m.transferProgressGauge.Collect(ch)
	m.processingProgressGauge.Collect(ch)
}

// RecordOperation implements Recorder
func (m *SessionMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder
func (m *SessionMetrics) RecordDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder
func (m *SessionMetrics) RecordError(operation, errorType string) {
	m.operationErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// RecordTransferSize records the size of an uploaded file
func (m *SessionMetrics) RecordTransferSize(bytes int64) {
	m.transferSizeBytes.Observe(float64(bytes))
}

// SetSessionActive marks whether a session is uploading or processing
func (m *SessionMetrics) SetSessionActive(active bool) {
	if active {
		m.sessionsActiveGauge.Set(1)
		return
	}
	m.sessionsActiveGauge.Set(0)
}

// UpdateProgress updates the progress gauges of the current session
func (m *SessionMetrics) UpdateProgress(transfer, processing int) {
	m.transferProgressGauge.Set(float64(transfer))
	m.processingProgressGauge.Set(float64(processing))
}
