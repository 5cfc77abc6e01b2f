package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// MQTT error stages.
const (
	MQTTStageConnect        = "connect"
	MQTTStagePublish        = "publish"
	MQTTStageTimeout        = "timeout"
	MQTTStageConnectionLost = "connection_lost"
)

// MQTTMetrics tracks the broker connection used to publish saved records.
type MQTTMetrics struct {
	connected      prometheus.Gauge
	published      prometheus.Counter
	errors         *prometheus.CounterVec
	reconnects     prometheus.Counter
	payloadBytes   prometheus.Histogram
	publishSeconds prometheus.Histogram
}

// NewMQTTMetrics creates the MQTT collectors and registers them.
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parkwatch_mqtt_connected",
			Help: "1 while connected to the MQTT broker",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parkwatch_mqtt_published_total",
			Help: "Records published to the MQTT broker",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parkwatch_mqtt_errors_total",
			Help: "MQTT errors by stage",
		}, []string{"stage"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parkwatch_mqtt_reconnects_total",
			Help: "Automatic reconnection attempts",
		}),
		payloadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "parkwatch_mqtt_payload_bytes",
			Help:    "Size of published payloads",
			Buckets: prometheus.ExponentialBuckets(64, BucketFactor2, BucketCount10),
		}),
		publishSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "parkwatch_mqtt_publish_duration_seconds",
			Help:    "Time until the broker acknowledged a publish",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount10),
		}),
	}

	for _, c := range []prometheus.Collector{m.connected, m.published, m.errors, m.reconnects, m.payloadBytes, m.publishSeconds} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
		}
	}
	return m, nil
}

// SetConnected records the connection state.
func (m *MQTTMetrics) SetConnected(connected bool) {
	if connected {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

// RecordPublish records an acknowledged publish.
func (m *MQTTMetrics) RecordPublish(payloadBytes int, seconds float64) {
	m.published.Inc()
	m.payloadBytes.Observe(float64(payloadBytes))
	m.publishSeconds.Observe(seconds)
}

// RecordError counts an error at one of the MQTTStage values.
func (m *MQTTMetrics) RecordError(stage string) {
	m.errors.WithLabelValues(stage).Inc()
}

// RecordReconnect counts a reconnection attempt.
func (m *MQTTMetrics) RecordReconnect() {
	m.reconnects.Inc()
}
