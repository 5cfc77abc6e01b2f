// client.go: paho based implementation of Client.
package mqtt

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/parkapp/parkwatch/internal/errors"
	"github.com/parkapp/parkwatch/internal/logger"
	"github.com/parkapp/parkwatch/internal/observability/metrics"
)

// Metrics receives connection and delivery statistics.
// Errors are counted per metrics.MQTTStage value.
type Metrics interface {
	SetConnected(connected bool)
	RecordPublish(payloadBytes int, seconds float64)
	RecordError(stage string)
	RecordReconnect()
}

type noopMetrics struct{}

func (noopMetrics) SetConnected(bool)          {}
func (noopMetrics) RecordPublish(int, float64) {}
func (noopMetrics) RecordError(string)         {}
func (noopMetrics) RecordReconnect()           {}

// client implements the Client interface.
type client struct {
	config          Config
	internalClient  mqtt.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
	metrics         Metrics
	log             logger.Logger
}

// NewClient creates a new MQTT client. metrics may be nil.
func NewClient(cfg Config, m Metrics) Client {
	if m == nil {
		m = noopMetrics{}
	}
	defaults := DefaultConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaults.PublishTimeout
	}
	if cfg.DisconnectTimeout <= 0 {
		cfg.DisconnectTimeout = defaults.DisconnectTimeout
	}
	return &client{
		config:  cfg,
		metrics: m,
		log:     logger.Global().Module("mqtt"),
	}
}

func mqttError(err error, category errors.ErrorCategory, broker string) error {
	return errors.New(err).
		Component("mqtt").
		Category(category).
		Context("broker", broker).
		Build()
}

// Connect attempts to establish a connection to the MQTT broker.
// It first resolves the broker's hostname and then attempts to connect.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if since := time.Since(c.lastConnAttempt); since < c.config.ReconnectCooldown {
		return errors.Newf("connection attempt too recent, last attempt was %v ago", since.Round(time.Millisecond)).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Context("broker", c.config.Broker).
			Build()
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil || u.Host == "" {
		if err == nil {
			err = errors.NewStd("broker URL has no host")
		}
		return mqttError(err, errors.CategoryConfiguration, c.config.Broker)
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return mqttError(err, errors.CategoryMQTTConnection, c.config.Broker)
		}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.internalClient = mqtt.NewClient(opts)

	token := c.internalClient.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return mqttError(ctx.Err(), errors.CategoryMQTTConnection, c.config.Broker)
	}
	if err := token.Error(); err != nil {
		c.metrics.RecordError(metrics.MQTTStageConnect)
		return mqttError(err, errors.CategoryMQTTConnection, c.config.Broker)
	}

	c.metrics.SetConnected(true)
	return nil
}

// Publish sends a message to the specified topic on the MQTT broker.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsConnected() {
		return mqttError(errors.NewStd("not connected to MQTT broker"), errors.CategoryMQTTPublish, c.config.Broker)
	}

	start := time.Now()
	token := c.internalClient.Publish(topic, c.config.QoS, c.config.Retain, payload)

	timer := time.NewTimer(c.config.PublishTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-timer.C:
		c.metrics.RecordError(metrics.MQTTStageTimeout)
		return mqttError(errors.NewStd("publish timeout"), errors.CategoryMQTTPublish, c.config.Broker)
	case <-ctx.Done():
		return mqttError(ctx.Err(), errors.CategoryMQTTPublish, c.config.Broker)
	}
	if err := token.Error(); err != nil {
		c.metrics.RecordError(metrics.MQTTStagePublish)
		return mqttError(err, errors.CategoryMQTTPublish, c.config.Broker)
	}

	c.metrics.RecordPublish(len(payload), time.Since(start).Seconds())
	c.log.Debug("published message",
		logger.String("topic", topic),
		logger.Int("size", len(payload)))
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.internalClient != nil && c.internalClient.IsConnected() {
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		c.metrics.SetConnected(false)
	}
}

func (c *client) onConnect(mqtt.Client) {
	c.log.Info("connected to MQTT broker", logger.String("broker", c.config.Broker))
	c.metrics.SetConnected(true)
}

func (c *client) onConnectionLost(_ mqtt.Client, err error) {
	c.log.Warn("connection to MQTT broker lost",
		logger.String("broker", c.config.Broker),
		logger.Error(err))
	c.metrics.SetConnected(false)
	c.metrics.RecordError(metrics.MQTTStageConnectionLost)
}

func (c *client) onReconnecting(mqtt.Client, *mqtt.ClientOptions) {
	c.metrics.RecordReconnect()
}
