package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/parkapp/parkwatch/internal/errors"
	"github.com/parkapp/parkwatch/internal/observability/metrics"
	"github.com/parkapp/parkwatch/internal/violation"
)

// RecordMessage is the payload published for every saved record.
type RecordMessage struct {
	Profile           string    `json:"profile"`
	RecordedNumber    int       `json:"recorded_number"`
	ViolationType     string    `json:"violation_type"`
	Location          string    `json:"location"`
	TimeCaught        string    `json:"time_caught"`
	Evidence          string    `json:"evidence"`
	SessionID         string    `json:"session_id"`
	ProcessedMediaURL string    `json:"processed_media_url,omitempty"`
	SnapshotURL       string    `json:"snapshot_url,omitempty"`
	PublishedAt       time.Time `json:"published_at"`
}

func newRecordMessage(rec *violation.Record, now time.Time) RecordMessage {
	return RecordMessage{
		Profile:           rec.ProfileID,
		RecordedNumber:    rec.RecordedCount,
		ViolationType:     rec.ViolationType,
		Location:          rec.Location,
		TimeCaught:        rec.TimeCaught,
		Evidence:          rec.Evidence,
		SessionID:         rec.SessionID,
		ProcessedMediaURL: rec.ProcessedMediaRef,
		SnapshotURL:       rec.SnapshotRef,
		PublishedAt:       now.UTC(),
	}
}

// Publisher publishes saved records. It implements violation.Hook.
type Publisher struct {
	client  Client
	topic   string
	metrics metrics.Recorder
	now     func() time.Time
}

// NewPublisher returns a publisher for topic. r may be nil.
func NewPublisher(c Client, topic string, r metrics.Recorder) *Publisher {
	return &Publisher{
		client:  c,
		topic:   topic,
		metrics: metrics.OrNoop(r),
		now:     time.Now,
	}
}

// Name implements violation.Hook.
func (p *Publisher) Name() string { return "mqtt" }

// RecordSaved implements violation.Hook. It connects lazily.
func (p *Publisher) RecordSaved(ctx context.Context, rec *violation.Record) (err error) {
	start := p.now()
	defer func() {
		p.metrics.RecordDuration(metrics.OpMQTTPublish, p.now().Sub(start).Seconds())
		if err != nil {
			p.metrics.RecordOperation(metrics.OpMQTTPublish, metrics.StatusError)
			p.metrics.RecordError(metrics.OpMQTTPublish, string(errors.CategoryMQTTPublish))
			return
		}
		p.metrics.RecordOperation(metrics.OpMQTTPublish, metrics.StatusSuccess)
	}()

	payload, err := json.Marshal(newRecordMessage(rec, p.now()))
	if err != nil {
		return errors.New(err).Component("mqtt").Category(errors.CategoryMQTTPublish).Build()
	}

	if !p.client.IsConnected() {
		if err := p.client.Connect(ctx); err != nil {
			return err
		}
	}
	return p.client.Publish(ctx, p.topic, payload)
}
