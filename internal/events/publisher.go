// Package events publishes image lifecycle events to Kafka and consumes them
// to pre-generate configured variants.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"recordimages/internal/images"
)

const (
	TypeStored  = "image.stored"
	TypeRemoved = "image.removed"
)

// Event is the message body written to the topic.
type Event struct {
	Type      string    `json:"type"`
	RecordKey string    `json:"record_key"`
	Field     string    `json:"field"`
	Index     int       `json:"index,omitempty"`
	Path      string    `json:"path"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	At        time.Time `json:"at"`
}

// Name is the logical image name accepted by images.Attachment.Resolve.
func (e Event) Name() string {
	if e.Index > 0 {
		return fmt.Sprintf("%s_%d", e.Field, e.Index)
	}
	return e.Field
}

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	w      MessageWriter
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher creates a publisher writing to topic on broker.
func NewPublisher(broker, topic string, logger *slog.Logger) *Publisher {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  []string{broker},
		Topic:    topic,
		Balancer: &kafka.Hash{},
	})
	return NewPublisherWithWriter(w, logger)
}

func NewPublisherWithWriter(w MessageWriter, logger *slog.Logger) *Publisher {
	return &Publisher{
		w:      w,
		logger: logger.With("system", "events"),
		now:    time.Now,
	}
}

// Publish writes ev keyed by record so events of one record stay ordered.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	const op = "events.Publish"

	if ev.At.IsZero() {
		ev.At = p.now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = p.w.WriteMessages(ctx, kafka.Message{Key: []byte(ev.RecordKey), Value: body})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	p.logger.Debug("event published", "type", ev.Type, "record", ev.RecordKey, "field", ev.Field)
	return nil
}

func (p *Publisher) Close() error {
	return p.w.Close()
}

// OnStored is an images.FieldConfig.OnStored hook.
func (p *Publisher) OnStored(ctx context.Context, img images.StoredImage) error {
	return p.Publish(ctx, Event{
		Type:      TypeStored,
		RecordKey: img.RecordKey,
		Field:     img.Field,
		Index:     img.Index,
		Path:      img.Path,
		Width:     img.Width,
		Height:    img.Height,
	})
}

// OnRemove is an images.FieldConfig.OnRemove hook.
func (p *Publisher) OnRemove(ctx context.Context, img images.RemovedImage) error {
	return p.Publish(ctx, Event{
		Type:      TypeRemoved,
		RecordKey: img.RecordKey,
		Field:     img.Field,
		Path:      img.Path,
	})
}

// Attach installs the publisher's hooks on every field of cfg.
func (p *Publisher) Attach(cfg *images.Config) {
	for i := range cfg.Fields {
		cfg.Fields[i].OnStored = p.OnStored
		cfg.Fields[i].OnRemove = p.OnRemove
	}
}
