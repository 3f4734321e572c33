package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"recordimages/internal/images"
)

// MessageReader is the subset of *kafka.Reader the warmer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Warmer generates preset variants for every stored original it hears about,
// so the first read of a preset is a cache hit.
type Warmer struct {
	r        MessageReader
	behavior *images.Behavior
	presets  func(field string) []images.Variant
	logger   *slog.Logger
}

// NewReader opens a consumer group reader on topic.
func NewReader(broker, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{broker},
		Topic:   topic,
		GroupID: group,
	})
}

func NewWarmer(r MessageReader, b *images.Behavior, presets func(field string) []images.Variant, logger *slog.Logger) *Warmer {
	return &Warmer{
		r:        r,
		behavior: b,
		presets:  presets,
		logger:   logger.With("system", "warmer"),
	}
}

// Run consumes until ctx is cancelled. Per-message failures are logged and skipped.
func (w *Warmer) Run(ctx context.Context) error {
	defer w.r.Close()

	for {
		msg, err := w.r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			w.logger.Error("error reading message", "error", err)
			continue
		}

		if err := w.Handle(ctx, msg); err != nil {
			w.logger.Error("error warming variants", "error", err, "offset", msg.Offset)
		}
	}
}

// Handle processes a single message.
func (w *Warmer) Handle(ctx context.Context, msg kafka.Message) error {
	const op = "events.Warmer.Handle"

	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ev.Type != TypeStored {
		return nil
	}

	a, err := w.behavior.For(images.Key(ev.RecordKey))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, v := range w.presets(ev.Field) {
		link, ok, err := a.Resolve(ctx, ev.Name(), v)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if !ok {
			// replaced or deleted since the event was written
			w.logger.Debug("original gone", "record", ev.RecordKey, "name", ev.Name())
			return nil
		}
		w.logger.Debug("variant warmed", "link", link)
	}
	return nil
}
