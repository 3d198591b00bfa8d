package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/spray-advisory/internal/config"
	"github.com/couchcryptid/spray-advisory/internal/domain"
	"github.com/couchcryptid/spray-advisory/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces field and scan events. Each message names its topic, so a
// single underlying writer serves both.
// It implements fieldsync.FieldPublisher and reconcile.EventPublisher.
type Writer struct {
	writer     *kafkago.Writer
	fieldTopic string
	scanTopic  string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topics.
func NewWriter(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{
		writer:     w,
		fieldTopic: cfg.KafkaFieldTopic,
		scanTopic:  cfg.KafkaScanTopic,
		metrics:    metrics,
		logger:     logger,
	}
}

// PublishField writes the field keyed by its id, so a compacted topic keeps
// only the latest version.
func (w *Writer) PublishField(ctx context.Context, f domain.Field) error {
	msg, err := serializeField(w.fieldTopic, f)
	if err != nil {
		return err
	}
	return w.write(ctx, w.fieldTopic, msg)
}

// PublishFieldDeleted writes a tombstone for id.
func (w *Writer) PublishFieldDeleted(ctx context.Context, id string) error {
	return w.write(ctx, w.fieldTopic, kafkago.Message{
		Topic: w.fieldTopic,
		Key:   []byte(id),
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte("field_deleted")},
		},
	})
}

// PublishScanEvents serializes and publishes scan events in a single
// WriteMessages call.
func (w *Writer) PublishScanEvents(ctx context.Context, events []domain.ScanEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeScanEvent(w.scanTopic, events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.write(ctx, w.scanTopic, msgs...)
}

func (w *Writer) write(ctx context.Context, topic string, msgs ...kafkago.Message) error {
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %s: %w", topic, err)
	}
	w.metrics.EventsPublished.WithLabelValues(topic).Add(float64(len(msgs)))
	w.logger.Debug("events published", "topic", topic, "count", len(msgs))
	return nil
}

// Close flushes pending messages and closes the producer.
func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeField marshals a Field into a Kafka message.
func serializeField(topic string, f domain.Field) (kafkago.Message, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize field: %w", err)
	}
	return kafkago.Message{
		Topic: topic,
		Key:   []byte(f.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte("field_updated")},
			{Key: "updated_at", Value: []byte(time.UnixMilli(f.UpdatedAtEpochMs).UTC().Format(time.RFC3339))},
		},
	}, nil
}

// serializeScanEvent marshals a ScanEvent into a Kafka message keyed by the
// scan or submission id.
func serializeScanEvent(topic string, e domain.ScanEvent) (kafkago.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize scan event: %w", err)
	}
	var key string
	switch {
	case e.Record != nil:
		key = e.Record.ID
	case e.Submission != nil:
		key = e.Submission.ID
	}
	return kafkago.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte("scan_" + string(e.Kind))},
			{Key: "occurred_at", Value: []byte(e.OccurredAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
