// Package events relays committed outbox records to downstream consumers.
package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/xtrntr/resale/internal/models"
)

// Publisher delivers a batch of events. Delivery is at-least-once, so a
// batch may be sent again after a failure.
type Publisher interface {
	Publish(ctx context.Context, events []models.Event) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a synchronous writer that waits for all in-sync replicas
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish writes the batch in order
func (p *KafkaPublisher) Publish(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, messages(events)...); err != nil {
		return fmt.Errorf("failed to publish %d events: %w", len(events), err)
	}
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// messages keys each event by its aggregate so one bid or trade stays on one partition
func messages(events []models.Event) []kafka.Message {
	out := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		out = append(out, kafka.Message{
			Key:   []byte(strconv.FormatInt(e.AggregateID, 10)),
			Value: e.Payload,
			Time:  e.CreatedAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(e.Type)},
				{Key: "event_id", Value: []byte(strconv.FormatInt(e.ID, 10))},
			},
		})
	}
	return out
}

// LogPublisher logs events instead of sending them anywhere
type LogPublisher struct {
	log *zap.Logger
}

// NewLogPublisher creates a publisher for development setups without a broker
func NewLogPublisher(log *zap.Logger) *LogPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogPublisher{log: log}
}

// Publish logs each event
func (p *LogPublisher) Publish(_ context.Context, events []models.Event) error {
	for _, e := range events {
		p.log.Info("event",
			zap.Int64("event_id", e.ID),
			zap.String("type", string(e.Type)),
			zap.Int64("aggregate_id", e.AggregateID),
			zap.ByteString("payload", e.Payload))
	}
	return nil
}

// Close is a no-op
func (p *LogPublisher) Close() error { return nil }
