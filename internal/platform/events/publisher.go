// Package events publishes recipe lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Type names a recipe lifecycle event.
type Type string

const (
	RecipeScanned Type = "recipe.scanned"
	RecipeSaved   Type = "recipe.saved"
	RecipeUpdated Type = "recipe.updated"
	RecipeDeleted Type = "recipe.deleted"
)

// Event is the JSON payload written to the topic.
type Event struct {
	Type       Type      `json:"type"`
	RecipeID   string    `json:"recipe_id,omitempty"`
	UserID     string    `json:"user_id"`
	FileHash   string    `json:"file_hash,omitempty"`
	Cached     bool      `json:"cached,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher publishes events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// KafkaPublisher writes events to a Kafka topic keyed by user id, so one
// user's events stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewKafkaPublisher creates a KafkaPublisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaPublisher{
		writer: w,
		log:    log.With(zap.String("component", "kafka-publisher"), zap.String("topic", topic)),
	}
}

// Publish serialises the event and writes it synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(e.UserID),
		Value: value,
		Time:  e.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	p.log.Debug("event published", zap.String("type", string(e.Type)), zap.Int("value_size", len(value)))
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
