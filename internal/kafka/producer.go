package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/cmorgan83/trade-history-service/internal/models"
)

// Producer publishes rebuild lifecycle events for downstream consumers
// (analytics refreshers, alerting)
type Producer struct {
	writer *kafka.Writer
}

// RebuildEvent is the message published after a successful rebuild
type RebuildEvent struct {
	EventType string                `json:"event_type"`
	Source    string                `json:"source"`
	Timestamp string                `json:"timestamp"`
	Report    *models.RebuildReport `json:"report"`
}

// NewProducer creates a Kafka producer for the rebuilds topic
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
	return &Producer{writer: writer}
}

// PublishRebuildCompleted announces that derived state was replaced
func (p *Producer) PublishRebuildCompleted(ctx context.Context, report *models.RebuildReport) error {
	event := RebuildEvent{
		EventType: "POSITIONS_REBUILT",
		Source:    "trade-history-service",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Report:    report,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal rebuild event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.EventType),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish rebuild event: %w", err)
	}
	return nil
}

// Close closes the Kafka writer
func (p *Producer) Close() error {
	return p.writer.Close()
}
