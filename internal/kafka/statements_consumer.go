package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/cmorgan83/trade-history-service/internal/ingest"
	"github.com/cmorgan83/trade-history-service/internal/models"
)

// Ingestor defines the interface for statement ingestion
type Ingestor interface {
	IngestBatches(batches []models.StatementBatch) (*ingest.Result, error)
}

// StatementsConsumer consumes normalized statement batches published by
// the extraction pipeline, one parsed file per message
type StatementsConsumer struct {
	reader   *kafka.Reader
	ingestor Ingestor
}

// NewStatementsConsumer creates a Kafka consumer for parsed statements
func NewStatementsConsumer(brokers []string, topic, groupID string, ingestor Ingestor) *StatementsConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID + "-statements",
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})

	return &StatementsConsumer{
		reader:   reader,
		ingestor: ingestor,
	}
}

// Start begins consuming messages from Kafka
func (c *StatementsConsumer) Start(ctx context.Context) error {
	log.Printf("Starting Kafka statements consumer for topic: %s", c.reader.Config().Topic)

	for {
		select {
		case <-ctx.Done():
			log.Println("Statements consumer shutting down...")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil // Context cancelled, normal shutdown
				}
				log.Printf("Error reading statements message: %v", err)
				continue
			}

			if err := c.processMessage(msg); err != nil {
				log.Printf("Error processing statements message: %v", err)
				// Continue processing other messages
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *StatementsConsumer) processMessage(msg kafka.Message) error {
	log.Printf("Received statement batch from partition %d offset %d",
		msg.Partition, msg.Offset)

	var batch models.StatementBatch
	if err := json.Unmarshal(msg.Value, &batch); err != nil {
		return fmt.Errorf("failed to unmarshal statement batch: %w", err)
	}
	if batch.FilePath == "" {
		return fmt.Errorf("statement batch is missing file_path")
	}

	result, err := c.ingestor.IngestBatches([]models.StatementBatch{batch})
	if err != nil {
		return fmt.Errorf("failed to ingest statement %s: %w", batch.FilePath, err)
	}

	log.Printf("Ingested %s: %d events inserted, %d lots closed, %d open positions",
		batch.FilePath, result.Statements.EventsInserted,
		result.Positions.ClosedLotRows, result.Positions.OpenPositions)
	return nil
}

// Close closes the Kafka consumer
func (c *StatementsConsumer) Close() error {
	return c.reader.Close()
}
