package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/i474232898/weather-history-etl/internal/weather"
)

// RunCompleted is published after every successful ingestion run so that
// downstream exporters can pick up new days.
type RunCompleted struct {
	Type       string    `json:"type"`
	RunID      string    `json:"run_id"`
	City       string    `json:"city"`
	Country    string    `json:"country"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Fetched    int       `json:"fetched"`
	Inserted   int       `json:"inserted"`
	Truncated  int       `json:"truncated_entries"`
	FinishedAt time.Time `json:"finished_at"`
}

const TypeRunCompleted = "WEATHER_INGEST_COMPLETED"

// NewRunCompleted builds the event for a finished run.
func NewRunCompleted(res weather.RunResult) RunCompleted {
	ev := RunCompleted{
		Type:       TypeRunCompleted,
		RunID:      res.RunID,
		City:       res.Location.City,
		Country:    res.Location.Country,
		From:       res.From.String(),
		To:         res.To.String(),
		Fetched:    res.Fetched,
		Inserted:   res.Inserted,
		FinishedAt: res.FinishedAt,
	}
	if res.Truncation != nil {
		ev.Truncated = res.Truncation.Dropped
	}
	return ev
}

// Producer wraps a Kafka writer
type Producer struct {
	writer *kafka.Writer
}

var _ weather.EventPublisher = (*Producer)(nil)

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // Partition by key (location)
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

// PublishRun sends a RunCompleted event keyed by location.
func (p *Producer) PublishRun(ctx context.Context, res weather.RunResult) error {
	value, err := json.Marshal(NewRunCompleted(res))
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(res.Location.Key()),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
