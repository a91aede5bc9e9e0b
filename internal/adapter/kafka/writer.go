// Package kafka publishes cube lifecycle events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"

	"github.com/couchcryptid/s2s-forecast-service/internal/config"
	"github.com/couchcryptid/s2s-forecast-service/internal/domain"
)

// Writer produces cube events to a Kafka topic.
// It implements pipeline.Notifier.
type Writer struct {
	writer  *kafkago.Writer
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// breakerTrips is the number of consecutive failed writes that opens the
// breaker. While open, Publish fails fast with gobreaker.ErrOpenState.
const breakerTrips = 3

// NewWriter creates a Kafka producer for the configured event topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "kafka-" + cfg.KafkaTopic,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.KafkaBreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= breakerTrips
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("kafka circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Writer{writer: w, breaker: cb, logger: logger}
}

// Publish serializes one cube event and writes it to the topic. Events are
// keyed by source so all events for one input land on one partition.
func (w *Writer) Publish(ctx context.Context, event domain.CubeEvent) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	_, err = w.breaker.Execute(func() (interface{}, error) {
		return nil, w.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	w.logger.Debug("cube event published", "type", event.Type, "id", event.ID, "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a CubeEvent into a Kafka message.
func serializeToMessage(event domain.CubeEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize cube event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.Source),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_id", Value: []byte(event.ID)},
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "occurred_at", Value: []byte(event.OccurredAt.Format(time.RFC3339))},
		},
	}, nil
}
