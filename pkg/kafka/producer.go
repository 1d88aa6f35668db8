package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// RequestIDHeader carries the originating request ID on every message.
const RequestIDHeader = "request-id"

// Event is one message: Key picks the partition, Value is sent as JSON.
type Event struct {
	Key   string
	Value any
}

// ProducerOption adjusts the writer a Producer is built with.
type ProducerOption func(*kafka.Writer)

// WithMaxMessageBytes raises the writer's batch size limit so messages up to
// n bytes, such as whole documents, can be written.
func WithMaxMessageBytes(n int64) ProducerOption {
	return func(w *kafka.Writer) {
		if n > w.BatchBytes {
			w.BatchBytes = n
		}
	}
}

// Producer writes JSON events to one topic synchronously.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string, opts ...ProducerOption) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchBytes:   1 << 20,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	for _, opt := range opts {
		opt(w)
	}
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish writes one event.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch writes events in one call. Nothing is written if any event
// fails to encode.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	messages := make([]kafka.Message, len(events))
	size := 0
	for i, event := range events {
		msg, err := encode(ctx, event)
		if err != nil {
			return err
		}
		messages[i] = msg
		size += len(msg.Value)
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.Error("failed to publish", "messages", len(messages), "bytes", size, "error", err)
		return fmt.Errorf("publishing %d messages to %s: %w", len(messages), p.writer.Topic, err)
	}
	p.logger.Debug("published", "messages", len(messages), "bytes", size)
	return nil
}

func encode(ctx context.Context, event Event) (kafka.Message, error) {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding event %q: %w", event.Key, err)
	}
	msg := kafka.Message{Key: []byte(event.Key), Value: value}
	if id := logger.RequestID(ctx); id != "" {
		msg.Headers = []kafka.Header{{Key: RequestIDHeader, Value: []byte(id)}}
	}
	return msg, nil
}

func (p *Producer) Topic() string {
	return p.writer.Topic
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	return p.writer.Close()
}
