// Package kafka moves document uploads and analytics events between
// services over segmentio/kafka-go. Values are JSON; the originating request
// ID rides along in a header and is restored into the handler's context.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/resilience"
	"github.com/segmentio/kafka-go"
)

// MessageHandler processes one message. A returned error is retried a few
// times before the message is logged and skipped.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// ConsumerOption adjusts the reader a Consumer is built with.
type ConsumerOption func(*kafka.ReaderConfig)

// WithGroupID overrides the consumer group from the config.
func WithGroupID(groupID string) ConsumerOption {
	return func(rc *kafka.ReaderConfig) { rc.GroupID = groupID }
}

// FromBeginning makes a group with no committed offset start at the oldest
// retained message instead of the newest.
func FromBeginning() ConsumerOption {
	return func(rc *kafka.ReaderConfig) { rc.StartOffset = kafka.FirstOffset }
}

// WithMaxBytes raises the fetch size so messages up to n bytes can be read.
func WithMaxBytes(n int64) ConsumerOption {
	return func(rc *kafka.ReaderConfig) {
		if int(n) > rc.MaxBytes {
			rc.MaxBytes = int(n)
		}
	}
}

type Consumer struct {
	reader   *kafka.Reader
	handler  MessageHandler
	retry    resilience.RetryConfig
	fetchGap time.Duration
	logger   *slog.Logger
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	rc := kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10 << 20,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.LastOffset,
	}
	for _, opt := range opts {
		opt(&rc)
	}
	return &Consumer{
		reader:   kafka.NewReader(rc),
		handler:  handler,
		retry:    resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond},
		fetchGap: time.Second,
		logger:   slog.Default().With("component", "kafka-consumer", "topic", topic, "group", rc.GroupID),
	}
}

// Start consumes until ctx is cancelled and closes the reader on return.
// Offsets are committed after each message is handled, or given up on.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		switch {
		case ctx.Err() != nil:
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return nil
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			c.logger.Error("failed to fetch message", "error", err, "retry_in", c.fetchGap)
			if !sleep(ctx, c.fetchGap) {
				return nil
			}
			continue
		}

		c.process(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

// Lag returns how many messages the reader is behind the partition end, as
// of its last fetch. It is -1 until a group assignment has been fetched from.
func (c *Consumer) Lag() int64 {
	return c.reader.Stats().Lag
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	if id := header(msg, RequestIDHeader); id != "" {
		ctx = logger.WithRequestID(ctx, id)
	}
	log := logger.FromContext(ctx).With("component", "kafka-consumer", "partition", msg.Partition, "offset", msg.Offset)
	log.Debug("message received", "key", string(msg.Key), "bytes", len(msg.Value))

	err := resilience.Retry(ctx, "handle message", c.retry, func() error {
		return c.handler(ctx, msg.Key, msg.Value)
	})
	if err != nil && ctx.Err() == nil {
		log.Error("giving up on message", "key", string(msg.Key), "error", err)
	}
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
