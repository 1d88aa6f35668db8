// Package consumer applies document ingest events from Kafka to the local
// catalog. Each search instance consumes the whole topic, so uploads made
// through any instance reach all of them.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/metrics"
)

// Ingest statuses recorded in IngestEventsTotal.
const (
	statusLoaded  = "loaded"
	statusRemoved = "removed"
	statusInvalid = "invalid"
	statusFailed  = "failed"
)

// IngestConsumer wraps a Kafka consumer feeding the catalog.
type IngestConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IngestConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IngestConsumer {
	return &IngestConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "ingest-consumer"),
	}
}

// Start begins consuming. It blocks until ctx is cancelled.
func (ic *IngestConsumer) Start(ctx context.Context) error {
	ic.logger.Info("ingest consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler that loads or removes the
// document named by each event. m may be nil. Malformed events and bodies
// no load could accept are logged and committed; other load failures are
// returned so the message is retried.
func HandleMessage(cat *catalog.Catalog, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "ingest-consumer")
	count := func(status string) {
		if m != nil {
			m.IngestEventsTotal.WithLabelValues(status).Inc()
		}
	}
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
		if err != nil {
			count(statusInvalid)
			logger.Error("failed to decode ingest event", "error", err, "key", string(key))
			return nil
		}
		if err := catalog.ValidateName(event.Name); err != nil {
			count(statusInvalid)
			logger.Error("ingest event has invalid name", "error", err, "key", string(key))
			return nil
		}
		log := logger.With("document", event.Name)
		if event.RequestID != "" {
			log = log.With("request_id", event.RequestID)
		}

		if event.Deleted {
			removed := cat.Remove(event.Name)
			count(statusRemoved)
			log.Info("document removed via ingest", "was_present", removed)
			return nil
		}

		img, err := cat.Load(event.Name, strings.NewReader(event.Body))
		if errors.Is(err, apperrors.ErrPayloadTooLarge) || errors.Is(err, apperrors.ErrInvalidInput) {
			count(statusInvalid)
			log.Error("ingest event can not be loaded", "error", err)
			return nil
		}
		if err != nil {
			count(statusFailed)
			return fmt.Errorf("loading document %s: %w", event.Name, err)
		}
		count(statusLoaded)
		if m != nil {
			m.DocumentsLoadedTotal.WithLabelValues("kafka").Inc()
		}
		log.Info("document loaded via ingest",
			"lines", img.NumLines(),
			"tokens", img.TokenCount(),
			"lag", time.Since(event.IngestedAt),
		)
		return nil
	}
}
