// Package publisher provides the two ingestion sinks: Publisher sends
// document changes to Kafka so every search instance applies them, and
// Local applies them to this instance's catalog immediately.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/metrics"
)

// EventProducer is the part of the Kafka producer the publisher needs.
type EventProducer interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher queues document changes on the ingest topic. Events are keyed by
// document name so changes to one document are applied in order.
type Publisher struct {
	producer EventProducer
	logger   *slog.Logger
}

func New(producer EventProducer) *Publisher {
	return &Publisher{
		producer: producer,
		logger:   slog.Default().With("component", "ingest-publisher"),
	}
}

func (p *Publisher) Put(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	if err := p.publish(ctx, ingestion.IngestEvent{Name: req.Name, Body: req.Body}); err != nil {
		return nil, err
	}
	return &ingestion.IngestResponse{Document: req.Name, Status: ingestion.StatusQueued, Bytes: len(req.Body)}, nil
}

func (p *Publisher) Delete(ctx context.Context, name string) (*ingestion.IngestResponse, error) {
	if err := catalog.ValidateName(name); err != nil {
		return nil, err
	}
	if err := p.publish(ctx, ingestion.IngestEvent{Name: name, Deleted: true}); err != nil {
		return nil, err
	}
	return &ingestion.IngestResponse{Document: name, Status: ingestion.StatusQueued}, nil
}

func (p *Publisher) publish(ctx context.Context, event ingestion.IngestEvent) error {
	event.IngestedAt = time.Now().UTC()
	event.RequestID = logger.RequestID(ctx)
	if err := p.producer.Publish(ctx, kafka.Event{Key: event.Name, Value: event}); err != nil {
		p.logger.Error("failed to publish ingest event",
			"document", event.Name,
			"deleted", event.Deleted,
			"error", err,
		)
		return apperrors.Newf(apperrors.ErrUnavailable, http.StatusServiceUnavailable,
			"queueing document %s: %v", event.Name, err)
	}
	p.logger.Info("ingest event published", "document", event.Name, "deleted", event.Deleted)
	return nil
}

// Local loads uploads straight into a catalog.
type Local struct {
	catalog *catalog.Catalog
	metrics *metrics.Metrics
}

// NewLocal creates a Local sink. m may be nil.
func NewLocal(cat *catalog.Catalog, m *metrics.Metrics) *Local {
	return &Local{catalog: cat, metrics: m}
}

func (l *Local) Put(_ context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	img, err := l.catalog.Load(req.Name, strings.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", req.Name, err)
	}
	if l.metrics != nil {
		l.metrics.DocumentsLoadedTotal.WithLabelValues("upload").Inc()
	}
	return &ingestion.IngestResponse{
		Document: req.Name,
		Status:   ingestion.StatusLoaded,
		Bytes:    len(req.Body),
		Lines:    img.NumLines(),
		Tokens:   img.TokenCount(),
	}, nil
}

func (l *Local) Delete(_ context.Context, name string) (*ingestion.IngestResponse, error) {
	if err := catalog.ValidateName(name); err != nil {
		return nil, err
	}
	if !l.catalog.Remove(name) {
		return nil, apperrors.NotFoundf("document %q", name)
	}
	return &ingestion.IngestResponse{Document: name, Status: ingestion.StatusRemoved}, nil
}
