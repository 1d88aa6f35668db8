package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/metrics"
)

// Publisher is the part of the Kafka producer the collector needs.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// CollectorStats counts events by what happened to them.
type CollectorStats struct {
	Published int64 `json:"published"`
	Dropped   int64 `json:"dropped"`
	Failed    int64 `json:"failed"`
}

// Collector buffers analytics events in a channel and publishes them in
// batches, flushing when a batch fills up or the flush interval elapses.
// Track never blocks: events that do not fit in the buffer are dropped.
type Collector struct {
	publisher     Publisher
	eventCh       chan any
	batchSize     int
	flushInterval time.Duration
	metrics       *metrics.Metrics
	logger        *slog.Logger
	done          chan struct{}

	published atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// NewCollector creates a collector. m may be nil.
func NewCollector(publisher Publisher, cfg config.AnalyticsConfig, m *metrics.Metrics) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		eventCh:       make(chan any, cfg.BufferSize),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		metrics:       m,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the publish loop. When ctx is cancelled the loop drains
// what is buffered, publishes it, and exits.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	for {
		select {
		case event := <-c.eventCh:
			batch = append(batch, toKafkaEvent(event))
			if len(batch) >= c.batchSize {
				batch = c.flush(ctx, batch)
			}
		case <-ticker.C:
			batch = c.flush(ctx, batch)
		case <-ctx.Done():
			batch = c.drain(batch)
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			c.flush(flushCtx, batch)
			cancel()
			return
		}
	}
}

// Track queues an event for publishing.
func (c *Collector) Track(event any) {
	select {
	case c.eventCh <- event:
	default:
		c.dropped.Add(1)
		c.count("dropped", 1)
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close waits for the publish loop to exit. Cancel the context passed to
// Start first.
func (c *Collector) Close() {
	<-c.done
}

func (c *Collector) Stats() CollectorStats {
	return CollectorStats{
		Published: c.published.Load(),
		Dropped:   c.dropped.Load(),
		Failed:    c.failed.Load(),
	}
}

func (c *Collector) drain(batch []kafka.Event) []kafka.Event {
	for {
		select {
		case event := <-c.eventCh:
			batch = append(batch, toKafkaEvent(event))
		default:
			return batch
		}
	}
}

// flush publishes batch and returns an empty slice to refill. A failed
// batch is counted and discarded.
func (c *Collector) flush(ctx context.Context, batch []kafka.Event) []kafka.Event {
	if len(batch) == 0 {
		return batch
	}
	n := int64(len(batch))
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.failed.Add(n)
		c.count("failed", n)
		c.logger.Error("analytics batch publish failed", "events", n, "error", err)
	} else {
		c.published.Add(n)
		c.count("published", n)
		c.logger.Debug("analytics batch published", "events", n)
	}
	return make([]kafka.Event, 0, c.batchSize)
}

func (c *Collector) count(status string, n int64) {
	if c.metrics != nil {
		c.metrics.AnalyticsEventsTotal.WithLabelValues(status).Add(float64(n))
	}
}

func toKafkaEvent(event any) kafka.Event {
	return kafka.Event{Key: partitionKey(event), Value: event}
}
