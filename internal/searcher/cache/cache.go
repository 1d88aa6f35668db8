// Package cache stores rendered search reports in Redis. Concurrent misses
// for the same key are collapsed with singleflight, Redis calls go through a
// circuit breaker so an unhealthy Redis degrades to uncached searches, and
// entries are invalidated per document when the catalog changes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/report"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/resilience"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "ss:report:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Errors  int64   `json:"errors"`
	HitRate float64 `json:"hit_rate"`
	Circuit string  `json:"circuit"`
	// CircuitFailures counts consecutive Redis failures.
	CircuitFailures int `json:"circuit_failures"`
}

// Observer receives hit and miss notifications, typically Prometheus
// counters.
type Observer interface {
	Hit()
	Miss()
}

// MetricsObserver counts hits and misses in Prometheus.
func MetricsObserver(m *metrics.Metrics) Observer {
	return metricsObserver{m: m}
}

type metricsObserver struct{ m *metrics.Metrics }

func (o metricsObserver) Hit()  { o.m.CacheHitsTotal.Inc() }
func (o metricsObserver) Miss() { o.m.CacheMissesTotal.Inc() }

type ReportCache struct {
	store    Store
	ttl      time.Duration
	breaker  *resilience.CircuitBreaker
	observer Observer
	group    singleflight.Group
	logger   *slog.Logger
	hits     atomic.Int64
	misses   atomic.Int64
	errors   atomic.Int64
}

// New creates a ReportCache. breaker and observer may be nil.
func New(store Store, ttl time.Duration, breaker *resilience.CircuitBreaker, observer Observer) *ReportCache {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("report-cache", resilience.CircuitBreakerConfig{})
	}
	return &ReportCache{
		store:    store,
		ttl:      ttl,
		breaker:  breaker,
		observer: observer,
		logger:   slog.Default().With("component", "report-cache"),
	}
}

// Get returns the cached report for key, if any.
func (c *ReportCache) Get(ctx context.Context, key string) (*report.Report, bool) {
	data, err := resilience.Call(c.breaker, func() ([]byte, error) {
		return c.store.Get(ctx, key)
	}, pkgredis.IsNilError)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.recordError("cache get failed", key, err)
		}
		c.miss()
		return nil, false
	}
	var rep report.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.observer != nil {
		c.observer.Hit()
	}
	c.logger.Debug("cache hit", "key", key)
	rep.Cached = true
	return &rep, true
}

// Set stores rep under key. Failures are logged, never returned.
func (c *ReportCache) Set(ctx context.Context, key string, rep *report.Report) {
	data, err := json.Marshal(rep)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.recordError("cache set failed", key, err)
	}
}

// GetOrCompute returns the cached report for req or computes, stores, and
// returns it. The boolean reports a cache hit. Concurrent calls for the same
// request share one computation.
func (c *ReportCache) GetOrCompute(
	ctx context.Context,
	req executor.Request,
	canonicalQuery string,
	computeFn func() (*report.Report, error),
) (*report.Report, bool, error) {
	key := Key(req, canonicalQuery)
	if rep, ok := c.Get(ctx, key); ok {
		return withQuery(rep, req.Query), true, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		if rep, ok := c.Get(ctx, key); ok {
			return rep, nil
		}
		rep, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, rep)
		return rep, nil
	})
	if err != nil {
		return nil, false, err
	}
	return withQuery(val.(*report.Report), req.Query), false, nil
}

// withQuery returns a shallow copy of rep echoing the caller's query text,
// which may differ from the text that produced the shared report.
func withQuery(rep *report.Report, query string) *report.Report {
	out := *rep
	out.Query = query
	return &out
}

// InvalidateDocument drops every cached report for document.
func (c *ReportCache) InvalidateDocument(ctx context.Context, document string) (int64, error) {
	return c.flush(ctx, keyPrefix+pkgredis.EscapePattern(document)+":*")
}

// Invalidate drops every cached report.
func (c *ReportCache) Invalidate(ctx context.Context) (int64, error) {
	return c.flush(ctx, keyPrefix+"*")
}

func (c *ReportCache) flush(ctx context.Context, pattern string) (int64, error) {
	deleted, err := resilience.Call(c.breaker, func() (int64, error) {
		return c.store.FlushByPattern(ctx, pattern)
	})
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "pattern", pattern, "keys_deleted", deleted)
	return deleted, nil
}

func (c *ReportCache) Stats() Stats {
	breaker := c.breaker.Stats()
	s := Stats{
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		Errors:          c.errors.Load(),
		Circuit:         breaker.State.String(),
		CircuitFailures: breaker.ConsecutiveFailures,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

func (c *ReportCache) miss() {
	c.misses.Add(1)
	if c.observer != nil {
		c.observer.Miss()
	}
}

func (c *ReportCache) recordError(msg, key string, err error) {
	c.errors.Add(1)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Debug(msg, "key", key, "error", err)
		return
	}
	c.logger.Error(msg, "key", key, "error", err)
}

// Key builds the cache key for a normalised request. The document name stays
// readable so InvalidateDocument can match it; the rest is hashed.
func Key(req executor.Request, canonicalQuery string) string {
	h := xxhash.New()
	_, _ = h.WriteString(req.Strategy)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(strconv.Itoa(req.Limit))
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(canonicalQuery)
	return fmt.Sprintf("%s%s:%016x", keyPrefix, req.Document, h.Sum64())
}
