package analytics

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/kafka"
)

// latencyWindow bounds how many recent latencies feed the percentiles.
const latencyWindow = 10000

// Stats is the aggregated view served by the analytics endpoint and stored
// as snapshots.
type Stats struct {
	TotalSearches      int64            `json:"total_searches"`
	NoMatchCount       int64            `json:"no_match_count"`
	CacheHits          int64            `json:"cache_hits"`
	CacheMisses        int64            `json:"cache_misses"`
	DocumentsLoaded    int64            `json:"documents_loaded"`
	DocumentsRemoved   int64            `json:"documents_removed"`
	AvgLatencyMs       float64          `json:"avg_latency_ms"`
	P50LatencyMs       float64          `json:"p50_latency_ms"`
	P95LatencyMs       float64          `json:"p95_latency_ms"`
	P99LatencyMs       float64          `json:"p99_latency_ms"`
	AvgMaxLength       float64          `json:"avg_max_length"`
	MaxLengthHistogram map[int]int64    `json:"max_length_histogram"`
	Strategies         map[string]int64 `json:"strategies"`
	TopQueries         []Count          `json:"top_queries"`
	NoMatchQueries     []Count          `json:"no_match_queries"`
	TopDocuments       []Count          `json:"top_documents"`
	QueriesPerMinute   float64          `json:"queries_per_minute"`
	Since              time.Time        `json:"since"`
}

type Count struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Snapshot is a Stats value as persisted at a point in time.
type Snapshot struct {
	Stats      Stats     `json:"stats"`
	CapturedAt time.Time `json:"captured_at"`
}

type Aggregator struct {
	totalSearches    atomic.Int64
	noMatches        atomic.Int64
	cacheHits        atomic.Int64
	cacheMisses      atomic.Int64
	documentsLoaded  atomic.Int64
	documentsRemoved atomic.Int64

	mu             sync.RWMutex
	latencies      []float64
	next           int
	maxLengthSum   int64
	histogram      map[int]int64
	strategies     map[string]int64
	queryCounts    map[string]int64
	noMatchQueries map[string]int64
	documentCounts map[string]int64
	startTime      time.Time
	topN           int

	logger *slog.Logger
}

// NewAggregator creates an empty aggregator reporting the topN most common
// queries and documents.
func NewAggregator(topN int) *Aggregator {
	if topN <= 0 {
		topN = 10
	}
	return &Aggregator{
		latencies:      make([]float64, 0, latencyWindow),
		histogram:      make(map[int]int64),
		strategies:     make(map[string]int64),
		queryCounts:    make(map[string]int64),
		noMatchQueries: make(map[string]int64),
		documentCounts: make(map[string]int64),
		startTime:      time.Now(),
		topN:           topN,
		logger:         slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent adapts the aggregator to a Kafka consumer. Undecodable
// messages are logged and committed so they are not redelivered forever.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := Decode(value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "key", string(key), "error", err)
			return nil
		}
		agg.Track(event)
		return nil
	}
}

// Track records a SearchEvent or DocumentEvent. It lets an Aggregator stand
// in for a Collector when Kafka is disabled.
func (a *Aggregator) Track(event any) {
	switch e := event.(type) {
	case SearchEvent:
		a.Record(e)
	case *SearchEvent:
		a.Record(*e)
	case DocumentEvent:
		a.RecordDocument(e)
	case *DocumentEvent:
		a.RecordDocument(*e)
	default:
		a.logger.Warn("ignoring unknown analytics event", "type", fmt.Sprintf("%T", event))
	}
}

func (a *Aggregator) Record(event SearchEvent) {
	a.totalSearches.Add(1)
	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	if event.NoMatch {
		a.noMatches.Add(1)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % latencyWindow
	}
	a.maxLengthSum += int64(event.MaxLength)
	a.histogram[event.MaxLength]++
	a.strategies[event.Strategy]++
	a.queryCounts[event.Query]++
	a.documentCounts[event.Document]++
	if event.NoMatch {
		a.noMatchQueries[event.Query]++
	}
}

func (a *Aggregator) RecordDocument(event DocumentEvent) {
	switch event.Type {
	case EventDocumentRemoved:
		a.documentsRemoved.Add(1)
	default:
		a.documentsLoaded.Add(1)
	}
}

func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := Stats{
		TotalSearches:      a.totalSearches.Load(),
		NoMatchCount:       a.noMatches.Load(),
		CacheHits:          a.cacheHits.Load(),
		CacheMisses:        a.cacheMisses.Load(),
		DocumentsLoaded:    a.documentsLoaded.Load(),
		DocumentsRemoved:   a.documentsRemoved.Load(),
		MaxLengthHistogram: make(map[int]int64, len(a.histogram)),
		Strategies:         make(map[string]int64, len(a.strategies)),
		TopQueries:         topN(a.queryCounts, a.topN),
		NoMatchQueries:     topN(a.noMatchQueries, a.topN),
		TopDocuments:       topN(a.documentCounts, a.topN),
		Since:              a.startTime,
	}
	for k, v := range a.histogram {
		stats.MaxLengthHistogram[k] = v
	}
	for k, v := range a.strategies {
		stats.Strategies[k] = v
	}

	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum float64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = sum / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if stats.TotalSearches > 0 {
		stats.AvgMaxLength = float64(a.maxLengthSum) / float64(stats.TotalSearches)
	}
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

// Restore seeds an empty aggregator from a persisted snapshot so counters
// survive restarts. Latency percentiles start over, and query and document
// counts only cover the entries the snapshot listed.
func (a *Aggregator) Restore(s Stats) {
	a.totalSearches.Store(s.TotalSearches)
	a.noMatches.Store(s.NoMatchCount)
	a.cacheHits.Store(s.CacheHits)
	a.cacheMisses.Store(s.CacheMisses)
	a.documentsLoaded.Store(s.DocumentsLoaded)
	a.documentsRemoved.Store(s.DocumentsRemoved)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.maxLengthSum = int64(s.AvgMaxLength*float64(s.TotalSearches) + 0.5)
	for k, v := range s.MaxLengthHistogram {
		a.histogram[k] = v
	}
	for k, v := range s.Strategies {
		a.strategies[k] = v
	}
	for _, c := range s.TopQueries {
		a.queryCounts[c.Key] = c.Count
	}
	for _, c := range s.NoMatchQueries {
		a.noMatchQueries[c.Key] = c.Count
	}
	for _, c := range s.TopDocuments {
		a.documentCounts[c.Key] = c.Count
	}
	if !s.Since.IsZero() {
		a.startTime = s.Since
	}
	a.logger.Info("analytics restored from snapshot",
		"total_searches", s.TotalSearches,
		"since", s.Since,
	)
}

func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n largest counts, ties broken by key.
func topN(counts map[string]int64, n int) []Count {
	result := make([]Count, 0, len(counts))
	for key, count := range counts {
		result = append(result, Count{Key: key, Count: count})
	}
	slices.SortFunc(result, func(a, b Count) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
