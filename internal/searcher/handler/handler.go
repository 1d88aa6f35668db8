// Package handler serves the search, document listing, and cache
// endpoints of the search service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/report"
	apperrors "github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/tracing"
	"github.com/google/uuid"
)

type SearchExecutor interface {
	Normalize(req executor.Request) (executor.Request, error)
	CanonicalQuery(text string) string
	Execute(ctx context.Context, req executor.Request) (*report.Report, error)
}

// Documents is the read side of the catalog.
type Documents interface {
	List() []catalog.Summary
	Stat(name string) (catalog.Summary, error)
}

type Handler struct {
	executor  SearchExecutor
	documents Documents
	cache     *cache.ReportCache
	tracker   analytics.Tracker
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a Handler. reportCache, tracker, and m may be nil.
func New(exec SearchExecutor, docs Documents, reportCache *cache.ReportCache, tracker analytics.Tracker, m *metrics.Metrics) *Handler {
	return &Handler{
		executor:  exec,
		documents: docs,
		cache:     reportCache,
		tracker:   tracker,
		metrics:   m,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// Search handles GET /api/v1/search?doc=&q=&strategy=&limit=&format= and
// POST /api/v1/search with an executor.Request JSON body. An empty query is
// valid and yields the no-match report.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(w, r)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), apperrors.PublicMessage(err, "invalid request"))
		return
	}
	rep, err := h.Run(r.Context(), req)
	if err != nil {
		h.fail(w, logger.FromContext(r.Context()), req, err)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if err := rep.WriteText(w); err != nil {
			h.logger.Error("failed to write response", "error", err)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, rep)
}

// Run normalises req, answers it from the cache when possible, and records
// the search for analytics. The RPC transport shares it with Search.
func (h *Handler) Run(ctx context.Context, req executor.Request) (*report.Report, error) {
	start := time.Now()
	requestID := middleware.GetRequestID(ctx)
	log := logger.FromContext(ctx)
	ctx, span := tracing.StartSpan(ctx, "search", requestID)
	defer func() {
		span.End()
		span.Log(ctx, h.logger)
	}()

	req, err := h.executor.Normalize(req)
	if err != nil {
		return nil, err
	}
	span.SetAttr("document", req.Document)
	span.SetAttr("strategy", req.Strategy)

	var (
		rep      *report.Report
		cacheHit bool
	)
	canonical := h.executor.CanonicalQuery(req.Query)
	if h.cache != nil {
		rep, cacheHit, err = h.cache.GetOrCompute(ctx, req, canonical, func() (*report.Report, error) {
			return h.executor.Execute(ctx, req)
		})
	} else {
		rep, err = h.executor.Execute(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	span.SetAttr("cache_hit", cacheHit)

	elapsed := time.Since(start)
	if cacheHit && h.metrics != nil {
		h.metrics.SearchLatency.WithLabelValues(req.Strategy, "hit").Observe(elapsed.Seconds())
	}
	log.Info("search completed",
		"document", req.Document,
		"strategy", req.Strategy,
		"max_length", rep.MaxLength,
		"total_matches", rep.TotalMatches,
		"cache_hit", cacheHit,
		"latency", elapsed,
	)
	if h.tracker != nil {
		h.tracker.Track(analytics.SearchEvent{
			Type:         analytics.EventSearch,
			ID:           uuid.NewString(),
			Document:     req.Document,
			Query:        canonical,
			Strategy:     req.Strategy,
			MaxLength:    rep.MaxLength,
			TotalMatches: rep.TotalMatches,
			Groups:       len(rep.Groups),
			NoMatch:      rep.NoMatch(),
			LatencyMs:    float64(elapsed.Microseconds()) / 1000,
			CacheHit:     cacheHit,
			Timestamp:    time.Now().UTC(),
			RequestID:    requestID,
		})
	}
	return rep, nil
}

// MaxSearchBodyBytes bounds a POST search body.
const MaxSearchBodyBytes = 64 << 10

func (h *Handler) parseRequest(w http.ResponseWriter, r *http.Request) (executor.Request, error) {
	if r.Method == http.MethodPost {
		var req executor.Request
		body := http.MaxBytesReader(w, r.Body, MaxSearchBodyBytes)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return req, apperrors.Newf(apperrors.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge,
					"search body exceeds %d bytes", MaxSearchBodyBytes)
			}
			return req, apperrors.InvalidInputf("invalid JSON body")
		}
		return req, nil
	}
	q := r.URL.Query()
	req := executor.Request{
		Document: q.Get("doc"),
		Query:    q.Get("q"),
		Strategy: q.Get("strategy"),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return req, apperrors.InvalidInputf("limit must be a non-negative integer")
		}
		req.Limit = limit
	}
	return req, nil
}

// ListDocuments handles GET /api/v1/documents.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs := h.documents.List()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"count":     len(docs),
	})
}

// GetDocument handles GET /api/v1/documents/{name}.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	summary, err := h.documents.Stat(r.PathValue("name"))
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), apperrors.PublicMessage(err, "search failed"))
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

// CacheInvalidate handles POST /api/v1/cache/invalidate[?doc=name].
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	var (
		deleted int64
		err     error
	)
	if doc := r.URL.Query().Get("doc"); doc != "" {
		deleted, err = h.cache.InvalidateDocument(r.Context(), doc)
	} else {
		deleted, err = h.cache.Invalidate(r.Context())
	}
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) fail(w http.ResponseWriter, log *slog.Logger, req executor.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		log.Error("search failed", "document", req.Document, "error", err, "status_code", status)
	} else {
		log.Warn("search rejected", "document", req.Document, "error", err, "status_code", status)
	}
	h.writeError(w, status, apperrors.PublicMessage(err, "search failed"))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
