// Package executor runs one search request against the catalog: it resolves
// the document, parses the query with the catalog's tokenizer and registry,
// aligns it with the chosen strategy under a deadline, and renders a report.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/matching"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/report"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/tracing"
)

// Request is a search as received from a client.
type Request struct {
	Document string `json:"document"`
	Query    string `json:"query"`
	Strategy string `json:"strategy"`
	// Limit caps the windows listed per group; 0 uses the configured default.
	Limit int `json:"limit"`
}

type Executor struct {
	catalog *catalog.Catalog
	cfg     config.SearchConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates an Executor. m may be nil.
func New(cat *catalog.Catalog, cfg config.SearchConfig, m *metrics.Metrics) *Executor {
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = matching.StrategySubsequence
	}
	return &Executor{
		catalog: cat,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "query-executor"),
	}
}

// Normalize validates req and fills in defaults, so that two requests that
// would produce the same report compare equal.
func (e *Executor) Normalize(req Request) (Request, error) {
	if err := catalog.ValidateName(req.Document); err != nil {
		return req, err
	}
	if req.Strategy == "" {
		req.Strategy = e.cfg.DefaultStrategy
	}
	if _, err := matching.StrategyByName(req.Strategy); err != nil {
		return req, apperrors.InvalidInputf("unknown strategy %q (available: %s)",
			req.Strategy, strings.Join(matching.StrategyNames(), ", "))
	}
	if req.Limit < 0 {
		return req, apperrors.InvalidInputf("limit must not be negative")
	}
	if req.Limit == 0 {
		req.Limit = e.cfg.DefaultLimit
	}
	if e.cfg.MaxWindowsPerGroup > 0 && (req.Limit == 0 || req.Limit > e.cfg.MaxWindowsPerGroup) {
		req.Limit = e.cfg.MaxWindowsPerGroup
	}
	if n := len(e.catalog.Splitter().Split(req.Query)); e.cfg.MaxQueryTokens > 0 && n > e.cfg.MaxQueryTokens {
		return req, apperrors.InvalidInputf("query has %d words, at most %d allowed", n, e.cfg.MaxQueryTokens)
	}
	return req, nil
}

// CanonicalQuery returns the query as the registry sees it: split, then
// normalised word by word. Queries with equal canonical forms align
// identically.
func (e *Executor) CanonicalQuery(text string) string {
	tokens := e.catalog.Splitter().Split(text)
	norm := e.catalog.Registry().Normalizer()
	for i, tok := range tokens {
		tokens[i] = norm.Normalize(tok)
	}
	return strings.Join(tokens, " ")
}

// Execute runs a normalised request.
func (e *Executor) Execute(ctx context.Context, req Request) (*report.Report, error) {
	start := time.Now()
	log := e.logger
	if id := logger.RequestID(ctx); id != "" {
		log = log.With("request_id", id)
	}

	_, lookup := tracing.StartChildSpan(ctx, "lookup")
	img, err := e.catalog.Get(req.Document)
	lookup.End()
	if err != nil {
		return nil, err
	}
	strategy, err := matching.StrategyByName(req.Strategy)
	if err != nil {
		return nil, apperrors.InvalidInputf("%v", err)
	}

	query := matching.ParseQuery(req.Query, e.catalog.Registry(), e.catalog.Splitter())
	lookup.SetAttr("query_words", query.Len())
	lookup.SetAttr("known", query.Known())
	matcher := matching.New(strategy, e.cfg.Workers)

	var result *matching.Result
	alignCtx, align := tracing.StartChildSpan(ctx, "align")
	err = resilience.WithTimeout(alignCtx, e.cfg.Timeout, "search "+req.Document, func(ctx context.Context) error {
		var searchErr error
		result, searchErr = matcher.SearchContext(ctx, img, query)
		return searchErr
	})
	align.End()
	elapsed := time.Since(start)
	if err != nil {
		outcome := metrics.OutcomeError
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = metrics.OutcomeTimeout
			err = apperrors.Newf(apperrors.ErrTimeout, http.StatusGatewayTimeout,
				"search of %s exceeded %v", req.Document, e.cfg.Timeout)
		} else {
			err = fmt.Errorf("searching %s: %w", req.Document, err)
		}
		e.observe(req.Strategy, outcome, elapsed, nil)
		log.Warn("search failed", "document", req.Document, "strategy", req.Strategy, "error", err)
		return nil, err
	}

	align.SetAttr("max_length", result.MaxLength())
	align.SetAttr("windows", result.TotalWindows())

	_, render := tracing.StartChildSpan(ctx, "render")
	rep := report.Build(result, e.catalog.Registry(), report.Options{
		Document: req.Document,
		Query:    req.Query,
		Strategy: strategy.Name(),
		Limit:    req.Limit,
	})
	render.End()
	rep.TookMs = float64(elapsed.Microseconds()) / 1000

	outcome := metrics.OutcomeMatch
	if result.IsNoMatch() {
		outcome = metrics.OutcomeNoMatch
	}
	e.observe(req.Strategy, outcome, elapsed, result)

	log.Info("query executed",
		"document", req.Document,
		"strategy", strategy.Name(),
		"query_words", query.Len(),
		"known", query.Known(),
		"max_length", result.MaxLength(),
		"windows", result.TotalWindows(),
		"took", elapsed,
	)
	return rep, nil
}

func (e *Executor) observe(strategy, outcome string, elapsed time.Duration, result *matching.Result) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchesTotal.WithLabelValues(strategy, outcome).Inc()
	e.metrics.SearchLatency.WithLabelValues(strategy, "computed").Observe(elapsed.Seconds())
	if result != nil {
		e.metrics.SearchMaxLength.WithLabelValues(strategy).Observe(float64(result.MaxLength()))
		e.metrics.SearchWindows.Observe(float64(result.TotalWindows()))
	}
}
