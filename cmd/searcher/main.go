// Command searcher runs the sequence search HTTP service.
//
// It loads documents from the configured directory (optionally watching it),
// answers alignment queries against them, caches reports in Redis, accepts
// document uploads directly or through Kafka, and tracks search analytics.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/ingestion"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/sequence-search/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/remote"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/rpc"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"strategy", cfg.Search.DefaultStrategy,
		"workers", cfg.Search.Workers,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port, m)
		if err := metricsServer.Start(); err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	cat, err := catalog.FromConfig(cfg.Tokenizer, cfg.Documents)
	if err != nil {
		slog.Error("invalid tokenizer configuration", "error", err)
		os.Exit(1)
	}

	// Redis report cache.
	var (
		reportCache *cache.ReportCache
		redisClient *pkgredis.Client
	)
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, report caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			breaker := resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{
				FailureThreshold:    5,
				ResetTimeout:        30 * time.Second,
				HalfOpenMaxRequests: 1,
				OnStateChange: func(name string, to resilience.State) {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				},
			})
			reportCache = cache.New(redisClient, cfg.Redis.CacheTTL, breaker, cache.MetricsObserver(m))
			slog.Info("report cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	// Analytics: a local aggregator always serves /api/v1/analytics. With
	// Kafka, events go through the topic so every instance sees all of them.
	agg := analytics.NewAggregator(cfg.Analytics.TopN)
	var tracker analytics.Tracker = agg
	var collector *analytics.Collector
	if cfg.Kafka.Enabled {
		analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer analyticsProducer.Close()
		collector = analytics.NewCollector(analyticsProducer, cfg.Analytics, m)
		collector.Start(ctx)
		tracker = collector

		analyticsConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents,
			analytics.HandleEvent(agg), kafka.WithGroupID(instanceGroup(cfg.Kafka.ConsumerGroup, "analytics")))
		go func() {
			if err := analyticsConsumer.Start(ctx); err != nil {
				slog.Error("analytics consumer error", "error", err)
			}
		}()
	}

	checker := health.NewChecker()

	var (
		history analytics.History
		keys    *apikey.Validator
	)
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, analytics snapshots disabled", "error", err)
		} else {
			defer pg.Close()
			store := aggregator.NewStore(pg, cfg.Analytics.SnapshotRetain)
			if err := store.Migrate(ctx); err != nil {
				slog.Error("analytics schema migration failed", "error", err)
				os.Exit(1)
			}
			if err := store.Restore(ctx, agg); err != nil {
				slog.Warn("failed to restore analytics snapshot", "error", err)
			}
			waitSnapshots := store.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
			defer waitSnapshots()
			history = store
			checker.Register("postgres", health.Optional(health.PingCheck(pg.Ping)))

			if cfg.Auth.Enabled {
				keyStore := apikey.NewStore(pg)
				if err := keyStore.Migrate(ctx); err != nil {
					slog.Error("api key schema migration failed", "error", err)
					os.Exit(1)
				}
				keys = apikey.NewValidator(keyStore, cfg.Auth.CacheTTL)
				slog.Info("api key auth enabled for administration endpoints")
			}
		}
	}
	if cfg.Auth.Enabled && keys == nil {
		slog.Error("auth is enabled but postgres is unavailable")
		os.Exit(1)
	}

	cat.OnChange(func(name string, removed bool) {
		m.CatalogDocuments.Set(float64(cat.Len()))
		m.CatalogTokens.Set(float64(cat.TokenCount()))
		if reportCache != nil {
			invCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if _, err := reportCache.InvalidateDocument(invCtx, name); err != nil {
				slog.Warn("failed to invalidate cached reports", "document", name, "error", err)
			}
			cancel()
		}
		event := analytics.DocumentEvent{Type: analytics.EventDocumentRemoved, Document: name, Timestamp: time.Now().UTC()}
		if !removed {
			event.Type = analytics.EventDocumentLoaded
			if s, err := cat.Stat(name); err == nil {
				event.Lines, event.Tokens = s.Lines, s.Tokens
			}
		}
		tracker.Track(event)
	})

	if dir := cfg.Documents.Dir; dir != "" {
		n, err := cat.LoadDir(dir)
		if err != nil {
			slog.Error("failed to load documents", "dir", dir, "error", err)
			os.Exit(1)
		}
		m.DocumentsLoadedTotal.WithLabelValues("file").Add(float64(n))

		if cfg.Documents.Watch {
			watcher, err := catalog.NewWatcher(cat, dir, cfg.Documents.Debounce)
			if err != nil {
				slog.Error("failed to watch documents", "dir", dir, "error", err)
				os.Exit(1)
			}
			watcher.Loaded = func(string) { m.DocumentsLoadedTotal.WithLabelValues("watch").Inc() }
			go func() {
				if err := watcher.Run(ctx); err != nil {
					slog.Error("document watcher error", "error", err)
				}
			}()
		}
	}

	// Uploads load locally, or fan out to every instance through Kafka.
	var sink ingestion.Sink = publisher.NewLocal(cat, m)
	if cfg.Kafka.Enabled {
		// JSON escaping can double an upload's size on the wire.
		maxMessage := 2 * cfg.Server.MaxUploadBytes
		ingestProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest,
			kafka.WithMaxMessageBytes(maxMessage))
		defer ingestProducer.Close()
		sink = publisher.New(ingestProducer)

		ingest := consumer.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest,
			consumer.HandleMessage(cat, m),
			kafka.WithGroupID(instanceGroup(cfg.Kafka.ConsumerGroup, "ingest")),
			kafka.FromBeginning(),
			kafka.WithMaxBytes(maxMessage),
		))
		go func() {
			if err := ingest.Start(ctx); err != nil {
				slog.Error("ingest consumer error", "error", err)
			}
		}()
		slog.Info("kafka ingestion enabled",
			"ingest_topic", cfg.Kafka.Topics.DocumentIngest,
			"analytics_topic", cfg.Kafka.Topics.AnalyticsEvents,
		)
	}

	checker.Register("catalog", func(ctx context.Context) health.ComponentHealth {
		if n := cat.Len(); n > 0 {
			return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d documents", n)}
		}
		return health.ComponentHealth{Status: health.StatusDegraded, Message: "no documents loaded"}
	})
	if redisClient != nil {
		checker.Register("redis", health.Optional(health.PingCheck(redisClient.Ping)))
	}

	exec := executor.New(cat, cfg.Search, m)
	searchH := handler.New(exec, cat, reportCache, tracker, m)
	ingestH := ingesthandler.New(sink, cfg.Server.MaxUploadBytes)
	analyticsH := analytics.NewHandler(agg, history)

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(cfg.RateLimit.Window)
		go limiter.Run(ctx, cfg.RateLimit.Window)
	}

	// Writes require an API key when auth is on, and keyed clients get a
	// second budget at their own rate on top of the per-address one.
	admin := func(h http.HandlerFunc) http.Handler {
		if keys == nil {
			return h
		}
		var out http.Handler = h
		if limiter != nil {
			out = middleware.RateLimit(limiter, cfg.RateLimit.RequestsPerWindow)(out)
		}
		return middleware.APIKey(keys)(out)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", searchH.Search)
	mux.HandleFunc("POST /api/v1/search", searchH.Search)
	mux.HandleFunc("GET /api/v1/documents", searchH.ListDocuments)
	mux.HandleFunc("GET /api/v1/documents/{name}", searchH.GetDocument)
	mux.Handle("POST /api/v1/documents", admin(ingestH.Ingest))
	mux.Handle("DELETE /api/v1/documents/{name}", admin(ingestH.Delete))
	mux.HandleFunc("GET /api/v1/cache/stats", searchH.CacheStats)
	mux.Handle("POST /api/v1/cache/invalidate", admin(searchH.CacheInvalidate))
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	mux.HandleFunc("GET /api/v1/analytics/history", analyticsH.History)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if limiter != nil {
		chain = middleware.RateLimit(limiter, cfg.RateLimit.RequestsPerWindow)(chain)
	}
	if cfg.CORS.Enabled {
		chain = middleware.CORS(cfg.CORS)(chain)
	}
	chain = middleware.Metrics(m, mux)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	var rpcServer *rpc.Server
	if cfg.Server.RPCPort > 0 {
		rpcServer = rpc.NewServer(rpc.WithCallTimeout(cfg.Server.WriteTimeout))
		remote.Register(rpcServer, searchH, cat)
		rpcAddr := fmt.Sprintf(":%d", cfg.Server.RPCPort)
		go func() {
			if err := rpcServer.ListenAndServe(rpcAddr); err != nil {
				slog.Error("rpc server error", "error", err)
			}
		}()
	}

	slog.Info("search service listening", "addr", server.Addr, "documents", cat.Len())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	stop()
	if rpcServer != nil {
		rpcServer.Stop()
	}
	if collector != nil {
		collector.Close()
		slog.Info("analytics collector stopped", "stats", collector.Stats())
	}
	slog.Info("search service stopped")
}

// instanceGroup returns a consumer group unique to this process, so every
// instance reads the whole topic.
func instanceGroup(base, purpose string) string {
	host, err := os.Hostname()
	if err != nil {
		host = "searcher"
	}
	return fmt.Sprintf("%s-%s-%s-%s", base, purpose, host, uuid.NewString()[:8])
}
