// Command analytics starts the standalone analytics aggregation service.
//
// It consumes search and document events that search instances publish to
// Kafka, aggregates them in memory (searches, no-match rate, latency
// percentiles, cache hit rate, run-length histogram, top queries and
// documents), snapshots them to PostgreSQL when enabled, and serves
// GET /api/v1/analytics for dashboards.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/postgres"
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
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	agg := analytics.NewAggregator(cfg.Analytics.TopN)
	checker := health.NewChecker()

	var history analytics.History
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
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
		checker.Register("postgres", health.PingCheck(pg.Ping))
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg),
		kafka.WithGroupID(cfg.Kafka.ConsumerGroup+"-analytics"))
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	checker.Register("kafka", health.Optional(func(ctx context.Context) health.ComponentHealth {
		lag := consumer.Lag()
		if lag > cfg.Analytics.MaxConsumerLag && cfg.Analytics.MaxConsumerLag > 0 {
			return health.ComponentHealth{Status: health.StatusDown, Message: fmt.Sprintf("consumer lag %d", lag)}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("consumer lag %d", lag)}
	}))
	checker.Register("aggregator", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d searches recorded", agg.Stats().TotalSearches),
		}
	})

	analyticsHandler := analytics.NewHandler(agg, history)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/history", analyticsHandler.History)
	mux.Handle("GET /metrics", m.Handler())
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if cfg.CORS.Enabled {
		chain = middleware.CORS(cfg.CORS)(chain)
	}
	chain = middleware.Metrics(m, mux)(chain)
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
