// Command ingestion runs the document upload front door on its own.
//
// It accepts POST /api/v1/documents and DELETE /api/v1/documents/{name},
// validates them, and publishes them to the ingest topic, which every search
// instance consumes. Kafka must be enabled. With auth enabled both routes
// require an API key.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/ingestion/publisher"
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
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	if !cfg.Kafka.Enabled {
		slog.Error("the ingestion service publishes to kafka; set kafka.enabled")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	checker := health.NewChecker()

	// JSON escaping can double an upload's size on the wire.
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest,
		kafka.WithMaxMessageBytes(2*cfg.Server.MaxUploadBytes))
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.DocumentIngest)

	h := handler.New(publisher.New(producer), cfg.Server.MaxUploadBytes)
	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/documents", h.Ingest)
	api.HandleFunc("DELETE /api/v1/documents/{name}", h.Delete)
	var routes http.Handler = api

	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(cfg.RateLimit.Window)
		go limiter.Run(ctx, cfg.RateLimit.Window)
		routes = middleware.RateLimit(limiter, cfg.RateLimit.RequestsPerWindow)(routes)
	}
	if cfg.Auth.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store := apikey.NewStore(db)
		if err := store.Migrate(ctx); err != nil {
			slog.Error("api key schema migration failed", "error", err)
			os.Exit(1)
		}
		routes = middleware.APIKey(apikey.NewValidator(store, cfg.Auth.CacheTTL))(routes)
		checker.Register("postgres", health.PingCheck(db.Ping))
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", routes)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", m.Handler())

	var chain http.Handler = mux
	if cfg.CORS.Enabled {
		chain = middleware.CORS(cfg.CORS)(chain)
	}
	chain = middleware.Metrics(m, mux, api)(chain)
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
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
