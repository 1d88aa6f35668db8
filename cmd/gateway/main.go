// Command gateway starts the API gateway.
//
// The gateway is the single entry point for external clients. It checks API
// keys against PostgreSQL, applies per-key rate limiting, and proxies
// searches to the search service, uploads to the ingestion service, and
// analytics reads to the analytics service. It also serves the admin
// endpoints that create, list, and revoke API keys.
//
// Usage:
//
//	go run ./cmd/gateway [-config configs/development.yaml]
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
	gwhandler "github.com/Adithya-Monish-Kumar-K/sequence-search/internal/gateway/handler"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/gateway/router"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/postgres"
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
	slog.Info("starting gateway service",
		"port", cfg.Gateway.Port,
		"searcher_url", cfg.Gateway.SearcherURL,
		"ingestion_url", cfg.Gateway.IngestionURL,
		"analytics_url", cfg.Gateway.AnalyticsURL,
		"auth", cfg.Auth.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checker := health.NewChecker()
	opts := router.Options{
		RateLimit: cfg.RateLimit,
		CORS:      cfg.CORS,
		Health:    checker,
	}

	var keyStore gwhandler.KeyStore
	if cfg.Auth.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("connected to postgres")

		store := apikey.NewStore(db)
		if err := store.Migrate(ctx); err != nil {
			slog.Error("api key schema migration failed", "error", err)
			os.Exit(1)
		}
		keyStore = store
		opts.Keys = apikey.NewValidator(store, cfg.Auth.CacheTTL)
		checker.Register("postgres", health.PingCheck(db.Ping))
	}

	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(cfg.RateLimit.Window)
		go limiter.Run(ctx, cfg.RateLimit.Window)
		opts.Limiter = limiter
	}

	h, err := gwhandler.New(gwhandler.Config{
		SearcherURL:  cfg.Gateway.SearcherURL,
		IngestionURL: cfg.Gateway.IngestionURL,
		AnalyticsURL: cfg.Gateway.AnalyticsURL,
	}, keyStore)
	if err != nil {
		slog.Error("invalid gateway configuration", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Gateway.Port),
		Handler:      router.New(h, opts),
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

	slog.Info("gateway service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("gateway service stopped")
}
