// Package router builds the gateway's route table and middleware chain.
package router

import (
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/auth/ratelimit"
	gwhandler "github.com/Adithya-Monish-Kumar-K/sequence-search/internal/gateway/handler"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/middleware"
)

// Options carry the optional pieces of the chain. Nil fields are skipped.
type Options struct {
	Keys      middleware.KeyValidator
	Limiter   *ratelimit.Limiter
	RateLimit config.RateLimitConfig
	CORS      config.CORSConfig
	Health    *health.Checker
}

// New returns the gateway handler.
//
// Route table:
//
//	GET|POST /api/v1/search             → search service
//	GET      /api/v1/documents[/{name}] → search service
//	POST     /api/v1/documents          → ingestion service
//	DELETE   /api/v1/documents/{name}   → ingestion service
//	GET      /api/v1/cache/stats        → search service
//	POST     /api/v1/cache/invalidate   → search service
//	GET      /api/v1/analytics[/history]→ analytics service
//	POST|GET /api/v1/admin/keys         → key store
//	DELETE   /api/v1/admin/keys/{id}    → key store
//	GET      /health/live|ready         → gateway health
//
// Every /api route requires a key when opts.Keys is set.
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → APIKey → RateLimit → routes
func New(h *gwhandler.Handler, opts Options) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/v1/search", h.ProxySearch)
	api.HandleFunc("POST /api/v1/search", h.ProxySearch)
	api.HandleFunc("GET /api/v1/documents", h.ProxySearch)
	api.HandleFunc("GET /api/v1/documents/{name}", h.ProxySearch)
	api.HandleFunc("POST /api/v1/documents", h.ProxyIngest)
	api.HandleFunc("DELETE /api/v1/documents/{name}", h.ProxyIngest)
	api.HandleFunc("GET /api/v1/cache/stats", h.ProxySearch)
	api.HandleFunc("POST /api/v1/cache/invalidate", h.ProxySearch)
	api.HandleFunc("GET /api/v1/analytics", h.ProxyAnalytics)
	api.HandleFunc("GET /api/v1/analytics/history", h.ProxyAnalytics)
	api.HandleFunc("POST /api/v1/admin/keys", h.CreateAPIKey)
	api.HandleFunc("GET /api/v1/admin/keys", h.ListAPIKeys)
	api.HandleFunc("DELETE /api/v1/admin/keys/{id}", h.RevokeAPIKey)

	var routes http.Handler = api
	if opts.Limiter != nil {
		routes = middleware.RateLimit(opts.Limiter, opts.RateLimit.RequestsPerWindow)(routes)
	}
	if opts.Keys != nil {
		routes = middleware.APIKey(opts.Keys)(routes)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", routes)
	if opts.Health != nil {
		mux.HandleFunc("GET /health/live", opts.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", opts.Health.ReadyHandler())
	}

	var chain http.Handler = mux
	if opts.CORS.Enabled {
		chain = middleware.CORS(opts.CORS)(chain)
	}
	return middleware.RequestID(chain)
}
