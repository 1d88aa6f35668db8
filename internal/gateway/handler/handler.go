// Package handler implements the gateway endpoints. Searches and document
// reads go to the search service, uploads to the ingestion service, and
// analytics to the analytics service; API keys are managed here directly.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/auth/apikey"
)

// Config holds the backend base URLs.
type Config struct {
	SearcherURL  string
	IngestionURL string
	AnalyticsURL string
}

// KeyStore manages API keys.
type KeyStore interface {
	Create(ctx context.Context, name string, rateLimit int, expiresAt *time.Time) (string, *apikey.KeyInfo, error)
	Revoke(ctx context.Context, id string) error
	List(ctx context.Context) ([]apikey.KeyInfo, error)
}

type Handler struct {
	searchProxy    *httputil.ReverseProxy
	ingestionProxy *httputil.ReverseProxy
	analyticsProxy *httputil.ReverseProxy
	keys           KeyStore
	logger         *slog.Logger
}

// New builds the proxies. keys may be nil when auth is disabled; the admin
// endpoints then answer 503.
func New(cfg Config, keys KeyStore) (*Handler, error) {
	h := &Handler{
		keys:   keys,
		logger: slog.Default().With("component", "gateway-handler"),
	}
	var err error
	if h.searchProxy, err = h.newProxy("searcher", cfg.SearcherURL); err != nil {
		return nil, err
	}
	if h.ingestionProxy, err = h.newProxy("ingestion", cfg.IngestionURL); err != nil {
		return nil, err
	}
	if h.analyticsProxy, err = h.newProxy("analytics", cfg.AnalyticsURL); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Handler) newProxy(name, target string) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid %s url %q", name, target)
	}
	proxy := httputil.NewSingleHostReverseProxy(u)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if errors.Is(err, context.Canceled) {
			return
		}
		h.logger.Error("backend unavailable", "backend", name, "path", r.URL.Path, "error", err)
		h.writeError(w, http.StatusBadGateway, name+" service unavailable")
	}
	return proxy, nil
}

// ProxySearch forwards searches, document reads, and cache endpoints.
func (h *Handler) ProxySearch(w http.ResponseWriter, r *http.Request) {
	h.searchProxy.ServeHTTP(w, r)
}

// ProxyIngest forwards uploads and deletions.
func (h *Handler) ProxyIngest(w http.ResponseWriter, r *http.Request) {
	h.ingestionProxy.ServeHTTP(w, r)
}

func (h *Handler) ProxyAnalytics(w http.ResponseWriter, r *http.Request) {
	h.analyticsProxy.ServeHTTP(w, r)
}

type createKeyRequest struct {
	Name      string `json:"name"`
	RateLimit int    `json:"rate_limit"`
	// ExpiresIn is a Go duration such as "720h".
	ExpiresIn string `json:"expires_in,omitempty"`
}

// CreateAPIKey handles POST /api/v1/admin/keys. The raw key is returned once.
func (h *Handler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	if h.keys == nil {
		h.writeError(w, http.StatusServiceUnavailable, "api keys are disabled")
		return
	}
	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.RateLimit <= 0 {
		req.RateLimit = 100
	}
	var expiresAt *time.Time
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || d <= 0 {
			h.writeError(w, http.StatusBadRequest, "invalid expires_in duration")
			return
		}
		t := time.Now().Add(d).UTC()
		expiresAt = &t
	}

	raw, info, err := h.keys.Create(r.Context(), req.Name, req.RateLimit, expiresAt)
	if err != nil {
		h.logger.Error("failed to create api key", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to create api key")
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"api_key": raw,
		"key":     info,
	})
}

// ListAPIKeys handles GET /api/v1/admin/keys.
func (h *Handler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	if h.keys == nil {
		h.writeError(w, http.StatusServiceUnavailable, "api keys are disabled")
		return
	}
	keys, err := h.keys.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list api keys", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list api keys")
		return
	}
	if keys == nil {
		keys = []apikey.KeyInfo{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"keys": keys, "count": len(keys)})
}

// RevokeAPIKey handles DELETE /api/v1/admin/keys/{id}. Cached validations
// elsewhere expire after the auth cache TTL.
func (h *Handler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	if h.keys == nil {
		h.writeError(w, http.StatusServiceUnavailable, "api keys are disabled")
		return
	}
	id := r.PathValue("id")
	err := h.keys.Revoke(r.Context(), id)
	switch {
	case errors.Is(err, apikey.ErrInvalidKey):
		h.writeError(w, http.StatusNotFound, "api key not found")
	case err != nil:
		h.logger.Error("failed to revoke api key", "id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to revoke api key")
	default:
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "revoked", "id": id})
	}
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
