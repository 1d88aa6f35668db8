package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/auth/ratelimit"
	gwhandler "github.com/Adithya-Monish-Kumar-K/sequence-search/internal/gateway/handler"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyValidator struct{}

func (keyValidator) Validate(_ context.Context, raw string) (*apikey.KeyInfo, error) {
	if raw != "secret" {
		return nil, apikey.ErrInvalidKey
	}
	return &apikey.KeyInfo{ID: "k1", RateLimit: 1}, nil
}

type calls struct {
	mu   sync.Mutex
	seen []string
}

func (c *calls) add(s string) {
	c.mu.Lock()
	c.seen = append(c.seen, s)
	c.mu.Unlock()
}

func (c *calls) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.seen)
}

func newRouter(t *testing.T, opts Options) (http.Handler, *calls) {
	t.Helper()
	seen := &calls{}
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.add(r.Method + " " + r.URL.Path + " " + r.Header.Get("X-Request-ID"))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(backend.Close)

	h, err := gwhandler.New(gwhandler.Config{
		SearcherURL:  backend.URL,
		IngestionURL: backend.URL,
		AnalyticsURL: backend.URL,
	}, nil)
	require.NoError(t, err)
	return New(h, opts), seen
}

func TestRoutesReachBackends(t *testing.T) {
	r, seen := newRouter(t, Options{Health: health.NewChecker()})

	for _, target := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/search"},
		{http.MethodPost, "/api/v1/search"},
		{http.MethodGet, "/api/v1/documents/a.txt"},
		{http.MethodDelete, "/api/v1/documents/a.txt"},
		{http.MethodGet, "/api/v1/analytics/history"},
	} {
		req := httptest.NewRequest(target.method, target.path, nil)
		req.Header.Set("X-Request-ID", "rid")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, target.path)
	}
	got := seen.list()
	require.Len(t, got, 5)
	assert.Equal(t, "DELETE /api/v1/documents/a.txt rid", got[3])

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	r, seen := newRouter(t, Options{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/search", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Empty(t, seen.list())
}

func TestAuthAndRateLimit(t *testing.T) {
	r, seen := newRouter(t, Options{
		Keys:      keyValidator{},
		Limiter:   ratelimit.New(time.Minute),
		RateLimit: config.RateLimitConfig{Enabled: true, RequestsPerWindow: 100, Window: time.Minute},
		Health:    health.NewChecker(),
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	call := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
		req.Header.Set("Authorization", "Bearer secret")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, call())
	assert.Equal(t, http.StatusTooManyRequests, call())
	assert.Len(t, seen.list(), 1)
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newRouter(t, Options{
		Keys: keyValidator{},
		CORS: config.CORSConfig{Enabled: true, AllowOrigins: []string{"*"}, MaxAge: time.Hour},
	})
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/search", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
