package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/auth/apikey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	keys      []apikey.KeyInfo
	createErr error
}

func (s *fakeStore) Create(_ context.Context, name string, rateLimit int, expiresAt *time.Time) (string, *apikey.KeyInfo, error) {
	if s.createErr != nil {
		return "", nil, s.createErr
	}
	info := apikey.KeyInfo{ID: "k" + name, Name: name, RateLimit: rateLimit, ExpiresAt: expiresAt}
	s.keys = append(s.keys, info)
	return "raw-" + name, &info, nil
}

func (s *fakeStore) Revoke(_ context.Context, id string) error {
	for i, k := range s.keys {
		if k.ID == id {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			return nil
		}
	}
	return apikey.ErrInvalidKey
}

func (s *fakeStore) List(context.Context) ([]apikey.KeyInfo, error) {
	return s.keys, nil
}

func backend(t *testing.T, name string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Backend", name)
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(r.Method + " " + r.URL.RequestURI()))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestHandler(t *testing.T, keys KeyStore) *Handler {
	t.Helper()
	h, err := New(Config{
		SearcherURL:  backend(t, "searcher").URL,
		IngestionURL: backend(t, "ingestion").URL,
		AnalyticsURL: backend(t, "analytics").URL,
	}, keys)
	require.NoError(t, err)
	return h
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(Config{SearcherURL: "localhost:8080", IngestionURL: "http://a", AnalyticsURL: "http://b"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "searcher")
}

func TestProxiesPreservePathAndQuery(t *testing.T) {
	h := newTestHandler(t, nil)
	tests := []struct {
		name    string
		handler http.HandlerFunc
		method  string
		target  string
		backend string
	}{
		{"search", h.ProxySearch, http.MethodGet, "/api/v1/search?document=a.txt&q=x+y", "searcher"},
		{"ingest", h.ProxyIngest, http.MethodPost, "/api/v1/documents", "ingestion"},
		{"analytics", h.ProxyAnalytics, http.MethodGet, "/api/v1/analytics/history?limit=5", "analytics"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler(rec, httptest.NewRequest(tt.method, tt.target, nil))
			assert.Equal(t, http.StatusTeapot, rec.Code)
			assert.Equal(t, tt.backend, rec.Header().Get("X-Backend"))
			assert.Equal(t, tt.method+" "+tt.target, rec.Body.String())
		})
	}
}

func TestProxyBackendDown(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	h, err := New(Config{SearcherURL: deadURL, IngestionURL: deadURL, AnalyticsURL: deadURL}, nil)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ProxySearch(rec, httptest.NewRequest(http.MethodGet, "/api/v1/search", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"searcher service unavailable"}`, rec.Body.String())
}

func TestCreateAPIKey(t *testing.T) {
	store := &fakeStore{}
	h := newTestHandler(t, store)

	rec := httptest.NewRecorder()
	body := `{"name":"ops","rate_limit":50,"expires_in":"24h"}`
	h.CreateAPIKey(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/keys", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		APIKey string         `json:"api_key"`
		Key    apikey.KeyInfo `json:"key"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "raw-ops", resp.APIKey)
	assert.Equal(t, 50, resp.Key.RateLimit)
	require.NotNil(t, resp.Key.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), *resp.Key.ExpiresAt, time.Minute)
}

func TestCreateAPIKeyValidation(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad json", `{`, "invalid JSON body"},
		{"no name", `{"rate_limit":5}`, "name is required"},
		{"bad expiry", `{"name":"x","expires_in":"soon"}`, "invalid expires_in duration"},
		{"negative expiry", `{"name":"x","expires_in":"-1h"}`, "invalid expires_in duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.CreateAPIKey(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/keys", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestCreateAPIKeyStoreFailure(t *testing.T) {
	h := newTestHandler(t, &fakeStore{createErr: errors.New("disk full")})
	rec := httptest.NewRecorder()
	h.CreateAPIKey(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/keys", strings.NewReader(`{"name":"x"}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk full")
}

func TestListAndRevokeAPIKeys(t *testing.T) {
	store := &fakeStore{keys: []apikey.KeyInfo{{ID: "k1", Name: "ops"}}}
	h := newTestHandler(t, store)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/admin/keys", h.ListAPIKeys)
	mux.HandleFunc("DELETE /api/v1/admin/keys/{id}", h.RevokeAPIKey)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/keys", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/admin/keys/k1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, store.keys)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/admin/keys/k1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/keys", nil))
	assert.JSONEq(t, `{"keys":[],"count":0}`, rec.Body.String())
}

func TestAdminDisabledWithoutStore(t *testing.T) {
	h := newTestHandler(t, nil)
	rec := httptest.NewRecorder()
	h.ListAPIKeys(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/keys", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
