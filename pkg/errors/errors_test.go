package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrInternal, http.StatusTeapot, "brew"), http.StatusTeapot},
		{"not found helper", NotFoundf("document %q", "a.txt"), http.StatusNotFound},
		{"invalid input helper", InvalidInputf("empty query"), http.StatusBadRequest},
		{"wrapped sentinel", fmt.Errorf("searching: %w", ErrTimeout), http.StatusGatewayTimeout},
		{"deadline", fmt.Errorf("align: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"unavailable", ErrUnavailable, http.StatusServiceUnavailable},
		{"too large", ErrPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestFromStatusRoundTrips(t *testing.T) {
	for _, sentinel := range []error{ErrDocumentNotFound, ErrInvalidInput, ErrUnauthorized, ErrTimeout, ErrUnavailable} {
		assert.ErrorIs(t, FromStatus(HTTPStatusCode(sentinel)), sentinel)
	}
	assert.Equal(t, ErrInternal, FromStatus(http.StatusTeapot))
}

func TestAppErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("outer: %w", NotFoundf("document %q", "missing"))
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	assert.EqualError(t, err, `outer: document not found: document "missing"`)
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "limit must not be negative",
		PublicMessage(fmt.Errorf("normalise: %w", InvalidInputf("limit must not be negative")), "search failed"))
	assert.Equal(t, "search failed", PublicMessage(errors.New("dial tcp: refused"), "search failed"))
}
