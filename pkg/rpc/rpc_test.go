package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoParams struct {
	Text string `json:"text"`
}

func startServer(t *testing.T, opts ...Option) (*Server, string) {
	t.Helper()
	s := NewServer(opts...)
	s.Register("Test.Echo", func(ctx context.Context, params json.RawMessage) (any, error) {
		var p echoParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, apperrors.InvalidInputf("bad params")
		}
		return map[string]string{"text": p.Text, "trace": logger.RequestID(ctx)}, nil
	})
	s.Register("Test.Missing", func(context.Context, json.RawMessage) (any, error) {
		return nil, apperrors.NotFoundf("document %q", "nope.txt")
	})
	s.Register("Test.Boom", func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("disk on fire")
	})
	s.Register("Test.Slow", func(ctx context.Context, _ json.RawMessage) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()
	t.Cleanup(func() {
		s.Stop()
		assert.NoError(t, <-done)
	})
	return s, ln.Addr().String()
}

func dial(t *testing.T, addr string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCallRoundTrip(t *testing.T) {
	s, addr := startServer(t)
	assert.Equal(t, 4, s.MethodCount())
	c := dial(t, addr)

	ctx := logger.WithRequestID(context.Background(), "req-42")
	var out map[string]string
	require.NoError(t, c.Call(ctx, "Test.Echo", echoParams{Text: "droid"}, &out))
	assert.Equal(t, "droid", out["text"])
	assert.Equal(t, "req-42", out["trace"])

	// The connection is reused.
	require.NoError(t, c.Call(context.Background(), "Test.Echo", echoParams{Text: "again"}, &out))
	assert.Equal(t, "again", out["text"])
	assert.NotEmpty(t, out["trace"])
}

func TestCallErrors(t *testing.T) {
	_, addr := startServer(t)
	c := dial(t, addr)
	ctx := context.Background()

	err := c.Call(ctx, "Test.Missing", nil, nil)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, http.StatusNotFound, rpcErr.Code)
	assert.Equal(t, `document "nope.txt"`, rpcErr.Message)
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)

	err = c.Call(ctx, "Test.Boom", nil, nil)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, http.StatusInternalServerError, rpcErr.Code)
	assert.Equal(t, "internal error", rpcErr.Message)

	err = c.Call(ctx, "Test.Nope", nil, nil)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, http.StatusNotFound, rpcErr.Code)

	// Handler errors leave the connection usable.
	var out map[string]string
	require.NoError(t, c.Call(ctx, "Test.Echo", echoParams{Text: "ok"}, &out))
}

func TestCallTimeout(t *testing.T) {
	_, addr := startServer(t, WithCallTimeout(20*time.Millisecond))
	c := dial(t, addr)

	err := c.Call(context.Background(), "Test.Slow", nil, nil)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, http.StatusGatewayTimeout, rpcErr.Code)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
}

func TestClientDeadline(t *testing.T) {
	_, addr := startServer(t)
	c := dial(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Call(ctx, "Test.Slow", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The stream may hold a late reply, so the client refuses further calls.
	err = c.Call(context.Background(), "Test.Echo", echoParams{Text: "x"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unusable")
}

func TestStopClosesConnections(t *testing.T) {
	s := NewServer()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	c, err := Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	defer c.Close()
	require.Error(t, c.Call(context.Background(), "Test.Echo", nil, nil))

	s.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
	assert.Error(t, c.Call(context.Background(), "Test.Echo", nil, nil))
}
