package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"net/http"
	"sync"
	"time"
)

// Timeout gives each request a deadline. If the handler has not started its
// response when the deadline passes, the client gets a JSON 504 and later
// writes from the handler fail with http.ErrHandlerTimeout. A response that
// has already started is left to finish.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			gw := &guardedWriter{w: w, header: w.Header().Clone()}
			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(gw, r.WithContext(ctx))
			}()

			select {
			case <-done:
				return
			case <-ctx.Done():
			}
			if !gw.expire() {
				<-done
				return
			}
			slog.WarnContext(ctx, "request timed out",
				"method", r.Method, "path", r.URL.Path, "timeout", timeout)
			body := map[string]string{"error": "request timeout"}
			if id := GetRequestID(ctx); id != "" {
				body["request_id"] = id
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusGatewayTimeout)
			_ = json.NewEncoder(w).Encode(body)
		})
	}
}

// guardedWriter buffers headers until the handler commits to a response,
// after which the timeout can no longer claim the connection.
type guardedWriter struct {
	w       http.ResponseWriter
	mu      sync.Mutex
	header  http.Header
	started bool
	expired bool
}

func (g *guardedWriter) Header() http.Header { return g.header }

// expire claims the response for the timeout. It fails once the handler has
// started writing.
func (g *guardedWriter) expire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return false
	}
	g.expired = true
	return true
}

func (g *guardedWriter) start(code int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.expired {
		return false
	}
	if !g.started {
		g.started = true
		maps.Copy(g.w.Header(), g.header)
		g.w.WriteHeader(code)
	}
	return true
}

func (g *guardedWriter) WriteHeader(code int) {
	g.start(code)
}

func (g *guardedWriter) Write(b []byte) (int, error) {
	if !g.start(http.StatusOK) {
		return 0, http.ErrHandlerTimeout
	}
	return g.w.Write(b)
}
