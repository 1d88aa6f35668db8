// Package middleware provides the HTTP middleware shared by the services:
// request IDs, Prometheus instrumentation, timeouts, CORS, API key checks,
// and rate limiting.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/metrics"
)

// unmatched labels requests no route table knows, keeping the path label
// bounded under scanning traffic.
const unmatched = "unmatched"

// Metrics records request count, latency, response size and in-flight
// requests. The path label is the route pattern that serves the request,
// such as /api/v1/documents/{name}, looked up in routes; when several tables
// match, the most specific pattern wins.
func Metrics(m *metrics.Metrics, routes ...*http.ServeMux) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := routeOf(r, routes)

			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			m.HTTPResponseBytes.WithLabelValues(route).Observe(float64(sw.bytes))
		})
	}
}

func routeOf(r *http.Request, routes []*http.ServeMux) string {
	best := ""
	for _, mux := range routes {
		_, pattern := mux.Handler(r)
		// Patterns may carry a method and host: "GET example.com/path".
		if i := strings.IndexByte(pattern, ' '); i >= 0 {
			pattern = pattern[i+1:]
		}
		if i := strings.IndexByte(pattern, '/'); i > 0 {
			pattern = pattern[i:]
		}
		if len(pattern) > len(best) {
			best = pattern
		}
	}
	if best == "" {
		return unmatched
	}
	return best
}

// statusWriter captures the status code and body size.
type statusWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
