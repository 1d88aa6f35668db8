// Package rpc is a small JSON-over-TCP request/response transport for
// service-to-service calls.
//
// Each connection carries newline-delimited JSON: a Request, then the
// matching Response. Methods follow the "Service.Method" convention.
//
//	s := rpc.NewServer(rpc.WithCallTimeout(5 * time.Second))
//	s.Register("SearchService.Search", func(ctx context.Context, params json.RawMessage) (any, error) {
//	    ...
//	})
//	go s.ListenAndServe(":9091")
//
//	c, _ := rpc.Dial(ctx, "localhost:9091")
//	var rep report.Report
//	err := c.Call(ctx, "SearchService.Search", req, &rep)
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/logger"
	"github.com/google/uuid"
)

// HandlerFunc serves one method. params is the raw JSON the client sent.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Request is the wire format of a call.
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params,omitempty"`
	// TraceID ties the call to the caller's request ID in logs.
	TraceID string `json:"trace_id,omitempty"`
}

// Response is the wire format of a reply. Exactly one of Data and Error is set.
type Response struct {
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

type Option func(*Server)

// WithCallTimeout bounds each handler invocation.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Server) { s.callTimeout = d }
}

type Server struct {
	mu          sync.RWMutex
	handlers    map[string]HandlerFunc
	callTimeout time.Duration
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	connMu   sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

func NewServer(opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		handlers: make(map[string]HandlerFunc),
		logger:   slog.Default().With("component", "rpc-server"),
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds or replaces the handler for method.
func (s *Server) Register(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
	s.logger.Debug("method registered", "method", method)
}

// MethodCount returns the number of registered methods.
func (s *Server) MethodCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop is called, then returns nil.
func (s *Server) Serve(ln net.Listener) error {
	s.connMu.Lock()
	if s.ctx.Err() != nil {
		s.connMu.Unlock()
		ln.Close()
		return nil
	}
	s.listener = ln
	s.connMu.Unlock()
	s.logger.Info("rpc server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		if !s.track(conn) {
			conn.Close()
			return nil
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.connMu.Lock()
		delete(s.conns, conn)
		s.connMu.Unlock()
		conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)
	for {
		var req Request
		if err := decoder.Decode(&req); err != nil {
			return
		}
		resp := s.dispatch(req)
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("write error", "method", req.Method, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{ID: req.ID}

	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()
	if !ok {
		resp.Error = &Error{Code: http.StatusNotFound, Message: fmt.Sprintf("unknown method %q", req.Method)}
		return resp
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	ctx := logger.WithRequestID(s.ctx, traceID)
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}

	start := time.Now()
	data, err := handler(ctx, req.Params)
	if err == nil {
		resp.Data, err = json.Marshal(data)
	}
	if err != nil {
		resp.Data = nil
		resp.Error = toError(err)
		s.logger.Warn("rpc call failed",
			"method", req.Method,
			"request_id", traceID,
			"code", resp.Error.Code,
			"error", err,
		)
		return resp
	}
	s.logger.Debug("rpc call", "method", req.Method, "request_id", traceID, "took", time.Since(start))
	return resp
}

// Stop closes the listener and every open connection, then waits for
// in-flight calls to finish.
func (s *Server) Stop() {
	s.connMu.Lock()
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.connMu.Unlock()
	s.wg.Wait()
	s.logger.Info("rpc server stopped")
}

func toError(err error) *Error {
	code := apperrors.HTTPStatusCode(err)
	fallback := "internal error"
	if code == http.StatusGatewayTimeout {
		fallback = "call timed out"
	}
	return &Error{Code: code, Message: apperrors.PublicMessage(err, fallback)}
}
