package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/logger"
)

// Error is a failure reported by the remote handler. Code follows HTTP
// status semantics.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Unwrap maps the code back to the shared sentinel, so errors.Is works on
// both sides of the wire.
func (e *Error) Unwrap() error {
	return apperrors.FromStatus(e.Code)
}

// Client holds one connection. Calls are serialised on it.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	encoder *json.Encoder
	decoder *json.Decoder
	nextID  int64
	broken  error
}

func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return &Client{
		conn:    conn,
		encoder: json.NewEncoder(conn),
		decoder: json.NewDecoder(conn),
	}, nil
}

// Call invokes method with params and decodes the reply into result, which
// may be nil. The context deadline bounds the whole exchange. After a
// transport failure the client is unusable and every later call returns the
// same error.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken != nil {
		return c.broken
	}

	c.nextID++
	id := strconv.FormatInt(c.nextID, 10)
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("setting deadline: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	req := Request{Method: method, ID: id, Params: raw, TraceID: logger.RequestID(ctx)}
	if err := c.encoder.Encode(req); err != nil {
		return c.fail(ctx, fmt.Errorf("sending %s: %w", method, err))
	}
	var resp Response
	if err := c.decoder.Decode(&resp); err != nil {
		return c.fail(ctx, fmt.Errorf("reading %s response: %w", method, err))
	}
	if resp.ID != id {
		return c.fail(ctx, fmt.Errorf("response id %q does not match request %q", resp.ID, id))
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) fail(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	} else if errors.Is(err, os.ErrDeadlineExceeded) {
		err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	c.broken = errors.Join(errors.New("rpc connection unusable"), err)
	return err
}

func (c *Client) Close() error {
	return c.conn.Close()
}
