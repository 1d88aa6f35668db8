package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutError reports an operation that ran past its limit. errors.Is
// matches it against context.DeadlineExceeded.
type TimeoutError struct {
	Operation string
	Limit     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s exceeded %v", e.Operation, e.Limit)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// WithTimeout runs fn with a context that expires after limit and returns as
// soon as the deadline passes, even if fn is still running. A passed
// deadline is reported as *TimeoutError; a cancelled parent as the parent's
// error. limit <= 0 runs fn without a deadline.
func WithTimeout(ctx context.Context, limit time.Duration, operation string, fn func(ctx context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}
	runCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(runCtx) }()

	var err error
	select {
	case err = <-done:
	case <-runCtx.Done():
		err = runCtx.Err()
	}
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("%s: %w", operation, ctx.Err())
	case errors.Is(err, context.DeadlineExceeded) && runCtx.Err() != nil:
		return &TimeoutError{Operation: operation, Limit: limit}
	}
	return err
}
