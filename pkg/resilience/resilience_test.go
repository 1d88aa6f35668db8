package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time           { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg CircuitBreakerConfig) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker("redis", cfg)
	cb.now = clock.now
	return cb, clock
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	var transitions []State
	cb, clock := newTestBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		OnStateChange:    func(_ string, to State) { transitions = append(transitions, to) },
	})

	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, clock.t, cb.Stats().OpenedAt)

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	clock.advance(time.Minute)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
	assert.Zero(t, cb.Stats().ConsecutiveFailures)
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	_ = cb.Execute(func() error { return errBoom })
	clock.advance(2 * time.Second)

	_ = cb.Execute(func() error { return errBoom })
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, clock.t, cb.Stats().OpenedAt)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Stats().OpenedAt.IsZero())
}

func TestCircuitBreakerLimitsProbes(t *testing.T) {
	cb, clock := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	_ = cb.Execute(func() error { return errBoom })
	clock.advance(time.Second)

	// The probe is still running when a second call arrives.
	err := cb.Execute(func() error {
		inner := cb.Execute(func() error { return nil })
		assert.ErrorIs(t, inner, ErrCircuitOpen)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCallIgnoresExpectedErrors(t *testing.T) {
	errMiss := errors.New("miss")
	cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1})
	isMiss := func(err error) bool { return errors.Is(err, errMiss) }

	for range 5 {
		v, err := Call(cb, func() ([]byte, error) { return nil, errMiss }, isMiss)
		assert.ErrorIs(t, err, errMiss)
		assert.Nil(t, v)
	}
	assert.Equal(t, StateClosed, cb.State())

	v, err := Call(cb, func() (int64, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
	assert.Equal(t, "redis", cb.Name())
}

func TestRetrySucceedsEventually(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "postgres ping", RetryConfig{MaxAttempts: 4, InitialDelay: time.Millisecond}, func() error {
		attempts++
		if attempts < 3 {
			return errBoom
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryGivesUp(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "redis ping", RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}, func() error {
		attempts++
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "redis ping failed after 2 attempts")
	assert.Equal(t, 2, attempts)
}

func TestRetryStopsOnPermanent(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "postgres ping", RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}, func() error {
		attempts++
		return Permanent(errBoom)
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, "postgres ping: boom", err.Error())
	assert.Equal(t, 1, attempts)
	assert.NoError(t, Permanent(nil))
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "op", RetryConfig{MaxAttempts: 3, InitialDelay: time.Second}, func() error { return errBoom })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "last error: boom")
}

func TestRetryDelayGrowsAndCaps(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second}.withDefaults()
	assert.InDelta(t, float64(100*time.Millisecond), float64(cfg.delay(1)), float64(10*time.Millisecond))
	assert.InDelta(t, float64(400*time.Millisecond), float64(cfg.delay(3)), float64(40*time.Millisecond))
	assert.LessOrEqual(t, cfg.delay(20), time.Second)
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "search a.txt", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "search a.txt", te.Operation)
	assert.Equal(t, "search a.txt exceeded 10ms", err.Error())

	err = WithTimeout(context.Background(), time.Second, "fast", func(ctx context.Context) error { return errBoom })
	assert.ErrorIs(t, err, errBoom)

	err = WithTimeout(context.Background(), 0, "unbounded", func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestWithTimeoutParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithTimeout(ctx, time.Second, "search", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	var te *TimeoutError
	assert.False(t, errors.As(err, &te))
}
