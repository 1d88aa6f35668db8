package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(window time.Duration) (*Limiter, *time.Time) {
	l := New(window)
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	return l, &clock
}

func TestAllowUntilEmpty(t *testing.T) {
	l, _ := newTestLimiter(time.Minute)

	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("ip:10.0.0.1", 3)
		assert.True(t, ok, "request %d", i)
	}
	ok, wait := l.Allow("ip:10.0.0.1", 3)
	assert.False(t, ok)
	assert.InDelta(t, float64(20*time.Second), float64(wait), float64(time.Millisecond))

	ok, _ = l.Allow("ip:10.0.0.2", 3)
	assert.True(t, ok, "keys have separate buckets")
}

func TestRefill(t *testing.T) {
	l, clock := newTestLimiter(time.Minute)
	for i := 0; i < 2; i++ {
		l.Allow("k", 2)
	}
	ok, _ := l.Allow("k", 2)
	assert.False(t, ok)

	*clock = clock.Add(40 * time.Second)
	ok, _ = l.Allow("k", 2)
	assert.True(t, ok)
	ok, _ = l.Allow("k", 2)
	assert.False(t, ok)

	// Refill never exceeds capacity.
	*clock = clock.Add(time.Hour)
	for i := 0; i < 2; i++ {
		ok, _ = l.Allow("k", 2)
		assert.True(t, ok)
	}
	ok, _ = l.Allow("k", 2)
	assert.False(t, ok)
}

func TestNonPositiveLimitIsUnlimited(t *testing.T) {
	l, _ := newTestLimiter(time.Minute)
	for i := 0; i < 100; i++ {
		ok, _ := l.Allow("k", 0)
		assert.True(t, ok)
	}
	assert.Zero(t, l.Len())
}

func TestPruneAndReset(t *testing.T) {
	l, clock := newTestLimiter(time.Minute)
	l.Allow("old", 5)
	*clock = clock.Add(90 * time.Second)
	l.Allow("fresh", 5)
	*clock = clock.Add(45 * time.Second)

	assert.Equal(t, 1, l.Prune())
	assert.Equal(t, 1, l.Len())

	l.Reset("fresh")
	assert.Zero(t, l.Len())
}

func TestRunStopsOnCancel(t *testing.T) {
	l := New(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
