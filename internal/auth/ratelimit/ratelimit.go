// Package ratelimit is an in-memory token-bucket limiter keyed by client.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"
)

type entry struct {
	tokens    float64
	lastCheck time.Time
}

// Limiter gives each key limit tokens per window, refilled continuously.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	window  time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

func New(window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		entries: make(map[string]*entry),
		window:  window,
		now:     time.Now,
		logger:  slog.Default().With("component", "rate-limiter"),
	}
}

// Allow takes one token from key's bucket. When the bucket is empty it
// returns false and how long until a token is available.
func (l *Limiter) Allow(key string, limit int) (bool, time.Duration) {
	if limit <= 0 {
		return true, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	capacity := float64(limit)
	e, ok := l.entries[key]
	if !ok {
		l.entries[key] = &entry{tokens: capacity - 1, lastCheck: now}
		return true, 0
	}

	rate := capacity / l.window.Seconds()
	e.tokens = math.Min(capacity, e.tokens+now.Sub(e.lastCheck).Seconds()*rate)
	e.lastCheck = now
	if e.tokens < 1 {
		wait := time.Duration((1 - e.tokens) / rate * float64(time.Second))
		return false, wait
	}
	e.tokens--
	return true, 0
}

// Reset forgets key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Prune drops keys idle for two windows, whose buckets are full anyway, and
// returns how many were dropped.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.window)
	dropped := 0
	for key, e := range l.entries {
		if e.lastCheck.Before(cutoff) {
			delete(l.entries, key)
			dropped++
		}
	}
	return dropped
}

// Run prunes every interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Prune(); n > 0 {
				l.logger.Debug("pruned idle rate limit entries", "dropped", n)
			}
		}
	}
}
