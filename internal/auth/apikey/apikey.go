// Package apikey validates API keys for the administration endpoints. Raw
// keys are random hex strings shown once at creation; only their SHA-256
// digest is stored. Validation results are cached briefly so a busy client
// does not cost one database query per request.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrExpiredKey = errors.New("api key expired")
)

// KeyInfo describes a stored key. The raw key is never part of it.
type KeyInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	RateLimit int        `json:"rate_limit"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the key is past its expiry at now.
func (k *KeyInfo) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// Lookup finds an active key by digest and returns ErrInvalidKey when there
// is none.
type Lookup interface {
	FindByHash(ctx context.Context, hash string) (*KeyInfo, error)
}

type cached struct {
	info    *KeyInfo
	err     error
	expires time.Time
}

type Validator struct {
	lookup Lookup
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]cached
}

// NewValidator wraps lookup with a result cache. ttl <= 0 disables caching.
func NewValidator(lookup Lookup, ttl time.Duration) *Validator {
	return &Validator{
		lookup: lookup,
		ttl:    ttl,
		now:    time.Now,
		logger: slog.Default().With("component", "apikey-validator"),
		cache:  make(map[string]cached),
	}
}

// Validate returns the key's info, ErrInvalidKey, ErrExpiredKey, or a
// lookup failure. Lookup failures are not cached.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	if rawKey == "" {
		return nil, ErrInvalidKey
	}
	hash := HashKey(rawKey)
	now := v.now()

	v.mu.Lock()
	c, ok := v.cache[hash]
	v.mu.Unlock()
	if !ok || !now.Before(c.expires) {
		info, err := v.lookup.FindByHash(ctx, hash)
		if err != nil && !errors.Is(err, ErrInvalidKey) {
			return nil, fmt.Errorf("looking up api key: %w", err)
		}
		c = cached{info: info, err: err, expires: now.Add(v.ttl)}
		if v.ttl > 0 {
			v.mu.Lock()
			v.cache[hash] = c
			v.mu.Unlock()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	if c.info.Expired(now) {
		return nil, ErrExpiredKey
	}
	return c.info, nil
}

// HashKey returns the SHA-256 hex digest of a raw key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// GenerateKey returns 32 random bytes, hex encoded.
func GenerateKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
