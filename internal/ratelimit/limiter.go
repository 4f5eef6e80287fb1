// Package ratelimit enforces per-user request limits on the chat and
// delegation surfaces.
package ratelimit

import (
	"sync"
	"time"
)

// Limit scopes. Chat turns and sub-agent delegations have separate
// budgets because a delegation costs an order of magnitude more.
const (
	ScopeChat       = "chat"
	ScopeDelegation = "delegation"
)

// Config configures one scope's limit.
type Config struct {
	// PerMinute is the sustained request rate per user.
	PerMinute int `yaml:"per_minute"`

	// Burst is the instantaneous allowance; defaults to PerMinute.
	Burst int `yaml:"burst"`

	// Enabled turns the limiter off entirely when false.
	Enabled bool `yaml:"enabled"`
}

// DefaultChatConfig allows 20 chat turns per user per minute.
func DefaultChatConfig() Config {
	return Config{PerMinute: 20, Burst: 20, Enabled: true}
}

// DefaultDelegationConfig allows 5 delegations per user per minute.
func DefaultDelegationConfig() Config {
	return Config{PerMinute: 5, Burst: 5, Enabled: true}
}

// bucket is a token bucket refilled continuously at the configured rate.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

func newBucket(config Config, now func() time.Time) *bucket {
	burst := config.Burst
	if burst <= 0 {
		burst = config.PerMinute
	}
	return &bucket{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: float64(config.PerMinute) / 60,
		lastRefill: now(),
		now:        now,
	}
}

func (b *bucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// refill must be called with the lock held.
func (b *bucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now

	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
}

func (b *bucket) waitTime() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	if b.tokens >= 1 {
		return 0
	}
	seconds := (1 - b.tokens) / b.refillRate
	return time.Duration(seconds * float64(time.Second))
}

// Limiter tracks one scope's buckets keyed by user ID.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	config  Config
	maxKeys int
	now     func() time.Time
}

func NewLimiter(config Config) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		config:  config,
		maxKeys: 10000,
		now:     time.Now,
	}
}

// Allow reports whether the user may make a request now, consuming one
// token if so.
func (l *Limiter) Allow(userID string) bool {
	if !l.config.Enabled {
		return true
	}
	return l.getBucket(userID).allow()
}

// WaitTime reports how long until the user's next request would pass,
// for Retry-After headers.
func (l *Limiter) WaitTime(userID string) time.Duration {
	if !l.config.Enabled {
		return 0
	}
	return l.getBucket(userID).waitTime()
}

func (l *Limiter) getBucket(userID string) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[userID]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[userID]; ok {
		return b
	}
	if len(l.buckets) >= l.maxKeys {
		l.prune()
	}
	b = newBucket(l.config, l.now)
	l.buckets[userID] = b
	return b
}

// prune drops buckets that are nearly full, which marks inactive users.
func (l *Limiter) prune() {
	for key, b := range l.buckets {
		b.mu.Lock()
		b.refill()
		idle := b.tokens >= b.maxTokens*0.9
		b.mu.Unlock()
		if idle {
			delete(l.buckets, key)
		}
	}
}
