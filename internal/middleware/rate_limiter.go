package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kinship/backend/internal/config"
)

// idleTTL is how long an unused client bucket is kept.
const idleTTL = 10 * time.Minute

// RateLimiter controls how frequently a caller may perform an action.
type RateLimiter interface {
	Allow(key string) bool
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter keeps one token bucket per key, usually "scope:client-ip".
// Idle buckets are swept at most once per ttl.
type KeyedRateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter allows cfg.Requests events per cfg.Window for each key, plus
// cfg.Burst extra. Non-positive settings fall back to one per second.
func NewRateLimiter(cfg config.RateLimitConfig) *KeyedRateLimiter {
	requests, window, burst := cfg.Requests, cfg.Window, cfg.Burst
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	return &KeyedRateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Every(window / time.Duration(requests)),
		burst:   burst,
		ttl:     idleTTL,
		now:     time.Now,
	}
}

// Allow reports whether the caller identified by key may proceed now.
func (l *KeyedRateLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	if now.Sub(l.lastSweep) > l.ttl {
		l.sweepLocked(now)
	}
	l.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (l *KeyedRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *KeyedRateLimiter) sweepLocked(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.ttl {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}
