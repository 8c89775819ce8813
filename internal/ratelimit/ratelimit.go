// Package ratelimit provides a keyed rate limiter using token bucket algorithm.
// Each key (one per remote catalog) gets its own spacing, so pacing one source
// never slows another.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyedRateLimiter manages per-key rate limiting.
// Each key holds a burst-1 limiter that refills one token per interval,
// which enforces a minimum spacing between calls for that key.
type KeyedRateLimiter struct {
	mu        sync.RWMutex
	limiters  map[string]*rate.Limiter
	intervals map[string]time.Duration
	fallback  time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a keyed limiter. fallback is the spacing for keys without an
// explicit interval; zero or negative means unlimited.
func New(fallback time.Duration) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		limiters:  make(map[string]*rate.Limiter),
		intervals: make(map[string]time.Duration),
		fallback:  fallback,
		done:      make(chan struct{}),
	}
}

// SetInterval configures the minimum spacing for a key.
// An existing limiter for the key is retuned in place.
func (krl *KeyedRateLimiter) SetInterval(key string, interval time.Duration) {
	krl.mu.Lock()
	defer krl.mu.Unlock()

	krl.intervals[key] = interval
	if limiter, ok := krl.limiters[key]; ok {
		limiter.SetLimit(limitFor(interval))
	}
}

// Interval returns the spacing used for key.
func (krl *KeyedRateLimiter) Interval(key string) time.Duration {
	krl.mu.RLock()
	defer krl.mu.RUnlock()
	if d, ok := krl.intervals[key]; ok {
		return d
	}
	return krl.fallback
}

// Allow reports whether a call for key may proceed now, consuming the token if so.
func (krl *KeyedRateLimiter) Allow(key string) bool {
	return krl.getLimiter(key).Allow()
}

// Wait blocks until a call for key is allowed or ctx is done.
// Nothing but the sleep happens while waiting; the caller performs the
// request after Wait returns.
func (krl *KeyedRateLimiter) Wait(ctx context.Context, key string) error {
	select {
	case <-krl.done:
		return context.Canceled
	default:
	}
	return krl.getLimiter(key).Wait(ctx)
}

// getLimiter returns the limiter for a key, creating one if needed.
func (krl *KeyedRateLimiter) getLimiter(key string) *rate.Limiter {
	// Fast path: read lock
	krl.mu.RLock()
	limiter, exists := krl.limiters[key]
	krl.mu.RUnlock()

	if exists {
		return limiter
	}

	krl.mu.Lock()
	defer krl.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists = krl.limiters[key]; exists {
		return limiter
	}

	interval, ok := krl.intervals[key]
	if !ok {
		interval = krl.fallback
	}
	limiter = rate.NewLimiter(limitFor(interval), 1)
	krl.limiters[key] = limiter
	return limiter
}

// Stop makes subsequent Wait calls fail fast.
func (krl *KeyedRateLimiter) Stop() {
	krl.stopOnce.Do(func() {
		close(krl.done)
	})
}

func limitFor(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval)
}
