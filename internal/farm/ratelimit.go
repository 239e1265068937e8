package farm

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitError is returned when a transformer's dispatch rate limit is
// exceeded.
type RateLimitError struct {
	TransformerName string
	Rate            float64
	RetryAfter      time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("farm: transformer %q exceeded its dispatch rate limit of %.1f/s, retry after %v", e.TransformerName, e.Rate, e.RetryAfter)
}

// tokenBucket implements a token-bucket rate limiter for a single
// transformer's farm dispatches.
type tokenBucket struct {
	rate       float64 // dispatches per second
	burst      int     // max burst size
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	return &tokenBucket{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastRefill: time.Now(),
	}
}

// allow attempts to consume one token from the bucket. It returns true if
// the dispatch is allowed, or false if the bucket is empty (rate limited).
func (tb *tokenBucket) allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.lastRefill = now

	tb.tokens += elapsed * tb.rate
	if tb.tokens > float64(tb.burst) {
		tb.tokens = float64(tb.burst)
	}

	if tb.tokens < 1.0 {
		return false
	}

	tb.tokens -= 1.0
	return true
}

// RateLimiter bounds concurrent dispatches per transformer to the worker
// farm (SPEC_FULL.md §11 "DOMAIN STACK": token-bucket rate limiter bounds
// concurrent dispatches per transformer). Transformers not given an
// explicit limit fall back to a shared default rate/burst.
type RateLimiter struct {
	mu           sync.RWMutex
	limiters     map[string]*tokenBucket
	defaultRate  float64
	defaultBurst int
}

// NewRateLimiter creates a RateLimiter with per-transformer limits and a
// default fallback rate/burst for transformers not named in limits.
func NewRateLimiter(defaultRate float64, defaultBurst int, limits map[string]struct {
	Rate  float64
	Burst int
}) *RateLimiter {
	limiters := make(map[string]*tokenBucket, len(limits))
	for name, l := range limits {
		limiters[name] = newTokenBucket(l.Rate, l.Burst)
	}
	return &RateLimiter{
		limiters:     limiters,
		defaultRate:  defaultRate,
		defaultBurst: defaultBurst,
	}
}

// Allow reports whether a dispatch to transformerName may proceed,
// returning a RateLimitError describing the backoff when it may not.
func (rl *RateLimiter) Allow(transformerName string) error {
	bucket := rl.getOrCreateBucket(transformerName)
	if bucket.allow() {
		return nil
	}
	retryAfter := time.Duration(float64(time.Second) / bucket.rate)
	if retryAfter < 100*time.Millisecond {
		retryAfter = 100 * time.Millisecond
	}
	return &RateLimitError{TransformerName: transformerName, Rate: bucket.rate, RetryAfter: retryAfter}
}

func (rl *RateLimiter) getOrCreateBucket(transformerName string) *tokenBucket {
	rl.mu.RLock()
	bucket, ok := rl.limiters[transformerName]
	rl.mu.RUnlock()
	if ok {
		return bucket
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if bucket, ok = rl.limiters[transformerName]; ok {
		return bucket
	}
	bucket = newTokenBucket(rl.defaultRate, rl.defaultBurst)
	rl.limiters[transformerName] = bucket
	return bucket
}
