// Package venue is the Venue Client: places, cancels, and queries orders on
// the off-chain limit order book (§6 Venue order API). It is rate-limited,
// dry-run aware, and signs requests with L1 (EIP-712, key derivation only)
// and L2 (HMAC) authentication.
package venue

import (
	"context"
	"sync"
	"time"
)

// TokenBucket is a continuously-refilling rate limiter. Callers block in
// Wait until a token is available or ctx is cancelled, respecting the
// shared-resource policy of §5: "the venue's rate-limit budget is respected
// by a token-bucket shared by Venue Client callers."
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64
	lastTime time.Time
}

// NewTokenBucket creates a bucket with the given burst capacity and
// per-second refill rate.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{tokens: capacity, capacity: capacity, rate: ratePerSecond, lastTime: time.Now()}
}

// Wait blocks until a token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// RateLimiter groups token buckets by venue endpoint category.
type RateLimiter struct {
	Order  *TokenBucket
	Cancel *TokenBucket
	Book   *TokenBucket
}

// NewRateLimiter builds the default per-category limiter. Capacities are
// 10-second burst allowances; rates are 1/10th for smooth refill.
func NewRateLimiter(perSec int) *RateLimiter {
	if perSec <= 0 {
		perSec = 10
	}
	f := float64(perSec)
	return &RateLimiter{
		Order:  NewTokenBucket(f*10, f),
		Cancel: NewTokenBucket(f*6, f*0.6),
		Book:   NewTokenBucket(f*15, f*1.5),
	}
}
