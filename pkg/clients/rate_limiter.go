package clients

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// RateLimiterStats reports what a limiter has done so far.
type RateLimiterStats struct {
	Rate            float64       `json:"rate"`
	Burst           int           `json:"burst"`
	AllowedRequests int64         `json:"allowed_requests"`
	BlockedRequests int64         `json:"blocked_requests"`
	TotalWaitTime   time.Duration `json:"total_wait_time"`
}

// TokenBucketRateLimiter implements the token bucket algorithm.
// Tokens are added at a constant rate and consumed by requests.
// A nil limiter allows everything.
type TokenBucketRateLimiter struct {
	rate     float64
	burst    int
	tokens   float64
	lastTime time.Time
	now      func() time.Time

	allowedRequests int64
	blockedRequests int64
	totalWaitTime   int64

	mu sync.Mutex
}

// NewRateLimiter creates a limiter allowing rate requests per second with
// bursts of up to burst requests. A non-positive rate returns nil, which
// never blocks.
func NewRateLimiter(rate float64, burst int) *TokenBucketRateLimiter {
	if rate <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &TokenBucketRateLimiter{
		rate:     rate,
		burst:    burst,
		tokens:   float64(burst),
		lastTime: time.Now(),
		now:      time.Now,
	}
}

// Allow consumes a token if one is available.
func (tb *TokenBucketRateLimiter) Allow() bool {
	if tb == nil {
		return true
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1.0 {
		tb.tokens--
		atomic.AddInt64(&tb.allowedRequests, 1)
		return true
	}
	atomic.AddInt64(&tb.blockedRequests, 1)
	return false
}

// Wait blocks until a token is available or ctx is done.
func (tb *TokenBucketRateLimiter) Wait(ctx context.Context) error {
	if tb == nil {
		return ctx.Err()
	}
	start := time.Now()

	for {
		tb.mu.Lock()
		tb.refill()
		if tb.tokens >= 1.0 {
			tb.tokens--
			tb.mu.Unlock()
			atomic.AddInt64(&tb.allowedRequests, 1)
			atomic.AddInt64(&tb.totalWaitTime, int64(time.Since(start)))
			return nil
		}
		deficit := 1.0 - tb.tokens
		wait := time.Duration(deficit / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			atomic.AddInt64(&tb.blockedRequests, 1)
			return ctx.Err()
		}
	}
}

// refill adds tokens for the time elapsed since the last call. Callers hold mu.
func (tb *TokenBucketRateLimiter) refill() {
	now := tb.now()
	tb.tokens += now.Sub(tb.lastTime).Seconds() * tb.rate
	if tb.tokens > float64(tb.burst) {
		tb.tokens = float64(tb.burst)
	}
	tb.lastTime = now
}

// Stats returns the limiter counters.
func (tb *TokenBucketRateLimiter) Stats() RateLimiterStats {
	if tb == nil {
		return RateLimiterStats{}
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return RateLimiterStats{
		Rate:            tb.rate,
		Burst:           tb.burst,
		AllowedRequests: atomic.LoadInt64(&tb.allowedRequests),
		BlockedRequests: atomic.LoadInt64(&tb.blockedRequests),
		TotalWaitTime:   time.Duration(atomic.LoadInt64(&tb.totalWaitTime)),
	}
}
