package delivery

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces out sends on one account with a token bucket. Wait
// reserves a token up front, letting the bucket go into debt, and sleeps
// until the debt is repaid; a caller that gives up hands its token back.
type RateLimiter struct {
	mu     sync.Mutex
	tokens float64
	max    float64
	rate   float64 // tokens per second
	last   time.Time
}

// NewRateLimiter allows maxBurst immediate sends, then perMinute on average.
func NewRateLimiter(maxBurst int, perMinute float64) *RateLimiter {
	if maxBurst <= 0 {
		maxBurst = 3
	}
	if perMinute <= 0 {
		perMinute = 10
	}
	return &RateLimiter{
		tokens: float64(maxBurst),
		max:    float64(maxBurst),
		rate:   perMinute / 60,
		last:   time.Now(),
	}
}

// refill must be called with mu held.
func (rl *RateLimiter) refill(now time.Time) {
	rl.tokens += now.Sub(rl.last).Seconds() * rl.rate
	if rl.tokens > rl.max {
		rl.tokens = rl.max
	}
	rl.last = now
}

func (rl *RateLimiter) reserve() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill(time.Now())
	rl.tokens--
	if rl.tokens >= 0 {
		return 0
	}
	return time.Duration(-rl.tokens / rl.rate * float64(time.Second))
}

func (rl *RateLimiter) release() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill(time.Now())
	rl.tokens = min(rl.tokens+1, rl.max)
}

// Wait blocks until the caller's token is due or ctx ends.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wait := rl.reserve()
	if wait == 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		rl.release()
		return ctx.Err()
	}
}
