// Package ratelimit paces session arrivals and tracks load profile phases.
package ratelimit

import (
	"context"
	"math"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter paces session starts. A rate of zero disables pacing.
// It satisfies core.Limiter.
type RateLimiter struct {
	limiter *rate.Limiter
	mu      sync.RWMutex
}

// NewRateLimiter creates a limiter admitting perSec session starts per
// second, with a burst of one second's worth.
func NewRateLimiter(perSec float64) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSec), burst(perSec)),
	}
}

func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.RLock()
	limiter := r.limiter
	limit := limiter.Limit()
	r.mu.RUnlock()

	if limit == 0 {
		return ctx.Err()
	}
	return limiter.Wait(ctx)
}

// SetRate changes the rate in place. Waiters already queued keep their
// reservations.
func (r *RateLimiter) SetRate(perSec float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if float64(r.limiter.Limit()) == perSec {
		return
	}
	r.limiter.SetLimit(rate.Limit(perSec))
	r.limiter.SetBurst(burst(perSec))
}

// Rate returns the current rate per second.
func (r *RateLimiter) Rate() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return float64(r.limiter.Limit())
}

func burst(perSec float64) int {
	return max(1, int(math.Ceil(perSec)))
}
