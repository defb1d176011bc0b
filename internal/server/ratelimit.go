package server

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter enforces per-caller request rate limits using a token bucket
// per caller key (golang.org/x/time/rate).
type RateLimiter struct {
	mu        sync.Mutex
	callers   map[string]*rate.Limiter
	perCaller rate.Limit
	burst     int
}

// NewRateLimiter creates a limiter allowing rps sustained requests per second
// per caller with the given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		callers:   make(map[string]*rate.Limiter),
		perCaller: rate.Limit(rps),
		burst:     burst,
	}
}

// Allow reports whether a request from the given caller is within its budget.
func (rl *RateLimiter) Allow(caller string) bool {
	rl.mu.Lock()
	limiter, ok := rl.callers[caller]
	if !ok {
		limiter = rate.NewLimiter(rl.perCaller, rl.burst)
		rl.callers[caller] = limiter
	}
	rl.mu.Unlock()
	return limiter.Allow()
}
