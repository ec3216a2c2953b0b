// Package common holds small shared utilities used across the library.
package common

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter provides thread-safe rate limiting with dynamically adjustable
// limits. The vault coordinator uses it to keep best-effort secret-store
// refreshes from flooding the OS store when many sessions extend credentials
// at once.
type RateLimiter struct {
	limiter *rate.Limiter
	mu      sync.RWMutex // Protects concurrent access to the limiter
}

// NewRateLimiter creates a RateLimiter with the specified operations per
// second and burst size. The burst parameter controls how many operations can
// proceed at once to accommodate temporary spikes.
func NewRateLimiter(ops float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(ops), burst)}
}

// Allow reports whether an operation may proceed now without waiting.
func (rl *RateLimiter) Allow() bool {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.limiter.Allow()
}

// Wait blocks until the rate limiter allows an event or the context is
// canceled. It returns an error if the context is canceled while waiting.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.limiter.Wait(ctx)
}

// UpdateLimits dynamically adjusts the rate limiter's operations per second
// and burst size at runtime.
func (rl *RateLimiter) UpdateLimits(ops float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiter.SetLimit(rate.Limit(ops))
	rl.limiter.SetBurst(burst)
}
