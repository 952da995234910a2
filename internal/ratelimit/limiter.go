// Package ratelimit spaces out calls to the Fleet API.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"tesla-telemetry-backend/internal/metrics"
)

// Limiter guarantees that consecutive acquisitions start at least minInterval apart.
// One instance is shared by every caller that talks to the upstream API.
type Limiter struct {
	minInterval time.Duration
	limiter     *rate.Limiter
}

// New creates a Limiter. A non-positive interval disables spacing.
func New(minInterval time.Duration) *Limiter {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &Limiter{
		minInterval: minInterval,
		limiter:     rate.NewLimiter(limit, 1),
	}
}

// MinInterval returns the configured spacing.
func (l *Limiter) MinInterval() time.Duration {
	return l.minInterval
}

// Acquire blocks until the caller may issue its upstream call. The slot is
// claimed at reservation time, so the spacing is measured start to start.
// It only fails when ctx is done before the slot is reached.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}
	metrics.RateLimitWait.Observe(time.Since(start).Seconds())
	return nil
}
