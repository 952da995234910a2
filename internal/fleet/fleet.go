// Package fleet holds the cache-backed read services for vehicles and energy sites.
// Every upstream call they make is preceded by a rate limiter acquisition.
package fleet

import (
	"context"
	"errors"
	"time"

	"tesla-telemetry-backend/internal/apperr"
	"tesla-telemetry-backend/internal/tesla"
)

// RateLimiter paces upstream calls.
type RateLimiter interface {
	Acquire(ctx context.Context) error
}

// upstreamErr maps a gateway error onto the caller-facing taxonomy.
func upstreamErr(op string, err error) error {
	switch {
	case errors.Is(err, tesla.ErrNotFound):
		return apperr.Wrap(apperr.NotFound, op, err)
	case errors.Is(err, tesla.ErrVehicleUnavailable):
		return apperr.Wrap(apperr.Unreachable, op, err)
	default:
		return apperr.Wrap(apperr.Upstream, op, err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
