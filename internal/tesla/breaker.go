package tesla

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"tesla-telemetry-backend/internal/logging"
	"tesla-telemetry-backend/internal/metrics"
)

// BreakerClient wraps a Gateway with a circuit breaker so a failing Fleet API is not
// hammered on every sync pass. Sleeping vehicles and unknown ids are expected answers
// and do not count as failures.
type BreakerClient struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker[any]
}

// BreakerSettings configures NewBreakerClient.
type BreakerSettings struct {
	Name             string
	FailureThreshold uint32
	Interval         time.Duration
	Timeout          time.Duration
}

// DefaultBreakerSettings opens after 5 consecutive failures and probes again after a minute.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:             "fleet-api",
		FailureThreshold: 5,
		Interval:         time.Minute,
		Timeout:          time.Minute,
	}
}

func NewBreakerClient(next Gateway, s BreakerSettings) *BreakerClient {
	metrics.CircuitBreakerState.WithLabelValues(s.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrVehicleUnavailable) ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, context.Canceled)
		},
	})
	return &BreakerClient{next: next, cb: cb}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// State exposes the breaker state for health reporting.
func (b *BreakerClient) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerClient) ListVehicles(ctx context.Context, token string) ([]Vehicle, error) {
	res, err := b.cb.Execute(func() (any, error) { return b.next.ListVehicles(ctx, token) })
	if err != nil {
		return nil, err
	}
	return res.([]Vehicle), nil
}

func (b *BreakerClient) VehicleData(ctx context.Context, token, id string, endpoints []string) ([]byte, error) {
	res, err := b.cb.Execute(func() (any, error) { return b.next.VehicleData(ctx, token, id, endpoints) })
	if err != nil {
		return nil, err
	}
	return res.([]byte), nil
}

func (b *BreakerClient) WakeUp(ctx context.Context, token, id string) (*Vehicle, error) {
	res, err := b.cb.Execute(func() (any, error) { return b.next.WakeUp(ctx, token, id) })
	if err != nil {
		return nil, err
	}
	return res.(*Vehicle), nil
}

func (b *BreakerClient) ListEnergySites(ctx context.Context, token string) ([]EnergySite, error) {
	res, err := b.cb.Execute(func() (any, error) { return b.next.ListEnergySites(ctx, token) })
	if err != nil {
		return nil, err
	}
	return res.([]EnergySite), nil
}

func (b *BreakerClient) SiteLiveStatus(ctx context.Context, token, siteID string) ([]byte, error) {
	res, err := b.cb.Execute(func() (any, error) { return b.next.SiteLiveStatus(ctx, token, siteID) })
	if err != nil {
		return nil, err
	}
	return res.([]byte), nil
}
