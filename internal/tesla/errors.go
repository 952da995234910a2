package tesla

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthorized = errors.New("fleet api: unauthorized")
	ErrNotFound     = errors.New("fleet api: not found")
	// ErrVehicleUnavailable means the vehicle is offline or asleep.
	ErrVehicleUnavailable = errors.New("fleet api: vehicle unavailable: vehicle is offline or asleep")
	ErrRateLimited        = errors.New("fleet api: rate limited")
	// ErrEmptySnapshot is returned for payloads that carry no telemetry block.
	ErrEmptySnapshot = errors.New("fleet api: snapshot carries no telemetry")
)

// HTTPError is any other non-200 response.
type HTTPError struct {
	Code    int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("fleet api: http %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("fleet api: http %d: %s", e.Code, e.Message)
}

// Temporary reports whether retrying later may succeed.
func (e *HTTPError) Temporary() bool {
	return e.Code == http.StatusBadGateway || e.Code == http.StatusGatewayTimeout
}
