package store

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"tesla-telemetry-backend/internal/model"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("record not found")

// MaxListLimit caps list queries.
const MaxListLimit = 200

// SessionFilter narrows charging session queries. Zero values match everything.
type SessionFilter struct {
	VehicleID string // local vehicle id
	Status    model.SessionStatus
	From      *time.Time // started_at >= From
	To        *time.Time // started_at <= To
	Limit     int
}

// StateFilter narrows vehicle history queries.
type StateFilter struct {
	VehicleID string
	From      *time.Time
	To        *time.Time
	Limit     int
}

// SessionStats aggregates the sessions matched by a SessionFilter.
type SessionStats struct {
	SessionCount         int64           `json:"sessionCount"`
	TotalEnergyAddedKwh  decimal.Decimal `json:"totalEnergyAddedKwh"`
	TotalCost            decimal.Decimal `json:"totalCost"`
	TotalDurationMinutes int64           `json:"totalDurationMinutes"`
	AverageChargeRateKw  decimal.Decimal `json:"averageChargeRateKw"`
	AverageCostPerKwh    decimal.Decimal `json:"averageCostPerKwh"`
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
