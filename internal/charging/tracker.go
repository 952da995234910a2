// Package charging reconstructs charging sessions from polled vehicle snapshots and
// answers queries about them.
package charging

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"tesla-telemetry-backend/internal/logging"
	"tesla-telemetry-backend/internal/metrics"
	"tesla-telemetry-backend/internal/model"
	"tesla-telemetry-backend/internal/store"
	"tesla-telemetry-backend/internal/tesla"
)

// Transition is what a snapshot did to the vehicle's session.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionOpened
	TransitionUpdated
	TransitionClosed
)

func (t Transition) String() string {
	switch t {
	case TransitionOpened:
		return "opened"
	case TransitionUpdated:
		return "updated"
	case TransitionClosed:
		return "closed"
	default:
		return "none"
	}
}

// Charging states reported in charge_state.charging_state.
const (
	StateCharging = "Charging"
	StateStarting = "Starting"
	StateStopped  = "Stopped"
)

// IsCharging reports whether state counts as actively charging.
func IsCharging(state string) bool {
	return state == StateCharging || state == StateStarting
}

// Result is returned by Tracker.Apply. Session is nil for TransitionNone.
type Result struct {
	Transition Transition
	Session    *model.ChargingSession
}

// Tracker applies accepted snapshots to the per-vehicle session state machine.
// It must only be driven from the sync pass.
type Tracker struct {
	store store.Store
}

func NewTracker(s store.Store) *Tracker {
	return &Tracker{store: s}
}

// Apply feeds one accepted snapshot taken at ts for the local vehicle vehicleID.
func (t *Tracker) Apply(ctx context.Context, vehicleID string, ts time.Time, data *tesla.VehicleData) (Result, error) {
	if data == nil || data.ChargeState == nil {
		return Result{}, nil
	}
	cs := data.ChargeState
	state := data.ChargingState()
	lat, lng := location(data)

	open, err := t.store.FindOpenSession(ctx, vehicleID)
	if err != nil {
		return Result{}, err
	}

	if IsCharging(state) {
		if open == nil {
			sess := &model.ChargingSession{
				VehicleID:         vehicleID,
				StartedAt:         ts,
				Status:            model.SessionInProgress,
				StartBatteryLevel: cs.BatteryLevel,
				ChargeRateKwAvg:   cs.ChargeRate,
				ChargeRateKwMax:   cs.ChargeRate,
				EnergyAddedKwh:    cs.ChargeEnergyAdded,
				Latitude:          lat,
				Longitude:         lng,
			}
			if err := t.store.CreateSession(ctx, sess); err != nil {
				return Result{}, err
			}
			metrics.ChargingSessions.WithLabelValues("opened").Inc()
			logging.Ctx(ctx).Info().Str("vehicle_id", vehicleID).Str("session_id", sess.ID).
				Time("started_at", ts).Msg("charging session opened")
			return Result{Transition: TransitionOpened, Session: sess}, nil
		}

		open.EndBatteryLevel = cs.BatteryLevel
		open.ChargeRateKwAvg = blendAverage(open.ChargeRateKwAvg, cs.ChargeRate)
		open.ChargeRateKwMax = runningMax(open.ChargeRateKwMax, cs.ChargeRate)
		if cs.ChargeEnergyAdded.Valid {
			open.EnergyAddedKwh = cs.ChargeEnergyAdded
		}
		open.Latitude = lat
		open.Longitude = lng
		if err := t.store.UpdateSession(ctx, open); err != nil {
			return Result{}, err
		}
		return Result{Transition: TransitionUpdated, Session: open}, nil
	}

	if open == nil {
		return Result{}, nil
	}
	// Out of order: leave it for a later snapshot to close.
	if ts.Before(open.StartedAt) {
		logging.Ctx(ctx).Debug().Str("session_id", open.ID).Time("snapshot", ts).
			Time("started_at", open.StartedAt).Msg("ignoring snapshot older than open session")
		return Result{}, nil
	}

	ended := ts
	minutes := int(math.Round(ts.Sub(open.StartedAt).Minutes()))
	open.EndedAt = &ended
	open.DurationMinutes = &minutes
	open.EndBatteryLevel = cs.BatteryLevel
	if cs.ChargeEnergyAdded.Valid {
		open.EnergyAddedKwh = cs.ChargeEnergyAdded
	}
	open.Status = model.SessionCompleted
	if state == StateStopped {
		open.Status = model.SessionInterrupted
	}
	if err := t.store.UpdateSession(ctx, open); err != nil {
		return Result{}, fmt.Errorf("close session %s: %w", open.ID, err)
	}

	metrics.ChargingSessions.WithLabelValues(string(open.Status)).Inc()
	logging.Ctx(ctx).Info().Str("vehicle_id", vehicleID).Str("session_id", open.ID).
		Str("status", string(open.Status)).Int("duration_minutes", minutes).Msg("charging session closed")
	return Result{Transition: TransitionClosed, Session: open}, nil
}

// blendAverage weighs the previous average and the current rate equally. With no prior
// average the current rate seeds it; with no current rate the average is unchanged.
func blendAverage(prev, cur decimal.NullDecimal) decimal.NullDecimal {
	if !cur.Valid {
		return prev
	}
	if !prev.Valid {
		return cur
	}
	two := decimal.NewFromInt(2)
	avg := prev.Decimal.Div(two).Add(cur.Decimal.Div(two)).Round(3)
	return decimal.NewNullDecimal(avg)
}

func runningMax(prev, cur decimal.NullDecimal) decimal.NullDecimal {
	if !cur.Valid {
		return prev
	}
	if !prev.Valid || cur.Decimal.GreaterThan(prev.Decimal) {
		return cur
	}
	return prev
}

func location(data *tesla.VehicleData) (lat, lng decimal.NullDecimal) {
	if data.DriveState == nil {
		return
	}
	return data.DriveState.Latitude, data.DriveState.Longitude
}
