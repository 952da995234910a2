package charging

import (
	"context"
	"errors"
	"time"

	"tesla-telemetry-backend/internal/apperr"
	"tesla-telemetry-backend/internal/model"
	"tesla-telemetry-backend/internal/store"
)

// Filter narrows session queries. Vehicle may be a local id, Fleet API id, vehicle_id or VIN.
type Filter struct {
	Vehicle string
	Status  model.SessionStatus
	From    *time.Time
	To      *time.Time
	Limit   int
}

// Queries is the read side of charging sessions.
type Queries struct {
	store store.Store
}

func NewQueries(s store.Store) *Queries {
	return &Queries{store: s}
}

func (q *Queries) resolve(ctx context.Context, op string, f Filter) (store.SessionFilter, error) {
	sf := store.SessionFilter{Status: f.Status, From: f.From, To: f.To, Limit: f.Limit}
	if f.Vehicle == "" {
		return sf, nil
	}
	id, err := q.store.ResolveVehicleID(ctx, f.Vehicle)
	if errors.Is(err, store.ErrNotFound) {
		return sf, apperr.New(apperr.NotFound, op, "vehicle "+f.Vehicle+" not found")
	}
	if err != nil {
		return sf, apperr.Wrap(apperr.Internal, op, err)
	}
	sf.VehicleID = id
	return sf, nil
}

// ListSessions returns matching sessions, newest first.
func (q *Queries) ListSessions(ctx context.Context, f Filter) ([]model.ChargingSession, error) {
	const op = "charging.list"
	sf, err := q.resolve(ctx, op, f)
	if err != nil {
		return nil, err
	}
	sessions, err := q.store.ListSessions(ctx, sf)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, op, err)
	}
	return sessions, nil
}

func (q *Queries) GetSession(ctx context.Context, id string) (*model.ChargingSession, error) {
	const op = "charging.get"
	sess, err := q.store.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, op, "charging session "+id+" not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, op, err)
	}
	return sess, nil
}

// Stats aggregates over every matching session. Limit is ignored.
func (q *Queries) Stats(ctx context.Context, f Filter) (store.SessionStats, error) {
	const op = "charging.stats"
	sf, err := q.resolve(ctx, op, f)
	if err != nil {
		return store.SessionStats{}, err
	}
	stats, err := q.store.SessionStats(ctx, sf)
	if err != nil {
		return store.SessionStats{}, apperr.Wrap(apperr.Internal, op, err)
	}
	return stats, nil
}
