package fleet

import (
	"context"
	"fmt"
	"time"

	"tesla-telemetry-backend/internal/apperr"
	"tesla-telemetry-backend/internal/cache"
	"tesla-telemetry-backend/internal/logging"
	"tesla-telemetry-backend/internal/tesla"
)

// VehicleConfig holds the TTLs and wake behaviour of VehicleService.
type VehicleConfig struct {
	ListTTL   time.Duration
	DataTTL   time.Duration
	WakeDelay time.Duration
	Endpoints []string
}

// VehicleService serves vehicle lists and snapshots, preferring the cache.
type VehicleService struct {
	gateway tesla.Gateway
	tokens  tesla.TokenProvider
	limiter RateLimiter
	cache   *cache.Cache
	cfg     VehicleConfig
	sleep   func(context.Context, time.Duration) error
}

func NewVehicleService(gw tesla.Gateway, tokens tesla.TokenProvider, limiter RateLimiter, c *cache.Cache, cfg VehicleConfig) *VehicleService {
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = tesla.DefaultVehicleEndpoints
	}
	return &VehicleService{
		gateway: gw,
		tokens:  tokens,
		limiter: limiter,
		cache:   c,
		cfg:     cfg,
		sleep:   sleepContext,
	}
}

func (s *VehicleService) token(ctx context.Context, op string) (string, error) {
	tok, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return "", apperr.Wrap(apperr.Upstream, op, err)
	}
	return tok, nil
}

// GetVehicles returns the account's vehicles from the short-lived list cache, or upstream.
func (s *VehicleService) GetVehicles(ctx context.Context, forceFresh bool) ([]tesla.Vehicle, error) {
	const op = "vehicles.list"
	if !forceFresh {
		var cached []tesla.Vehicle
		_, ok, err := s.cache.GetJSON(ctx, cache.KindVehicleList, cache.SingletonKey, &cached)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, op, err)
		}
		if ok {
			return cached, nil
		}
	}

	tok, err := s.token(ctx, op)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, apperr.Wrap(apperr.Upstream, op, err)
	}
	vehicles, err := s.gateway.ListVehicles(ctx, tok)
	if err != nil {
		return nil, upstreamErr(op, err)
	}

	if _, err := s.cache.PutJSON(ctx, cache.KindVehicleList, cache.SingletonKey, vehicles, s.cfg.ListTTL); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("failed to cache vehicle list")
	}
	return vehicles, nil
}

func findVehicle(vehicles []tesla.Vehicle, id string) (tesla.Vehicle, bool) {
	for _, v := range vehicles {
		if v.TeslaID() == id || v.VIN == id || fmt.Sprint(v.VehicleID) == id {
			return v, true
		}
	}
	return tesla.Vehicle{}, false
}

// GetVehicleData returns a snapshot for the vehicle with Fleet API id id.
//
// A fresh cache entry is returned unless forceFresh. Otherwise the list cache decides
// whether the vehicle is online. For a sleeping vehicle the last cached snapshot is
// served even when expired; without one the call fails as unreachable, or, when forced,
// the vehicle is woken and fetched after the wake delay.
func (s *VehicleService) GetVehicleData(ctx context.Context, id string, forceFresh bool) (*tesla.VehicleData, error) {
	const op = "vehicles.data"
	if !forceFresh {
		e, ok, err := s.cache.Get(ctx, cache.KindVehicleData, id)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, op, err)
		}
		if ok {
			return decodeCached(op, e)
		}
	}

	vehicles, err := s.GetVehicles(ctx, false)
	if err != nil {
		return nil, err
	}
	vehicle, ok := findVehicle(vehicles, id)
	if !ok {
		return nil, apperr.New(apperr.NotFound, op, fmt.Sprintf("vehicle %s not found", id))
	}

	if !vehicle.Online() {
		stale, ok, err := s.cache.GetStale(ctx, cache.KindVehicleData, id)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, op, err)
		}
		if ok {
			logging.Ctx(ctx).Debug().Str("vehicle_id", id).Str("state", vehicle.State).
				Time("cached_at", stale.CachedAt).Msg("serving stale snapshot for sleeping vehicle")
			return decodeCached(op, stale)
		}
		if !forceFresh {
			return nil, apperr.New(apperr.Unreachable, op,
				fmt.Sprintf("vehicle %s is %s and no cached data is available; retry with force to wake it", id, vehicle.State))
		}

		if _, err := s.Wake(ctx, id); err != nil {
			return nil, apperr.Wrap(apperr.Upstream, op, err)
		}
		if err := s.sleep(ctx, s.cfg.WakeDelay); err != nil {
			return nil, apperr.Wrap(apperr.Upstream, op, err)
		}
		data, err := s.fetch(ctx, op, id)
		if err != nil {
			return nil, apperr.Wrap(apperr.Upstream, op, err)
		}
		return data, nil
	}

	return s.fetch(ctx, op, id)
}

func (s *VehicleService) fetch(ctx context.Context, op, id string) (*tesla.VehicleData, error) {
	tok, err := s.token(ctx, op)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, apperr.Wrap(apperr.Upstream, op, err)
	}
	raw, err := s.gateway.VehicleData(ctx, tok, id, s.cfg.Endpoints)
	if err != nil {
		return nil, upstreamErr(op, err)
	}
	data, err := tesla.DecodeVehicleData(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.Upstream, op, err)
	}

	if _, err := s.cache.Put(ctx, cache.KindVehicleData, id, data.Raw, s.cfg.DataTTL); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("vehicle_id", id).Msg("failed to cache vehicle data")
	}
	return data, nil
}

func decodeCached(op string, e *cache.Entry) (*tesla.VehicleData, error) {
	data, err := tesla.DecodeVehicleData(e.Payload)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, op, err)
	}
	return data, nil
}

// Wake asks the vehicle to come online and drops the list cache so the next lookup sees the new state.
func (s *VehicleService) Wake(ctx context.Context, id string) (*tesla.Vehicle, error) {
	const op = "vehicles.wake"
	tok, err := s.token(ctx, op)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, apperr.Wrap(apperr.Upstream, op, err)
	}
	v, err := s.gateway.WakeUp(ctx, tok, id)
	if err != nil {
		return nil, upstreamErr(op, err)
	}
	if _, err := s.cache.Invalidate(ctx, cache.KindVehicleList, cache.SingletonKey); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("failed to invalidate vehicle list cache")
	}
	logging.Ctx(ctx).Info().Str("vehicle_id", id).Str("state", v.State).Msg("wake requested")
	return v, nil
}

// ClearCache drops the cached snapshot of one vehicle.
func (s *VehicleService) ClearCache(ctx context.Context, id string) (bool, error) {
	found, err := s.cache.Invalidate(ctx, cache.KindVehicleData, id)
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "vehicles.clear_cache", err)
	}
	return found, nil
}

// ClearAllCaches drops every cached vehicle snapshot and the vehicle list.
func (s *VehicleService) ClearAllCaches(ctx context.Context) (int64, error) {
	const op = "vehicles.clear_all"
	n, err := s.cache.InvalidateKind(ctx, cache.KindVehicleData)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, op, err)
	}
	m, err := s.cache.InvalidateKind(ctx, cache.KindVehicleList)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, op, err)
	}
	return n + m, nil
}
