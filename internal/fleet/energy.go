package fleet

import (
	"context"
	"time"

	"tesla-telemetry-backend/internal/apperr"
	"tesla-telemetry-backend/internal/cache"
	"tesla-telemetry-backend/internal/logging"
	"tesla-telemetry-backend/internal/tesla"
)

// EnergyService serves energy site live status. Sites are always reachable, so there is
// no stale fallback.
type EnergyService struct {
	gateway tesla.Gateway
	tokens  tesla.TokenProvider
	limiter RateLimiter
	cache   *cache.Cache
	dataTTL time.Duration
}

func NewEnergyService(gw tesla.Gateway, tokens tesla.TokenProvider, limiter RateLimiter, c *cache.Cache, dataTTL time.Duration) *EnergyService {
	return &EnergyService{gateway: gw, tokens: tokens, limiter: limiter, cache: c, dataTTL: dataTTL}
}

// GetEnergySites lists the account's energy products.
func (s *EnergyService) GetEnergySites(ctx context.Context) ([]tesla.EnergySite, error) {
	const op = "energy.sites"
	tok, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Upstream, op, err)
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, apperr.Wrap(apperr.Upstream, op, err)
	}
	sites, err := s.gateway.ListEnergySites(ctx, tok)
	if err != nil {
		return nil, upstreamErr(op, err)
	}
	return sites, nil
}

// GetSiteData returns live status for a site, from cache unless forceFresh.
func (s *EnergyService) GetSiteData(ctx context.Context, siteID string, forceFresh bool) (*tesla.LiveStatus, error) {
	const op = "energy.site_data"
	if !forceFresh {
		e, ok, err := s.cache.Get(ctx, cache.KindEnergyData, siteID)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, op, err)
		}
		if ok {
			status, err := tesla.DecodeLiveStatus(e.Payload)
			if err != nil {
				return nil, apperr.Wrap(apperr.Internal, op, err)
			}
			return status, nil
		}
	}

	tok, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Upstream, op, err)
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, apperr.Wrap(apperr.Upstream, op, err)
	}
	raw, err := s.gateway.SiteLiveStatus(ctx, tok, siteID)
	if err != nil {
		return nil, upstreamErr(op, err)
	}
	status, err := tesla.DecodeLiveStatus(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.Upstream, op, err)
	}

	if _, err := s.cache.Put(ctx, cache.KindEnergyData, siteID, status.Raw, s.dataTTL); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("site_id", siteID).Msg("failed to cache energy data")
	}
	return status, nil
}

func (s *EnergyService) ClearCache(ctx context.Context, siteID string) (bool, error) {
	found, err := s.cache.Invalidate(ctx, cache.KindEnergyData, siteID)
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "energy.clear_cache", err)
	}
	return found, nil
}

func (s *EnergyService) ClearAllCaches(ctx context.Context) (int64, error) {
	n, err := s.cache.InvalidateKind(ctx, cache.KindEnergyData)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "energy.clear_all", err)
	}
	return n, nil
}
