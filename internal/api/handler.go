package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"tesla-telemetry-backend/internal/apperr"
	"tesla-telemetry-backend/internal/charging"
	"tesla-telemetry-backend/internal/logging"
	"tesla-telemetry-backend/internal/model"
	"tesla-telemetry-backend/internal/store"
	"tesla-telemetry-backend/internal/syncer"
	"tesla-telemetry-backend/internal/tesla"
)

// VehicleService is the cache-backed vehicle read path.
type VehicleService interface {
	GetVehicles(ctx context.Context, forceFresh bool) ([]tesla.Vehicle, error)
	GetVehicleData(ctx context.Context, id string, forceFresh bool) (*tesla.VehicleData, error)
	Wake(ctx context.Context, id string) (*tesla.Vehicle, error)
	ClearCache(ctx context.Context, id string) (bool, error)
	ClearAllCaches(ctx context.Context) (int64, error)
}

// EnergyService is the cache-backed energy site read path.
type EnergyService interface {
	GetEnergySites(ctx context.Context) ([]tesla.EnergySite, error)
	GetSiteData(ctx context.Context, siteID string, forceFresh bool) (*tesla.LiveStatus, error)
	ClearCache(ctx context.Context, siteID string) (bool, error)
	ClearAllCaches(ctx context.Context) (int64, error)
}

type SyncService interface {
	RunSync(ctx context.Context) syncer.Result
	Status() syncer.Status
}

type ChargingService interface {
	ListSessions(ctx context.Context, f charging.Filter) ([]model.ChargingSession, error)
	GetSession(ctx context.Context, id string) (*model.ChargingSession, error)
	Stats(ctx context.Context, f charging.Filter) (store.SessionStats, error)
}

// Deps are the services the HTTP API is built on.
type Deps struct {
	Store    store.Store
	Vehicles VehicleService
	Energy   EnergyService
	Sync     SyncService
	Charging ChargingService
	WebPush  *webpush.Options
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	vehicles  VehicleService
	energy    EnergyService
	sync      SyncService
	charging  ChargingService
	webpush   *webpush.Options
	responses *cache.Cache
}

// NewHandler creates a new API handler. responses is the GET response cache flushed after each sync; it may be nil.
func NewHandler(d Deps, responses *cache.Cache) *Handler {
	return &Handler{
		store:     d.Store,
		vehicles:  d.Vehicles,
		energy:    d.Energy,
		sync:      d.Sync,
		charging:  d.Charging,
		webpush:   d.WebPush,
		responses: responses,
	}
}

// respondError renders err as {"error": msg} with the status of its kind.
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(apperr.KindOf(err))
	if status >= http.StatusInternalServerError {
		logging.Ctx(c.Request.Context()).Error().Err(err).Str("route", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// forceFresh reads the force or forceFresh query flag.
func forceFresh(c *gin.Context) bool {
	raw := c.Query("force")
	if raw == "" {
		raw = c.Query("forceFresh")
	}
	force, err := strconv.ParseBool(raw)
	return err == nil && force
}

func writeRaw(c *gin.Context, raw []byte, fallback any) {
	if len(raw) > 0 {
		c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
		return
	}
	c.JSON(http.StatusOK, fallback)
}
