package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"tesla-telemetry-backend/internal/mw"
)

// RouterConfig tunes the middleware stack.
type RouterConfig struct {
	RateLimitPerSec float64
	RateLimitBurst  int
	// CacheTTL is the response cache lifetime for charging queries. Zero disables it.
	CacheTTL time.Duration
}

// NewRouter creates and configures a new Gin router.
func NewRouter(d Deps, cfg RouterConfig) *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLogger())

	responses := cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	caching := mw.Cache(responses, cfg.CacheTTL)
	handler := NewHandler(d, responses)

	limiter := mw.NewIPRateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(mw.RateLimiter(limiter))
	{
		api.GET("/vehicles", handler.GetVehicles)
		api.DELETE("/vehicles/cache", handler.ClearAllVehicleCaches)
		api.GET("/vehicles/:id", handler.GetVehicleData)
		api.GET("/vehicles/:id/history", caching, handler.GetVehicleHistory)
		api.POST("/vehicles/:id/wake", handler.WakeVehicle)
		api.DELETE("/vehicles/:id/cache", handler.ClearVehicleCache)

		api.GET("/energy/sites", handler.GetEnergySites)
		api.GET("/energy/sites/:id", handler.GetSiteData)
		api.DELETE("/energy/sites/:id/cache", handler.ClearSiteCache)
		api.DELETE("/energy/cache", handler.ClearAllSiteCaches)

		api.DELETE("/cache", handler.ClearAllCaches)

		api.POST("/sync", handler.RunSync)
		api.GET("/sync/cron", handler.RunSync)
		api.GET("/sync/status", handler.GetSyncStatus)

		api.GET("/charging/sessions", caching, handler.GetChargingSessions)
		api.GET("/charging/sessions/:id", caching, handler.GetChargingSession)
		api.GET("/charging/stats", caching, handler.GetChargingStats)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
