package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tesla-telemetry-backend/internal/apperr"
	"tesla-telemetry-backend/internal/store"
)

// GetVehicles handles GET /api/vehicles.
func (h *Handler) GetVehicles(c *gin.Context) {
	vehicles, err := h.vehicles.GetVehicles(c.Request.Context(), forceFresh(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, vehicles)
}

// GetVehicleData handles GET /api/vehicles/:id.
func (h *Handler) GetVehicleData(c *gin.Context) {
	data, err := h.vehicles.GetVehicleData(c.Request.Context(), c.Param("id"), forceFresh(c))
	if err != nil {
		respondError(c, err)
		return
	}
	writeRaw(c, data.Raw, data)
}

// WakeVehicle handles POST /api/vehicles/:id/wake.
func (h *Handler) WakeVehicle(c *gin.Context) {
	v, err := h.vehicles.Wake(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": v.State})
}

func (h *Handler) ClearVehicleCache(c *gin.Context) {
	id := c.Param("id")
	found, err := h.vehicles.ClearCache(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cache cleared for vehicle " + id, "found": found})
}

func (h *Handler) ClearAllVehicleCaches(c *gin.Context) {
	n, err := h.vehicles.ClearAllCaches(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All vehicle caches cleared", "deleted": n})
}

type historyQuery struct {
	StartDate *time.Time `form:"startDate" time_format:"2006-01-02T15:04:05Z07:00"`
	EndDate   *time.Time `form:"endDate" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit     int        `form:"limit" binding:"omitempty,min=1,max=200"`
}

// GetVehicleHistory handles GET /api/vehicles/:id/history, newest snapshot first.
func (h *Handler) GetVehicleHistory(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	ident := c.Param("id")
	vehicleID, err := h.store.ResolveVehicleID(ctx, ident)
	if errors.Is(err, store.ErrNotFound) {
		respondError(c, apperr.New(apperr.NotFound, "vehicles.history", "vehicle "+ident+" not found"))
		return
	}
	if err != nil {
		respondError(c, apperr.Wrap(apperr.Internal, "vehicles.history", err))
		return
	}

	states, err := h.store.ListVehicleStates(ctx, store.StateFilter{
		VehicleID: vehicleID,
		From:      q.StartDate,
		To:        q.EndDate,
		Limit:     q.Limit,
	})
	if err != nil {
		respondError(c, apperr.Wrap(apperr.Internal, "vehicles.history", err))
		return
	}
	c.JSON(http.StatusOK, states)
}
