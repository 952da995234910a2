package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tesla-telemetry-backend/internal/charging"
	"tesla-telemetry-backend/internal/model"
)

type sessionsQuery struct {
	VehicleID string     `form:"vehicleId" binding:"omitempty,identifier"`
	Status    string     `form:"status" binding:"omitempty,oneof=in_progress completed interrupted"`
	StartDate *time.Time `form:"startDate" time_format:"2006-01-02T15:04:05Z07:00"`
	EndDate   *time.Time `form:"endDate" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit     int        `form:"limit" binding:"omitempty,min=1,max=200"`
}

func (q sessionsQuery) filter() charging.Filter {
	return charging.Filter{
		Vehicle: q.VehicleID,
		Status:  model.SessionStatus(q.Status),
		From:    q.StartDate,
		To:      q.EndDate,
		Limit:   q.Limit,
	}
}

type sessionVehicle struct {
	ID          string `json:"id"`
	TeslaID     string `json:"teslaId"`
	VIN         string `json:"vin"`
	DisplayName string `json:"displayName"`
}

type sessionResponse struct {
	model.ChargingSession
	Vehicle *sessionVehicle `json:"vehicle,omitempty"`
}

func newSessionResponse(s model.ChargingSession) sessionResponse {
	resp := sessionResponse{ChargingSession: s}
	if s.Vehicle.ID != "" {
		resp.Vehicle = &sessionVehicle{
			ID:          s.Vehicle.ID,
			TeslaID:     s.Vehicle.TeslaID,
			VIN:         s.Vehicle.VIN,
			DisplayName: s.Vehicle.DisplayName,
		}
	}
	return resp
}

// GetChargingSessions handles GET /api/charging/sessions.
func (h *Handler) GetChargingSessions(c *gin.Context) {
	var q sessionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessions, err := h.charging.ListSessions(c.Request.Context(), q.filter())
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]sessionResponse, len(sessions))
	for i, s := range sessions {
		out[i] = newSessionResponse(s)
	}
	c.JSON(http.StatusOK, out)
}

// GetChargingSession handles GET /api/charging/sessions/:id.
func (h *Handler) GetChargingSession(c *gin.Context) {
	sess, err := h.charging.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(*sess))
}

// GetChargingStats handles GET /api/charging/stats.
func (h *Handler) GetChargingStats(c *gin.Context) {
	var q sessionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stats, err := h.charging.Stats(c.Request.Context(), q.filter())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
