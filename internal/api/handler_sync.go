package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RunSync handles POST /api/sync and GET /api/sync/cron. A failed pass is still a 200
// with success=false in the body.
func (h *Handler) RunSync(c *gin.Context) {
	res := h.sync.RunSync(c.Request.Context())
	if res.Success && h.responses != nil {
		h.responses.Flush()
	}
	c.JSON(http.StatusOK, res)
}

// GetSyncStatus handles GET /api/sync/status.
func (h *Handler) GetSyncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.sync.Status())
}

// ClearAllCaches handles DELETE /api/cache.
func (h *Handler) ClearAllCaches(c *gin.Context) {
	ctx := c.Request.Context()
	vehicles, err := h.vehicles.ClearAllCaches(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	sites, err := h.energy.ClearAllCaches(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	if h.responses != nil {
		h.responses.Flush()
	}
	c.JSON(http.StatusOK, gin.H{"message": "All caches cleared", "deleted": vehicles + sites})
}
