package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetEnergySites handles GET /api/energy/sites.
func (h *Handler) GetEnergySites(c *gin.Context) {
	sites, err := h.energy.GetEnergySites(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sites)
}

// GetSiteData handles GET /api/energy/sites/:id.
func (h *Handler) GetSiteData(c *gin.Context) {
	status, err := h.energy.GetSiteData(c.Request.Context(), c.Param("id"), forceFresh(c))
	if err != nil {
		respondError(c, err)
		return
	}
	writeRaw(c, status.Raw, status)
}

func (h *Handler) ClearSiteCache(c *gin.Context) {
	id := c.Param("id")
	found, err := h.energy.ClearCache(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cache cleared for site " + id, "found": found})
}

func (h *Handler) ClearAllSiteCaches(c *gin.Context) {
	n, err := h.energy.ClearAllCaches(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All energy caches cleared", "deleted": n})
}
