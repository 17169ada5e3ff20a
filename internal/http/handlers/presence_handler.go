// README: Nearby-driver lookup backed by the Redis presence pool.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rideflow/internal/modules/presence"
)

type PresenceHandler struct {
	presence *presence.Store
}

func NewPresenceHandler(store *presence.Store) *PresenceHandler {
	return &PresenceHandler{presence: store}
}

// Nearby lists online drivers around a point, closest first. Radius defaults
// to 5 km.
func (h *PresenceHandler) Nearby(c *gin.Context) {
	p, ok := pointQuery(c, "lat", "lng")
	if !ok {
		return
	}
	radius := 5.0
	if v := c.Query("radius_km"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 {
			writeError(c, http.StatusBadRequest, "invalid radius_km")
			return
		}
		radius = r
	}
	ids, err := h.presence.Nearby(c.Request.Context(), p, radius)
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"drivers": ids, "radius_km": radius})
}
