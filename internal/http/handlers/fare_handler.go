// README: Fare estimate handler.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rideflow/internal/modules/fare"
	"rideflow/internal/types"
)

type FareHandler struct {
	fare *fare.Service
}

func NewFareHandler(svc *fare.Service) *FareHandler {
	return &FareHandler{fare: svc}
}

// Estimate quotes a fare for a pickup/dropoff pair without creating a ride.
func (h *FareHandler) Estimate(c *gin.Context) {
	pickup, ok := pointQuery(c, "pickup_lat", "pickup_lng")
	if !ok {
		return
	}
	dropoff, ok := pointQuery(c, "dest_lat", "dest_lng")
	if !ok {
		return
	}
	q, err := h.fare.Quote(c.Request.Context(), pickup, dropoff)
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, q)
}

func pointQuery(c *gin.Context, latKey, lngKey string) (types.Point, bool) {
	lat, err := strconv.ParseFloat(c.Query(latKey), 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid "+latKey)
		return types.Point{}, false
	}
	lng, err := strconv.ParseFloat(c.Query(lngKey), 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid "+lngKey)
		return types.Point{}, false
	}
	return types.Point{Lat: lat, Lng: lng}, true
}
