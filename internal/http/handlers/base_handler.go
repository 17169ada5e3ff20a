// README: Base handler utilities (JSON helpers, error mapping, actor extraction).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rideflow/internal/http/middleware"
	"rideflow/internal/modules/driver"
	"rideflow/internal/modules/ride"
	"rideflow/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeRideError maps dispatch sentinels onto HTTP statuses. Conflicts cover
// every lost race and FSM violation; only store unavailability invites a retry.
func writeRideError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ride.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ride.ErrNotFound), errors.Is(err, driver.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ride.ErrUnauthorized),
		errors.Is(err, ride.ErrNotAssigned),
		errors.Is(err, ride.ErrDriverNotEligible),
		errors.Is(err, driver.ErrSuspended):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, ride.ErrActiveRide),
		errors.Is(err, ride.ErrAlreadyClaimed),
		errors.Is(err, ride.ErrDriverBusy),
		errors.Is(err, ride.ErrInvalidTransition),
		errors.Is(err, ride.ErrInvalidState):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, ride.ErrNoDriversAvailable), errors.Is(err, ride.ErrStoreUnavailable):
		writeError(c, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// caller builds the dispatch actor from the verified token on the context.
func caller(c *gin.Context) ride.Actor {
	return ride.Actor{
		Role: ride.Role(middleware.CallerRole(c)),
		ID:   types.ID(middleware.CallerUID(c)),
	}
}
