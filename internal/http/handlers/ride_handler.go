// README: Rider-facing ride handlers: request, cancel, view, current, history.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rideflow/internal/modules/ride"
	"rideflow/internal/types"
)

type RideHandler struct {
	rides *ride.Service
}

func NewRideHandler(svc *ride.Service) *RideHandler {
	return &RideHandler{rides: svc}
}

type placeReq struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

func (p placeReq) place() ride.Place {
	return ride.Place{Point: types.Point{Lat: p.Lat, Lng: p.Lng}, Address: p.Address}
}

type requestRideReq struct {
	Pickup      placeReq `json:"pickup"`
	Destination placeReq `json:"destination"`
}

func (h *RideHandler) Request(c *gin.Context) {
	var req requestRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	r, err := h.rides.Request(c.Request.Context(), ride.RequestCommand{
		Actor:       caller(c),
		Pickup:      req.Pickup.place(),
		Destination: req.Destination.place(),
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, r)
}

func (h *RideHandler) Cancel(c *gin.Context) {
	r, err := h.rides.Cancel(c.Request.Context(), ride.CancelCommand{
		Actor:  caller(c),
		RideID: types.ID(c.Param("id")),
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Get(c *gin.Context) {
	r, err := h.rides.View(c.Request.Context(), caller(c), types.ID(c.Param("id")))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Current(c *gin.Context) {
	r, err := h.rides.Current(c.Request.Context(), caller(c))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) History(c *gin.Context) {
	rides, err := h.rides.History(c.Request.Context(), caller(c))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"rides": rides})
}
