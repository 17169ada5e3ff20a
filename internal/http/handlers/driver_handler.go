// README: Driver-facing handlers: profile, availability, queue browsing and ride lifecycle.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rideflow/internal/modules/driver"
	"rideflow/internal/modules/ride"
	"rideflow/internal/types"
)

type DriverHandler struct {
	drivers *driver.Service
	rides   *ride.Service
}

func NewDriverHandler(drivers *driver.Service, rides *ride.Service) *DriverHandler {
	return &DriverHandler{drivers: drivers, rides: rides}
}

type vehicleReq struct {
	Model        string `json:"model"`
	LicensePlate string `json:"license_plate"`
}

func (h *DriverHandler) Register(c *gin.Context) {
	var req vehicleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	d, err := h.drivers.Register(c.Request.Context(), caller(c).ID, driver.Vehicle{
		Model:        req.Model,
		LicensePlate: req.LicensePlate,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, d)
}

func (h *DriverHandler) Me(c *gin.Context) {
	d, err := h.drivers.ByUser(c.Request.Context(), caller(c).ID)
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

type availabilityReq struct {
	Available bool     `json:"available"`
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
}

func (h *DriverHandler) SetAvailability(c *gin.Context) {
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	var pos *types.Point
	if req.Lat != nil && req.Lng != nil {
		pos = &types.Point{Lat: *req.Lat, Lng: *req.Lng}
	}
	d, err := h.drivers.SetAvailability(c.Request.Context(), caller(c).ID, req.Available, pos)
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

func (h *DriverHandler) UpdateVehicle(c *gin.Context) {
	var req vehicleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	d, err := h.drivers.UpdateVehicle(c.Request.Context(), caller(c).ID, driver.Vehicle{
		Model:        req.Model,
		LicensePlate: req.LicensePlate,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

type locationReq struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (h *DriverHandler) ReportLocation(c *gin.Context) {
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.drivers.ReportLocation(c.Request.Context(), caller(c).ID, types.Point{Lat: req.Lat, Lng: req.Lng}); err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

func (h *DriverHandler) OpenRides(c *gin.Context) {
	rides, err := h.rides.ListOpen(c.Request.Context(), caller(c))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"rides": rides})
}

func (h *DriverHandler) Accept(c *gin.Context) {
	r, err := h.rides.Accept(c.Request.Context(), ride.AcceptCommand{
		Actor:  caller(c),
		RideID: types.ID(c.Param("id")),
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *DriverHandler) Reject(c *gin.Context) {
	err := h.rides.Reject(c.Request.Context(), ride.RejectCommand{
		Actor:  caller(c),
		RideID: types.ID(c.Param("id")),
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": string(ride.StatusRequested)})
}

type advanceReq struct {
	Status string `json:"status"`
}

func (h *DriverHandler) Advance(c *gin.Context) {
	var req advanceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	r, err := h.rides.Advance(c.Request.Context(), ride.AdvanceCommand{
		Actor:  caller(c),
		RideID: types.ID(c.Param("id")),
		Next:   ride.Status(req.Status),
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

// Earnings returns the running total plus the completed rides behind it.
func (h *DriverHandler) Earnings(c *gin.Context) {
	d, err := h.drivers.ByUser(c.Request.Context(), caller(c).ID)
	if err != nil {
		writeRideError(c, err)
		return
	}
	history, err := h.rides.History(c.Request.Context(), caller(c))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"total": d.Earnings, "rides": history})
}
