// README: Admin handlers: ride oversight, driver moderation and reports.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"rideflow/internal/modules/driver"
	"rideflow/internal/modules/presence"
	"rideflow/internal/modules/reports"
	"rideflow/internal/modules/ride"
	"rideflow/internal/types"
)

type AdminHandler struct {
	rides    *ride.Service
	drivers  *driver.Service
	reports  *reports.Store
	presence *presence.Store
}

func NewAdminHandler(rides *ride.Service, drivers *driver.Service, reports *reports.Store, presence *presence.Store) *AdminHandler {
	return &AdminHandler{rides: rides, drivers: drivers, reports: reports, presence: presence}
}

func (h *AdminHandler) ListRides(c *gin.Context) {
	var f ride.ListFilter
	if v := c.Query("status"); v != "" {
		st := ride.Status(v)
		if !st.Valid() {
			writeError(c, http.StatusBadRequest, "invalid status filter")
			return
		}
		f.Status = &st
	}
	if v := c.Query("rider_id"); v != "" {
		id := types.ID(v)
		f.RiderID = &id
	}
	if v := c.Query("driver_id"); v != "" {
		id := types.ID(v)
		f.DriverID = &id
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		f.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		f.To = &t
	}
	f.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))

	rides, err := h.rides.AdminList(c.Request.Context(), caller(c), f)
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"rides": rides, "page": f.Page, "limit": f.Limit})
}

func (h *AdminHandler) GetRide(c *gin.Context) {
	r, err := h.rides.View(c.Request.Context(), caller(c), types.ID(c.Param("id")))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

type forceStatusReq struct {
	Status string `json:"status"`
}

func (h *AdminHandler) ForceStatus(c *gin.Context) {
	var req forceStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	r, err := h.rides.ForceStatus(c.Request.Context(), ride.ForceStatusCommand{
		Actor:  caller(c),
		RideID: types.ID(c.Param("id")),
		Status: ride.Status(req.Status),
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *AdminHandler) DeleteRide(c *gin.Context) {
	if err := h.rides.AdminDelete(c.Request.Context(), caller(c), types.ID(c.Param("id"))); err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "deleted"})
}

func (h *AdminHandler) ListDrivers(c *gin.Context) {
	drivers, err := h.drivers.List(c.Request.Context())
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"drivers": drivers})
}

func (h *AdminHandler) ApproveDriver(c *gin.Context) {
	d, err := h.drivers.Approve(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

func (h *AdminHandler) SuspendDriver(c *gin.Context) {
	d, err := h.drivers.Suspend(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

func (h *AdminHandler) ReactivateDriver(c *gin.Context) {
	d, err := h.drivers.Reactivate(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

func (h *AdminHandler) RideReport(c *gin.Context) {
	period := c.DefaultQuery("period", "day")
	if period != "day" && period != "month" {
		writeError(c, http.StatusBadRequest, "period must be day or month")
		return
	}
	buckets, err := h.reports.RideStats(c.Request.Context(), period)
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"period": period, "buckets": buckets})
}

func (h *AdminHandler) DriverReport(c *gin.Context) {
	stats, err := h.reports.DriverStats(c.Request.Context())
	if err != nil {
		writeRideError(c, err)
		return
	}
	// The GEO pool can lag the authoritative availability flag; report both.
	pool, err := h.presence.OnlineCount(c.Request.Context())
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"online":          stats.Online,
		"presence_pool":   pool,
		"completion_rate": stats.CompletionRate,
		"avg_earnings":    stats.AvgEarnings,
	})
}
