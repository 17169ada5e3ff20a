// README: HTTP router registration; wires middleware and per-role route groups.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"rideflow/internal/http/handlers"
	"rideflow/internal/http/middleware"
	"rideflow/internal/infra"
	"rideflow/internal/modules/driver"
	"rideflow/internal/modules/fare"
	"rideflow/internal/modules/presence"
	"rideflow/internal/modules/reports"
	"rideflow/internal/modules/ride"
)

type RouterDeps struct {
	Rides    *ride.Service
	Drivers  *driver.Service
	Fare     *fare.Service
	Reports  *reports.Store
	Presence *presence.Store
	Verifier infra.TokenVerifier
	Log      *logrus.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log))
	r.Use(middleware.Logging(deps.Log))
	r.Use(middleware.Metrics())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rideHandler := handlers.NewRideHandler(deps.Rides)
	driverHandler := handlers.NewDriverHandler(deps.Drivers, deps.Rides)
	adminHandler := handlers.NewAdminHandler(deps.Rides, deps.Drivers, deps.Reports, deps.Presence)
	fareHandler := handlers.NewFareHandler(deps.Fare)
	presenceHandler := handlers.NewPresenceHandler(deps.Presence)

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	api.GET("/fare/estimate", fareHandler.Estimate)
	api.GET("/drivers/nearby", presenceHandler.Nearby)

	rides := api.Group("/rides")
	rides.POST("", rideHandler.Request)
	rides.GET("/current", rideHandler.Current)
	rides.GET("/history", rideHandler.History)
	rides.GET("/:id", rideHandler.Get)
	rides.POST("/:id/cancel", rideHandler.Cancel)

	drv := api.Group("/driver", middleware.RequireRole("driver"))
	drv.POST("/register", driverHandler.Register)
	drv.GET("/me", driverHandler.Me)
	drv.POST("/availability", driverHandler.SetAvailability)
	drv.PUT("/vehicle", driverHandler.UpdateVehicle)
	drv.POST("/location", driverHandler.ReportLocation)
	drv.GET("/rides/open", driverHandler.OpenRides)
	drv.POST("/rides/:id/accept", driverHandler.Accept)
	drv.POST("/rides/:id/reject", driverHandler.Reject)
	drv.POST("/rides/:id/advance", driverHandler.Advance)
	drv.GET("/earnings", driverHandler.Earnings)

	admin := api.Group("/admin", middleware.RequireRole("admin"))
	admin.GET("/rides", adminHandler.ListRides)
	admin.GET("/rides/:id", adminHandler.GetRide)
	admin.PATCH("/rides/:id/status", adminHandler.ForceStatus)
	admin.DELETE("/rides/:id", adminHandler.DeleteRide)
	admin.GET("/drivers", adminHandler.ListDrivers)
	admin.POST("/drivers/:id/approve", adminHandler.ApproveDriver)
	admin.POST("/drivers/:id/suspend", adminHandler.SuspendDriver)
	admin.POST("/drivers/:id/reactivate", adminHandler.ReactivateDriver)
	admin.GET("/reports/rides", adminHandler.RideReport)
	admin.GET("/reports/drivers", adminHandler.DriverReport)

	return r
}
