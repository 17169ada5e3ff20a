// README: Entry point; loads config, wires module services and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rideflow/internal/config"
	httptransport "rideflow/internal/http"
	"rideflow/internal/infra"
	"rideflow/internal/logger"
	rfmaps "rideflow/internal/maps"
	"rideflow/internal/modules/driver"
	"rideflow/internal/modules/fare"
	"rideflow/internal/modules/presence"
	"rideflow/internal/modules/reports"
	"rideflow/internal/modules/ride"
	"rideflow/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	lg := logger.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Firebase.ProjectID == "" {
		lg.Fatal("RIDEFLOW_FIREBASE_PROJECT_ID is required")
	}
	fbApp, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		lg.WithError(err).Fatal("firebase init")
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, fbApp)
	if err != nil {
		lg.WithError(err).Fatal("firebase verifier init")
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		lg.WithError(err).Fatal("postgres init")
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)

	var roads fare.RoadDistancer
	if cfg.Maps.APIKey != "" {
		routeSvc, err := rfmaps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			lg.WithError(err).Fatal("maps init")
		}
		roads = routeSvc
	}
	fareSvc := fare.NewService(cfg.Fare, roads, lg)

	presenceStore := presence.NewStore(redisClient, dbPool)
	driverStore := driver.NewStore(dbPool)
	driverSvc := driver.NewService(driverStore, presenceStore, lg)

	var notifier ride.Notifier
	if fcmClient, err := infra.NewMessagingClient(ctx, fbApp); err != nil {
		lg.WithError(err).Warn("fcm unavailable, ride pushes disabled")
	} else {
		notifier = notify.NewFCM(fcmClient, lg)
	}

	rideStore := ride.NewPGStore(dbPool)
	rideSvc := ride.NewService(rideStore, driverSvc, fareSvc, notifier, lg)

	reportStore := reports.NewStore(dbPool)

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Rides:    rideSvc,
		Drivers:  driverSvc,
		Fare:     fareSvc,
		Reports:  reportStore,
		Presence: presenceStore,
		Verifier: verifier,
		Log:      lg,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	lg.WithField("addr", cfg.HTTP.Addr).Info("listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		lg.WithError(err).Fatal("server exited")
	}
}
