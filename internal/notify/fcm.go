// README: Fire-and-forget FCM pushes for ride state changes.
package notify

import (
	"context"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"

	"rideflow/internal/modules/ride"
	"rideflow/internal/types"
)

// FCM publishes ride updates to per-user topics. Delivery failures are logged
// and swallowed; a push must never fail a dispatch operation.
type FCM struct {
	client *messaging.Client
	log    *logrus.Logger
}

func NewFCM(client *messaging.Client, log *logrus.Logger) *FCM {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FCM{client: client, log: log}
}

func (f *FCM) RideUpdated(r *ride.Ride) {
	if f.client == nil {
		return
	}
	targets := []types.ID{r.RiderID}
	if r.DriverID != nil {
		targets = append(targets, *r.DriverID)
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, t := range targets {
			msg := &messaging.Message{
				Topic: "user_" + string(t),
				Data: map[string]string{
					"ride_id": string(r.ID),
					"status":  string(r.Status),
				},
			}
			if _, err := f.client.Send(ctx, msg); err != nil {
				f.log.WithError(err).WithFields(logrus.Fields{
					"ride_id": r.ID, "topic": msg.Topic,
				}).Warn("ride push failed")
			}
		}
	}()
}
