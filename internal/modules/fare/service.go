// README: Fare estimation; deterministic base + per-km formula over road or haversine distance.
package fare

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"rideflow/internal/config"
	"rideflow/internal/types"
)

// RoadDistancer supplies routed distance (Google Directions). Optional: when
// absent or failing, the great-circle distance is used so the estimate stays
// a pure function of the two coordinates.
type RoadDistancer interface {
	RoadDistanceKm(ctx context.Context, origin, dest types.Point) (float64, error)
}

type Quote struct {
	Fare       types.Money `json:"fare"`
	DistanceKm float64     `json:"distance_km"`
}

type Service struct {
	cfg   config.FareConfig
	roads RoadDistancer
	log   *logrus.Logger
}

func NewService(cfg config.FareConfig, roads RoadDistancer, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{cfg: cfg, roads: roads, log: log}
}

func (s *Service) Quote(ctx context.Context, pickup, dropoff types.Point) (Quote, error) {
	km := DistanceKm(pickup, dropoff)
	if s.roads != nil {
		if routed, err := s.roads.RoadDistanceKm(ctx, pickup, dropoff); err == nil {
			km = routed
		} else {
			s.log.WithError(err).Debug("road distance lookup failed, using haversine")
		}
	}
	amount := int64(math.Round(float64(s.cfg.BaseFare) + float64(s.cfg.PerKm)*km))
	return Quote{
		Fare:       types.Money{Amount: amount, Currency: s.cfg.Currency},
		DistanceKm: math.Round(km*100) / 100,
	}, nil
}

// Estimate satisfies the dispatch facade's fare collaborator.
func (s *Service) Estimate(ctx context.Context, pickup, dropoff types.Point) (types.Money, error) {
	q, err := s.Quote(ctx, pickup, dropoff)
	if err != nil {
		return types.Money{}, err
	}
	return q.Fare, nil
}

// DistanceKm is the haversine great-circle distance.
func DistanceKm(a, b types.Point) float64 {
	const R = 6371.0
	lat1 := a.Lat * math.Pi / 180.0
	lat2 := b.Lat * math.Pi / 180.0
	dlat := (b.Lat - a.Lat) * math.Pi / 180.0
	dlng := (b.Lng - a.Lng) * math.Pi / 180.0
	h := math.Sin(dlat/2)*math.Sin(dlat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	return 2 * R * math.Asin(math.Sqrt(h))
}
