// README: Google Maps routed distance used by fare estimation.
package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"rideflow/internal/types"
)

// RouteService handles interactions with the Google Maps Directions API.
type RouteService struct {
	client *maps.Client
}

func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// RoadDistanceKm returns the driving distance of the best route between two
// coordinates.
func (s *RouteService) RoadDistanceKm(ctx context.Context, origin, dest types.Point) (float64, error) {
	r := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", origin.Lat, origin.Lng),
		Destination: fmt.Sprintf("%f,%f", dest.Lat, dest.Lng),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, fmt.Errorf("no route found")
	}

	meters := 0
	for _, leg := range routes[0].Legs {
		meters += leg.Distance.Meters
	}
	return float64(meters) / 1000.0, nil
}
