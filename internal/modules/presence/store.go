// README: Driver presence pool backed by Redis GEO, with Postgres location snapshots.
package presence

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"rideflow/internal/types"
)

const driverGeoKey = "presence:drivers"

type Store struct {
	redis *redis.Client
	db    *pgxpool.Pool
}

func NewStore(redis *redis.Client, db *pgxpool.Pool) *Store {
	return &Store{redis: redis, db: db}
}

// SetOnline adds the driver to the pool. Without a position the driver is
// claim-eligible but invisible to nearby queries until the first ping.
func (s *Store) SetOnline(ctx context.Context, id types.ID, pos *types.Point) error {
	if pos == nil {
		return nil
	}
	return s.geoAdd(ctx, id, *pos)
}

func (s *Store) SetOffline(ctx context.Context, id types.ID) error {
	return s.redis.ZRem(ctx, driverGeoKey, string(id)).Err()
}

// Update refreshes the GEO entry and appends a durable snapshot for replay.
func (s *Store) Update(ctx context.Context, id types.ID, pos types.Point) error {
	if err := s.geoAdd(ctx, id, pos); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO driver_locations (driver_id, lat, lng, recorded_at)
		VALUES ($1, $2, $3, $4)`,
		string(id), pos.Lat, pos.Lng, time.Now().UTC(),
	)
	return err
}

func (s *Store) Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := s.redis.GeoSearch(ctx, driverGeoKey, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}

// OnlineCount reports the size of the GEO pool for operational stats.
func (s *Store) OnlineCount(ctx context.Context) (int64, error) {
	return s.redis.ZCard(ctx, driverGeoKey).Result()
}

func (s *Store) geoAdd(ctx context.Context, id types.ID, pos types.Point) error {
	return s.redis.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	}).Err()
}
