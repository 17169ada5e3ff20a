// README: Admin reporting aggregates over rides and drivers.
package reports

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Bucket struct {
	Period  string `json:"period"`
	Rides   int64  `json:"rides"`
	Revenue int64  `json:"revenue"`
}

type DriverStats struct {
	Online         int64   `json:"online"`
	CompletionRate float64 `json:"completion_rate"`
	AvgEarnings    float64 `json:"avg_earnings"`
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// RideStats buckets completed rides and their revenue by day or month.
func (s *Store) RideStats(ctx context.Context, period string) ([]Bucket, error) {
	format := "YYYY-MM-DD"
	if period == "month" {
		format = "YYYY-MM"
	}
	rows, err := s.db.Query(ctx, `
		SELECT to_char(requested_at, $1) AS bucket, COUNT(*), COALESCE(SUM(fare), 0)
		FROM rides
		WHERE status = 'completed'
		GROUP BY bucket
		ORDER BY bucket`,
		format,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Period, &b.Rides, &b.Revenue); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DriverStats reports the online pool size plus per-driver completion rate and
// average earnings, averaged over drivers with at least one assigned ride.
func (s *Store) DriverStats(ctx context.Context) (DriverStats, error) {
	var stats DriverStats
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM drivers
		WHERE available AND approved AND NOT suspended`).Scan(&stats.Online)
	if err != nil {
		return stats, err
	}

	err = s.db.QueryRow(ctx, `
		SELECT COALESCE(AVG(completion_rate), 0), COALESCE(AVG(avg_earnings), 0)
		FROM (
			SELECT
				COUNT(*) FILTER (WHERE status = 'completed')::float8 / COUNT(*) AS completion_rate,
				CASE WHEN COUNT(*) FILTER (WHERE status = 'completed') = 0 THEN 0
				     ELSE COALESCE(SUM(fare) FILTER (WHERE status = 'completed'), 0)::float8
				          / COUNT(*) FILTER (WHERE status = 'completed')
				END AS avg_earnings
			FROM rides
			WHERE driver_id IS NOT NULL
			GROUP BY driver_id
		) per_driver`).Scan(&stats.CompletionRate, &stats.AvgEarnings)
	if err != nil {
		return stats, err
	}
	return stats, nil
}
