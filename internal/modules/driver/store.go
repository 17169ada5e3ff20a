// README: Driver store backed by PostgreSQL.
package driver

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rideflow/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const driverColumns = `id, user_id, approved, suspended, available, vehicle_model, vehicle_plate, earnings`

// Create registers a profile for a driver-role user. Re-registration is a
// no-op so the endpoint stays idempotent.
func (s *Store) Create(ctx context.Context, d *Driver) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO drivers (id, user_id, approved, suspended, available, vehicle_model, vehicle_plate, earnings)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO NOTHING`,
		string(d.ID), string(d.UserID),
		d.Approved, d.Suspended, d.Available,
		d.Vehicle.Model, d.Vehicle.LicensePlate,
		d.Earnings,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, string(id))
	return scanDriver(row)
}

func (s *Store) ByUser(ctx context.Context, userID types.ID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE user_id = $1`, string(userID))
	return scanDriver(row)
}

func (s *Store) List(ctx context.Context) ([]Driver, error) {
	rows, err := s.db.Query(ctx, `SELECT `+driverColumns+` FROM drivers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *Store) SetApproved(ctx context.Context, id types.ID, approved bool) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE drivers SET approved = $1 WHERE id = $2`, approved, string(id))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SetSuspended(ctx context.Context, id types.ID, suspended bool) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE drivers SET suspended = $1 WHERE id = $2`, suspended, string(id))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SetAvailable(ctx context.Context, id types.ID, available bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE drivers SET available = $1 WHERE id = $2`, available, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpdateVehicle(ctx context.Context, userID types.ID, v Vehicle) (*Driver, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE drivers SET vehicle_model = $1, vehicle_plate = $2
		WHERE user_id = $3
		RETURNING `+driverColumns,
		v.Model, v.LicensePlate, string(userID),
	)
	return scanDriver(row)
}

// AnyAvailable backs the driver-pool liveness check on ride request.
func (s *Store) AnyAvailable(ctx context.Context) (bool, error) {
	row := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM drivers
			WHERE available AND approved AND NOT suspended
		)`)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) CountAvailable(ctx context.Context) (int64, error) {
	row := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM drivers
		WHERE available AND approved AND NOT suspended`)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func scanDriver(row pgx.Row) (*Driver, error) {
	var d Driver
	err := row.Scan(
		&d.ID, &d.UserID, &d.Approved, &d.Suspended, &d.Available,
		&d.Vehicle.Model, &d.Vehicle.LicensePlate, &d.Earnings,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}
