// README: Ride store backed by PostgreSQL; all exclusion is pushed into conditional writes.
package ride

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"rideflow/internal/types"
)

// Partial unique indexes created by migrations/0001_init.sql. They make the
// one-active-ride invariant atomic with the write that would violate it, so
// the guard never degrades into check-then-act under concurrency.
const (
	activeRiderConstraint  = "rides_one_active_per_rider"
	activeDriverConstraint = "rides_one_active_per_driver"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const rideColumns = `id, rider_id, driver_id,
	pickup_lat, pickup_lng, pickup_address,
	dest_lat, dest_lng, dest_address,
	status, fare,
	requested_at, accepted_at, picked_up_at, in_transit_at, completed_at, canceled_at`

func (s *PGStore) Create(ctx context.Context, r *Ride) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO rides (
			id, rider_id, driver_id,
			pickup_lat, pickup_lng, pickup_address,
			dest_lat, dest_lng, dest_address,
			status, fare, requested_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		string(r.ID),
		string(r.RiderID),
		idPtr(r.DriverID),
		r.Pickup.Point.Lat, r.Pickup.Point.Lng, r.Pickup.Address,
		r.Destination.Point.Lat, r.Destination.Point.Lng, r.Destination.Address,
		string(r.Status),
		r.Fare,
		r.Timestamps.Requested,
	)
	if isUniqueViolation(err, activeRiderConstraint) {
		return ErrActiveRide
	}
	return storeErr(err)
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id))
	return scanRide(row)
}

// Claim is the race-free assignment: a single conditional update that only
// fires while the ride is still requested and unassigned. Zero rows affected
// means another driver won; the per-driver partial index rejects a driver who
// already holds an active ride in the same statement.
func (s *PGStore) Claim(ctx context.Context, rideID, driverID types.ID, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET driver_id = $1, status = $2, accepted_at = $3
		WHERE id = $4 AND status = $5 AND driver_id IS NULL`,
		string(driverID), string(StatusAccepted), at,
		string(rideID), string(StatusRequested),
	)
	if isUniqueViolation(err, activeDriverConstraint) {
		return false, ErrDriverBusy
	}
	if err != nil {
		return false, storeErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release reverts a rejected claim: driver cleared, status back to requested,
// accepted timestamp erased. Conditional on the caller still being the
// assigned driver of an accepted ride.
func (s *PGStore) Release(ctx context.Context, rideID, driverID types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET driver_id = NULL, status = $1, accepted_at = NULL
		WHERE id = $2 AND status = $3 AND driver_id = $4`,
		string(StatusRequested),
		string(rideID), string(StatusAccepted), string(driverID),
	)
	if isUniqueViolation(err, activeRiderConstraint) {
		// The rider cannot have grown a second active ride while this one was
		// accepted; surface the anomaly instead of guessing.
		return false, storeErr(err)
	}
	if err != nil {
		return false, storeErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

// Transition applies a status change conditional on the current status, and
// stamps the column belonging to the new status. Callers own table validation;
// this guarantees only that concurrent writers cannot both proceed from the
// same observed state.
func (s *PGStore) Transition(ctx context.Context, rideID types.ID, from, to Status, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET status = $1,
			accepted_at   = CASE WHEN $1 = 'accepted'   THEN $2 ELSE accepted_at END,
			picked_up_at  = CASE WHEN $1 = 'picked_up'  THEN $2 ELSE picked_up_at END,
			in_transit_at = CASE WHEN $1 = 'in_transit' THEN $2 ELSE in_transit_at END,
			completed_at  = CASE WHEN $1 = 'completed'  THEN $2 ELSE completed_at END,
			canceled_at   = CASE WHEN $1 = 'canceled'   THEN $2 ELSE canceled_at END
		WHERE id = $3 AND status = $4`,
		string(to), at, string(rideID), string(from),
	)
	if err != nil {
		return false, storeErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

// Reopen reverts a claimed ride to the open queue: driver detached and the
// post-claim timestamps erased, so the record satisfies the same shape a fresh
// request has and Claim can fire on it again.
func (s *PGStore) Reopen(ctx context.Context, rideID types.ID, from Status) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET driver_id = NULL, status = $1,
			accepted_at = NULL, picked_up_at = NULL, in_transit_at = NULL
		WHERE id = $2 AND status = $3 AND driver_id IS NOT NULL`,
		string(StatusRequested), string(rideID), string(from),
	)
	if err != nil {
		return false, storeErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

// Settle finalizes a completion in one transaction: the ride row moves to
// completed (keeping an already-set fare, otherwise adopting the computed
// one), and the assigned driver is credited and freed. The conditional update
// on the ride row is what makes settlement idempotent: a second invocation
// matches zero rows and the whole transaction is a no-op.
func (s *PGStore) Settle(ctx context.Context, rideID types.ID, from Status, driverID *types.ID, fare int64, at time.Time) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, storeErr(err)
	}
	defer tx.Rollback(ctx)

	var credited int64
	err = tx.QueryRow(ctx, `
		UPDATE rides
		SET status = $1,
			fare = CASE WHEN fare = 0 THEN $2 ELSE fare END,
			completed_at = $3
		WHERE id = $4 AND status = $5
		RETURNING fare`,
		string(StatusCompleted), fare, at, string(rideID), string(from),
	).Scan(&credited)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storeErr(err)
	}

	if driverID != nil {
		_, err = tx.Exec(ctx, `
			UPDATE drivers
			SET earnings = earnings + $1, available = TRUE
			WHERE id = $2`,
			credited, string(*driverID),
		)
		if err != nil {
			return false, storeErr(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, storeErr(err)
	}
	return true, nil
}

func (s *PGStore) CurrentByRider(ctx context.Context, riderID types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE rider_id = $1 AND status = ANY($2)`,
		string(riderID), activeStatusStrings(),
	)
	return scanRide(row)
}

func (s *PGStore) CurrentByDriver(ctx context.Context, driverID types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE driver_id = $1 AND status = ANY($2)`,
		string(driverID), activeStatusStrings(),
	)
	return scanRide(row)
}

// ListOpen returns unclaimed requested rides, newest first.
func (s *PGStore) ListOpen(ctx context.Context) ([]Ride, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE status = $1 AND driver_id IS NULL
		ORDER BY requested_at DESC`,
		string(StatusRequested),
	)
	if err != nil {
		return nil, storeErr(err)
	}
	return scanRides(rows)
}

func (s *PGStore) HistoryByRider(ctx context.Context, riderID types.ID) ([]Ride, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE rider_id = $1 AND status = ANY($2)
		ORDER BY requested_at DESC`,
		string(riderID), []string{string(StatusCompleted), string(StatusCanceled)},
	)
	if err != nil {
		return nil, storeErr(err)
	}
	return scanRides(rows)
}

func (s *PGStore) HistoryByDriver(ctx context.Context, driverID types.ID) ([]Ride, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE driver_id = $1 AND status = $2
		ORDER BY completed_at DESC`,
		string(driverID), string(StatusCompleted),
	)
	if err != nil {
		return nil, storeErr(err)
	}
	return scanRides(rows)
}

type ListFilter struct {
	Status   *Status
	RiderID  *types.ID
	DriverID *types.ID
	From     *time.Time
	To       *time.Time
	Page     int
	Limit    int
}

// maxListLimit bounds admin page sizes regardless of what the client asks for.
const maxListLimit = 100

func (f ListFilter) limitOffset() (limit, offset int) {
	limit = f.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}

func (s *PGStore) List(ctx context.Context, f ListFilter) ([]Ride, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Status != nil {
		where = append(where, "status = "+arg(string(*f.Status)))
	}
	if f.RiderID != nil {
		where = append(where, "rider_id = "+arg(string(*f.RiderID)))
	}
	if f.DriverID != nil {
		where = append(where, "driver_id = "+arg(string(*f.DriverID)))
	}
	if f.From != nil {
		where = append(where, "requested_at >= "+arg(*f.From))
	}
	if f.To != nil {
		where = append(where, "requested_at <= "+arg(*f.To))
	}

	query := `SELECT ` + rideColumns + ` FROM rides`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit, offset := f.limitOffset()
	query += " ORDER BY requested_at DESC LIMIT " + arg(limit) + " OFFSET " + arg(offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	return scanRides(rows)
}

// Delete removes a never-claimed requested ride; anything else is immutable
// history and stays.
func (s *PGStore) Delete(ctx context.Context, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM rides
		WHERE id = $1 AND status = $2 AND driver_id IS NULL`,
		string(id), string(StatusRequested),
	)
	if err != nil {
		return false, storeErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ride_events (ride_id, from_status, to_status, actor_role, actor_id, forced, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.RideID), string(e.From), string(e.To),
		string(e.ActorRole), idPtr(e.ActorID), e.Forced, e.CreatedAt,
	)
	return storeErr(err)
}

func scanRide(row pgx.Row) (*Ride, error) {
	var (
		r         Ride
		driverID  *string
		accepted  *time.Time
		pickedUp  *time.Time
		inTransit *time.Time
		completed *time.Time
		canceled  *time.Time
	)
	err := row.Scan(
		&r.ID, &r.RiderID, &driverID,
		&r.Pickup.Point.Lat, &r.Pickup.Point.Lng, &r.Pickup.Address,
		&r.Destination.Point.Lat, &r.Destination.Point.Lng, &r.Destination.Address,
		&r.Status, &r.Fare,
		&r.Timestamps.Requested, &accepted, &pickedUp, &inTransit, &completed, &canceled,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	if driverID != nil {
		d := types.ID(*driverID)
		r.DriverID = &d
	}
	r.Timestamps.Accepted = accepted
	r.Timestamps.PickedUp = pickedUp
	r.Timestamps.InTransit = inTransit
	r.Timestamps.Completed = completed
	r.Timestamps.Canceled = canceled
	return &r, nil
}

func scanRides(rows pgx.Rows) ([]Ride, error) {
	defer rows.Close()
	var out []Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

func activeStatusStrings() []string {
	out := make([]string, len(ActiveStatuses))
	for i, s := range ActiveStatuses {
		out[i] = string(s)
	}
	return out
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}

// storeErr tags plainly transient failures so callers can distinguish the one
// retryable error class from terminal ones.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}
