// README: Driver directory service; availability, vehicle and admin moderation.
package driver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/sirupsen/logrus"

	"rideflow/internal/observability"
	"rideflow/internal/types"
)

var ErrSuspended = errors.New("driver is suspended")

// ProfileStore is what the service needs from persistence; *Store is the
// production implementation.
type ProfileStore interface {
	Create(ctx context.Context, d *Driver) error
	Get(ctx context.Context, id types.ID) (*Driver, error)
	ByUser(ctx context.Context, userID types.ID) (*Driver, error)
	List(ctx context.Context) ([]Driver, error)
	SetApproved(ctx context.Context, id types.ID, approved bool) (bool, error)
	SetSuspended(ctx context.Context, id types.ID, suspended bool) (bool, error)
	SetAvailable(ctx context.Context, id types.ID, available bool) error
	UpdateVehicle(ctx context.Context, userID types.ID, v Vehicle) (*Driver, error)
	AnyAvailable(ctx context.Context) (bool, error)
	CountAvailable(ctx context.Context) (int64, error)
}

// Presence mirrors availability into the Redis GEO pool.
type Presence interface {
	SetOnline(ctx context.Context, id types.ID, pos *types.Point) error
	SetOffline(ctx context.Context, id types.ID) error
	Update(ctx context.Context, id types.ID, pos types.Point) error
}

type Service struct {
	store    ProfileStore
	presence Presence
	log      *logrus.Logger
}

func NewService(store ProfileStore, presence Presence, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{store: store, presence: presence, log: log}
}

// Register creates the profile for a driver-role account. New drivers start
// unapproved and unavailable.
func (s *Service) Register(ctx context.Context, userID types.ID, v Vehicle) (*Driver, error) {
	d := &Driver{
		ID:      newID(),
		UserID:  userID,
		Vehicle: v,
	}
	if err := s.store.Create(ctx, d); err != nil {
		return nil, err
	}
	// Create is idempotent on user_id; read back whichever row holds.
	return s.store.ByUser(ctx, userID)
}

func (s *Service) ByUser(ctx context.Context, userID types.ID) (*Driver, error) {
	return s.store.ByUser(ctx, userID)
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Driver, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Driver, error) {
	return s.store.List(ctx)
}

func (s *Service) AnyAvailable(ctx context.Context) (bool, error) {
	return s.store.AnyAvailable(ctx)
}

// SetAvailability is the driver-initiated flag flip. pos seeds the presence
// pool so the driver shows up in nearby queries right away.
func (s *Service) SetAvailability(ctx context.Context, userID types.ID, available bool, pos *types.Point) (*Driver, error) {
	d, err := s.store.ByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if d.Suspended {
		return nil, ErrSuspended
	}
	if err := s.setAvailable(ctx, d.ID, available, pos); err != nil {
		return nil, err
	}
	d.Available = available
	return d, nil
}

// SetAvailable is the dispatch-facing flip used by the claim coordinator and
// settlement side effects; keyed by profile id.
func (s *Service) SetAvailable(ctx context.Context, id types.ID, available bool) error {
	return s.setAvailable(ctx, id, available, nil)
}

func (s *Service) setAvailable(ctx context.Context, id types.ID, available bool, pos *types.Point) error {
	if err := s.store.SetAvailable(ctx, id, available); err != nil {
		return err
	}
	if s.presence != nil {
		var perr error
		if available {
			perr = s.presence.SetOnline(ctx, id, pos)
		} else {
			perr = s.presence.SetOffline(ctx, id)
		}
		if perr != nil {
			s.log.WithError(perr).WithField("driver_id", id).Warn("presence update failed")
		}
	}
	s.refreshOnlineGauge(ctx)
	return nil
}

// ReportLocation records a position ping from an online driver.
func (s *Service) ReportLocation(ctx context.Context, userID types.ID, pos types.Point) error {
	d, err := s.store.ByUser(ctx, userID)
	if err != nil {
		return err
	}
	if s.presence == nil || !d.Available {
		return nil
	}
	return s.presence.Update(ctx, d.ID, pos)
}

func (s *Service) UpdateVehicle(ctx context.Context, userID types.ID, v Vehicle) (*Driver, error) {
	return s.store.UpdateVehicle(ctx, userID, v)
}

func (s *Service) Approve(ctx context.Context, id types.ID) (*Driver, error) {
	ok, err := s.store.SetApproved(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.store.Get(ctx, id)
}

// Suspend pulls the driver out of the claim pool immediately.
func (s *Service) Suspend(ctx context.Context, id types.ID) (*Driver, error) {
	ok, err := s.store.SetSuspended(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if err := s.setAvailable(ctx, id, false, nil); err != nil {
		s.log.WithError(err).WithField("driver_id", id).Warn("could not mark suspended driver unavailable")
	}
	return s.store.Get(ctx, id)
}

func (s *Service) Reactivate(ctx context.Context, id types.ID) (*Driver, error) {
	ok, err := s.store.SetSuspended(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.store.Get(ctx, id)
}

func (s *Service) refreshOnlineGauge(ctx context.Context) {
	n, err := s.store.CountAvailable(ctx)
	if err != nil {
		return
	}
	observability.DriversOnline.Set(float64(n))
}

func newID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}
