// README: Dispatch facade; composes the claim coordinator, guard, state machine and settlement.
package ride

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"rideflow/internal/modules/driver"
	"rideflow/internal/observability"
	"rideflow/internal/types"
)

// Store is the conditional-write surface the facade runs on. *PGStore is the
// production implementation; tests use an in-memory one.
type Store interface {
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, id types.ID) (*Ride, error)
	Claim(ctx context.Context, rideID, driverID types.ID, at time.Time) (bool, error)
	Release(ctx context.Context, rideID, driverID types.ID) (bool, error)
	Reopen(ctx context.Context, rideID types.ID, from Status) (bool, error)
	Transition(ctx context.Context, rideID types.ID, from, to Status, at time.Time) (bool, error)
	Settle(ctx context.Context, rideID types.ID, from Status, driverID *types.ID, fare int64, at time.Time) (bool, error)
	CurrentByRider(ctx context.Context, riderID types.ID) (*Ride, error)
	CurrentByDriver(ctx context.Context, driverID types.ID) (*Ride, error)
	ListOpen(ctx context.Context) ([]Ride, error)
	HistoryByRider(ctx context.Context, riderID types.ID) ([]Ride, error)
	HistoryByDriver(ctx context.Context, driverID types.ID) ([]Ride, error)
	List(ctx context.Context, f ListFilter) ([]Ride, error)
	Delete(ctx context.Context, id types.ID) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
}

// Drivers is the directory collaborator; implemented by driver.Service.
type Drivers interface {
	ByUser(ctx context.Context, userID types.ID) (*driver.Driver, error)
	Get(ctx context.Context, id types.ID) (*driver.Driver, error)
	SetAvailable(ctx context.Context, id types.ID, available bool) error
	AnyAvailable(ctx context.Context) (bool, error)
}

// FareEstimator is the pure fare collaborator.
type FareEstimator interface {
	Estimate(ctx context.Context, pickup, dropoff types.Point) (types.Money, error)
}

// Notifier delivers fire-and-forget state-change events; implementations must
// never block or fail the dispatch operation.
type Notifier interface {
	RideUpdated(r *Ride)
}

type Service struct {
	store   Store
	drivers Drivers
	fare    FareEstimator
	notify  Notifier
	log     *logrus.Logger
	now     func() time.Time
}

func NewService(store Store, drivers Drivers, fare FareEstimator, notify Notifier, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		store:   store,
		drivers: drivers,
		fare:    fare,
		notify:  notify,
		log:     log,
		now:     time.Now,
	}
}

type RequestCommand struct {
	Actor       Actor
	Pickup      Place
	Destination Place
}

type CancelCommand struct {
	Actor  Actor
	RideID types.ID
}

type AcceptCommand struct {
	Actor  Actor
	RideID types.ID
}

type RejectCommand struct {
	Actor  Actor
	RideID types.ID
}

type AdvanceCommand struct {
	Actor  Actor
	RideID types.ID
	Next   Status
}

type ForceStatusCommand struct {
	Actor  Actor
	RideID types.ID
	Status Status
}

// Request creates a ride in requested state. The friendly active-ride check
// runs first, but the partial unique index behind Store.Create is what
// actually holds the one-active-ride invariant under concurrent requests.
func (s *Service) Request(ctx context.Context, cmd RequestCommand) (*Ride, error) {
	if cmd.Actor.Role != RoleRider {
		return nil, ErrUnauthorized
	}
	if _, err := s.store.CurrentByRider(ctx, cmd.Actor.ID); err == nil {
		return nil, ErrActiveRide
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	anyDriver, err := s.drivers.AnyAvailable(ctx)
	if err != nil {
		return nil, err
	}
	if !anyDriver {
		return nil, ErrNoDriversAvailable
	}

	now := s.now()
	r := &Ride{
		ID:          newID(),
		RiderID:     cmd.Actor.ID,
		Pickup:      cmd.Pickup,
		Destination: cmd.Destination,
		Status:      StatusRequested,
		Timestamps:  Timestamps{Requested: now},
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, r.ID, StatusNone, StatusRequested, cmd.Actor, false, now)
	observability.RidesRequestedTotal.Inc()
	s.notifyUpdated(r)
	return r, nil
}

// Cancel is the rider escape while no driver is attached.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Ride, error) {
	if cmd.Actor.Role != RoleRider {
		return nil, ErrUnauthorized
	}
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if r.RiderID != cmd.Actor.ID {
		return nil, ErrUnauthorized
	}
	if r.Status != StatusRequested {
		return nil, ErrInvalidTransition
	}
	now := s.now()
	ok, err := s.store.Transition(ctx, r.ID, StatusRequested, StatusCanceled, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// A driver claimed it between the read and the write.
		return nil, ErrInvalidTransition
	}
	r.Status = StatusCanceled
	r.Timestamps.Canceled = &now
	s.appendEvent(ctx, r.ID, StatusRequested, StatusCanceled, cmd.Actor, false, now)
	s.notifyUpdated(r)
	return r, nil
}

// Accept runs the claim: eligibility preconditions, then a single conditional
// update that at most one of N concurrent drivers can win.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (*Ride, error) {
	if cmd.Actor.Role != RoleDriver {
		return nil, ErrUnauthorized
	}
	d, err := s.drivers.ByUser(ctx, cmd.Actor.ID)
	if err != nil {
		if errors.Is(err, driver.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if !d.Eligible() {
		return nil, ErrDriverNotEligible
	}
	if _, err := s.store.CurrentByDriver(ctx, d.ID); err == nil {
		return nil, ErrDriverBusy
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	target, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if target.Status.Terminal() {
		// Finished rides are not "claimed by someone else"; say so.
		return nil, ErrInvalidState
	}

	now := s.now()
	claimed, err := s.store.Claim(ctx, cmd.RideID, d.ID, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		observability.ClaimsTotal.WithLabelValues("lost").Inc()
		return nil, ErrAlreadyClaimed
	}
	observability.ClaimsTotal.WithLabelValues("won").Inc()

	// Availability bookkeeping is best-effort: the ride is already correctly
	// assigned, a failure here only leaves the flag briefly stale.
	if err := s.drivers.SetAvailable(ctx, d.ID, false); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"ride_id": cmd.RideID, "driver_id": d.ID,
		}).Warn("could not mark claiming driver unavailable")
	}

	s.appendEvent(ctx, cmd.RideID, StatusRequested, StatusAccepted, cmd.Actor, false, now)
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	s.notifyUpdated(r)
	return r, nil
}

// Reject reverts an accepted claim and reopens the ride for other drivers.
func (s *Service) Reject(ctx context.Context, cmd RejectCommand) error {
	if cmd.Actor.Role != RoleDriver {
		return ErrUnauthorized
	}
	d, err := s.drivers.ByUser(ctx, cmd.Actor.ID)
	if err != nil {
		if errors.Is(err, driver.ErrNotFound) {
			return ErrUnauthorized
		}
		return err
	}
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return err
	}
	if r.DriverID == nil || *r.DriverID != d.ID {
		return ErrNotAssigned
	}
	if r.Status != StatusAccepted {
		return ErrInvalidState
	}
	ok, err := s.store.Release(ctx, cmd.RideID, d.ID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidState
	}
	if err := s.drivers.SetAvailable(ctx, d.ID, true); err != nil {
		s.log.WithError(err).WithField("driver_id", d.ID).Warn("could not mark rejecting driver available")
	}
	now := s.now()
	s.appendEvent(ctx, cmd.RideID, StatusAccepted, StatusRequested, cmd.Actor, false, now)
	r.Status = StatusRequested
	r.DriverID = nil
	r.Timestamps.Accepted = nil
	s.notifyUpdated(r)
	return nil
}

// Advance moves a ride along the driver transition table. Admin overrides go
// through ForceStatus, never here, so the table stays the single source of
// truth for the normal path.
func (s *Service) Advance(ctx context.Context, cmd AdvanceCommand) (*Ride, error) {
	if cmd.Actor.Role != RoleDriver {
		return nil, ErrUnauthorized
	}
	if !cmd.Next.Valid() {
		return nil, ErrInvalidTransition
	}
	d, err := s.drivers.ByUser(ctx, cmd.Actor.ID)
	if err != nil {
		if errors.Is(err, driver.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if r.DriverID == nil || *r.DriverID != d.ID {
		return nil, ErrUnauthorized
	}
	if !CanAdvance(r.Status, cmd.Next) {
		return nil, ErrInvalidTransition
	}

	now := s.now()
	if cmd.Next == StatusCompleted {
		if err := s.settle(ctx, r, cmd.Actor, false, now); err != nil {
			return nil, err
		}
	} else {
		ok, err := s.store.Transition(ctx, r.ID, r.Status, cmd.Next, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrInvalidTransition
		}
		s.appendEvent(ctx, r.ID, r.Status, cmd.Next, cmd.Actor, false, now)
		if cmd.Next == StatusCanceled {
			if err := s.drivers.SetAvailable(ctx, d.ID, true); err != nil {
				s.log.WithError(err).WithField("driver_id", d.ID).Warn("could not free driver after cancel")
			}
		}
	}

	updated, err := s.store.Get(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	s.notifyUpdated(updated)
	return updated, nil
}

// ForceStatus is the admin escape hatch. It bypasses the driver table but not
// terminality: completed and canceled rides stay immutable, which is also what
// keeps settlement single-shot on forced completions. It also cannot break the
// driver-nullity invariant: a ride carries a driver exactly when its status is
// past requested, so forcing back to requested detaches the driver, and no
// force target may put a driverless ride into an assigned state.
func (s *Service) ForceStatus(ctx context.Context, cmd ForceStatusCommand) (*Ride, error) {
	if cmd.Actor.Role != RoleAdmin {
		return nil, ErrUnauthorized
	}
	if !cmd.Status.Valid() {
		return nil, ErrInvalidTransition
	}
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if r.Status.Terminal() || r.Status == cmd.Status {
		return nil, ErrInvalidTransition
	}

	now := s.now()
	switch cmd.Status {
	case StatusAccepted:
		// Only the claim protocol may pick a winner.
		return nil, ErrInvalidTransition
	case StatusRequested:
		ok, err := s.store.Reopen(ctx, r.ID, r.Status)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrInvalidTransition
		}
		if r.DriverID != nil {
			if err := s.drivers.SetAvailable(ctx, *r.DriverID, true); err != nil {
				s.log.WithError(err).WithField("driver_id", *r.DriverID).Warn("could not free driver after forced reopen")
			}
		}
		s.appendEvent(ctx, r.ID, r.Status, StatusRequested, cmd.Actor, true, now)
	case StatusCompleted:
		if r.DriverID == nil {
			// A ride nobody drove cannot complete; cancel it instead.
			return nil, ErrInvalidTransition
		}
		if err := s.settle(ctx, r, cmd.Actor, true, now); err != nil {
			return nil, err
		}
	default:
		if cmd.Status != StatusCanceled && r.DriverID == nil {
			return nil, ErrInvalidTransition
		}
		ok, err := s.store.Transition(ctx, r.ID, r.Status, cmd.Status, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrInvalidTransition
		}
		s.appendEvent(ctx, r.ID, r.Status, cmd.Status, cmd.Actor, true, now)
		if cmd.Status == StatusCanceled && r.DriverID != nil {
			if err := s.drivers.SetAvailable(ctx, *r.DriverID, true); err != nil {
				s.log.WithError(err).WithField("driver_id", *r.DriverID).Warn("could not free driver after forced cancel")
			}
		}
	}

	updated, err := s.store.Get(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	s.notifyUpdated(updated)
	return updated, nil
}

// settle runs exactly once per ride: the conditional write in Store.Settle
// moves the ride to completed and credits the driver in one transaction, so a
// second invocation cannot credit twice.
func (s *Service) settle(ctx context.Context, r *Ride, actor Actor, forced bool, now time.Time) error {
	fare := r.Fare
	if fare == 0 {
		if s.fare == nil {
			return ErrInvalidState
		}
		m, err := s.fare.Estimate(ctx, r.Pickup.Point, r.Destination.Point)
		if err != nil {
			return err
		}
		fare = m.Amount
	}
	ok, err := s.store.Settle(ctx, r.ID, r.Status, r.DriverID, fare, now)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTransition
	}
	observability.SettlementsTotal.Inc()
	s.appendEvent(ctx, r.ID, r.Status, StatusCompleted, actor, forced, now)
	return nil
}

// View returns a ride snapshot to its rider, its driver, or an admin.
func (s *Service) View(ctx context.Context, actor Actor, rideID types.ID) (*Ride, error) {
	r, err := s.store.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Current returns the caller's active ride, if any.
func (s *Service) Current(ctx context.Context, actor Actor) (*Ride, error) {
	switch actor.Role {
	case RoleRider:
		return s.store.CurrentByRider(ctx, actor.ID)
	case RoleDriver:
		d, err := s.drivers.ByUser(ctx, actor.ID)
		if err != nil {
			if errors.Is(err, driver.ErrNotFound) {
				return nil, ErrUnauthorized
			}
			return nil, err
		}
		return s.store.CurrentByDriver(ctx, d.ID)
	default:
		return nil, ErrUnauthorized
	}
}

// History returns finished rides for the caller.
func (s *Service) History(ctx context.Context, actor Actor) ([]Ride, error) {
	switch actor.Role {
	case RoleRider:
		return s.store.HistoryByRider(ctx, actor.ID)
	case RoleDriver:
		d, err := s.drivers.ByUser(ctx, actor.ID)
		if err != nil {
			if errors.Is(err, driver.ErrNotFound) {
				return nil, ErrUnauthorized
			}
			return nil, err
		}
		return s.store.HistoryByDriver(ctx, d.ID)
	default:
		return nil, ErrUnauthorized
	}
}

// ListOpen returns claimable rides for drivers browsing the queue.
func (s *Service) ListOpen(ctx context.Context, actor Actor) ([]Ride, error) {
	if actor.Role != RoleDriver {
		return nil, ErrUnauthorized
	}
	return s.store.ListOpen(ctx)
}

func (s *Service) AdminList(ctx context.Context, actor Actor, f ListFilter) ([]Ride, error) {
	if actor.Role != RoleAdmin {
		return nil, ErrUnauthorized
	}
	return s.store.List(ctx, f)
}

// AdminDelete removes a never-claimed request; claimed rides are history and
// cannot be deleted.
func (s *Service) AdminDelete(ctx context.Context, actor Actor, rideID types.ID) error {
	if actor.Role != RoleAdmin {
		return ErrUnauthorized
	}
	if _, err := s.store.Get(ctx, rideID); err != nil {
		return err
	}
	ok, err := s.store.Delete(ctx, rideID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidState
	}
	return nil
}

func (s *Service) authorize(ctx context.Context, actor Actor, r *Ride) error {
	switch actor.Role {
	case RoleAdmin:
		return nil
	case RoleRider:
		if r.RiderID == actor.ID {
			return nil
		}
	case RoleDriver:
		d, err := s.drivers.ByUser(ctx, actor.ID)
		if err == nil && r.DriverID != nil && *r.DriverID == d.ID {
			return nil
		}
	}
	return ErrUnauthorized
}

func (s *Service) appendEvent(ctx context.Context, rideID types.ID, from, to Status, actor Actor, forced bool, at time.Time) {
	actorID := actor.ID
	e := &Event{
		RideID:    rideID,
		From:      from,
		To:        to,
		ActorRole: actor.Role,
		ActorID:   &actorID,
		Forced:    forced,
		CreatedAt: at,
	}
	if err := s.store.AppendEvent(ctx, e); err != nil {
		s.log.WithError(err).WithField("ride_id", rideID).Warn("could not append ride event")
	}
}

func (s *Service) notifyUpdated(r *Ride) {
	if s.notify == nil {
		return
	}
	s.notify.RideUpdated(r)
}

func newID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}
