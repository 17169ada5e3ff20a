// README: Driver directory tests against an in-memory profile store.
package driver

import (
	"context"
	"errors"
	"sync"
	"testing"

	"rideflow/internal/types"
)

type memProfileStore struct {
	mu     sync.Mutex
	byID   map[types.ID]*Driver
	byUser map[types.ID]*Driver
}

func newMemProfileStore() *memProfileStore {
	return &memProfileStore{byID: make(map[types.ID]*Driver), byUser: make(map[types.ID]*Driver)}
}

func (s *memProfileStore) Create(_ context.Context, d *Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byUser[d.UserID]; ok {
		return nil
	}
	cp := *d
	s.byID[d.ID] = &cp
	s.byUser[d.UserID] = &cp
	return nil
}

func (s *memProfileStore) Get(_ context.Context, id types.ID) (*Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *memProfileStore) ByUser(_ context.Context, userID types.ID) (*Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byUser[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *memProfileStore) List(_ context.Context) ([]Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Driver, 0, len(s.byID))
	for _, d := range s.byID {
		out = append(out, *d)
	}
	return out, nil
}

func (s *memProfileStore) SetApproved(_ context.Context, id types.ID, approved bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	d.Approved = approved
	return true, nil
}

func (s *memProfileStore) SetSuspended(_ context.Context, id types.ID, suspended bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	d.Suspended = suspended
	return true, nil
}

func (s *memProfileStore) SetAvailable(_ context.Context, id types.ID, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	d.Available = available
	return nil
}

func (s *memProfileStore) UpdateVehicle(_ context.Context, userID types.ID, v Vehicle) (*Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byUser[userID]
	if !ok {
		return nil, ErrNotFound
	}
	d.Vehicle = v
	cp := *d
	return &cp, nil
}

func (s *memProfileStore) AnyAvailable(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.byID {
		if d.Eligible() {
			return true, nil
		}
	}
	return false, nil
}

func (s *memProfileStore) CountAvailable(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, d := range s.byID {
		if d.Eligible() {
			n++
		}
	}
	return n, nil
}

type memPresence struct {
	mu     sync.Mutex
	online map[types.ID]bool
}

func newMemPresence() *memPresence {
	return &memPresence{online: make(map[types.ID]bool)}
}

func (p *memPresence) SetOnline(_ context.Context, id types.ID, _ *types.Point) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[id] = true
	return nil
}

func (p *memPresence) SetOffline(_ context.Context, id types.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online, id)
	return nil
}

func (p *memPresence) Update(_ context.Context, id types.ID, _ types.Point) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online[id] {
		return errors.New("driver not in presence pool")
	}
	return nil
}

func (p *memPresence) isOnline(id types.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[id]
}

func newTestService(t *testing.T) (*Service, *memProfileStore, *memPresence) {
	t.Helper()
	store := newMemProfileStore()
	presence := newMemPresence()
	return NewService(store, presence, nil), store, presence
}

func TestRegisterIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Register(ctx, "u1", Vehicle{Model: "Toyota Axio", LicensePlate: "DHA-1234"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if first.Approved || first.Available {
		t.Error("new drivers must start unapproved and unavailable")
	}

	second, err := svc.Register(ctx, "u1", Vehicle{Model: "Honda Fit", LicensePlate: "DHA-9999"})
	if err != nil {
		t.Fatalf("register again: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("re-register created a new profile: %s vs %s", second.ID, first.ID)
	}
	if second.Vehicle != first.Vehicle {
		t.Error("re-register should not overwrite the existing vehicle")
	}
}

func TestSetAvailabilityMirrorsPresence(t *testing.T) {
	svc, store, presence := newTestService(t)
	ctx := context.Background()

	d, err := svc.Register(ctx, "u1", Vehicle{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := store.SetApproved(ctx, d.ID, true); err != nil {
		t.Fatalf("approve: %v", err)
	}

	pos := &types.Point{Lat: 23.81, Lng: 90.41}
	updated, err := svc.SetAvailability(ctx, "u1", true, pos)
	if err != nil {
		t.Fatalf("set availability: %v", err)
	}
	if !updated.Available {
		t.Error("expected available")
	}
	if !presence.isOnline(d.ID) {
		t.Error("expected driver in presence pool")
	}

	if _, err := svc.SetAvailability(ctx, "u1", false, nil); err != nil {
		t.Fatalf("set unavailable: %v", err)
	}
	if presence.isOnline(d.ID) {
		t.Error("expected driver removed from presence pool")
	}
}

func TestSetAvailabilitySuspendedDriver(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	d, err := svc.Register(ctx, "u1", Vehicle{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := store.SetSuspended(ctx, d.ID, true); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if _, err := svc.SetAvailability(ctx, "u1", true, nil); !errors.Is(err, ErrSuspended) {
		t.Fatalf("expected ErrSuspended, got %v", err)
	}
}

func TestSuspendPullsDriverOffline(t *testing.T) {
	svc, store, presence := newTestService(t)
	ctx := context.Background()

	d, err := svc.Register(ctx, "u1", Vehicle{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := store.SetApproved(ctx, d.ID, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := svc.SetAvailability(ctx, "u1", true, nil); err != nil {
		t.Fatalf("set availability: %v", err)
	}

	suspended, err := svc.Suspend(ctx, d.ID)
	if err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if !suspended.Suspended || suspended.Available {
		t.Fatalf("unexpected state after suspend: %+v", suspended)
	}
	if presence.isOnline(d.ID) {
		t.Error("suspended driver should be out of the presence pool")
	}

	reactivated, err := svc.Reactivate(ctx, d.ID)
	if err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if reactivated.Suspended {
		t.Error("expected suspension lifted")
	}
	if reactivated.Available {
		t.Error("reactivation must not silently flip availability back on")
	}
}

func TestApproveUnknownDriver(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Approve(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReportLocationOnlyWhileAvailable(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	d, err := svc.Register(ctx, "u1", Vehicle{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	// Offline pings are dropped silently.
	if err := svc.ReportLocation(ctx, "u1", types.Point{Lat: 1, Lng: 1}); err != nil {
		t.Fatalf("offline ping: %v", err)
	}

	if _, err := store.SetApproved(ctx, d.ID, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := svc.SetAvailability(ctx, "u1", true, nil); err != nil {
		t.Fatalf("set availability: %v", err)
	}
	if err := svc.ReportLocation(ctx, "u1", types.Point{Lat: 23.81, Lng: 90.41}); err != nil {
		t.Fatalf("online ping: %v", err)
	}
}
