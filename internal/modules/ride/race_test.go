// README: Concurrency tests for the claim protocol (run with -race).
package ride

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"rideflow/internal/types"
)

func TestConcurrentAcceptSameRide(t *testing.T) {
	svc, store, drivers := newTestRig(t)
	ctx := context.Background()

	const attempts = 8
	for i := 0; i < attempts; i++ {
		drivers.add(types.ID(fmt.Sprintf("d%d", i)))
	}
	r := mustRequest(t, svc, "rider_race")

	start := make(chan struct{})
	errs := make(chan error, attempts)
	var wg sync.WaitGroup

	for i := 0; i < attempts; i++ {
		actor := driverActor(types.ID(fmt.Sprintf("d%d", i)))
		wg.Add(1)
		go func(a Actor) {
			defer wg.Done()
			<-start
			_, err := svc.Accept(ctx, AcceptCommand{Actor: a, RideID: r.ID})
			errs <- err
		}(actor)
	}

	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrAlreadyClaimed) && !errors.Is(err, ErrDriverBusy) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 winning claim, got %d", success)
	}

	final, err := store.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Status != StatusAccepted {
		t.Fatalf("unexpected final status: %s", final.Status)
	}
	if final.DriverID == nil || *final.DriverID == "" {
		t.Fatal("expected driver_id to be set")
	}
}

func TestConcurrentAcceptVsCancel(t *testing.T) {
	svc, store, drivers := newTestRig(t)
	drivers.add("d1")
	ctx := context.Background()

	r := mustRequest(t, svc, "rider_ac")

	start := make(chan struct{})
	errs := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		_, err := svc.Accept(ctx, AcceptCommand{Actor: driverActor("d1"), RideID: r.ID})
		errs <- err
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		_, err := svc.Cancel(ctx, CancelCommand{Actor: riderActor("rider_ac"), RideID: r.ID})
		errs <- err
	}()

	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrAlreadyClaimed) && !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrInvalidState) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 winner between accept and cancel, got %d", success)
	}

	final, err := store.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Status != StatusAccepted && final.Status != StatusCanceled {
		t.Fatalf("unexpected final status: %s", final.Status)
	}
}

func TestConcurrentRequestsSameRider(t *testing.T) {
	svc, _, drivers := newTestRig(t)
	drivers.add("d1")
	ctx := context.Background()

	const attempts = 6
	start := make(chan struct{})
	errs := make(chan error, attempts)
	var wg sync.WaitGroup

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Request(ctx, RequestCommand{
				Actor:  riderActor("rider_dup"),
				Pickup: Place{Point: types.Point{Lat: 1, Lng: 1}},
			})
			errs <- err
		}()
	}

	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrActiveRide) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 ride created, got %d", success)
	}
}
