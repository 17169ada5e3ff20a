// README: Postgres store tests; exercise the real conditional updates and partial indexes.
package ride

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"rideflow/internal/modules/driver"
	"rideflow/internal/types"
)

func TestPGActiveRideIndex(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testRide("pg_guard_1", "pg_rider")); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := store.Create(ctx, testRide("pg_guard_2", "pg_rider"))
	if !errors.Is(err, ErrActiveRide) {
		t.Fatalf("expected ErrActiveRide from partial index, got %v", err)
	}
}

func TestPGClaimRace(t *testing.T) {
	store, drivers := setupTestStore(t)
	ctx := context.Background()

	const attempts = 8
	ids := make([]types.ID, attempts)
	for i := range ids {
		ids[i] = seedDriver(t, drivers, types.ID(fmt.Sprintf("pg_race_d%d", i)))
	}
	if err := store.Create(ctx, testRide("pg_race_ride", "pg_race_rider")); err != nil {
		t.Fatalf("create: %v", err)
	}

	start := make(chan struct{})
	wins := make(chan bool, attempts)
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(did types.ID) {
			defer wg.Done()
			<-start
			ok, err := store.Claim(ctx, "pg_race_ride", did, time.Now())
			if err != nil && !errors.Is(err, ErrDriverBusy) {
				t.Errorf("claim: %v", err)
			}
			wins <- ok
		}(id)
	}
	close(start)
	wg.Wait()
	close(wins)

	success := 0
	for ok := range wins {
		if ok {
			success++
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 winning claim, got %d", success)
	}

	r, err := store.Get(ctx, "pg_race_ride")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Status != StatusAccepted || r.DriverID == nil {
		t.Fatalf("unexpected ride after race: %+v", r)
	}
}

func TestPGSettleIdempotent(t *testing.T) {
	store, drivers := setupTestStore(t)
	ctx := context.Background()

	did := seedDriver(t, drivers, "pg_settle_d")
	if err := store.Create(ctx, testRide("pg_settle_ride", "pg_settle_rider")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, err := store.Claim(ctx, "pg_settle_ride", did, time.Now()); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	for _, step := range []struct{ from, to Status }{
		{StatusAccepted, StatusPickedUp},
		{StatusPickedUp, StatusInTransit},
	} {
		if ok, err := store.Transition(ctx, "pg_settle_ride", step.from, step.to, time.Now()); err != nil || !ok {
			t.Fatalf("transition %s→%s: ok=%v err=%v", step.from, step.to, ok, err)
		}
	}

	first, err := store.Settle(ctx, "pg_settle_ride", StatusInTransit, &did, 118, time.Now())
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	second, err := store.Settle(ctx, "pg_settle_ride", StatusInTransit, &did, 118, time.Now())
	if err != nil {
		t.Fatalf("settle replay: %v", err)
	}
	if !first || second {
		t.Fatalf("settle rows: first=%v second=%v", first, second)
	}

	d, err := drivers.Get(ctx, did)
	if err != nil {
		t.Fatalf("get driver: %v", err)
	}
	if d.Earnings != 118 {
		t.Fatalf("expected single credit of 118, got %d", d.Earnings)
	}
	if !d.Available {
		t.Error("driver should be available after settlement")
	}
}

func TestPGReopenClearsClaim(t *testing.T) {
	store, drivers := setupTestStore(t)
	ctx := context.Background()

	did := seedDriver(t, drivers, "pg_reopen_d1")
	if err := store.Create(ctx, testRide("pg_reopen_ride", "pg_reopen_rider")); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Reopening an unclaimed ride matches nothing.
	if ok, err := store.Reopen(ctx, "pg_reopen_ride", StatusRequested); err != nil || ok {
		t.Fatalf("reopen unclaimed: ok=%v err=%v", ok, err)
	}

	if ok, err := store.Claim(ctx, "pg_reopen_ride", did, time.Now()); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if ok, err := store.Reopen(ctx, "pg_reopen_ride", StatusAccepted); err != nil || !ok {
		t.Fatalf("reopen: ok=%v err=%v", ok, err)
	}

	r, err := store.Get(ctx, "pg_reopen_ride")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Status != StatusRequested || r.DriverID != nil || r.Timestamps.Accepted != nil {
		t.Fatalf("ride not fully reopened: %+v", r)
	}

	// Another driver can claim it again.
	other := seedDriver(t, drivers, "pg_reopen_d2")
	if ok, err := store.Claim(ctx, "pg_reopen_ride", other, time.Now()); err != nil || !ok {
		t.Fatalf("re-claim: ok=%v err=%v", ok, err)
	}
}

func TestListFilterLimitOffset(t *testing.T) {
	cases := []struct {
		name        string
		filter      ListFilter
		limit, next int
	}{
		{"defaults", ListFilter{}, 20, 0},
		{"negative limit", ListFilter{Limit: -5}, 20, 0},
		{"within bounds", ListFilter{Limit: 50, Page: 2}, 50, 50},
		{"oversized limit capped", ListFilter{Limit: 10000}, maxListLimit, 0},
		{"offset uses capped limit", ListFilter{Limit: 10000, Page: 3}, maxListLimit, 2 * maxListLimit},
		{"zero page", ListFilter{Limit: 10, Page: 0}, 10, 0},
	}
	for _, tc := range cases {
		limit, offset := tc.filter.limitOffset()
		if limit != tc.limit || offset != tc.next {
			t.Errorf("%s: got limit=%d offset=%d, want limit=%d offset=%d", tc.name, limit, offset, tc.limit, tc.next)
		}
	}
}

func testRide(id, rider types.ID) *Ride {
	return &Ride{
		ID:          id,
		RiderID:     rider,
		Pickup:      Place{Point: types.Point{Lat: 23.8103, Lng: 90.4125}},
		Destination: Place{Point: types.Point{Lat: 23.7808, Lng: 90.4006}},
		Status:      StatusRequested,
		Timestamps:  Timestamps{Requested: time.Now()},
	}
}

func seedDriver(t *testing.T, drivers *driver.Store, userID types.ID) types.ID {
	t.Helper()
	d := &driver.Driver{
		ID:       userID + "_profile",
		UserID:   userID,
		Approved: true,
	}
	if err := drivers.Create(context.Background(), d); err != nil {
		t.Fatalf("seed driver: %v", err)
	}
	return d.ID
}

func setupTestStore(t *testing.T) (*PGStore, *driver.Store) {
	t.Helper()

	dsn := os.Getenv("RIDEFLOW_TEST_DSN")
	if dsn == "" {
		t.Skip("RIDEFLOW_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}

	if _, err := db.Exec(ctx, "TRUNCATE TABLE ride_events, driver_locations, rides, drivers"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}

	return NewPGStore(db), driver.NewStore(db)
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	content, err := os.ReadFile(filepath.Join(root, "migrations", "0001_init.sql"))
	if err != nil {
		return err
	}

	cleaned := stripSQLComments(string(content))
	for _, stmt := range splitSQL(cleaned) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
