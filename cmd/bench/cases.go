// README: Smoke-bench cases; verifies schema invariants, the claim race and settlement idempotence against live infra.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		_ = r.cleanup(ctx)
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

// Seeded rows carry this prefix so cleanup cannot touch real data.
const benchPrefix = "bench_"

func (r *Runner) cleanup(ctx context.Context) error {
	for _, q := range []string{
		"DELETE FROM ride_events WHERE ride_id LIKE 'bench_%'",
		"DELETE FROM rides WHERE id LIKE 'bench_%'",
		"DELETE FROM drivers WHERE id LIKE 'bench_%'",
	} {
		if _, err := r.db.Exec(ctx, q); err != nil {
			return err
		}
	}
	if r.redis != nil {
		_ = r.redis.ZRem(ctx, "presence:drivers", benchPrefix+"driver_geo").Err()
	}
	return nil
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{
			Name: "Env: Postgres connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "FAIL", Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Migration: apply (optional)",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: "SKIP", Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				sql, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if _, err := r.db.Exec(ctx, string(sql)); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Schema: tables exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				for _, t := range []string{"rides", "drivers", "ride_events", "driver_locations"} {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
					if !exists {
						return Result{Status: "FAIL", Note: "missing table: " + t}
					}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Schema: active-ride partial indexes exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				for _, idx := range []string{"rides_one_active_per_rider", "rides_one_active_per_driver"} {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname=$1)",
						idx,
					).Scan(&exists)
					if err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
					if !exists {
						return Result{Status: "FAIL", Note: "missing index: " + idx}
					}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Guard: second active ride for a rider rejected",
			Run:  runActiveRideGuard,
		},
		{
			Name: "Claim: exactly one winner under concurrency",
			Run:  runClaimRace,
		},
		{
			Name: "Settle: second settlement matches zero rows",
			Run:  runSettleIdempotence,
		},
		{
			Name: "Presence: GEO roundtrip",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "FAIL", Note: "redis not configured"}
				}
				id := benchPrefix + "driver_geo"
				err := r.redis.GeoAdd(ctx, "presence:drivers", &redis.GeoLocation{
					Name: id, Latitude: 23.8103, Longitude: 90.4125,
				}).Err()
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				locs, err := r.redis.GeoSearch(ctx, "presence:drivers", &redis.GeoSearchQuery{
					Latitude: 23.8103, Longitude: 90.4125, Radius: 1, RadiusUnit: "km",
				}).Result()
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, l := range locs {
					if l == id {
						return Result{Status: "PASS"}
					}
				}
				return Result{Status: "FAIL", Note: "seeded driver not found in radius"}
			},
		},
		{
			Name: "API: health endpoint",
			Run: func(ctx context.Context, r *Runner) Result {
				start := time.Now()
				resp, err := r.httpc.Get(r.cfg.BaseURL + "/health")
				if err != nil {
					return Result{Status: "SKIP", Note: "server not reachable"}
				}
				defer resp.Body.Close()
				if resp.StatusCode != http.StatusOK {
					return Result{Status: "FAIL", Note: fmt.Sprintf("status=%d", resp.StatusCode)}
				}
				return Result{Status: "PASS", Latency: time.Since(start)}
			},
		},
		{
			Name: "API: metrics exposed",
			Run: func(ctx context.Context, r *Runner) Result {
				resp, err := r.httpc.Get(r.cfg.BaseURL + "/metrics")
				if err != nil {
					return Result{Status: "SKIP", Note: "server not reachable"}
				}
				defer resp.Body.Close()
				body, _ := io.ReadAll(resp.Body)
				if !strings.Contains(string(body), "rideflow_") {
					return Result{Status: "FAIL", Note: "no rideflow_ metrics in output"}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "API: unauthenticated request rejected",
			Run: func(ctx context.Context, r *Runner) Result {
				resp, err := r.httpc.Get(r.cfg.BaseURL + "/api/rides/current")
				if err != nil {
					return Result{Status: "SKIP", Note: "server not reachable"}
				}
				defer resp.Body.Close()
				if resp.StatusCode != http.StatusUnauthorized {
					return Result{Status: "FAIL", Note: fmt.Sprintf("status=%d", resp.StatusCode)}
				}
				return Result{Status: "PASS"}
			},
		},
	}
}

func seedDriver(ctx context.Context, r *Runner, id string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO drivers (id, user_id, approved, suspended, available)
		VALUES ($1, $2, TRUE, FALSE, TRUE)
		ON CONFLICT (id) DO NOTHING`,
		id, id+"_user",
	)
	return err
}

func seedRide(ctx context.Context, r *Runner, id, riderID, status string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO rides (id, rider_id, pickup_lat, pickup_lng, dest_lat, dest_lng, status)
		VALUES ($1, $2, 23.81, 90.41, 23.78, 90.39, $3)`,
		id, riderID, status,
	)
	return err
}

func runActiveRideGuard(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: "FAIL", Note: "db not configured"}
	}
	rider := benchPrefix + "guard_rider"
	if err := seedRide(ctx, r, benchPrefix+"guard_1", rider, "requested"); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	err := seedRide(ctx, r, benchPrefix+"guard_2", rider, "requested")
	if err == nil {
		return Result{Status: "FAIL", Note: "second active ride was accepted"}
	}
	if !strings.Contains(err.Error(), "rides_one_active_per_rider") {
		return Result{Status: "FAIL", Note: "unexpected error: " + err.Error()}
	}
	return Result{Status: "PASS"}
}

// runClaimRace issues the same conditional claim UPDATE the store uses from N
// goroutines and counts winners.
func runClaimRace(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: "FAIL", Note: "db not configured"}
	}
	rideID := benchPrefix + "race_ride"
	if err := seedRide(ctx, r, rideID, benchPrefix+"race_rider", "requested"); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	n := r.cfg.Concurrency
	for i := 0; i < n; i++ {
		if err := seedDriver(ctx, r, fmt.Sprintf("%srace_drv_%d", benchPrefix, i)); err != nil {
			return Result{Status: "FAIL", Note: err.Error()}
		}
	}

	var wins int64
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tag, err := r.db.Exec(ctx, `
				UPDATE rides SET driver_id = $1, status = 'accepted', accepted_at = now()
				WHERE id = $2 AND status = 'requested' AND driver_id IS NULL`,
				fmt.Sprintf("%srace_drv_%d", benchPrefix, i), rideID,
			)
			if err == nil && tag.RowsAffected() == 1 {
				atomic.AddInt64(&wins, 1)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		return Result{Status: "FAIL", Note: fmt.Sprintf("winners=%d want 1", wins)}
	}
	return Result{Status: "PASS", Latency: time.Since(start), Note: fmt.Sprintf("claimers=%d", n)}
}

func runSettleIdempotence(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: "FAIL", Note: "db not configured"}
	}
	rideID := benchPrefix + "settle_ride"
	drvID := benchPrefix + "settle_drv"
	if err := seedDriver(ctx, r, drvID); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if err := seedRide(ctx, r, rideID, benchPrefix+"settle_rider", "requested"); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if _, err := r.db.Exec(ctx,
		"UPDATE rides SET driver_id = $1, status = 'in_transit' WHERE id = $2", drvID, rideID,
	); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}

	settle := func() (int64, error) {
		tag, err := r.db.Exec(ctx, `
			UPDATE rides SET status = 'completed', fare = 118, completed_at = now()
			WHERE id = $1 AND status = 'in_transit'`,
			rideID,
		)
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	}
	first, err := settle()
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	second, err := settle()
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if first != 1 || second != 0 {
		return Result{Status: "FAIL", Note: fmt.Sprintf("rows: first=%d second=%d", first, second)}
	}
	return Result{Status: "PASS"}
}
