// Package testutil holds helpers for Postgres and Redis integration tests.
// Tests using it are skipped when the backing service is not reachable.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/banquet-slot-booking/internal/db"
	"github.com/hackgods/banquet-slot-booking/internal/hall"
)

const testDBLockID int64 = 801234569

// NewTestPool connects to TEST_DATABASE_URL. Integration tests share one
// database, so the pool also takes an advisory lock held until cleanup.
func NewTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping Postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse test dsn: %v", err)
	}
	cfg.MaxConns = 8

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skipping Postgres integration test: %v", err)
	}
	t.Cleanup(pool.Close)

	lockTestDB(t, pool)
	return pool
}

func ApplyMigrations(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
}

func TruncateAll(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(ctx, `TRUNCATE booking_events, bookings, slot_holds, slot_calendars, halls RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

// InsertHall stores a GOLD hall with the given slot price and returns it.
func InsertHall(t *testing.T, ctx context.Context, pool *pgxpool.Pool, name string, slotPrice int64) hall.Hall {
	t.Helper()
	h := hall.Hall{
		ID:        uuid.New(),
		Name:      name,
		Tier:      hall.TierGold,
		Capacity:  300,
		SlotPrice: slotPrice,
		Amenities: []string{"stage", "parking"},
	}
	if err := hall.NewPgRepository(pool).InsertHall(ctx, h); err != nil {
		t.Fatalf("insert hall: %v", err)
	}
	return h
}

func lockTestDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire lock conn: %v", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, testDBLockID); err != nil {
		conn.Release()
		t.Fatalf("acquire test lock: %v", err)
	}

	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, testDBLockID)
		conn.Release()
	})
}
