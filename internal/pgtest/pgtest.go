// Package pgtest prepares a Postgres database for integration tests. Tests
// using it are skipped when DATABASE_URL is not set.
//
// Every package that runs integration tests shares one database, and go test
// runs package binaries in parallel. Pool therefore serialises its callers
// with a session advisory lock held until the test ends.
package pgtest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LockKey is the advisory lock key guarding the shared test database.
const LockKey int64 = 0x7061796f757473 // "payouts"

const (
	connectTimeout = 5 * time.Second
	lockTimeout    = 2 * time.Minute
)

// Pool connects to DATABASE_URL, takes the test database lock, applies
// schema.sql and empties every table. The lock is released and the pool
// closed when the test ends. Pool must not be called again while a parent
// test still holds the lock.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("db connection: %v", err)
	}
	t.Cleanup(pool.Close)

	lock(t, pool)

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer conn.Release()

	for _, stmt := range statements(t) {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	if _, err := conn.Exec(ctx, "TRUNCATE withdrawals, pix_keys"); err != nil {
		t.Fatalf("reset db: %v", err)
	}
	return pool
}

// lock holds LockKey on a connection kept out of the pool until cleanup.
func lock(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire lock conn: %v", err)
	}
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", LockKey); err != nil {
		conn.Release()
		t.Fatalf("advisory lock: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", LockKey); err != nil {
			// Closing the session drops the lock as well.
			_ = conn.Conn().Close(ctx)
		}
		conn.Release()
	})
}

// statements returns schema.sql split into single statements. The file is
// looked up from the working directory towards the module root.
func statements(t *testing.T) []string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	for dir := wd; ; {
		data, err := os.ReadFile(filepath.Join(dir, "schema.sql"))
		if err == nil {
			var out []string
			for _, stmt := range strings.Split(string(data), ";") {
				if s := strings.TrimSpace(stmt); s != "" {
					out = append(out, s)
				}
			}
			return out
		}
		if !os.IsNotExist(err) {
			t.Fatalf("read schema: %v", err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("schema.sql not found from %s", wd)
		}
		dir = parent
	}
}
