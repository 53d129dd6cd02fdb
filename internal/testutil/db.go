// Package testutil connects integration tests to external services. Tests
// skip when a service is not reachable.
package testutil

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
)

const connectTimeout = 2 * time.Second

// TestDB holds a connection pool for integration tests. The pool is closed
// when the test finishes.
type TestDB struct {
	Pool *pgxpool.Pool
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// PostgresDSN returns TEST_POSTGRES_DSN, or a DSN assembled from the
// TEST_DB_* variables
func PostgresDSN() string {
	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		return dsn
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(envOr("TEST_DB_USER", "netmiko"), envOr("TEST_DB_PASSWORD", "netmiko_test")),
		Host:     envOr("TEST_DB_HOST", "localhost") + ":" + envOr("TEST_DB_PORT", "5432"),
		Path:     "/" + envOr("TEST_DB_NAME", "netmiko_test"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// NewTestDB connects to the test database or skips the test
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, PostgresDSN())
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to test database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("Skipping integration test: cannot ping test database: %v", err)
	}
	t.Cleanup(pool.Close)
	return &TestDB{Pool: pool}
}

// Truncate empties tables for test isolation
func (db *TestDB) Truncate(t *testing.T, tables ...string) {
	t.Helper()
	for _, table := range tables {
		sql := fmt.Sprintf("TRUNCATE TABLE %s", pgx.Identifier{table}.Sanitize())
		if _, err := db.Pool.Exec(context.Background(), sql); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
}

// NATSURL returns the test NATS server URL from TEST_NATS_URL
func NATSURL() string {
	return envOr("TEST_NATS_URL", "nats://127.0.0.1:4222")
}

// NewNATSConn connects to the test NATS server or skips the test
func NewNATSConn(t *testing.T) *nats.Conn {
	t.Helper()
	nc, err := nats.Connect(NATSURL(), nats.Name("netmiko-mcp-test"), nats.Timeout(connectTimeout))
	if err != nil {
		t.Skipf("Skipping integration test: NATS not available at %s: %v", NATSURL(), err)
	}
	t.Cleanup(nc.Close)
	return nc
}
