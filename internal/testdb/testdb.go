// Package testdb opens migrated databases for tests.
package testdb

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DukeRupert/regdesk/internal"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PostgresEnv names the connection string used by OpenPostgres.
const PostgresEnv = "TEST_DATABASE_URL"

// Open returns a fresh, fully migrated database that is closed when the
// test finishes.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "regdesk.db")
	db, err := internal.OpenDB(context.Background(), internal.DriverSQLite, path)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := internal.RunMigrations(db.DB, internal.DriverSQLite); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	return db
}

// OpenPostgres returns a migrated Postgres database in a throwaway schema.
// The test is skipped unless TEST_DATABASE_URL is set.
func OpenPostgres(t testing.TB) *sqlx.DB {
	t.Helper()

	base := os.Getenv(PostgresEnv)
	if base == "" {
		t.Skip(PostgresEnv + " not set")
	}
	ctx := context.Background()

	admin, err := internal.OpenDB(ctx, internal.DriverPostgres, base)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { admin.Close() })

	schema := "regdesk_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		admin.ExecContext(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
	})

	dsn, err := withSearchPath(base, schema)
	if err != nil {
		t.Fatalf("build test dsn: %v", err)
	}
	db, err := internal.OpenDB(ctx, internal.DriverPostgres, dsn)
	if err != nil {
		t.Fatalf("open test schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := internal.RunMigrations(db.DB, internal.DriverPostgres); err != nil {
		t.Fatalf("migrate test schema: %v", err)
	}

	return db
}

func withSearchPath(dsn, schema string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("%s must be a postgres:// URL", PostgresEnv)
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
