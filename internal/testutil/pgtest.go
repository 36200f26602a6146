// Package testutil provides Postgres setup for store integration tests.
package testutil

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	_ "github.com/lib/pq"

	"github.com/mbd888/walletrisk/migrations"
)

// PGTest opens POSTGRES_URL (or a container, see postgresURL), applies the
// embedded migrations and returns the database with a cleanup that empties
// every application table. Tests are skipped when no database is available.
//
//	db, cleanup := testutil.PGTest(t)
//	defer cleanup()
func PGTest(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	dbURL := postgresURL(t)
	if dbURL == "" {
		t.Skip("POSTGRES_URL not set and PGTEST_DOCKER != 1, skipping integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("pgtest: open database: %v", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: connect to database: %v", err)
	}

	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: run migrations: %v", err)
	}
	// Start from a clean slate even if a previous run aborted.
	truncate(ctx, db)

	cleanup := func() {
		truncate(ctx, db)
		_ = db.Close()
	}
	return db, cleanup
}

// truncateStatement empties the application tables in one statement.
func truncateStatement() string {
	return "TRUNCATE " + strings.Join(migrations.Tables, ", ") + " CASCADE"
}

func truncate(ctx context.Context, db *sql.DB) {
	_, _ = db.ExecContext(ctx, truncateStatement()) // #nosec G104 -- best-effort cleanup in test teardown
}
