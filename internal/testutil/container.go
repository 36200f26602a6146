package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const containerImage = "postgres:16-alpine"

// postgresURL returns POSTGRES_URL, or starts a throwaway Postgres container
// when PGTEST_DOCKER=1. An empty result means no database is available.
func postgresURL(t *testing.T) string {
	t.Helper()

	if u := os.Getenv("POSTGRES_URL"); u != "" {
		return u
	}
	if os.Getenv("PGTEST_DOCKER") != "1" {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctr, err := postgres.Run(ctx, containerImage,
		postgres.WithDatabase("walletrisk"),
		postgres.WithUsername("walletrisk"),
		postgres.WithPassword("walletrisk"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("pgtest: start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("pgtest: terminate container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("pgtest: container connection string: %v", err)
	}
	return dsn
}
