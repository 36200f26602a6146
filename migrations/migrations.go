// Package migrations embeds the Postgres schema for wallet history, staking
// positions, cached scores and fraud assessments.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var FS embed.FS

// Tables lists every application table in dependency-free order.
var Tables = []string{
	"wallet_transactions",
	"token_transfers",
	"staking_positions",
	"wallet_scores",
	"score_invalidations",
	"fraud_assessments",
}

var setup sync.Once
var setupErr error

func configure() error {
	setup.Do(func() {
		goose.SetBaseFS(FS)
		setupErr = goose.SetDialect("postgres")
	})
	return setupErr
}

// Run executes a goose command (up, down, status, version, redo, up-to,
// down-to) against the embedded migrations.
func Run(ctx context.Context, db *sql.DB, command string, args ...string) error {
	if err := configure(); err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}
	return goose.RunContext(ctx, command, db, ".", args...)
}

// Up applies all pending migrations.
func Up(ctx context.Context, db *sql.DB) error {
	return Run(ctx, db, "up")
}
