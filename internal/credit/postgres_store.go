package credit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore caches scores in the wallet_scores table.
type PostgresStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewPostgresStore creates a PostgreSQL-backed score cache. Rows older than
// ttl are treated as missing; a ttl of zero never expires rows.
func NewPostgresStore(db *sql.DB, ttl time.Duration) *PostgresStore {
	return &PostgresStore{db: db, ttl: ttl}
}

const scoreColumns = `address, score, base_score, risk_band, explanation,
	staking_boost, oracle_penalty, staked_amount, staking_tier,
	policy_version, computed_at`

// Get retrieves a fresh cached score.
func (p *PostgresStore) Get(ctx context.Context, address string) (*Record, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+scoreColumns+`
		FROM wallet_scores WHERE address = $1 AND computed_at >= $2
	`, strings.ToLower(address), p.cutoff())

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScoreNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get score: %w", err)
	}
	return rec, nil
}

// nowMicros is the database clock in microseconds. Epochs and invalidation
// marks both come from it so application clock skew cannot reorder them.
const nowMicros = `(EXTRACT(EPOCH FROM clock_timestamp()) * 1000000)::BIGINT`

// invalidationRetention is how long invalidation marks are kept. Scores from
// evaluations that began earlier are never cached.
const invalidationRetention = `INTERVAL '1 hour'`

const retentionFloor = `(EXTRACT(EPOCH FROM clock_timestamp() - ` + invalidationRetention + `) * 1000000)::BIGINT`

func (p *PostgresStore) Epoch(ctx context.Context) (int64, error) {
	var epoch int64
	if err := p.db.QueryRowContext(ctx, `SELECT `+nowMicros).Scan(&epoch); err != nil {
		return 0, fmt.Errorf("read score epoch: %w", err)
	}
	return epoch, nil
}

// Put upserts the score for an address unless an invalidation at or after
// rec.Epoch supersedes it.
func (p *PostgresStore) Put(ctx context.Context, rec *Record) error {
	computedAt := rec.ComputedAt
	if computedAt.IsZero() {
		computedAt = time.Now()
	}
	r := rec.Result
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO wallet_scores (`+scoreColumns+`)
		SELECT $1::VARCHAR, $2::INTEGER, $3::INTEGER, $4::SMALLINT, $5::TEXT, $6::INTEGER,
			$7::INTEGER, $8::NUMERIC(38,18), $9::SMALLINT, $10::VARCHAR, $11::TIMESTAMPTZ
		WHERE $12::BIGINT = 0 OR (
			$12::BIGINT >= `+retentionFloor+` AND NOT EXISTS (
				SELECT 1 FROM score_invalidations
				WHERE address = $1::VARCHAR AND epoch >= $12::BIGINT
			)
		)
		ON CONFLICT (address) DO UPDATE SET
			score          = EXCLUDED.score,
			base_score     = EXCLUDED.base_score,
			risk_band      = EXCLUDED.risk_band,
			explanation    = EXCLUDED.explanation,
			staking_boost  = EXCLUDED.staking_boost,
			oracle_penalty = EXCLUDED.oracle_penalty,
			staked_amount  = EXCLUDED.staked_amount,
			staking_tier   = EXCLUDED.staking_tier,
			policy_version = EXCLUDED.policy_version,
			computed_at    = EXCLUDED.computed_at
	`,
		strings.ToLower(rec.Address), r.Score, r.BaseScore, r.RiskBand, r.Explanation,
		r.StakingBoost, r.OraclePenalty, r.StakedAmount.String(), r.StakingTier,
		r.PolicyVersion, computedAt, rec.Epoch,
	)
	if err != nil {
		return fmt.Errorf("put score: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("put score: %w", err)
	}
	if n == 0 {
		return ErrSuperseded
	}
	return nil
}

// Invalidate removes the cached score for an address and marks the
// invalidation so in-flight evaluations cannot write it back.
func (p *PostgresStore) Invalidate(ctx context.Context, address string) error {
	_, err := p.db.ExecContext(ctx, `
		WITH mark AS (
			INSERT INTO score_invalidations (address, epoch)
			VALUES ($1, `+nowMicros+`)
			ON CONFLICT (address) DO UPDATE
				SET epoch = GREATEST(score_invalidations.epoch, EXCLUDED.epoch)
		), prune AS (
			DELETE FROM score_invalidations
			WHERE epoch < `+retentionFloor+` AND address <> $1
		)
		DELETE FROM wallet_scores WHERE address = $1
	`, strings.ToLower(address))
	if err != nil {
		return fmt.Errorf("invalidate score: %w", err)
	}
	return nil
}

// ListRecent returns fresh scores, most recently computed first.
func (p *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+scoreColumns+`
		FROM wallet_scores WHERE computed_at >= $1
		ORDER BY computed_at DESC, address ASC LIMIT $2
	`, p.cutoff(), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent scores: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (p *PostgresStore) cutoff() time.Time {
	if p.ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(-p.ttl)
}

// scannable abstracts *sql.Row and *sql.Rows for shared scanning logic.
type scannable interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scannable) (*Record, error) {
	var rec Record
	var staked string
	r := &rec.Result
	err := row.Scan(
		&rec.Address, &r.Score, &r.BaseScore, &r.RiskBand, &r.Explanation,
		&r.StakingBoost, &r.OraclePenalty, &staked, &r.StakingTier,
		&r.PolicyVersion, &rec.ComputedAt,
	)
	if err != nil {
		return nil, err
	}
	if r.StakedAmount, err = decimal.NewFromString(staked); err != nil {
		return nil, fmt.Errorf("parse staked amount %q: %w", staked, err)
	}
	return &rec, nil
}
