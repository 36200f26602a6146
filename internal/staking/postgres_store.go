package staking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by the staking_positions table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed staking store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Position(ctx context.Context, address string) (Position, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT address, tier, staked_amount, updated_at
		FROM staking_positions WHERE address = $1
	`, strings.ToLower(address))

	pos, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Position{}, ErrNotFound
	}
	if err != nil {
		return Position{}, fmt.Errorf("get staking position: %w", err)
	}
	return pos, nil
}

func (p *PostgresStore) Upsert(ctx context.Context, pos Position) error {
	if pos.StakedAmount.IsNegative() {
		return ErrInvalidAmount
	}
	if pos.UpdatedAt.IsZero() {
		pos.UpdatedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO staking_positions (address, tier, staked_amount, updated_at)
		VALUES ($1, $2, $3::NUMERIC(38,18), $4)
		ON CONFLICT (address) DO UPDATE SET
			tier          = EXCLUDED.tier,
			staked_amount = EXCLUDED.staked_amount,
			updated_at    = EXCLUDED.updated_at
	`, strings.ToLower(pos.Address), TierFor(pos.StakedAmount), pos.StakedAmount.String(), pos.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert staking position: %w", err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, address string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM staking_positions WHERE address = $1`, strings.ToLower(address))
	if err != nil {
		return fmt.Errorf("delete staking position: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ListTopStakers(ctx context.Context, limit int) ([]Position, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT address, tier, staked_amount, updated_at
		FROM staking_positions
		ORDER BY staked_amount DESC, address ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list top stakers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, pos)
	}
	return result, rows.Err()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row scannable) (Position, error) {
	var pos Position
	var amount string
	if err := row.Scan(&pos.Address, &pos.Tier, &amount, &pos.UpdatedAt); err != nil {
		return Position{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Position{}, fmt.Errorf("parse staked amount %q: %w", amount, err)
	}
	pos.StakedAmount = d
	return pos, nil
}
