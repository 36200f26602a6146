// Package staking resolves how much of the native asset an address has locked
// and maps that position onto the tier and boost tables the scorer consumes.
package staking

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("staking position not found")
	ErrInvalidAmount = errors.New("staked amount must be non-negative")
)

// Tier thresholds in native units.
var (
	Tier1Threshold = decimal.NewFromInt(1_000)
	Tier2Threshold = decimal.NewFromInt(10_000)
	Tier3Threshold = decimal.NewFromInt(100_000)
)

// MaxTier is the highest staking tier.
const MaxTier = 3

// Position is an address's current stake.
type Position struct {
	Address      string          `json:"address"`
	Tier         int             `json:"tier"`
	StakedAmount decimal.Decimal `json:"stakedAmount"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Adapter looks up staking positions.
type Adapter interface {
	Position(ctx context.Context, address string) (Position, error)
}

// Store persists staking positions.
type Store interface {
	Adapter
	Upsert(ctx context.Context, pos Position) error
	Delete(ctx context.Context, address string) error
	ListTopStakers(ctx context.Context, limit int) ([]Position, error)
}

// TierFor maps a staked amount onto tiers 0–3.
func TierFor(amount decimal.Decimal) int {
	switch {
	case amount.GreaterThanOrEqual(Tier3Threshold):
		return 3
	case amount.GreaterThanOrEqual(Tier2Threshold):
		return 2
	case amount.GreaterThanOrEqual(Tier1Threshold):
		return 1
	default:
		return 0
	}
}

// NewPosition builds a position with its tier derived from the amount.
func NewPosition(address string, amount decimal.Decimal) (Position, error) {
	if amount.IsNegative() {
		return Position{}, ErrInvalidAmount
	}
	return Position{
		Address:      address,
		Tier:         TierFor(amount),
		StakedAmount: amount,
		UpdatedAt:    time.Now().UTC(),
	}, nil
}

// None is the position of an address that has never staked.
func None(address string) Position {
	return Position{Address: address, StakedAmount: decimal.Zero}
}

// ClampTier forces a tier into 0–MaxTier.
func ClampTier(tier int) int {
	if tier < 0 {
		return 0
	}
	if tier > MaxTier {
		return MaxTier
	}
	return tier
}

// BoostTable maps staking tiers to score boosts.
type BoostTable struct {
	Version string           `json:"version" koanf:"version"`
	Boosts  [MaxTier + 1]int `json:"boosts" koanf:"boosts"`
	Cap     int              `json:"cap" koanf:"cap"`
}

// DefaultBoostTable returns the built-in boost table.
func DefaultBoostTable() BoostTable {
	return BoostTable{
		Version: "2024.1",
		Boosts:  [MaxTier + 1]int{0, 25, 50, 100},
		Cap:     100,
	}
}

// Boost returns the score boost for a tier, never above Cap or below zero.
func (b BoostTable) Boost(tier int) int {
	boost := b.Boosts[ClampTier(tier)]
	if boost > b.Cap {
		boost = b.Cap
	}
	if boost < 0 {
		boost = 0
	}
	return boost
}
