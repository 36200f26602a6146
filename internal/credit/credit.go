// Package credit scores wallet creditworthiness.
//
// The Scorer is a pure function of a feature vector, the oracle volatility
// and the staking position. Scores are bucketed rather than continuous so
// every point can be traced back to a policy row. The score cache (Store)
// and HTTP handlers live at the boundary and never influence the result.
package credit

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrScoreNotFound = errors.New("score not found")
	// ErrSuperseded means the address was invalidated after the score's
	// evaluation began, so the score was not cached.
	ErrSuperseded = errors.New("score superseded by invalidation")
)

// Score limits.
const (
	MinScore = 0
	MaxScore = 1000
)

// Risk bands, lowest risk first.
const (
	BandLow    = 1
	BandMedium = 2
	BandHigh   = 3
)

// BandName returns the label for a risk band.
func BandName(band int) string {
	switch band {
	case BandLow:
		return "low"
	case BandMedium:
		return "medium"
	default:
		return "high"
	}
}

// ScoreResult is the scorer's output for one wallet.
type ScoreResult struct {
	Score         int             `json:"score"`
	BaseScore     int             `json:"baseScore"`
	RiskBand      int             `json:"riskBand"`
	Explanation   string          `json:"explanation"`
	StakingBoost  int             `json:"stakingBoost"`
	OraclePenalty int             `json:"oraclePenalty"`
	StakedAmount  decimal.Decimal `json:"stakedAmount"`
	StakingTier   int             `json:"stakingTier"`
	PolicyVersion string          `json:"policyVersion"`
}

// Record is a cached score for an address.
type Record struct {
	Address    string      `json:"address"`
	Result     ScoreResult `json:"result"`
	ComputedAt time.Time   `json:"computedAt"`
	// Epoch is the store epoch taken before the score's inputs were read.
	// Zero writes unconditionally.
	Epoch int64 `json:"-"`
}

// Store caches the latest score per address.
type Store interface {
	// Get returns the cached record, or ErrScoreNotFound when absent or stale.
	Get(ctx context.Context, address string) (*Record, error)
	// Epoch marks the start of an evaluation.
	Epoch(ctx context.Context) (int64, error)
	// Put caches rec, or returns ErrSuperseded when the address was
	// invalidated at or after rec.Epoch.
	Put(ctx context.Context, rec *Record) error
	Invalidate(ctx context.Context, address string) error
	ListRecent(ctx context.Context, limit int) ([]*Record, error)
}

// Source produces a score for an address, from cache or freshly computed.
type Source interface {
	Score(ctx context.Context, address string) (*Record, error)
}
