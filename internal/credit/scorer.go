package credit

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mbd888/walletrisk/internal/features"
	"github.com/mbd888/walletrisk/internal/staking"
)

// Volatility is the oracle volatility input. The zero value means the oracle
// gave no reading, which scores as no deduction and no penalty.
type Volatility struct {
	Value   float64
	Present bool
}

// VolatilityOf wraps a known reading. NaN and Inf are treated as absent.
func VolatilityOf(v float64) Volatility {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Volatility{}
	}
	return Volatility{Value: math.Max(0, math.Min(1, v)), Present: true}
}

// Scorer applies a Policy and a staking BoostTable to feature vectors.
// It holds no mutable state and is safe for concurrent use.
type Scorer struct {
	policy Policy
	boosts staking.BoostTable
}

// NewScorer creates a scorer bound to a policy and boost table.
func NewScorer(policy Policy, boosts staking.BoostTable) *Scorer {
	return &Scorer{policy: policy, boosts: boosts}
}

// Policy returns the scorer's policy.
func (s *Scorer) Policy() Policy {
	return s.policy
}

// breakdown holds the per-factor contributions to the base score.
type breakdown struct {
	tx, volume, stablecoin, age, volatility int
}

// Score computes the credit score. It never fails: absent oracle or staking
// input means no penalty and no boost.
func (s *Scorer) Score(v features.Vector, vol Volatility, tier int, stakedAmount decimal.Decimal) ScoreResult {
	p := s.policy
	tier = staking.ClampTier(tier)
	if stakedAmount.IsNegative() {
		stakedAmount = decimal.Zero
	}

	b := breakdown{
		tx:         reached(p.TxBuckets, float64(v.TxCount)),
		volume:     reached(p.VolumeBuckets, v.TotalVolume),
		stablecoin: reached(p.StablecoinBuckets, v.StablecoinRatio),
		age:        reached(p.AgeBuckets, v.AccountAgeDays),
	}
	penalty := 0
	if vol.Present {
		b.volatility = exceeded(p.VolatilityDeductions, vol.Value)
		penalty = exceeded(p.OraclePenalties, vol.Value)
	}

	base := clampScore(p.BaseScore + b.tx + b.volume + b.stablecoin + b.age - b.volatility)
	boost := s.boosts.Boost(tier)

	baseBand := s.band(base)
	band := baseBand
	if tier >= p.BandImprovementTier && band > BandLow {
		band--
	}

	return ScoreResult{
		Score:         clampScore(base - penalty + boost),
		BaseScore:     base,
		RiskBand:      band,
		Explanation:   explain(base, b, vol, penalty, tier, boost, baseBand, band),
		StakingBoost:  boost,
		OraclePenalty: penalty,
		StakedAmount:  stakedAmount,
		StakingTier:   tier,
		PolicyVersion: p.Version,
	}
}

func (s *Scorer) band(base int) int {
	switch {
	case base >= s.policy.LowBandMin:
		return BandLow
	case base >= s.policy.MediumBandMin:
		return BandMedium
	default:
		return BandHigh
	}
}

func clampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// explain builds one clause per contributing factor in a fixed order.
func explain(base int, b breakdown, vol Volatility, penalty, tier, boost, baseBand, band int) string {
	clauses := []string{fmt.Sprintf(
		"base score %d (transactions +%d, volume +%d, stablecoins +%d, account age +%d, volatility -%d)",
		base, b.tx, b.volume, b.stablecoin, b.age, b.volatility,
	)}
	if penalty > 0 {
		clauses = append(clauses, fmt.Sprintf("oracle volatility %.2f penalty -%d", vol.Value, penalty))
	}
	if boost > 0 {
		clauses = append(clauses, fmt.Sprintf("staking tier %d boost +%d", tier, boost))
	}
	if band != baseBand {
		clauses = append(clauses, fmt.Sprintf("risk band improved from %s to %s by staking tier %d",
			BandName(baseBand), BandName(band), tier))
	}
	return strings.Join(clauses, "; ")
}
