// Package features turns an address's raw transaction history into a
// bounded, immutable feature vector.
//
// Extraction is a pure function of its input: it performs no I/O, never
// fails, and produces bit-identical output for identical input (including
// ordering). Seven independent families are computed from the same two
// record slices:
//
//   - transaction patterns (count, frequency, timing regularity, failures)
//   - token holdings (diversity, concentration, stablecoin exposure)
//   - DeFi interactions (DEX / liquidity / yield classification)
//   - network structure (counterparties, density, reciprocity)
//   - temporal activity (age, streaks, inactivity gaps)
//   - financial metrics (volume, dispersion, diversification)
//   - behavioral habits (gas price, preferred hour, contract usage)
//
// Empty input yields Default(). Every division is guarded; undefined
// statistics resolve to documented neutral constants.
package features

import (
	"fmt"
	"math"
	"sort"

	"github.com/mbd888/walletrisk/internal/chain"
)

// Neutral constants used when a statistic is undefined for the input.
const (
	NeutralRegularity  = 0.5
	NeutralConsistency = 1.0
	NeutralGasEff      = 1.0

	minRegularityIntervals = 3
	minSkewSamples         = 3
	gasEfficiencyScale     = 100000.0
	weiPerGwei             = 1e9
	secondsPerDay          = 86400.0
)

// Vector is one immutable snapshot of derived features for an address.
// It is a value type: copies are independent snapshots.
type Vector struct {
	// Transaction patterns
	TxCount           int     `json:"txCount"`
	TxFrequencyDaily  float64 `json:"txFrequencyDaily"`
	TxRegularity      float64 `json:"txRegularity"`
	TimeOfDayVariance float64 `json:"timeOfDayVariance"`
	WeekendRatio      float64 `json:"weekendRatio"`
	GasEfficiency     float64 `json:"gasEfficiency"`
	FailureRate       float64 `json:"failureRate"`

	// Token holdings
	UniqueTokens       int     `json:"uniqueTokens"`
	ERC20Count         int     `json:"erc20Count"`
	ERC721Count        int     `json:"erc721Count"`
	TokenDiversity     float64 `json:"tokenDiversity"`
	TokenConcentration float64 `json:"tokenConcentration"`
	PortfolioStability float64 `json:"portfolioStability"`
	StablecoinRatio    float64 `json:"stablecoinRatio"`

	// DeFi interactions
	DEXInteractions       int     `json:"dexInteractions"`
	LiquidityInteractions int     `json:"liquidityInteractions"`
	YieldInteractions     int     `json:"yieldInteractions"`
	UniqueProtocols       int     `json:"uniqueProtocols"`
	DeFiActivityRatio     float64 `json:"defiActivityRatio"`

	// Network
	UniqueContracts        int     `json:"uniqueContracts"`
	UniqueCounterparties   int     `json:"uniqueCounterparties"`
	AddressClusteringScore float64 `json:"addressClusteringScore"`
	GraphDensity           float64 `json:"graphDensity"`
	Reciprocity            float64 `json:"reciprocity"`

	// Temporal
	AccountAgeDays      float64 `json:"accountAgeDays"`
	ActiveDays          int     `json:"activeDays"`
	ActivityStreakDays  int     `json:"activityStreakDays"`
	MaxInactivityDays   float64 `json:"maxInactivityDays"`
	AvgInactivityDays   float64 `json:"avgInactivityDays"`
	ActivityConsistency float64 `json:"activityConsistency"`

	// Financial
	TotalVolume          float64 `json:"totalVolume"`
	AvgTxValue           float64 `json:"avgTxValue"`
	MaxTxValue           float64 `json:"maxTxValue"`
	PortfolioVolatility  float64 `json:"portfolioVolatility"`
	DiversificationIndex float64 `json:"diversificationIndex"`
	InflowRatio          float64 `json:"inflowRatio"`

	// Behavioral
	AvgGasPriceGwei          float64 `json:"avgGasPriceGwei"`
	PreferredHour            float64 `json:"preferredHour"`
	ContractInteractionRatio float64 `json:"contractInteractionRatio"`
	ValueSkew                float64 `json:"valueSkew"`
}

// Default returns the vector for an address with no history.
func Default() Vector {
	return Vector{
		TxRegularity:        NeutralRegularity,
		ActivityConsistency: NeutralConsistency,
		GasEfficiency:       NeutralGasEff,
	}
}

// Validate reports the first feature that violates its bounds: ratios must
// lie in [0,1], counts and magnitudes must be non-negative, and nothing may
// be NaN or infinite.
func (v Vector) Validate() error {
	ratios := map[string]float64{
		"txRegularity":             v.TxRegularity,
		"weekendRatio":             v.WeekendRatio,
		"gasEfficiency":            v.GasEfficiency,
		"failureRate":              v.FailureRate,
		"tokenConcentration":       v.TokenConcentration,
		"portfolioStability":       v.PortfolioStability,
		"stablecoinRatio":          v.StablecoinRatio,
		"defiActivityRatio":        v.DeFiActivityRatio,
		"addressClusteringScore":   v.AddressClusteringScore,
		"graphDensity":             v.GraphDensity,
		"reciprocity":              v.Reciprocity,
		"activityConsistency":      v.ActivityConsistency,
		"diversificationIndex":     v.DiversificationIndex,
		"inflowRatio":              v.InflowRatio,
		"preferredHour":            v.PreferredHour,
		"contractInteractionRatio": v.ContractInteractionRatio,
	}
	magnitudes := map[string]float64{
		"txFrequencyDaily":    v.TxFrequencyDaily,
		"timeOfDayVariance":   v.TimeOfDayVariance,
		"tokenDiversity":      v.TokenDiversity,
		"accountAgeDays":      v.AccountAgeDays,
		"maxInactivityDays":   v.MaxInactivityDays,
		"avgInactivityDays":   v.AvgInactivityDays,
		"totalVolume":         v.TotalVolume,
		"avgTxValue":          v.AvgTxValue,
		"maxTxValue":          v.MaxTxValue,
		"portfolioVolatility": v.PortfolioVolatility,
		"avgGasPriceGwei":     v.AvgGasPriceGwei,
	}
	counts := map[string]int{
		"txCount":               v.TxCount,
		"uniqueTokens":          v.UniqueTokens,
		"erc20Count":            v.ERC20Count,
		"erc721Count":           v.ERC721Count,
		"dexInteractions":       v.DEXInteractions,
		"liquidityInteractions": v.LiquidityInteractions,
		"yieldInteractions":     v.YieldInteractions,
		"uniqueProtocols":       v.UniqueProtocols,
		"uniqueContracts":       v.UniqueContracts,
		"uniqueCounterparties":  v.UniqueCounterparties,
		"activeDays":            v.ActiveDays,
		"activityStreakDays":    v.ActivityStreakDays,
	}

	for _, name := range sortedKeys(ratios) {
		r := ratios[name]
		if !finite(r) || r < 0 || r > 1 {
			return fmt.Errorf("feature %s = %v outside [0,1]", name, r)
		}
	}
	for _, name := range sortedKeys(magnitudes) {
		m := magnitudes[name]
		if !finite(m) || m < 0 {
			return fmt.Errorf("feature %s = %v is negative or not finite", name, m)
		}
	}
	for _, name := range sortedKeys(counts) {
		if counts[name] < 0 {
			return fmt.Errorf("feature %s = %d is negative", name, counts[name])
		}
	}
	if !finite(v.ValueSkew) || v.ValueSkew < -1 || v.ValueSkew > 1 {
		return fmt.Errorf("feature valueSkew = %v outside [-1,1]", v.ValueSkew)
	}
	return nil
}

// Extractor computes feature vectors against a fixed set of lookup tables.
// It is safe for concurrent use.
type Extractor struct {
	tables Tables
	index  tableIndex
}

// NewExtractor creates an extractor bound to the given tables.
func NewExtractor(tables Tables) *Extractor {
	return &Extractor{tables: tables, index: tables.index()}
}

// Tables returns the tables the extractor was built with.
func (e *Extractor) Tables() Tables {
	return e.tables
}

// Extract computes the feature vector for the address the records describe.
// The subject address is inferred as the most frequent participant.
func (e *Extractor) Extract(txs []chain.Transaction, transfers []chain.TokenTransfer) Vector {
	return e.ExtractFor(InferSubject(txs, transfers), txs, transfers)
}

// ExtractFor computes the feature vector for a known subject address.
// Records are expected oldest to newest.
func (e *Extractor) ExtractFor(subject string, txs []chain.Transaction, transfers []chain.TokenTransfer) Vector {
	v := Default()
	if len(txs) == 0 && len(transfers) == 0 {
		return v
	}

	e.transactionPatterns(&v, txs)
	e.tokenHoldings(&v, transfers)
	e.defiInteractions(&v, txs)
	e.network(&v, subject, txs)
	e.temporal(&v, txs)
	e.financial(&v, subject, txs, transfers)
	e.behavioral(&v, txs)
	return v
}

// InferSubject returns the address that appears most often across the
// records. Ties go to the lexicographically smallest address.
func InferSubject(txs []chain.Transaction, transfers []chain.TokenTransfer) string {
	seen := make(map[string]int)
	for _, tx := range txs {
		bump(seen, tx.From)
		bump(seen, tx.To)
	}
	if len(txs) == 0 {
		for _, tr := range transfers {
			bump(seen, tr.From)
			bump(seen, tr.To)
		}
	}

	best, bestCount := "", 0
	for _, addr := range sortedKeys(seen) {
		if seen[addr] > bestCount {
			best, bestCount = addr, seen[addr]
		}
	}
	return best
}

func bump(m map[string]int, addr string) {
	if addr != "" {
		m[addr]++
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
