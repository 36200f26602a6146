package risk

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mbd888/walletrisk/internal/chain"
	"github.com/mbd888/walletrisk/internal/features"
	"github.com/mbd888/walletrisk/internal/txgraph"
)

// Sybil rule outputs, checked in this order; the first match wins.
const (
	sybilConcentration = 0.8
	sybilBurst         = 0.7
	sybilClustering    = 0.6
	graphHub           = 0.7
	graphClique        = 0.6
)

const (
	topSources         = 3
	concentrationShare = 0.8
	burstWindow        = 24 * time.Hour
	burstCount         = 10
	clusteringLimit    = 0.8
	hubInDegree        = 10
	cliqueClustering   = 0.5
	cliqueMinNodes     = 6
)

// GraphBuilder turns a transaction history into a graph.
type GraphBuilder func(txs []chain.Transaction) txgraph.Graph

// Analyzer computes fraud assessments. It is stateless and safe for
// concurrent use.
type Analyzer struct {
	buildGraph GraphBuilder
}

// NewAnalyzer creates an analyzer using the built-in transaction graph.
func NewAnalyzer() *Analyzer {
	return &Analyzer{buildGraph: txgraph.FromTransactions}
}

// WithGraphBuilder replaces the graph implementation.
func (a *Analyzer) WithGraphBuilder(b GraphBuilder) *Analyzer {
	a.buildGraph = b
	return a
}

// Assess analyses one wallet. It always returns a complete assessment;
// ID and AssessedAt are left for the caller to stamp.
func (a *Analyzer) Assess(address string, v features.Vector, txs []chain.Transaction) *FraudAssessment {
	var fallbacks []string
	sybil := a.sybil(address, v, txs)
	if sybil.IsNeutral() {
		fallbacks = append(fallbacks, sybil.Reason())
	}
	sybilScore := round(sybil.Value(), 4)
	patternScore := round(patterns(v), 4)
	anomalyScore := round(anomalies(v), 4)

	fraudRisk := (sybilScore*weightSybil + patternScore*weightPattern + anomalyScore*weightAnomaly) * 100
	fraudRisk = math.Max(0, math.Min(100, round(fraudRisk, 2)))

	indicators := []string{}
	if sybilScore > IndicatorThreshold {
		indicators = append(indicators, IndicatorSybil)
	}
	if patternScore > IndicatorThreshold {
		indicators = append(indicators, IndicatorPatterns)
	}
	if anomalyScore > IndicatorThreshold {
		indicators = append(indicators, IndicatorAnomaly)
	}

	return &FraudAssessment{
		Address:      address,
		FraudRisk:    fraudRisk,
		RiskLevel:    LevelFor(fraudRisk),
		SybilScore:   sybilScore,
		PatternScore: patternScore,
		AnomalyScore: anomalyScore,
		Indicators:   indicators,
		Flagged:      fraudRisk >= FlagThreshold,
		Fallbacks:    fallbacks,
	}
}

// sybil evaluates the rules in fixed priority order. A neutral graph signal
// falls through to zero and is reported as a fallback.
func (a *Analyzer) sybil(address string, v features.Vector, txs []chain.Transaction) Signal {
	if len(txs) < minSybilTxs {
		return Neutral(fmt.Sprintf("sybil: fewer than %d transactions", minSybilTxs))
	}
	if sourceConcentration(address, txs) >= concentrationShare {
		return Ok(sybilConcentration)
	}
	if earlyBurst(txs) > burstCount {
		return Ok(sybilBurst)
	}
	if v.AddressClusteringScore > clusteringLimit {
		return Ok(sybilClustering)
	}
	return a.graphSignal(address, txs)
}

// graphSignal runs graph analysis, recovering any failure into a neutral
// signal.
func (a *Analyzer) graphSignal(address string, txs []chain.Transaction) (sig Signal) {
	defer func() {
		if r := recover(); r != nil {
			sig = Neutral(fmt.Sprintf("graph analysis failed: %v", r))
		}
	}()
	if a.buildGraph == nil {
		return Neutral("graph analysis unavailable")
	}

	g := a.buildGraph(txs)
	if g.InDegree(address) > hubInDegree {
		return Ok(graphHub)
	}
	if g.NodeCount() >= cliqueMinNodes && g.AverageClustering() > cliqueClustering {
		return Ok(graphClique)
	}
	return Ok(0)
}

// sourceConcentration is the share of incoming transactions sent by the
// top three senders. Zero when nothing was received.
func sourceConcentration(address string, txs []chain.Transaction) float64 {
	senders := make(map[string]int)
	incoming := 0
	for _, tx := range txs {
		if tx.To == address && tx.From != address {
			senders[tx.From]++
			incoming++
		}
	}
	if incoming == 0 {
		return 0
	}
	counts := make([]int, 0, len(senders))
	for _, c := range senders {
		counts = append(counts, c)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(counts)))
	top := 0
	for i := 0; i < len(counts) && i < topSources; i++ {
		top += counts[i]
	}
	return float64(top) / float64(incoming)
}

// earlyBurst counts transactions within burstWindow of the earliest one.
func earlyBurst(txs []chain.Transaction) int {
	first := txs[0].BlockTimestamp
	for _, tx := range txs[1:] {
		if tx.BlockTimestamp.Before(first) {
			first = tx.BlockTimestamp
		}
	}
	n := 0
	for _, tx := range txs {
		if tx.BlockTimestamp.Sub(first) <= burstWindow {
			n++
		}
	}
	return n
}

func patterns(v features.Vector) float64 {
	score := 0.0
	if v.TxFrequencyDaily > 100 {
		score += 0.3
	}
	if v.TxRegularity < 0.2 {
		score += 0.2
	}
	if v.FailureRate > 0.3 {
		score += 0.3
	}
	if v.TokenConcentration > 0.9 {
		score += 0.2
	}
	return math.Min(score, 1)
}

func anomalies(v features.Vector) float64 {
	score := 0.0
	if v.TimeOfDayVariance < 10 {
		score += 0.3
	}
	if v.ActivityConsistency < 0.2 {
		score += 0.2
	}
	if v.GasEfficiency < 0.2 {
		score += 0.2
	}
	if v.AccountAgeDays < 7 && v.TxCount > 50 {
		score += 0.3
	}
	return math.Min(score, 1)
}

func round(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
