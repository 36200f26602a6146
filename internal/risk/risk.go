// Package risk assesses how likely a wallet is to be part of a fraud or
// Sybil operation.
//
// Three sub-scores in [0,1] are blended into a 0–100 fraud risk:
// Sybil (funding concentration, burst activity, clustering, graph shape),
// suspicious transaction patterns and behavioral anomalies. The Analyzer is
// pure; internal failures degrade to a neutral contribution that is listed in
// FraudAssessment.Fallbacks instead of failing the assessment.
package risk

import (
	"context"
	"errors"
	"time"
)

var ErrAssessmentNotFound = errors.New("fraud assessment not found")

// Level buckets the fraud risk.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Thresholds on the 0–100 fraud risk.
const (
	HighRiskThreshold   = 70.0
	MediumRiskThreshold = 40.0
	FlagThreshold       = HighRiskThreshold
)

// Indicators attached when a sub-score exceeds IndicatorThreshold.
const (
	IndicatorSybil     = "sybil_attack"
	IndicatorPatterns  = "suspicious_patterns"
	IndicatorAnomaly   = "behavioral_anomaly"
	IndicatorThreshold = 0.5
)

const (
	weightSybil   = 0.4
	weightPattern = 0.3
	weightAnomaly = 0.3
	minSybilTxs   = 5
)

// FraudAssessment is the outcome of analysing one wallet.
type FraudAssessment struct {
	ID           string    `json:"id,omitempty"`
	Address      string    `json:"address"`
	FraudRisk    float64   `json:"fraudRisk"`
	RiskLevel    Level     `json:"riskLevel"`
	SybilScore   float64   `json:"sybilScore"`
	PatternScore float64   `json:"patternScore"`
	AnomalyScore float64   `json:"anomalyScore"`
	Indicators   []string  `json:"indicators"`
	Flagged      bool      `json:"flagged"`
	Fallbacks    []string  `json:"fallbacks,omitempty"`
	AssessedAt   time.Time `json:"assessedAt,omitempty"`
}

// LevelFor maps a fraud risk onto a level.
func LevelFor(fraudRisk float64) Level {
	switch {
	case fraudRisk >= HighRiskThreshold:
		return LevelHigh
	case fraudRisk >= MediumRiskThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Store is an append-only audit trail of assessments.
type Store interface {
	Record(ctx context.Context, a *FraudAssessment) error
	ListByAddress(ctx context.Context, address string, limit int) ([]*FraudAssessment, error)
	ListFlagged(ctx context.Context, limit int) ([]*FraudAssessment, error)
}

// Source assesses an address on demand.
type Source interface {
	Assess(ctx context.Context, address string) (*FraudAssessment, error)
}
