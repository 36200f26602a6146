package risk

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore persists assessments in the fraud_assessments table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed assessment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const assessmentColumns = `id, address, fraud_risk, risk_level, sybil_score, pattern_score,
	anomaly_score, indicators, fallbacks, flagged, assessed_at`

func (s *PostgresStore) Record(ctx context.Context, a *FraudAssessment) error {
	stamp(a)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fraud_assessments (`+assessmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		a.ID, strings.ToLower(a.Address), a.FraudRisk, string(a.RiskLevel),
		a.SybilScore, a.PatternScore, a.AnomalyScore,
		pq.Array(nonNil(a.Indicators)), pq.Array(nonNil(a.Fallbacks)),
		a.Flagged, a.AssessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record fraud assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByAddress(ctx context.Context, address string, limit int) ([]*FraudAssessment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+assessmentColumns+`
		FROM fraud_assessments
		WHERE address = $1
		ORDER BY assessed_at DESC
		LIMIT $2
	`, strings.ToLower(address), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list fraud assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanAssessments(rows)
}

func (s *PostgresStore) ListFlagged(ctx context.Context, limit int) ([]*FraudAssessment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+assessmentColumns+`
		FROM fraud_assessments
		WHERE flagged
		ORDER BY assessed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list flagged assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanAssessments(rows)
}

func scanAssessments(rows *sql.Rows) ([]*FraudAssessment, error) {
	var result []*FraudAssessment
	for rows.Next() {
		var a FraudAssessment
		var level string
		var fallbacks []string
		if err := rows.Scan(
			&a.ID, &a.Address, &a.FraudRisk, &level, &a.SybilScore, &a.PatternScore,
			&a.AnomalyScore, pq.Array(&a.Indicators), pq.Array(&fallbacks), &a.Flagged, &a.AssessedAt,
		); err != nil {
			return nil, fmt.Errorf("scan fraud assessment: %w", err)
		}
		a.RiskLevel = Level(level)
		if a.Indicators == nil {
			a.Indicators = []string{}
		}
		if len(fallbacks) > 0 {
			a.Fallbacks = fallbacks
		}
		result = append(result, &a)
	}
	return result, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
