// Package idgen mints identifiers for requests and fraud assessments.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// AssessmentPrefix marks fraud assessment ids.
const AssessmentPrefix = "fra_"

// RequestID returns a random (version 4) UUID.
func RequestID() string {
	return uuid.NewString()
}

// AssessmentID returns AssessmentPrefix followed by 32 hex chars of a
// version 7 UUID, so ids minted later sort after earlier ones.
func AssessmentID() string {
	return WithPrefix(AssessmentPrefix)
}

// WithPrefix returns prefix + a dash-free time-ordered UUID.
func WithPrefix(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + strings.ReplaceAll(id.String(), "-", "")
}
