package risk

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mbd888/walletrisk/internal/idgen"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu          sync.RWMutex
	assessments map[string][]*FraudAssessment // address → assessments, oldest first
	flagged     []*FraudAssessment
}

// NewMemoryStore creates an in-memory assessment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assessments: make(map[string][]*FraudAssessment),
	}
}

func (s *MemoryStore) Record(_ context.Context, a *FraudAssessment) error {
	stamp(a)
	cp := clone(a)
	cp.Address = strings.ToLower(cp.Address)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments[cp.Address] = append(s.assessments[cp.Address], cp)
	if cp.Flagged {
		s.flagged = append(s.flagged, cp)
	}
	return nil
}

func (s *MemoryStore) ListByAddress(_ context.Context, address string, limit int) ([]*FraudAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.assessments[strings.ToLower(address)], limit), nil
}

func (s *MemoryStore) ListFlagged(_ context.Context, limit int) ([]*FraudAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.flagged, limit), nil
}

func newestFirst(all []*FraudAssessment, limit int) []*FraudAssessment {
	if len(all) == 0 {
		return nil
	}
	start := 0
	if limit > 0 && len(all) > limit {
		start = len(all) - limit
	}
	result := make([]*FraudAssessment, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		result = append(result, clone(all[i]))
	}
	return result
}

// stamp assigns an ID and timestamp to an assessment that has none.
func stamp(a *FraudAssessment) {
	if a.ID == "" {
		a.ID = idgen.AssessmentID()
	}
	if a.AssessedAt.IsZero() {
		a.AssessedAt = time.Now().UTC()
	}
}

func clone(a *FraudAssessment) *FraudAssessment {
	cp := *a
	cp.Indicators = append([]string{}, a.Indicators...)
	if a.Fallbacks != nil {
		cp.Fallbacks = append([]string(nil), a.Fallbacks...)
	}
	return &cp
}
