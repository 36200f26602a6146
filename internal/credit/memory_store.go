package credit

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// maxTrackedInvalidations bounds the invalidation epochs a MemoryStore
// remembers. Past it the store forgets them all and refuses writes from
// evaluations that began earlier.
const maxTrackedInvalidations = 100_000

// MemoryStore is an in-memory score cache with a fixed TTL.
type MemoryStore struct {
	records map[string]*Record
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex

	// epoch counts invalidations. invalidated holds each address's latest
	// one; epochs at or below floor have been forgotten.
	epoch       int64
	floor       int64
	invalidated map[string]int64
}

// NewMemoryStore creates a score cache. A ttl of zero never expires entries.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		records:     make(map[string]*Record),
		ttl:         ttl,
		now:         time.Now,
		invalidated: make(map[string]int64),
	}
}

func (m *MemoryStore) Epoch(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.epoch + 1, nil
}

func (m *MemoryStore) Get(_ context.Context, address string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[strings.ToLower(address)]
	if !ok || m.stale(rec) {
		return nil, ErrScoreNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) Put(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rec
	cp.Address = strings.ToLower(cp.Address)
	if cp.Epoch != 0 && (cp.Epoch <= m.floor || m.invalidated[cp.Address] >= cp.Epoch) {
		return ErrSuperseded
	}
	if cp.ComputedAt.IsZero() {
		cp.ComputedAt = m.now()
	}
	m.records[cp.Address] = &cp
	return nil
}

func (m *MemoryStore) Invalidate(_ context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	addr := strings.ToLower(address)
	delete(m.records, addr)
	m.epoch++
	if len(m.invalidated) >= maxTrackedInvalidations {
		clear(m.invalidated)
		m.floor = m.epoch
	}
	m.invalidated[addr] = m.epoch
	return nil
}

func (m *MemoryStore) ListRecent(_ context.Context, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		if m.stale(rec) {
			continue
		}
		cp := *rec
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].ComputedAt.Equal(result[j].ComputedAt) {
			return result[i].ComputedAt.After(result[j].ComputedAt)
		}
		return result[i].Address < result[j].Address
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) stale(rec *Record) bool {
	return m.ttl > 0 && m.now().Sub(rec.ComputedAt) > m.ttl
}
