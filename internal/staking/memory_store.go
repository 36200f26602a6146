package staking

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store for demo/development mode.
type MemoryStore struct {
	positions map[string]Position
	mu        sync.RWMutex
}

// NewMemoryStore creates a new in-memory staking store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{positions: make(map[string]Position)}
}

func (m *MemoryStore) Position(_ context.Context, address string) (Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[strings.ToLower(address)]
	if !ok {
		return Position{}, ErrNotFound
	}
	return pos, nil
}

func (m *MemoryStore) Upsert(_ context.Context, pos Position) error {
	if pos.StakedAmount.IsNegative() {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pos.Address = strings.ToLower(pos.Address)
	pos.Tier = TierFor(pos.StakedAmount)
	if pos.UpdatedAt.IsZero() {
		pos.UpdatedAt = time.Now().UTC()
	}
	m.positions[pos.Address] = pos
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr := strings.ToLower(address)
	if _, ok := m.positions[addr]; !ok {
		return ErrNotFound
	}
	delete(m.positions, addr)
	return nil
}

func (m *MemoryStore) ListTopStakers(_ context.Context, limit int) ([]Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]Position, 0, len(m.positions))
	for _, pos := range m.positions {
		result = append(result, pos)
	}
	sort.Slice(result, func(i, j int) bool {
		if c := result[i].StakedAmount.Cmp(result[j].StakedAmount); c != 0 {
			return c > 0
		}
		return result[i].Address < result[j].Address
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
