package feed

import (
	"context"
	"strings"
	"sync"

	"github.com/mbd888/walletrisk/internal/chain"
)

// MemoryFeed serves history from records held in memory.
type MemoryFeed struct {
	mu        sync.RWMutex
	txs       []chain.Transaction
	transfers []chain.TokenTransfer
}

// NewMemoryFeed creates an empty in-memory feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{}
}

// AddTransactions appends transactions to the feed.
func (m *MemoryFeed) AddTransactions(txs ...chain.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(m.txs, txs...)
}

// AddTransfers appends token transfers to the feed.
func (m *MemoryFeed) AddTransfers(transfers ...chain.TokenTransfer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers = append(m.transfers, transfers...)
}

// InsertTransactions implements Ingester.
func (m *MemoryFeed) InsertTransactions(_ context.Context, txs ...chain.Transaction) error {
	m.AddTransactions(txs...)
	return nil
}

// InsertTransfers implements Ingester.
func (m *MemoryFeed) InsertTransfers(_ context.Context, transfers ...chain.TokenTransfer) error {
	m.AddTransfers(transfers...)
	return nil
}

func (m *MemoryFeed) History(ctx context.Context, address string) (History, error) {
	addr := strings.ToLower(address)

	m.mu.RLock()
	var txs []chain.Transaction
	for _, tx := range m.txs {
		if strings.EqualFold(tx.From, addr) || strings.EqualFold(tx.To, addr) {
			txs = append(txs, tx)
		}
	}
	var transfers []chain.TokenTransfer
	for _, tr := range m.transfers {
		if strings.EqualFold(tr.From, addr) || strings.EqualFold(tr.To, addr) {
			transfers = append(transfers, tr)
		}
	}
	m.mu.RUnlock()

	return Sanitize(ctx, addr, txs, transfers), nil
}
