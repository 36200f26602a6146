// Package feed supplies the raw on-chain history the scoring engine consumes.
//
// Every feed returns sanitized records: addresses lower-cased, malformed
// records dropped and counted, everything in time order.
package feed

import (
	"context"
	"strings"

	"github.com/mbd888/walletrisk/internal/chain"
	"github.com/mbd888/walletrisk/internal/logging"
	"github.com/mbd888/walletrisk/internal/metrics"
	"github.com/mbd888/walletrisk/internal/upstream"
)

// History is an address's transactions and token transfers.
type History struct {
	Address      string                `json:"address"`
	Transactions []chain.Transaction   `json:"transactions"`
	Transfers    []chain.TokenTransfer `json:"transfers"`
	Rejected     int                   `json:"rejected"`
}

// Empty reports whether the history has no records.
func (h History) Empty() bool {
	return len(h.Transactions) == 0 && len(h.Transfers) == 0
}

// Feed loads history for an address. An address with no history yields an
// empty History, not an error.
type Feed interface {
	History(ctx context.Context, address string) (History, error)
}

// Sanitize builds a History from raw records, logging and counting any
// rejected ones.
func Sanitize(ctx context.Context, address string, txs []chain.Transaction, transfers []chain.TokenTransfer) History {
	cleanTxs, cleanTransfers, rejected := chain.Sanitize(txs, transfers)
	if rejected > 0 {
		metrics.RejectedRecordsTotal.Add(float64(rejected))
		logging.L(ctx).Warn("dropped malformed history records",
			"address", address,
			"rejected", rejected,
		)
	}
	return History{
		Address:      strings.ToLower(address),
		Transactions: cleanTxs,
		Transfers:    cleanTransfers,
		Rejected:     rejected,
	}
}

// Combined merges several feeds. A transaction reported by more than one
// feed is kept once.
type Combined []Feed

func (c Combined) History(ctx context.Context, address string) (History, error) {
	var txs []chain.Transaction
	var transfers []chain.TokenTransfer
	rejected := 0
	for _, f := range c {
		h, err := f.History(ctx, address)
		if err != nil {
			return History{}, err
		}
		txs = append(txs, h.Transactions...)
		transfers = append(transfers, h.Transfers...)
		rejected += h.Rejected
	}
	h := Sanitize(ctx, address, txs, transfers)
	h.Rejected += rejected
	return h, nil
}

// Guarded routes a feed through an upstream guard.
type Guarded struct {
	feed  Feed
	guard *upstream.Guard
	name  string
}

// NewGuarded wraps feed so that each History call is retried, timed out and
// circuit broken under the given upstream name.
func NewGuarded(feed Feed, guard *upstream.Guard, name string) *Guarded {
	return &Guarded{feed: feed, guard: guard, name: name}
}

func (g *Guarded) History(ctx context.Context, address string) (History, error) {
	var h History
	err := g.guard.Call(ctx, g.name, func(ctx context.Context) error {
		var err error
		h, err = g.feed.History(ctx, address)
		return err
	})
	if err != nil {
		return History{}, err
	}
	return h, nil
}
