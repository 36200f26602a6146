// Package watcher keeps cached scores honest.
//
// Watchers observe new activity, either Transfer logs on chain or
// transaction events on a Kafka topic, and invalidate the cached score of
// every address involved so the next read re-evaluates it.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mbd888/walletrisk/internal/chain"
	"github.com/mbd888/walletrisk/internal/metrics"
)

// Invalidator drops cached scores.
type Invalidator interface {
	Invalidate(ctx context.Context, addresses ...string) (int, error)
}

// LogReader is the subset of an Ethereum client the chain watcher needs.
type LogReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Config for the chain watcher
type Config struct {
	RPCURL       string
	Tokens       []common.Address // empty = every token
	PollInterval time.Duration
	StartBlock   uint64 // 0 = latest
	// MaxRange caps the blocks scanned per poll.
	MaxRange uint64
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		PollInterval: 15 * time.Second,
		MaxRange:     2000,
	}
}

// ChainWatcher polls Transfer logs and invalidates both endpoints.
type ChainWatcher struct {
	client      LogReader
	config      Config
	invalidator Invalidator
	logger      *slog.Logger

	// Track processed logs
	processed map[string]bool
	mu        sync.Mutex

	// Last processed block
	lastBlock uint64

	// Shutdown
	stop chan struct{}
	done chan struct{}
}

// New dials the RPC endpoint and creates a chain watcher.
func New(cfg Config, inv Invalidator, logger *slog.Logger) (*ChainWatcher, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	return NewWithClient(client, cfg, inv, logger), nil
}

// NewWithClient creates a chain watcher over an existing client.
func NewWithClient(client LogReader, cfg Config, inv Invalidator, logger *slog.Logger) *ChainWatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.MaxRange == 0 {
		cfg.MaxRange = DefaultConfig().MaxRange
	}
	return &ChainWatcher{
		client:      client,
		config:      cfg,
		invalidator: inv,
		logger:      logger,
		processed:   make(map[string]bool),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start begins watching for transfers
func (w *ChainWatcher) Start(ctx context.Context) error {
	if w.config.StartBlock == 0 {
		block, err := w.client.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to get block number: %w", err)
		}
		w.lastBlock = block
	} else {
		w.lastBlock = w.config.StartBlock
	}

	w.logger.Info("chain watcher started",
		"tokens", len(w.config.Tokens),
		"startBlock", w.lastBlock,
	)

	go w.pollLoop(ctx)
	return nil
}

// Stop stops the watcher
func (w *ChainWatcher) Stop() {
	close(w.stop)
	<-w.done
}

func (w *ChainWatcher) pollLoop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			if err := w.poll(ctx); err != nil {
				w.logger.Error("transfer poll failed", "error", err)
			}
		}
	}
}

// poll scans blocks after the last processed one, at most MaxRange at a time.
func (w *ChainWatcher) poll(ctx context.Context) error {
	currentBlock, err := w.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get block number: %w", err)
	}

	// Nothing new
	if currentBlock <= w.lastBlock {
		return nil
	}
	to := currentBlock
	if to-w.lastBlock > w.config.MaxRange {
		to = w.lastBlock + w.config.MaxRange
	}

	logs, err := w.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(w.lastBlock + 1),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: w.config.Tokens,
		Topics:    [][]common.Hash{{chain.TransferEventSig}},
	})
	if err != nil {
		return fmt.Errorf("failed to filter logs: %w", err)
	}

	for _, vLog := range logs {
		if err := w.processTransfer(ctx, vLog); err != nil {
			w.logger.Error("failed to process transfer", "tx", vLog.TxHash.Hex(), "error", err)
		}
	}

	w.lastBlock = to
	return nil
}

func (w *ChainWatcher) processTransfer(ctx context.Context, vLog types.Log) error {
	key := fmt.Sprintf("%s:%d", vLog.TxHash.Hex(), vLog.Index)

	w.mu.Lock()
	if w.processed[key] {
		w.mu.Unlock()
		return nil
	}
	w.processed[key] = true
	w.mu.Unlock()

	// On failure, unmark so the transfer is retried on the next poll cycle.
	var succeeded bool
	defer func() {
		if !succeeded {
			w.mu.Lock()
			delete(w.processed, key)
			w.mu.Unlock()
		}
	}()

	if len(vLog.Topics) < 3 {
		return fmt.Errorf("invalid transfer event")
	}
	from := strings.ToLower(common.BytesToAddress(vLog.Topics[1].Bytes()).Hex())
	to := strings.ToLower(common.BytesToAddress(vLog.Topics[2].Bytes()).Hex())

	n, err := w.invalidator.Invalidate(ctx, from, to)
	if err != nil {
		return fmt.Errorf("failed to invalidate scores: %w", err)
	}
	metrics.InvalidationsTotal.WithLabelValues("chain").Add(float64(n))

	w.logger.Debug("scores invalidated by transfer",
		"from", from,
		"to", to,
		"token", strings.ToLower(vLog.Address.Hex()),
		"tx", vLog.TxHash.Hex(),
	)

	succeeded = true
	return nil
}
