package feed

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mbd888/walletrisk/internal/chain"
	"github.com/mbd888/walletrisk/internal/logging"
)

const (
	defaultTokenDecimals = 18
	defaultBlockTimes    = 8192
)

// ChainReader is the subset of an Ethereum client the chain feed needs.
// *ethclient.Client satisfies it.
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// ChainConfig configures a ChainFeed.
type ChainConfig struct {
	RPCURL string
	// Lookback is how many blocks before head are scanned.
	Lookback uint64
	// Decimals maps lower-case token addresses to their ERC-20 decimals.
	// Unlisted tokens are assumed to use 18.
	Decimals map[string]int32
	// BlockTimes bounds the block timestamp cache; least recently used
	// blocks are evicted first.
	BlockTimes int
}

// DefaultChainConfig returns sensible defaults.
func DefaultChainConfig() ChainConfig {
	return ChainConfig{Lookback: 50000, BlockTimes: defaultBlockTimes}
}

// ChainFeed reads token transfers touching an address straight from an RPC
// node. It reports no plain transactions: log scans cannot recover them, so
// it is meant to be combined with a stored feed.
type ChainFeed struct {
	client     ChainReader
	config     ChainConfig
	blockTimes *lru.Cache[uint64, time.Time]
}

// DialChainFeed connects to the configured RPC endpoint.
func DialChainFeed(cfg ChainConfig) (*ChainFeed, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	return NewChainFeed(client, cfg), nil
}

// NewChainFeed creates a chain feed over an existing client.
func NewChainFeed(client ChainReader, cfg ChainConfig) *ChainFeed {
	if cfg.Lookback == 0 {
		cfg.Lookback = DefaultChainConfig().Lookback
	}
	if cfg.BlockTimes <= 0 {
		cfg.BlockTimes = defaultBlockTimes
	}
	return &ChainFeed{
		client:     client,
		config:     cfg,
		blockTimes: lru.NewCache[uint64, time.Time](cfg.BlockTimes),
	}
}

func (f *ChainFeed) History(ctx context.Context, address string) (History, error) {
	head, err := f.client.BlockNumber(ctx)
	if err != nil {
		return History{}, fmt.Errorf("failed to get block number: %w", err)
	}
	var from uint64
	if head > f.config.Lookback {
		from = head - f.config.Lookback
	}

	topic := chain.AddressTopic(address)
	var logs []types.Log
	seen := make(map[string]struct{})
	// Outgoing then incoming: topic1 is the sender, topic2 the recipient.
	for _, topics := range [][][]common.Hash{
		{{chain.TransferEventSig}, {topic}},
		{{chain.TransferEventSig}, nil, {topic}},
	} {
		batch, err := f.client.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(from),
			ToBlock:   new(big.Int).SetUint64(head),
			Topics:    topics,
		})
		if err != nil {
			return History{}, fmt.Errorf("failed to filter logs: %w", err)
		}
		for _, l := range batch {
			// Self-transfers match both scans.
			key := fmt.Sprintf("%s:%d", l.TxHash.Hex(), l.Index)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			logs = append(logs, l)
		}
	}

	transfers := make([]chain.TokenTransfer, 0, len(logs))
	undecodable := 0
	for _, l := range logs {
		ts, err := f.blockTime(ctx, l.BlockNumber)
		if err != nil {
			return History{}, err
		}
		tr, err := chain.DecodeTransferLog(l, ts, f.decimals(l.Address))
		if err != nil {
			undecodable++
			continue
		}
		transfers = append(transfers, tr)
	}
	if undecodable > 0 {
		logging.L(ctx).Warn("skipped undecodable transfer logs", "address", address, "count", undecodable)
	}

	h := Sanitize(ctx, address, nil, transfers)
	h.Rejected += undecodable
	return h, nil
}

func (f *ChainFeed) blockTime(ctx context.Context, number uint64) (time.Time, error) {
	if ts, ok := f.blockTimes.Get(number); ok {
		return ts, nil
	}

	header, err := f.client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get header %d: %w", number, err)
	}
	ts := time.Unix(int64(header.Time), 0).UTC()
	f.blockTimes.Add(number, ts)
	return ts, nil
}

func (f *ChainFeed) decimals(token common.Address) int32 {
	if d, ok := f.config.Decimals[strings.ToLower(token.Hex())]; ok {
		return d
	}
	return defaultTokenDecimals
}
