// Package chain defines the on-chain records the scoring engine consumes.
//
// Records are produced by external feeds (Postgres history, RPC log scans)
// and validated here, at the collaborator boundary. Everything downstream of
// this package assumes well-formed, time-ordered input.
package chain

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidRecord  = errors.New("invalid record")
)

// TxStatus is the execution outcome of a transaction.
type TxStatus string

const (
	StatusPending TxStatus = "pending"
	StatusSuccess TxStatus = "success"
	StatusFailed  TxStatus = "failed"
)

// TokenType distinguishes fungible from non-fungible transfers.
type TokenType string

const (
	TokenERC20  TokenType = "ERC20"
	TokenERC721 TokenType = "ERC721"
)

// Transaction is one on-chain transaction touching an address.
type Transaction struct {
	Hash            string          `json:"hash"`
	From            string          `json:"from"`
	To              string          `json:"to"`
	Value           decimal.Decimal `json:"value"` // native units (ETH, not wei)
	GasUsed         uint64          `json:"gasUsed"`
	GasPrice        decimal.Decimal `json:"gasPrice"` // wei
	Status          TxStatus        `json:"status"`
	BlockTimestamp  time.Time       `json:"blockTimestamp"`
	ContractAddress string          `json:"contractAddress,omitempty"`
	MethodID        string          `json:"methodId,omitempty"`
}

// TokenTransfer is one ERC-20 or ERC-721 transfer. TxHash and LogIndex
// locate the Transfer log on chain; they are empty for records ingested
// without a log position.
type TokenTransfer struct {
	TxHash         string          `json:"txHash,omitempty"`
	LogIndex       uint            `json:"logIndex,omitempty"`
	TokenAddress   string          `json:"tokenAddress"`
	TokenType      TokenType       `json:"tokenType"`
	From           string          `json:"from"`
	To             string          `json:"to"`
	Amount         decimal.Decimal `json:"amount"`
	BlockTimestamp time.Time       `json:"blockTimestamp"`
}

// NormalizeAddress validates a hex address and returns its lower-case form.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}

// NormalizeMethodID lower-cases a 4-byte selector and ensures the 0x prefix.
// Anything that is not a 4-byte selector normalizes to "".
func NormalizeMethodID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return ""
	}
	if !strings.HasPrefix(id, "0x") {
		id = "0x" + id
	}
	if len(id) < 10 {
		return ""
	}
	return id[:10]
}

// Validate checks a transaction against the record invariants.
func (t *Transaction) Validate() error {
	if t.Hash == "" {
		return fmt.Errorf("%w: empty hash", ErrInvalidRecord)
	}
	if !common.IsHexAddress(t.From) {
		return fmt.Errorf("%w: tx %s from %q", ErrInvalidRecord, t.Hash, t.From)
	}
	// Contract creations have no recipient.
	if t.To != "" && !common.IsHexAddress(t.To) {
		return fmt.Errorf("%w: tx %s to %q", ErrInvalidRecord, t.Hash, t.To)
	}
	if t.ContractAddress != "" && !common.IsHexAddress(t.ContractAddress) {
		return fmt.Errorf("%w: tx %s contract %q", ErrInvalidRecord, t.Hash, t.ContractAddress)
	}
	if t.Value.IsNegative() || t.GasPrice.IsNegative() {
		return fmt.Errorf("%w: tx %s negative amount", ErrInvalidRecord, t.Hash)
	}
	switch t.Status {
	case StatusPending, StatusSuccess, StatusFailed:
	default:
		return fmt.Errorf("%w: tx %s status %q", ErrInvalidRecord, t.Hash, t.Status)
	}
	if t.BlockTimestamp.IsZero() {
		return fmt.Errorf("%w: tx %s missing timestamp", ErrInvalidRecord, t.Hash)
	}
	return nil
}

// Normalize lower-cases addresses and the method selector in place.
func (t *Transaction) Normalize() {
	t.Hash = strings.ToLower(t.Hash)
	t.From = strings.ToLower(t.From)
	t.To = strings.ToLower(t.To)
	t.ContractAddress = strings.ToLower(t.ContractAddress)
	t.MethodID = NormalizeMethodID(t.MethodID)
	t.BlockTimestamp = t.BlockTimestamp.UTC()
}

// Validate checks a token transfer against the record invariants.
func (t *TokenTransfer) Validate() error {
	if !common.IsHexAddress(t.TokenAddress) {
		return fmt.Errorf("%w: token %q", ErrInvalidRecord, t.TokenAddress)
	}
	switch t.TokenType {
	case TokenERC20, TokenERC721:
	default:
		return fmt.Errorf("%w: token type %q", ErrInvalidRecord, t.TokenType)
	}
	if !common.IsHexAddress(t.From) || !common.IsHexAddress(t.To) {
		return fmt.Errorf("%w: transfer endpoints %q -> %q", ErrInvalidRecord, t.From, t.To)
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("%w: negative transfer amount", ErrInvalidRecord)
	}
	if t.BlockTimestamp.IsZero() {
		return fmt.Errorf("%w: transfer missing timestamp", ErrInvalidRecord)
	}
	return nil
}

// Normalize lower-cases addresses in place.
func (t *TokenTransfer) Normalize() {
	t.TxHash = strings.ToLower(strings.TrimSpace(t.TxHash))
	t.TokenAddress = strings.ToLower(t.TokenAddress)
	t.From = strings.ToLower(t.From)
	t.To = strings.ToLower(t.To)
	t.BlockTimestamp = t.BlockTimestamp.UTC()
}

// SortTransactions orders transactions oldest to newest. Hash breaks ties so
// the order is stable across feeds.
func SortTransactions(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].BlockTimestamp.Equal(txs[j].BlockTimestamp) {
			return txs[i].BlockTimestamp.Before(txs[j].BlockTimestamp)
		}
		return txs[i].Hash < txs[j].Hash
	})
}

// SortTransfers orders token transfers oldest to newest. Ties break on
// token, from, to, amount and log position, so any permutation of the same
// records sorts identically.
func SortTransfers(transfers []TokenTransfer) {
	sort.SliceStable(transfers, func(i, j int) bool {
		a, b := &transfers[i], &transfers[j]
		if !a.BlockTimestamp.Equal(b.BlockTimestamp) {
			return a.BlockTimestamp.Before(b.BlockTimestamp)
		}
		if a.TokenAddress != b.TokenAddress {
			return a.TokenAddress < b.TokenAddress
		}
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		if c := a.Amount.Cmp(b.Amount); c != 0 {
			return c < 0
		}
		if a.TxHash != b.TxHash {
			return a.TxHash < b.TxHash
		}
		return a.LogIndex < b.LogIndex
	})
}

// logKey identifies a transfer by its log position, or "" when unknown.
func (t *TokenTransfer) logKey() string {
	if t.TxHash == "" {
		return ""
	}
	return t.TxHash + ":" + strconv.FormatUint(uint64(t.LogIndex), 10)
}

// contentKey identifies a transfer by what it moved and when.
func (t *TokenTransfer) contentKey() string {
	return strings.Join([]string{
		t.TokenAddress, string(t.TokenType), t.From, t.To, t.Amount.String(),
		strconv.FormatInt(t.BlockTimestamp.UnixNano(), 10),
	}, "|")
}

// Sanitize normalizes and validates records, dropping malformed ones and
// duplicates. Transactions are duplicates when they share a hash. Transfers
// are duplicates when they share a log position, or, for a transfer without
// one, when another transfer moved the same amount of the same token between
// the same addresses at the same time. It returns the surviving records in
// time order and the number dropped.
func Sanitize(txs []Transaction, transfers []TokenTransfer) ([]Transaction, []TokenTransfer, int) {
	rejected := 0
	seen := make(map[string]struct{}, len(txs))

	cleanTxs := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		tx.Normalize()
		if err := tx.Validate(); err != nil {
			rejected++
			continue
		}
		if _, dup := seen[tx.Hash]; dup {
			rejected++
			continue
		}
		seen[tx.Hash] = struct{}{}
		cleanTxs = append(cleanTxs, tx)
	}

	var located, unlocated []TokenTransfer
	for _, tr := range transfers {
		tr.Normalize()
		if err := tr.Validate(); err != nil {
			rejected++
			continue
		}
		if tr.TxHash != "" {
			located = append(located, tr)
		} else {
			unlocated = append(unlocated, tr)
		}
	}

	cleanTransfers := make([]TokenTransfer, 0, len(located)+len(unlocated))
	seenLogs := make(map[string]struct{}, len(located))
	seenContent := make(map[string]struct{}, len(located)+len(unlocated))
	for _, tr := range located {
		if _, dup := seenLogs[tr.logKey()]; dup {
			rejected++
			continue
		}
		seenLogs[tr.logKey()] = struct{}{}
		seenContent[tr.contentKey()] = struct{}{}
		cleanTransfers = append(cleanTransfers, tr)
	}
	for _, tr := range unlocated {
		if _, dup := seenContent[tr.contentKey()]; dup {
			rejected++
			continue
		}
		seenContent[tr.contentKey()] = struct{}{}
		cleanTransfers = append(cleanTransfers, tr)
	}

	SortTransactions(cleanTxs)
	SortTransfers(cleanTransfers)
	return cleanTxs, cleanTransfers, rejected
}
