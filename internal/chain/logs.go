package chain

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// TransferEventSig is topic0 of the ERC-20 and ERC-721 Transfer event.
var TransferEventSig = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// DecodeTransferLog converts a Transfer log into a TokenTransfer. ERC-721
// transfers index the token id as a fourth topic and carry no data; they are
// recorded with an amount of 1. ERC-20 amounts are scaled by decimals.
func DecodeTransferLog(l types.Log, blockTime time.Time, decimals int32) (TokenTransfer, error) {
	if len(l.Topics) < 3 || l.Topics[0] != TransferEventSig {
		return TokenTransfer{}, fmt.Errorf("%w: log %s is not a Transfer event", ErrInvalidRecord, l.TxHash.Hex())
	}

	tr := TokenTransfer{
		TxHash:         strings.ToLower(l.TxHash.Hex()),
		LogIndex:       l.Index,
		TokenAddress:   strings.ToLower(l.Address.Hex()),
		From:           strings.ToLower(common.BytesToAddress(l.Topics[1].Bytes()).Hex()),
		To:             strings.ToLower(common.BytesToAddress(l.Topics[2].Bytes()).Hex()),
		BlockTimestamp: blockTime.UTC(),
	}

	if len(l.Topics) == 4 {
		tr.TokenType = TokenERC721
		tr.Amount = decimal.NewFromInt(1)
		return tr, nil
	}

	if len(l.Data) < 32 {
		return TokenTransfer{}, fmt.Errorf("%w: log %s has short data", ErrInvalidRecord, l.TxHash.Hex())
	}
	raw := new(big.Int).SetBytes(l.Data[:32])
	tr.TokenType = TokenERC20
	tr.Amount = decimal.NewFromBigInt(raw, -decimals)
	return tr, nil
}

// AddressTopic encodes an address as an indexed event topic.
func AddressTopic(addr string) common.Hash {
	return common.BytesToHash(common.HexToAddress(addr).Bytes())
}
