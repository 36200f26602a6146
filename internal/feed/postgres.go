package feed

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mbd888/walletrisk/internal/chain"
)

// maxHistoryRows caps how much history a single evaluation reads per table.
const maxHistoryRows = 10000

// PostgresFeed reads history from the wallet_transactions and
// token_transfers tables.
type PostgresFeed struct {
	db *sql.DB
}

// NewPostgresFeed creates a PostgreSQL-backed feed.
func NewPostgresFeed(db *sql.DB) *PostgresFeed {
	return &PostgresFeed{db: db}
}

func (p *PostgresFeed) History(ctx context.Context, address string) (History, error) {
	addr := strings.ToLower(address)

	txs, err := p.transactions(ctx, addr)
	if err != nil {
		return History{}, err
	}
	transfers, err := p.transfers(ctx, addr)
	if err != nil {
		return History{}, err
	}
	return Sanitize(ctx, addr, txs, transfers), nil
}

func (p *PostgresFeed) transactions(ctx context.Context, addr string) ([]chain.Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT hash, from_address, to_address, value, gas_used, gas_price,
		       status, block_timestamp, contract_address, method_id
		FROM wallet_transactions
		WHERE from_address = $1 OR to_address = $1
		ORDER BY block_timestamp ASC, hash ASC
		LIMIT $2
	`, addr, maxHistoryRows)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txs []chain.Transaction
	for rows.Next() {
		var (
			tx              chain.Transaction
			value, gasPrice string
			status          string
			gasUsed         int64
		)
		if err := rows.Scan(&tx.Hash, &tx.From, &tx.To, &value, &gasUsed, &gasPrice,
			&status, &tx.BlockTimestamp, &tx.ContractAddress, &tx.MethodID); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Value, _ = decimal.NewFromString(value)
		tx.GasPrice, _ = decimal.NewFromString(gasPrice)
		tx.Status = chain.TxStatus(status)
		if gasUsed > 0 {
			tx.GasUsed = uint64(gasUsed)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (p *PostgresFeed) transfers(ctx context.Context, addr string) ([]chain.TokenTransfer, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT tx_hash, log_index, token_address, token_type, from_address, to_address, amount, block_timestamp
		FROM token_transfers
		WHERE from_address = $1 OR to_address = $1
		ORDER BY block_timestamp ASC, id ASC
		LIMIT $2
	`, addr, maxHistoryRows)
	if err != nil {
		return nil, fmt.Errorf("query token transfers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transfers []chain.TokenTransfer
	for rows.Next() {
		var (
			tr        chain.TokenTransfer
			logIndex  int64
			tokenType string
			amount    string
		)
		if err := rows.Scan(&tr.TxHash, &logIndex, &tr.TokenAddress, &tokenType, &tr.From, &tr.To, &amount, &tr.BlockTimestamp); err != nil {
			return nil, fmt.Errorf("scan token transfer: %w", err)
		}
		if logIndex > 0 {
			tr.LogIndex = uint(logIndex)
		}
		tr.TokenType = chain.TokenType(tokenType)
		tr.Amount, _ = decimal.NewFromString(amount)
		transfers = append(transfers, tr)
	}
	return transfers, rows.Err()
}

// InsertTransactions stores transactions, ignoring hashes already present.
func (p *PostgresFeed) InsertTransactions(ctx context.Context, txs ...chain.Transaction) error {
	for _, tx := range txs {
		tx.Normalize()
		_, err := p.db.ExecContext(ctx, `
			INSERT INTO wallet_transactions (hash, from_address, to_address, value, gas_used,
				gas_price, status, block_timestamp, contract_address, method_id)
			VALUES ($1, $2, $3, $4::NUMERIC(78,18), $5, $6::NUMERIC(78,0), $7, $8, $9, $10)
			ON CONFLICT (hash) DO NOTHING
		`, tx.Hash, tx.From, tx.To, tx.Value.String(), int64(tx.GasUsed), tx.GasPrice.Round(0).String(),
			string(tx.Status), tx.BlockTimestamp, tx.ContractAddress, tx.MethodID)
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", tx.Hash, err)
		}
	}
	return nil
}

// InsertTransfers stores token transfers. Transfers carrying a log position
// already present are ignored.
func (p *PostgresFeed) InsertTransfers(ctx context.Context, transfers ...chain.TokenTransfer) error {
	for _, tr := range transfers {
		tr.Normalize()
		_, err := p.db.ExecContext(ctx, `
			INSERT INTO token_transfers (tx_hash, log_index, token_address, token_type,
				from_address, to_address, amount, block_timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC(78,18), $8)
			ON CONFLICT (tx_hash, log_index) WHERE tx_hash <> '' DO NOTHING
		`, tr.TxHash, int64(tr.LogIndex), tr.TokenAddress, string(tr.TokenType),
			tr.From, tr.To, tr.Amount.String(), tr.BlockTimestamp)
		if err != nil {
			return fmt.Errorf("insert token transfer: %w", err)
		}
	}
	return nil
}
