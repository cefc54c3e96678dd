// Package history is the append-only record of settled trades, kept in
// sqlite so it is queryable for audit without touching the hot stores.
// Rows are never updated or deleted.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/gridwatt/energytrade/internal/domain"
)

type History struct {
	db *sql.DB
}

// Open opens (or creates) the history database at path.
func Open(path string) (*History, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &History{db: db}
	if err := h.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return h, nil
}

func (h *History) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

func (h *History) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS transactions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  from_addr TEXT NOT NULL,
  to_addr TEXT NOT NULL,
  energy_amount TEXT NOT NULL,
  price TEXT NOT NULL,
  ts INTEGER NOT NULL,
  tx_hash TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_from ON transactions(from_addr);`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_to ON transactions(to_addr);`,
	}
	for _, stmt := range stmts {
		if _, err := h.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("history migrate: %w", err)
		}
	}
	return nil
}

// Append inserts one settled trade and returns it with its row id.
// Input is assumed validated by the settlement engine.
func (h *History) Append(ctx context.Context, t domain.Transaction) (domain.Transaction, error) {
	res, err := h.db.ExecContext(ctx, `
INSERT INTO transactions (from_addr, to_addr, energy_amount, price, ts, tx_hash)
VALUES (?,?,?,?,?,?)
`, t.From.Hex(), t.To.Hex(), t.EnergyAmount.String(), t.Price.String(), t.Timestamp, t.TxHash.Hex())
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("history insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("history insert id: %w", err)
	}
	t.ID = id
	return t, nil
}

// ForParticipant returns every trade where addr is either side, oldest
// first.
func (h *History) ForParticipant(ctx context.Context, addr common.Address) ([]domain.Transaction, error) {
	rows, err := h.db.QueryContext(ctx, `
SELECT id, from_addr, to_addr, energy_amount, price, ts, tx_hash
FROM transactions
WHERE from_addr = ? OR to_addr = ?
ORDER BY id ASC
`, addr.Hex(), addr.Hex())
	if err != nil {
		return nil, fmt.Errorf("history query: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Transaction, 0, 16)
	for rows.Next() {
		var (
			t                    domain.Transaction
			fromHex, toHex       string
			energyStr, priceStr  string
			hashHex              string
		)
		if err := rows.Scan(&t.ID, &fromHex, &toHex, &energyStr, &priceStr, &t.Timestamp, &hashHex); err != nil {
			return nil, fmt.Errorf("history scan: %w", err)
		}
		t.From = common.HexToAddress(fromHex)
		t.To = common.HexToAddress(toHex)
		if t.EnergyAmount, err = decimal.NewFromString(energyStr); err != nil {
			return nil, fmt.Errorf("history decode energy_amount: %w", err)
		}
		if t.Price, err = decimal.NewFromString(priceStr); err != nil {
			return nil, fmt.Errorf("history decode price: %w", err)
		}
		t.TxHash = common.HexToHash(hashHex)
		out = append(out, t)
	}
	return out, rows.Err()
}
