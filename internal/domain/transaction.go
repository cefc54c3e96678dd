package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Transaction is one settled trade. Entries are immutable once appended
// and the history is append-only.
type Transaction struct {
	ID           int64           `json:"id"`
	From         common.Address  `json:"from"`
	To           common.Address  `json:"to"`
	EnergyAmount decimal.Decimal `json:"energy_amount"`
	// Price is the proposal's unit price, not the total paid.
	// Total cost is EnergyAmount * Price.
	Price     decimal.Decimal `json:"price"`
	Timestamp int64           `json:"timestamp"`
	// TxHash is the gateway's settlement transaction hash.
	TxHash common.Hash `json:"tx_hash"`
}

// Involves reports whether addr is either side of the trade.
func (t *Transaction) Involves(addr common.Address) bool {
	return t.From == addr || t.To == addr
}
