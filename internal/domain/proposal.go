package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Proposal is an open offer to trade a fixed energy amount at a fixed
// unit price for a bounded duration. Proposals are never deleted: a
// settled or cancelled proposal is retired (IsActive=false) so its ID
// stays resolvable for audit.
type Proposal struct {
	ID           uint64          `json:"id"`
	Proposer     common.Address  `json:"proposer"`
	EnergyAmount decimal.Decimal `json:"energy_amount"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	// Duration is the offer's advertised validity window in seconds.
	// It is carried and displayed but not enforced: there is no
	// expiry-based matching.
	Duration  int64     `json:"duration"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// TotalCost is what the executing buyer pays: EnergyAmount * PricePerUnit.
func (p *Proposal) TotalCost() decimal.Decimal {
	return p.EnergyAmount.Mul(p.PricePerUnit)
}
