package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Account holds a participant's spendable balance.
// Accounts are created lazily: an address nobody has credited yet
// simply reads as balance zero.
type Account struct {
	Address common.Address  `json:"address"`
	Balance decimal.Decimal `json:"balance"`
}
