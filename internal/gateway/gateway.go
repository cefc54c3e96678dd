// Package gateway abstracts the external system of record that durably
// commits a settlement. The core treats it as an opaque submit-and-
// confirm call: either a transaction hash comes back, or the submission
// failed and nothing external happened.
package gateway

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Settlement is what the gateway needs to commit one trade.
type Settlement struct {
	// RequestID lets the gateway deduplicate retried submissions.
	RequestID    uuid.UUID       `json:"request_id"`
	ProposalID   uint64          `json:"proposal_id"`
	Buyer        common.Address  `json:"buyer"`
	Seller       common.Address  `json:"seller"`
	EnergyAmount decimal.Decimal `json:"energy_amount"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
}

// ContractGateway is consumed by the settlement engine.
//
// SubmitSettlement blocks until the gateway confirms or rejects, or ctx
// expires. A nil error means the settlement is durably committed
// externally; after that point it cannot be compensated.
type ContractGateway interface {
	SubmitSettlement(ctx context.Context, s Settlement) (common.Hash, error)
}

// RejectedError is a gateway-side rejection. The submission had no
// external effect.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("gateway rejected settlement: %s", e.Reason)
}

// UnavailableError is a transport-level failure (network error, bad
// HTTP status, timeout) before any confirmation. The engine treats it
// like a rejection: nothing external happened, compensate and report.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("gateway unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }
