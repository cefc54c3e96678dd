// Package engine orchestrates trade settlement: validation against the
// ledger and book, the external gateway commit, and the atomic local
// follow-through (retire + history append). It is also the service
// facade the API layer talks to.
package engine

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/gridwatt/energytrade/internal/book"
	"github.com/gridwatt/energytrade/internal/domain"
	"github.com/gridwatt/energytrade/internal/events"
	"github.com/gridwatt/energytrade/internal/gateway"
	"github.com/gridwatt/energytrade/internal/history"
	"github.com/gridwatt/energytrade/internal/ledger"
	"github.com/gridwatt/energytrade/internal/metrics"
	"github.com/gridwatt/energytrade/pkg/logger"
)

type Engine struct {
	ledger  *ledger.Ledger
	book    *book.Book
	history *history.History
	gw      gateway.ContractGateway
	bus     *events.Bus

	// locks serialize resolve+debit+commit per proposal. Account-level
	// serialization lives inside the ledger.
	locks *keyedLock
}

func New(l *ledger.Ledger, b *book.Book, h *history.History, gw gateway.ContractGateway, bus *events.Bus) *Engine {
	return &Engine{
		ledger:  l,
		book:    b,
		history: h,
		gw:      gw,
		bus:     bus,
		locks:   newKeyedLock(64),
	}
}

// CreateProposal lists a new offer on the book.
func (e *Engine) CreateProposal(proposer common.Address, energyAmount, pricePerUnit decimal.Decimal, duration int64) (domain.Proposal, error) {
	p, err := e.book.Create(proposer, energyAmount, pricePerUnit, duration)
	if err != nil {
		return domain.Proposal{}, err
	}
	metrics.ProposalsCreated.Add(1)
	logger.WithFields(map[string]interface{}{
		"proposal_id": p.ID,
		"proposer":    p.Proposer.Hex(),
	}).Info("proposal created")
	e.bus.Publish(events.Event{Type: events.TypeProposalCreated, Proposal: &p})
	return p, nil
}

// ListActiveProposals returns the open book, creation order.
func (e *Engine) ListActiveProposals() []domain.Proposal {
	return e.book.ListActive()
}

// GetBalance reads a participant balance; unknown addresses are zero.
func (e *Engine) GetBalance(addr common.Address) decimal.Decimal {
	return e.ledger.GetBalance(addr)
}

// CreditAccount adds funds to a participant's balance.
func (e *Engine) CreditAccount(addr common.Address, amount decimal.Decimal) error {
	return e.ledger.Credit(addr, amount)
}

// HistoryFor returns all settled trades involving addr, oldest first.
func (e *Engine) HistoryFor(ctx context.Context, addr common.Address) ([]domain.Transaction, error) {
	return e.history.ForParticipant(ctx, addr)
}

// ExecuteTrade settles proposalID against executor's balance.
//
// Ordering: validate, debit, gateway commit, retire, append. Any
// failure before the gateway confirms leaves no observable effect (the
// debit is compensated). After confirmation the external settlement is
// irreversible; a local follow-through failure is surfaced as
// domain.ErrPostCommitInconsistency for the audit path.
func (e *Engine) ExecuteTrade(ctx context.Context, executor common.Address, proposalID uint64) (domain.Transaction, error) {
	unlock := e.locks.lock(proposalID)
	defer unlock()

	p, err := e.book.Get(proposalID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if !p.IsActive {
		return domain.Transaction{}, errors.Wrapf(domain.ErrProposalInactive, "proposal %d", proposalID)
	}
	if executor == p.Proposer {
		return domain.Transaction{}, errors.Wrapf(domain.ErrSelfTradeNotAllowed, "proposal %d", proposalID)
	}

	totalCost := p.TotalCost()
	if err := e.ledger.Debit(executor, totalCost); err != nil {
		return domain.Transaction{}, err
	}

	txHash, err := e.gw.SubmitSettlement(ctx, gateway.Settlement{
		RequestID:    uuid.New(),
		ProposalID:   p.ID,
		Buyer:        executor,
		Seller:       p.Proposer,
		EnergyAmount: p.EnergyAmount,
		PricePerUnit: p.PricePerUnit,
	})
	if err != nil {
		// The debit already happened and the gateway did not commit:
		// credit it back before reporting the failure.
		metrics.SettlementsRejected.Add(1)
		if cerr := e.ledger.Credit(executor, totalCost); cerr != nil {
			logger.WithFields(map[string]interface{}{
				"proposal_id": p.ID,
				"executor":    executor.Hex(),
				"amount":      totalCost.String(),
			}).Errorf("compensating credit failed: %v", cerr)
			metrics.PostCommitInconsistencies.Add(1)
			return domain.Transaction{}, errors.Wrapf(domain.ErrPostCommitInconsistency,
				"gateway failed (%v) and compensating credit failed (%v)", err, cerr)
		}
		metrics.CompensatingCredits.Add(1)
		logger.WithField("proposal_id", p.ID).Warnf("settlement aborted, executor refunded: %v", err)
		return domain.Transaction{}, err
	}

	if err := e.book.Retire(p.ID); err != nil {
		// The gateway already committed externally; the book cannot
		// account for it. Never swallowed, never retried.
		metrics.PostCommitInconsistencies.Add(1)
		logger.WithFields(map[string]interface{}{
			"proposal_id": p.ID,
			"tx_hash":     txHash.Hex(),
		}).Errorf("retire failed after gateway confirmation: %v", err)
		return domain.Transaction{}, errors.Wrapf(domain.ErrPostCommitInconsistency,
			"settlement %s committed but retire failed: %v", txHash.Hex(), err)
	}

	record := domain.Transaction{
		From:         p.Proposer,
		To:           executor,
		EnergyAmount: p.EnergyAmount,
		Price:        p.PricePerUnit,
		Timestamp:    time.Now().Unix(),
		TxHash:       txHash,
	}
	record, err = e.history.Append(ctx, record)
	if err != nil {
		metrics.PostCommitInconsistencies.Add(1)
		logger.WithField("tx_hash", txHash.Hex()).Errorf("history append failed after settlement: %v", err)
		return domain.Transaction{}, errors.Wrapf(domain.ErrPostCommitInconsistency,
			"settlement %s committed but history append failed: %v", txHash.Hex(), err)
	}

	metrics.SettlementsConfirmed.Add(1)
	logger.WithFields(map[string]interface{}{
		"proposal_id": p.ID,
		"buyer":       executor.Hex(),
		"seller":      p.Proposer.Hex(),
		"total_cost":  totalCost.String(),
		"tx_hash":     txHash.Hex(),
	}).Info("trade settled")
	e.bus.Publish(events.Event{Type: events.TypeTradeSettled, Transaction: &record})
	return record, nil
}

// CancelProposal retires a proposal without settling. Only the original
// proposer may cancel; there is no ledger or history effect.
func (e *Engine) CancelProposal(caller common.Address, proposalID uint64) error {
	unlock := e.locks.lock(proposalID)
	defer unlock()

	p, err := e.book.Get(proposalID)
	if err != nil {
		return err
	}
	if !p.IsActive {
		return errors.Wrapf(domain.ErrProposalInactive, "proposal %d", proposalID)
	}
	if caller != p.Proposer {
		return errors.Wrapf(domain.ErrNotOwner, "proposal %d", proposalID)
	}
	if err := e.book.Retire(proposalID); err != nil {
		return err
	}
	p.IsActive = false
	metrics.ProposalsCancelled.Add(1)
	logger.WithField("proposal_id", proposalID).Info("proposal cancelled")
	e.bus.Publish(events.Event{Type: events.TypeProposalCancelled, Proposal: &p})
	return nil
}
