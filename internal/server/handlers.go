package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/gridwatt/energytrade/internal/domain"
	"github.com/gridwatt/energytrade/internal/gateway"
)

const traderHeader = "X-Trader-Address"

// traderIdentity pulls the authenticated caller address from the
// request. Upstream auth is trusted; only the format is checked here.
func traderIdentity(r *http.Request) (common.Address, error) {
	raw := r.Header.Get(traderHeader)
	if !common.IsHexAddress(raw) {
		return common.Address{}, errors.New("missing or malformed " + traderHeader + " header")
	}
	return common.HexToAddress(raw), nil
}

func pathAddress(r *http.Request) (common.Address, error) {
	raw := urlParam(r, "address")
	if !common.IsHexAddress(raw) {
		return common.Address{}, errors.New("malformed address")
	}
	return common.HexToAddress(raw), nil
}

func pathProposalID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(urlParam(r, "proposalID"), 10, 64)
}

// statusFor maps core errors to HTTP statuses. Every distinct failure
// kind keeps a distinct signal; nothing is reported as success with
// partial effects.
func statusFor(err error) int {
	var (
		rejected    *gateway.RejectedError
		unavailable *gateway.UnavailableError
	)
	switch {
	case errors.Is(err, domain.ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrProposalInactive),
		errors.Is(err, domain.ErrAlreadyRetired),
		errors.Is(err, domain.ErrSelfTradeNotAllowed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPostCommitInconsistency):
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &rejected), errors.As(err, &unavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleProposalsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"proposals": s.engine.ListActiveProposals(),
	})
}

type createProposalRequest struct {
	EnergyAmount decimal.Decimal `json:"energy_amount"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	Duration     int64           `json:"duration"`
}

func (s *Server) handleProposalCreate(w http.ResponseWriter, r *http.Request) {
	proposer, err := traderIdentity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req createProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	p, err := s.engine.CreateProposal(proposer, req.EnergyAmount, req.PricePerUnit, req.Duration)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"proposal": p})
}

func (s *Server) handleProposalExecute(w http.ResponseWriter, r *http.Request) {
	executor, err := traderIdentity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, err := pathProposalID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed proposal id")
		return
	}
	record, err := s.engine.ExecuteTrade(r.Context(), executor, id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transaction": record})
}

func (s *Server) handleProposalCancel(w http.ResponseWriter, r *http.Request) {
	caller, err := traderIdentity(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, err := pathProposalID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed proposal id")
		return
	}
	if err := s.engine.CancelProposal(caller, id); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleBalanceGet(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": addr.Hex(),
		"balance": s.engine.GetBalance(addr),
	})
}

func (s *Server) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	txs, err := s.engine.HistoryFor(ctx, addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs})
}

type creditRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) handleAccountCredit(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req creditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := s.engine.CreditAccount(addr, req.Amount); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": addr.Hex(),
		"balance": s.engine.GetBalance(addr),
	})
}
