package domain

import "errors"

// Validation failures. All of these are detected before any mutation,
// so a caller can retry or correct input with no cleanup.
var (
	ErrInvalidParameters   = errors.New("invalid parameters")
	ErrNotFound            = errors.New("not found")
	ErrProposalInactive    = errors.New("proposal inactive")
	ErrAlreadyRetired      = errors.New("proposal already retired")
	ErrSelfTradeNotAllowed = errors.New("self trade not allowed")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrNotOwner            = errors.New("caller is not the proposer")
)

// ErrPostCommitInconsistency means the gateway confirmed a settlement
// that the local book can no longer account for (e.g. the proposal was
// retired underneath us after the external commit). It is not locally
// recoverable and must reach the operator/audit path, never a silent
// retry.
var ErrPostCommitInconsistency = errors.New("post-commit inconsistency between gateway and book")
