package metrics

import "expvar"

var (
	ProposalsCreated          = expvar.NewInt("proposals_created")
	ProposalsCancelled        = expvar.NewInt("proposals_cancelled")
	SettlementsConfirmed      = expvar.NewInt("settlements_confirmed")
	SettlementsRejected       = expvar.NewInt("settlements_rejected")
	CompensatingCredits       = expvar.NewInt("compensating_credits")
	PostCommitInconsistencies = expvar.NewInt("post_commit_inconsistencies")
)
