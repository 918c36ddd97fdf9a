package ledger

import "errors"

// Sentinel kinds for business-rule rejections. Every rejected operation
// leaves the ledger untouched and surfaces exactly one of these, so callers
// can branch on the failure deterministically.
var (
	// ErrInvalidStatus rejects operations against an entity whose lifecycle
	// status forbids them, e.g. staking against a deregistered entity.
	ErrInvalidStatus = errors.New("invalid entity status")

	// ErrInvalidAmount rejects amounts below a configured minimum, outside a
	// configured band, or exceeding what is currently available.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrNotOwner rejects callers that do not own the addressed resource.
	ErrNotOwner = errors.New("caller is not the owner")

	// ErrNotMaintainer rejects maintainer-gated calls from other accounts.
	ErrNotMaintainer = errors.New("caller is not the maintainer")

	// ErrEpochNotEnded rejects rating submission before the epoch has ended.
	ErrEpochNotEnded = errors.New("epoch has not ended")

	// ErrEpochAlreadyScored rejects a second rating submission for an epoch.
	ErrEpochAlreadyScored = errors.New("epoch already scored")

	// ErrInvalidCandidateSet rejects rating submissions whose entity list does
	// not exactly match the epoch's frozen top-K set.
	ErrInvalidCandidateSet = errors.New("rating list does not match epoch candidate set")

	// ErrAlreadyWithdrawn rejects withdrawing a stake twice.
	ErrAlreadyWithdrawn = errors.New("stake already withdrawn")

	// ErrNotClosed rejects withdrawing a stake that is still open.
	ErrNotClosed = errors.New("stake not closed")

	// ErrWithdrawalTooEarly rejects withdrawal before the delay has elapsed.
	ErrWithdrawalTooEarly = errors.New("withdrawal delay has not elapsed")

	// ErrNothingToClaim signals a claim walk that produced a zero payout.
	ErrNothingToClaim = errors.New("nothing to claim")

	// ErrTooManyEntities rejects registrations beyond the population cap.
	ErrTooManyEntities = errors.New("entity population cap reached")

	// ErrNotFound rejects operations addressing an unknown handle.
	ErrNotFound = errors.New("not found")

	// ErrClockRegression rejects advancing the logical clock backwards.
	ErrClockRegression = errors.New("logical clock may not regress")

	// ErrInvalidParams rejects malformed parameter sets.
	ErrInvalidParams = errors.New("invalid parameters")
)
