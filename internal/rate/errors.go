package rate

import "errors"

var (
	// ErrRateLimited is returned by Check when the policy budget is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrLedgerUnavailable wraps ledger backend failures.
	ErrLedgerUnavailable = errors.New("rate ledger unavailable")
)
