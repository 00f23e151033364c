package domain

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrNotOwner         = errors.New("caller is not the policy owner")
	ErrInvalidThreshold = errors.New("threshold out of range")
	ErrInvalidReference = errors.New("invalid binding reference")
	ErrNoBorrowValue    = errors.New("position has no borrow value")
	ErrZeroAmount       = errors.New("amount must be positive")
	ErrChainMismatch    = errors.New("connected chain does not match configured deployment")
	ErrNotFound         = errors.New("not found")
	ErrLockHeld         = errors.New("lock already held")
)

// PolicyNotBreachedError is returned by the guardian when a trigger is
// requested while the position's margin is still above the configured
// threshold. It is an expected guarded no-op, not a fault: callers should
// treat it as "nothing to do".
type PolicyNotBreachedError struct {
	MarginBps    *big.Int
	ThresholdBps int64
}

func (e *PolicyNotBreachedError) Error() string {
	return fmt.Sprintf("policy not breached: margin %s bps above threshold %d bps",
		e.MarginBps.String(), e.ThresholdBps)
}

// IsPolicyNotBreached reports whether err (or anything it wraps) is a
// PolicyNotBreachedError.
func IsPolicyNotBreached(err error) bool {
	var pnb *PolicyNotBreachedError
	return errors.As(err, &pnb)
}
