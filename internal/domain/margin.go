package domain

import (
	"fmt"
	"math/big"
)

// bpsScale converts a ratio into basis points: 10000 bps = 100%.
var bpsScale = big.NewInt(10_000)

// MarginBps computes the normalized safety margin of a position in basis
// points using integer floor division:
//
//	marginBps = floor((supply - borrow) * 10000 / borrow)
//
// clamped to zero when supply <= borrow. A position with zero borrow has no
// meaningful margin; MarginBps returns ErrNoBorrowValue in that case and
// callers must branch on it explicitly rather than coerce to zero or
// infinity.
//
// This is the single implementation of the formula. The guardian's
// enforcement path and the client monitor's display path both call it, so
// the number an operator sees is always the number the guardian enforces.
func MarginBps(v PositionValues) (*big.Int, error) {
	if v.Supply == nil || v.Borrow == nil {
		return nil, fmt.Errorf("domain: nil position values: %w", ErrInvalidReference)
	}
	if v.Borrow.Sign() == 0 {
		return nil, fmt.Errorf("domain: supply=%s: %w", v.Supply.String(), ErrNoBorrowValue)
	}
	diff := new(big.Int).Sub(v.Supply, v.Borrow)
	if diff.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	diff.Mul(diff, bpsScale)
	return diff.Div(diff, v.Borrow), nil
}

// MaxThresholdBps is the upper bound for a safety-policy threshold:
// 10000 bps, i.e. a 100% cushion over the borrow value.
const MaxThresholdBps int64 = 10_000

// ValidThresholdBps reports whether t is an acceptable policy threshold.
func ValidThresholdBps(t int64) bool {
	return t >= 0 && t <= MaxThresholdBps
}
