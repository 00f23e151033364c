package domain

import (
	"math/big"
	"time"
)

// RebalanceRecord is the append-only audit entry emitted once per executed
// corrective swap. It captures the margin at trigger time alongside the
// requested and received amounts; it is never mutated after creation.
type RebalanceRecord struct {
	ID             string
	AccountOwner   string // checksummed hex address
	AccountNumber  string // decimal string
	MarginBps      int64  // margin at trigger time
	ThresholdBps   int64  // policy threshold at trigger time
	AmountIn       *big.Int
	MinOut         *big.Int
	AmountReceived *big.Int
	Caller         string // principal that submitted the trigger
	CreatedAt      time.Time
}

// TradeRecord is emitted by the swap executor for every completed venue
// conversion. Comparing Requested (minOut) against Received is the only
// place slippage is observable.
type TradeRecord struct {
	ID            string
	AccountOwner  string
	AccountNumber string
	AmountIn      *big.Int
	MinOut        *big.Int
	Received      *big.Int
	TokenIn       string
	TokenOut      string
	FeeTier       uint32
	CreatedAt     time.Time
}
