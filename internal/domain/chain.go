package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// LedgerOracle reads a position's current supply and borrow values from the
// external ledger. It is trusted for correctness but not for freshness:
// callers must re-read before every decision rather than cache a snapshot.
type LedgerOracle interface {
	GetAccountValues(ctx context.Context, acct Account) (PositionValues, error)
}

// SwapParams describes a single-hop exact-input conversion request.
type SwapParams struct {
	TokenIn          common.Address
	TokenOut         common.Address
	Fee              uint32 // venue fee tier, e.g. 3000 = 0.30%
	Recipient        common.Address
	AmountIn         *big.Int
	AmountOutMinimum *big.Int
}

// SwapVenue converts a fixed input amount of one asset into at least a
// minimum amount of another through an external liquidity source. If the
// venue cannot deliver AmountOutMinimum the call fails and no output is
// delivered.
type SwapVenue interface {
	ExactInputSingle(ctx context.Context, p SwapParams) (*big.Int, error)
	Address() common.Address
}

// AssetToken is the custody surface of a single fungible asset: balance
// queries plus the transfer and allowance operations the swap executor needs
// to pull, return, and approve funds.
type AssetToken interface {
	Address() common.Address
	Symbol() string
	Decimals() uint8
	BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error)
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
	TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error
	Approve(ctx context.Context, spender common.Address, amount *big.Int) error
}

// NetworkIdentity exposes the chain ID of the connected endpoint so the
// monitor can verify it is talking to the expected deployment before
// submitting any transaction.
type NetworkIdentity interface {
	ChainID(ctx context.Context) (*big.Int, error)
}
