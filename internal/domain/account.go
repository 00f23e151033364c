// Package domain defines the core types shared by the guardian, the swap
// executor, and the client monitor: accounts, position snapshots, the margin
// formula, rebalance records, and the interfaces through which the on-chain
// ledger, the liquidity venue, and the persistence layers are reached.
package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Account identifies a leveraged position on the ledger by its owner address
// and sub-account number.
type Account struct {
	Owner  common.Address
	Number *big.Int
}

// NewAccount builds an Account from a hex owner address and a sub-account
// number. It rejects malformed or zero owner addresses.
func NewAccount(ownerHex string, number int64) (Account, error) {
	if !common.IsHexAddress(ownerHex) {
		return Account{}, fmt.Errorf("domain: owner %q: %w", ownerHex, ErrInvalidReference)
	}
	owner := common.HexToAddress(ownerHex)
	if owner == (common.Address{}) {
		return Account{}, fmt.Errorf("domain: zero owner address: %w", ErrInvalidReference)
	}
	if number < 0 {
		return Account{}, fmt.Errorf("domain: negative account number %d: %w", number, ErrInvalidReference)
	}
	return Account{Owner: owner, Number: big.NewInt(number)}, nil
}

// String renders the account as "owner/number" for logs and audit rows.
func (a Account) String() string {
	return fmt.Sprintf("%s/%s", a.Owner.Hex(), a.Number.String())
}

// PositionValues is a transient snapshot of a position's supply and borrow
// values in the ledger's common valuation unit. It is read from the oracle
// per call and never persisted; staleness is handled by always re-reading.
type PositionValues struct {
	Supply *big.Int
	Borrow *big.Int
}
