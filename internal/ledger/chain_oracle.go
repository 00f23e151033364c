// Package ledger implements the LedgerOracle against the on-chain margin
// ledger contract via an eth JSON-RPC endpoint.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"marginguard/internal/domain"
)

// accountValuesABI covers the single read the guardian needs: the current
// supply and borrow values of a (owner, accountNumber) position, both
// denominated in the ledger's common valuation unit.
const accountValuesABI = `[{
	"name": "getAccountValues",
	"type": "function",
	"stateMutability": "view",
	"inputs": [
		{"name": "owner", "type": "address"},
		{"name": "accountNumber", "type": "uint256"}
	],
	"outputs": [
		{"name": "supplyValue", "type": "uint256"},
		{"name": "borrowValue", "type": "uint256"}
	]
}]`

// ContractCaller is the subset of the eth client the oracle needs. It is
// satisfied by *ethclient.Client and by deterministic fakes in tests.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ChainOracle reads position values from the ledger contract. Every call
// issues a fresh eth_call at the latest block; nothing is cached, since a
// stale snapshot would defeat the safety purpose.
type ChainOracle struct {
	caller   ContractCaller
	contract common.Address
	abi      abi.ABI
}

// NewChainOracle binds the oracle to the ledger contract address. A nil
// caller or zero contract address is rejected.
func NewChainOracle(caller ContractCaller, contract common.Address) (*ChainOracle, error) {
	if caller == nil {
		return nil, fmt.Errorf("ledger: caller: %w", domain.ErrInvalidReference)
	}
	if contract == (common.Address{}) {
		return nil, fmt.Errorf("ledger: contract address: %w", domain.ErrInvalidReference)
	}
	parsed, err := abi.JSON(strings.NewReader(accountValuesABI))
	if err != nil {
		return nil, fmt.Errorf("ledger: parse ABI: %w", err)
	}
	return &ChainOracle{caller: caller, contract: contract, abi: parsed}, nil
}

// GetAccountValues implements domain.LedgerOracle.
func (o *ChainOracle) GetAccountValues(ctx context.Context, acct domain.Account) (domain.PositionValues, error) {
	data, err := o.abi.Pack("getAccountValues", acct.Owner, acct.Number)
	if err != nil {
		return domain.PositionValues{}, fmt.Errorf("ledger: pack call for %s: %w", acct, err)
	}

	out, err := o.caller.CallContract(ctx, ethereum.CallMsg{To: &o.contract, Data: data}, nil)
	if err != nil {
		return domain.PositionValues{}, fmt.Errorf("ledger: call %s: %w", o.contract.Hex(), err)
	}

	vals, err := o.abi.Unpack("getAccountValues", out)
	if err != nil {
		return domain.PositionValues{}, fmt.Errorf("ledger: unpack values for %s: %w", acct, err)
	}
	if len(vals) != 2 {
		return domain.PositionValues{}, fmt.Errorf("ledger: expected 2 return values, got %d", len(vals))
	}
	supply, ok := vals[0].(*big.Int)
	if !ok {
		return domain.PositionValues{}, fmt.Errorf("ledger: supply value has type %T", vals[0])
	}
	borrow, ok := vals[1].(*big.Int)
	if !ok {
		return domain.PositionValues{}, fmt.Errorf("ledger: borrow value has type %T", vals[1])
	}
	return domain.PositionValues{Supply: supply, Borrow: borrow}, nil
}

var _ domain.LedgerOracle = (*ChainOracle)(nil)
