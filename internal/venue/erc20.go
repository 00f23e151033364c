package venue

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"marginguard/internal/crypto"
	"marginguard/internal/domain"
)

const erc20ABI = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"transferFrom","type":"function","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// ERC20 binds an asset contract to the backend and the operator signer and
// implements domain.AssetToken. Symbol and decimals are deployment-time
// constants from config rather than live reads; the decimals value drives
// every base-unit conversion, so it is configured explicitly and verified by
// the operator, not inferred.
type ERC20 struct {
	backend  Backend
	signer   *crypto.TxSigner
	addr     common.Address
	symbol   string
	decimals uint8
	abi      abi.ABI
}

// NewERC20 binds an asset token. Address must be non-zero.
func NewERC20(backend Backend, signer *crypto.TxSigner, addr common.Address, symbol string, decimals uint8) (*ERC20, error) {
	if backend == nil || signer == nil {
		return nil, fmt.Errorf("venue: erc20 %s backend/signer: %w", symbol, domain.ErrInvalidReference)
	}
	if addr == (common.Address{}) {
		return nil, fmt.Errorf("venue: erc20 %s address: %w", symbol, domain.ErrInvalidReference)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("venue: parse erc20 ABI: %w", err)
	}
	return &ERC20{
		backend:  backend,
		signer:   signer,
		addr:     addr,
		symbol:   symbol,
		decimals: decimals,
		abi:      parsed,
	}, nil
}

func (t *ERC20) Address() common.Address { return t.addr }
func (t *ERC20) Symbol() string          { return t.symbol }
func (t *ERC20) Decimals() uint8         { return t.decimals }

// BalanceOf reads the holder's current balance via eth_call.
func (t *ERC20) BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	data, err := t.abi.Pack("balanceOf", holder)
	if err != nil {
		return nil, fmt.Errorf("venue: pack balanceOf: %w", err)
	}
	out, err := t.backend.CallContract(ctx, ethereum.CallMsg{To: &t.addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("venue: %s balanceOf %s: %w", t.symbol, holder.Hex(), err)
	}
	vals, err := t.abi.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("venue: unpack balanceOf: %w", err)
	}
	bal, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("venue: balanceOf returned %T", vals[0])
	}
	return bal, nil
}

// Transfer moves amount from the signer's address to the recipient.
func (t *ERC20) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	data, err := t.abi.Pack("transfer", to, amount)
	if err != nil {
		return fmt.Errorf("venue: pack transfer: %w", err)
	}
	if _, err := submit(ctx, t.backend, t.signer, t.addr, data); err != nil {
		return fmt.Errorf("venue: %s transfer to %s: %w", t.symbol, to.Hex(), err)
	}
	return nil
}

// TransferFrom moves amount from a pre-authorized balance to the recipient.
func (t *ERC20) TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error {
	data, err := t.abi.Pack("transferFrom", from, to, amount)
	if err != nil {
		return fmt.Errorf("venue: pack transferFrom: %w", err)
	}
	if _, err := submit(ctx, t.backend, t.signer, t.addr, data); err != nil {
		return fmt.Errorf("venue: %s transferFrom %s: %w", t.symbol, from.Hex(), err)
	}
	return nil
}

// Approve grants the spender an allowance of exactly amount.
func (t *ERC20) Approve(ctx context.Context, spender common.Address, amount *big.Int) error {
	data, err := t.abi.Pack("approve", spender, amount)
	if err != nil {
		return fmt.Errorf("venue: pack approve: %w", err)
	}
	if _, err := submit(ctx, t.backend, t.signer, t.addr, data); err != nil {
		return fmt.Errorf("venue: %s approve %s: %w", t.symbol, spender.Hex(), err)
	}
	return nil
}

var _ domain.AssetToken = (*ERC20)(nil)
